package ingestion

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/settleup/reconciler/internal/payout"
	"github.com/settleup/reconciler/internal/ratecard"
	"github.com/settleup/reconciler/internal/reconciliation"
	"github.com/settleup/reconciler/internal/repository"
)

type fixture struct {
	svc    *Service
	recon  *reconciliation.Service
	cards  *repository.RateCardRepo
	orders *repository.OrderRepo
}

func newFixture(t *testing.T, withRecon bool) fixture {
	t.Helper()
	db, err := repository.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cards := repository.NewRateCardRepo(db)
	orders := repository.NewOrderRepo(db)
	setts := repository.NewSettlementRepo(db)

	var recon *reconciliation.Service
	if withRecon {
		recon = reconciliation.NewService(orders, setts, cards,
			reconciliation.Options{Tolerance: payout.DefaultTolerance, Workers: 2}, zap.NewNop())
	}
	svc := NewService(repository.NewUploadRepo(db), cards, orders, setts, recon, zap.NewNop())
	return fixture{svc: svc, recon: recon, cards: cards, orders: orders}
}

func TestIngest_RateCardsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	data, err := os.ReadFile("../../testdata/ratecards.csv")
	require.NoError(t, err)

	res, err := f.svc.Ingest(context.Background(), KindRateCards, data)
	require.NoError(t, err)
	assert.False(t, res.AlreadyIngested)
	assert.NotEmpty(t, res.UploadID)
	assert.Equal(t, 4, res.RecordsParsed)
	assert.Equal(t, 4, res.RecordsIngested)

	res, err = f.svc.Ingest(context.Background(), KindRateCards, data)
	require.NoError(t, err)
	assert.True(t, res.AlreadyIngested)

	count, err := f.cards.Count()
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestIngest_RateCardOverlappingStoredCardRejectsFile(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	first := "marketplace,category,commission_pct,gst_rate,effective_from\nAmazon,Fashion,10,18,2024-01-01\n"
	_, err := f.svc.Ingest(ctx, KindRateCards, []byte(first))
	require.NoError(t, err)

	second := "marketplace,category,commission_pct,gst_rate,effective_from\n" +
		"Meesho,Kids,5,18,2024-01-01\n" +
		"amazon,fashion,12,18,2024-06-01\n"
	_, err = f.svc.Ingest(ctx, KindRateCards, []byte(second))
	require.ErrorIs(t, err, ratecard.ErrAmbiguousRateCard)

	// Nothing from the rejected file is stored.
	count, err := f.cards.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIngest_OrdersAndSettlementsReconcile(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	cards := "marketplace,category,shipping_fee,commission_pct,gst_rate,tcs_rate,effective_from\n" +
		"Amazon,Fashion,40,15,18,1,2024-01-01\n"
	_, err := f.svc.Ingest(ctx, KindRateCards, []byte(cards))
	require.NoError(t, err)

	orders := "order_id,marketplace,category,sku,selling_price,order_date,status\n" +
		"ORD-1,Amazon,Fashion,SKU-1,1000,2024-05-01,delivered\n" +
		"ORD-2,Amazon,Fashion,SKU-2,1000,2024-05-01,delivered\n"
	res, err := f.svc.Ingest(ctx, KindOrders, []byte(orders))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsIngested)
	// Both orders are still waiting for a payout.
	assert.Equal(t, 2, res.DiscrepanciesDetected)

	setts := "order_id,settlement_amount,payout_date,utr\n" +
		"ORD-1,765.80,2024-05-08,UTR1\n" +
		"ORD-2,700.00,2024-05-08,UTR2\n"
	res, err = f.svc.Ingest(ctx, KindSettlements, []byte(setts))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsIngested)
	assert.Equal(t, 1, res.DiscrepanciesDetected)
}

func TestIngest_OverlappingSettlementReportsWithoutUTR(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, KindRateCards, []byte(
		"marketplace,category,shipping_fee,commission_pct,gst_rate,tcs_rate,effective_from\n"+
			"Amazon,Fashion,40,15,18,1,2024-01-01\n"))
	require.NoError(t, err)
	_, err = f.svc.Ingest(ctx, KindOrders, []byte(
		"order_id,marketplace,category,selling_price,order_date\n"+
			"ORD-1,Amazon,Fashion,1000,2024-05-01\n"+
			"ORD-2,Amazon,Fashion,1000,2024-05-01\n"))
	require.NoError(t, err)

	res, err := f.svc.Ingest(ctx, KindSettlements, []byte(
		"order_id,settlement_amount,payout_date\nORD-1,765.80,2024-05-10\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsIngested)

	// The next report repeats ORD-1 and adds ORD-2.
	res, err = f.svc.Ingest(ctx, KindSettlements, []byte(
		"order_id,settlement_amount,payout_date\nORD-1,765.8,2024-05-10\nORD-2,765.80,2024-05-10\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsParsed)
	assert.Equal(t, 1, res.RecordsIngested)
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Equal(t, 0, res.DiscrepanciesDetected)

	report, err := f.recon.Run(ctx, repository.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, report.Results, 2)
	assert.False(t, report.Results[0].Mismatch)
	assert.Equal(t, "765.8", report.Results[0].ActualPayout.String())
}

func TestIngest_DuplicateOrdersSkipped(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, KindOrders, []byte(
		"order_id,marketplace,category,selling_price,order_date\nORD-1,Amazon,Fashion,100,2024-05-01\n"))
	require.NoError(t, err)

	res, err := f.svc.Ingest(ctx, KindOrders, []byte(
		"order_id,marketplace,category,selling_price,order_date\nORD-1,Amazon,Fashion,100,2024-05-01\nORD-2,Amazon,Fashion,200,2024-05-02\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsParsed)
	assert.Equal(t, 1, res.RecordsIngested)
	assert.Equal(t, 1, res.DuplicatesSkipped)

	count, err := f.orders.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIngest_BadInput(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Ingest(ctx, Kind("refunds"), []byte("x"))
	assert.ErrorContains(t, err, "unsupported upload kind")

	_, err = f.svc.Ingest(ctx, KindOrders, []byte("order_id\nORD-1\n"))
	assert.ErrorContains(t, err, "parse orders")
}
