package payout

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settleup/reconciler/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func scenarioCard() *domain.RateCard {
	return &domain.RateCard{
		ID:                "amz-fashion-2024",
		PlatformID:        "Amazon",
		CategoryID:        "Fashion",
		EffectiveFrom:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Mode:              domain.CommissionFlat,
		CommissionPercent: d("15"),
		GSTPercent:        d("18"),
		TCSPercent:        d("1"),
		Fees: []domain.Fee{
			{Code: domain.FeeShipping, Type: domain.FeeAmount, Value: d("40")},
		},
	}
}

func scenarioOrder() *domain.Order {
	return &domain.Order{
		ID:           "ORD-1",
		PlatformID:   "Amazon",
		CategoryID:   "Fashion",
		SellingPrice: d("1000"),
		OrderDate:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Status:       domain.OrderDelivered,
	}
}

func TestComputeExpectedPayout_FlatCommission(t *testing.T) {
	b, err := ComputeExpectedPayout(scenarioOrder(), scenarioCard(), nil)
	require.NoError(t, err)

	assertDec(t, "150", b.Commission)
	assertDec(t, "190", b.GrossDeductions)
	assertDec(t, "34.2", b.GST)
	assertDec(t, "10", b.TCS)
	assertDec(t, "765.8", b.ExpectedPayout)
	require.Len(t, b.Fees, 1)
	assertDec(t, "40", b.FeeAmount(domain.FeeShipping))
}

func TestComputeExpectedPayout_TieredUsesSlabPercent(t *testing.T) {
	card := scenarioCard()
	card.Mode = domain.CommissionTiered
	slab := &domain.Slab{MinPrice: d("500"), CommissionPercent: d("12")}

	b, err := ComputeExpectedPayout(scenarioOrder(), card, slab)
	require.NoError(t, err)
	assertDec(t, "12", b.CommissionPercent)
	assertDec(t, "120", b.Commission)
}

func TestComputeExpectedPayout_PercentFees(t *testing.T) {
	card := scenarioCard()
	card.Fees = append(card.Fees,
		domain.Fee{Code: domain.FeeCollection, Type: domain.FeePercent, Value: d("2")},
		domain.Fee{Code: domain.FeeFixed, Type: domain.FeeAmount, Value: d("10")},
	)

	b, err := ComputeExpectedPayout(scenarioOrder(), card, nil)
	require.NoError(t, err)
	// 150 + 40 + 20 + 10
	assertDec(t, "220", b.GrossDeductions)
	assertDec(t, "20", b.FeeAmount(domain.FeeCollection))
	assertDec(t, "39.6", b.GST)
	assertDec(t, "730.4", b.ExpectedPayout)
}

func TestComputeExpectedPayout_Deterministic(t *testing.T) {
	card := scenarioCard()
	order := scenarioOrder()
	first, err := ComputeExpectedPayout(order, card, nil)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := ComputeExpectedPayout(order, card, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestComputeExpectedPayout_StatusHandling(t *testing.T) {
	card := scenarioCard()
	card.Fees = append(card.Fees,
		domain.Fee{Code: domain.FeeRTO, Type: domain.FeeAmount, Value: d("60")},
		domain.Fee{Code: domain.FeePackaging, Type: domain.FeeAmount, Value: d("15")},
	)

	t.Run("rto charges only reverse logistics", func(t *testing.T) {
		o := scenarioOrder()
		o.Status = domain.OrderRTO
		b, err := ComputeExpectedPayout(o, card, nil)
		require.NoError(t, err)
		assert.True(t, b.Commission.IsZero())
		assert.True(t, b.TCS.IsZero())
		assertDec(t, "100", b.GrossDeductions)
		assertDec(t, "18", b.GST)
		assertDec(t, "-118", b.ExpectedPayout)
		assert.True(t, b.FeeAmount(domain.FeePackaging).IsZero())
	})

	t.Run("cancelled expects nothing", func(t *testing.T) {
		o := scenarioOrder()
		o.Status = domain.OrderCancelled
		b, err := ComputeExpectedPayout(o, card, nil)
		require.NoError(t, err)
		assert.True(t, b.ExpectedPayout.IsZero())
		assert.Empty(t, b.Fees)
	})
}

func TestComputeExpectedPayout_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		order func() *domain.Order
		card  func() *domain.RateCard
	}{
		{"negative price", func() *domain.Order {
			o := scenarioOrder()
			o.SellingPrice = d("-1")
			return o
		}, scenarioCard},
		{"nil card", scenarioOrder, func() *domain.RateCard { return nil }},
		{"tiered without slab", scenarioOrder, func() *domain.RateCard {
			c := scenarioCard()
			c.Mode = domain.CommissionTiered
			return c
		}},
		{"negative fee", scenarioOrder, func() *domain.RateCard {
			c := scenarioCard()
			c.Fees[0].Value = d("-40")
			return c
		}},
		{"unknown fee type", scenarioOrder, func() *domain.RateCard {
			c := scenarioCard()
			c.Fees[0].Type = "per_kg"
			return c
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeExpectedPayout(tt.order(), tt.card(), nil)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
