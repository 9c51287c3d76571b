package ingestion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settleup/reconciler/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestParseOrderCSV(t *testing.T) {
	csv := "\xef\xbb\xbfOrder_ID,Marketplace,Category,SKU,Selling_Price,Order_Date,Status\n" +
		"ORD-1,Amazon,Fashion,SKU-1,\"₹1,299.00\",2024-05-01,delivered\n" +
		"ORD-2,Amazon,Fashion,SKU-2,499,02/05/2024,RTO\n" +
		",,,,,,\n" +
		"ORD-3,Amazon,Fashion,SKU-3,899,2024-05-03,\n"

	orders, err := ParseOrderCSV([]byte(csv))
	require.NoError(t, err)
	require.Len(t, orders, 3)

	assert.Equal(t, "ORD-1", orders[0].ID)
	assert.True(t, d("1299").Equal(orders[0].SellingPrice))
	assert.Equal(t, domain.OrderRTO, orders[1].Status)
	assert.Equal(t, date("2024-05-02"), orders[1].OrderDate)
	assert.Equal(t, domain.OrderDelivered, orders[2].Status)
}

func TestParseOrderCSV_Errors(t *testing.T) {
	header := "order_id,marketplace,category,sku,selling_price,order_date,status\n"
	tests := []struct {
		name    string
		rows    string
		wantErr string
	}{
		{"negative price", "ORD-1,Amazon,Fashion,S,-10,2024-05-01,delivered\n", "line 2 selling_price: negative"},
		{"unknown status", "ORD-1,Amazon,Fashion,S,10,2024-05-01,lost\n", "unknown status"},
		{"bad price", "ORD-1,Amazon,Fashion,S,ten,2024-05-01,\n", "line 2 selling_price"},
		{"missing date", "ORD-1,Amazon,Fashion,S,10,,\n", "line 2 order_date: required"},
		{
			"duplicate id",
			"ORD-1,Amazon,Fashion,S,10,2024-05-01,\nORD-1,Amazon,Fashion,S,10,2024-05-01,\n",
			"line 3 order_id: duplicate of line 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOrderCSV([]byte(header + tt.rows))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseSettlementCSV(t *testing.T) {
	csv := "order_id,settlement_amount,payout_date,utr,fee_Commission,fee_shipping\n" +
		"ORD-1,765.80,2024-05-08,UTR1,150,40\n" +
		"ORD-2,-118,2024-05-09,,,\n"

	settlements, err := ParseSettlementCSV([]byte(csv))
	require.NoError(t, err)
	require.Len(t, settlements, 2)

	assert.True(t, d("765.8").Equal(settlements[0].Amount))
	assert.Equal(t, "UTR1", settlements[0].UTR)
	require.Len(t, settlements[0].Fees, 2)
	assert.True(t, d("150").Equal(settlements[0].Fees["commission"]))
	assert.True(t, d("40").Equal(settlements[0].Fees["shipping"]))

	assert.True(t, d("-118").Equal(settlements[1].Amount))
	assert.Nil(t, settlements[1].Fees)
}

func TestParseSettlementCSV_Errors(t *testing.T) {
	_, err := ParseSettlementCSV([]byte("order_id,payout_date\nORD-1,2024-05-01\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns: settlement_amount")

	_, err = ParseSettlementCSV([]byte("order_id,settlement_amount,payout_date\nORD-1,x,2024-05-01\nORD-2,1,bad\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2 settlement_amount")
	assert.Contains(t, err.Error(), "line 3 payout_date")
}

func TestParseOrderCSV_LineNumbersCountBlankLines(t *testing.T) {
	csv := "order_id,marketplace,category,sku,selling_price,order_date\n" +
		"ORD-1,Amazon,Fashion,S,10,2024-05-01\n" +
		"\n" +
		"ORD-2,Amazon,Fashion,S,-10,2024-05-01\n" +
		"\n\n" +
		"ORD-3,Amazon,Fashion,S,10,someday\n"

	_, err := ParseOrderCSV([]byte(csv))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 4 selling_price: negative")
	assert.Contains(t, err.Error(), "line 7 order_date")
	assert.NotContains(t, err.Error(), "line 3 ")
}
