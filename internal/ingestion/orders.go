package ingestion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
)

// ParseOrderCSV parses a marketplace order export.
//
// Expected header:
//
//	order_id,marketplace,category,sku,selling_price,order_date[,status]
//
// A missing status means delivered.
func ParseOrderCSV(data []byte) ([]domain.Order, error) {
	t, err := readTable(data, "order_id", "marketplace", "category", "selling_price", "order_date")
	if err != nil {
		return nil, err
	}

	var orders []domain.Order
	var errs []error
	seen := map[string]int{}
	for i, raw := range t.rows {
		if blank(raw) {
			continue
		}
		re := &rowErrors{line: t.lines[i]}
		o := domain.Order{
			ID:           re.required("order_id", t.get(raw, "order_id")),
			PlatformID:   re.required("marketplace", t.get(raw, "marketplace")),
			CategoryID:   re.required("category", t.get(raw, "category")),
			SKU:          t.get(raw, "sku"),
			SellingPrice: re.amount("selling_price", t.get(raw, "selling_price")),
			OrderDate:    re.date("order_date", t.get(raw, "order_date")),
			Status:       domain.OrderDelivered,
		}
		if o.SellingPrice.IsNegative() {
			re.add("selling_price", errors.New("negative"))
		}
		if s := strings.ToLower(t.get(raw, "status")); s != "" {
			o.Status = domain.OrderStatus(s)
			if !o.Status.Valid() {
				re.add("status", fmt.Errorf("unknown status %q", s))
			}
		}
		if prev, dup := seen[o.ID]; dup && o.ID != "" {
			re.add("order_id", fmt.Errorf("duplicate of line %d", prev))
		}
		seen[o.ID] = re.line

		if err := re.err(); err != nil {
			errs = append(errs, err)
			continue
		}
		orders = append(orders, o)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return orders, nil
}

// ParseSettlementCSV parses a marketplace payout report.
//
// Expected header:
//
//	order_id,settlement_amount,payout_date[,utr][,fee_<code>...]
//
// fee_<code> columns, when present, form the marketplace's itemized breakdown.
func ParseSettlementCSV(data []byte) ([]domain.Settlement, error) {
	t, err := readTable(data, "order_id", "settlement_amount", "payout_date")
	if err != nil {
		return nil, err
	}

	var feeCols []string
	for col := range t.cols {
		if strings.HasPrefix(col, "fee_") && len(col) > len("fee_") {
			feeCols = append(feeCols, col)
		}
	}

	var out []domain.Settlement
	var errs []error
	for i, raw := range t.rows {
		if blank(raw) {
			continue
		}
		re := &rowErrors{line: t.lines[i]}
		s := domain.Settlement{
			OrderID:    re.required("order_id", t.get(raw, "order_id")),
			Amount:     re.amount("settlement_amount", t.get(raw, "settlement_amount")),
			PayoutDate: re.date("payout_date", t.get(raw, "payout_date")),
			UTR:        t.get(raw, "utr"),
		}
		for _, col := range feeCols {
			v := re.optionalAmount(col, t.get(raw, col))
			if v == nil {
				continue
			}
			if s.Fees == nil {
				s.Fees = map[string]decimal.Decimal{}
			}
			s.Fees[strings.TrimPrefix(col, "fee_")] = *v
		}

		if err := re.err(); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, s)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
