package payout

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
)

// Component codes compared alongside fee codes when a settlement is itemized.
const (
	ComponentCommission = "commission"
	ComponentGST        = "gst"
	ComponentTCS        = "tcs"
)

// Classify compares the expected payout with what was actually settled.
// delta is expected minus actual; the order is a mismatch when |delta|
// exceeds tolerance.
func Classify(orderID string, b domain.FeeBreakdown, s domain.Settlement, tolerance decimal.Decimal) (domain.ReconciliationResult, error) {
	if tolerance.IsNegative() {
		return domain.ReconciliationResult{}, invalid("negative tolerance %s", tolerance)
	}

	delta := b.ExpectedPayout.Sub(s.Amount)
	mismatch := delta.Abs().GreaterThan(tolerance)

	r := domain.ReconciliationResult{
		OrderID:        orderID,
		Breakdown:      b,
		ExpectedPayout: b.ExpectedPayout,
		ActualPayout:   s.Amount,
		Delta:          delta,
		Tolerance:      tolerance,
		Mismatch:       mismatch,
		Severity:       domain.SeverityNone,
		Variances:      Variances(b, s.Fees),
	}
	if mismatch {
		r.Severity = Severity(delta, b.OrderPrice)
	}
	if !s.PayoutDate.IsZero() {
		pd := s.PayoutDate
		r.PayoutDate = &pd
	}
	return r, nil
}

// Variances lines up each expected component with the marketplace's itemized
// figure. Codes present on only one side compare against zero. It returns nil
// when nothing was reported.
func Variances(b domain.FeeBreakdown, reported map[string]decimal.Decimal) []domain.FeeVariance {
	if len(reported) == 0 {
		return nil
	}

	expected := map[string]decimal.Decimal{
		ComponentCommission: b.Commission,
		ComponentGST:        b.GST,
		ComponentTCS:        b.TCS,
	}
	for _, l := range b.Fees {
		expected[strings.ToLower(l.Code)] = l.Amount
	}
	rep := make(map[string]decimal.Decimal, len(reported))
	for code, v := range reported {
		rep[strings.ToLower(code)] = v
	}

	codes := make([]string, 0, len(expected)+len(rep))
	for code := range expected {
		codes = append(codes, code)
	}
	for code := range rep {
		if _, ok := expected[code]; !ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	out := make([]domain.FeeVariance, 0, len(codes))
	for _, code := range codes {
		e, r := expected[code], rep[code]
		out = append(out, domain.FeeVariance{
			Code:     code,
			Expected: e,
			Reported: r,
			Delta:    e.Sub(r),
		})
	}
	return out
}

var (
	criticalDelta = decimal.NewFromInt(500)
	mediumDelta   = decimal.NewFromInt(50)
	highShare     = decimal.RequireFromString("0.05")
	mediumShare   = decimal.RequireFromString("0.01")
)

// Severity grades a mismatch by absolute delta and by its share of the order
// price.
func Severity(delta, price decimal.Decimal) domain.Severity {
	abs := delta.Abs()
	if abs.GreaterThan(criticalDelta) {
		return domain.SeverityCritical
	}
	share := decimal.NewFromInt(1)
	if price.IsPositive() {
		share = abs.Div(price)
	}
	switch {
	case share.GreaterThan(highShare):
		return domain.SeverityHigh
	case abs.GreaterThan(mediumDelta), share.GreaterThan(mediumShare):
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
