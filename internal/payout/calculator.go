// Package payout computes the payout a marketplace should have settled for an
// order under a resolved rate card, and classifies the actual settlement
// against it.
package payout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
	"github.com/settleup/reconciler/internal/money"
)

var ErrInvalidInput = errors.New("invalid input")

// DefaultTolerance absorbs currency rounding: one rupee.
var DefaultTolerance = decimal.NewFromInt(1)

// reversalFees are the only charges a marketplace keeps on a returned or RTO
// order.
var reversalFees = map[string]bool{
	domain.FeeShipping: true,
	domain.FeeRTO:      true,
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ComputeExpectedPayout returns the itemized expected payout for order. slab
// must be the slab resolved for the order price when card is tiered, and nil
// otherwise.
//
// Every deduction is a percentage of the order price or a flat amount, never
// of another deduction. GST is charged on the marketplace's deductions; TCS on
// the order price.
func ComputeExpectedPayout(order *domain.Order, card *domain.RateCard, slab *domain.Slab) (domain.FeeBreakdown, error) {
	if order == nil || card == nil {
		return domain.FeeBreakdown{}, invalid("order and rate card are required")
	}
	price := order.SellingPrice
	if price.IsNegative() {
		return domain.FeeBreakdown{}, invalid("order %s has negative price %s", order.ID, price)
	}
	if card.Mode == domain.CommissionTiered && slab == nil {
		return domain.FeeBreakdown{}, invalid("tiered card %s needs a slab", card.ID)
	}
	if card.GSTPercent.IsNegative() || card.TCSPercent.IsNegative() {
		return domain.FeeBreakdown{}, invalid("card %s has negative tax rate", card.ID)
	}

	pct := card.CommissionPercent
	if slab != nil {
		pct = slab.CommissionPercent
	}
	if pct.IsNegative() {
		return domain.FeeBreakdown{}, invalid("card %s has negative commission", card.ID)
	}

	b := domain.FeeBreakdown{
		OrderPrice:        price,
		CommissionPercent: pct,
		Commission:        decimal.Zero,
		Fees:              []domain.FeeLine{},
		GrossDeductions:   decimal.Zero,
		GST:               decimal.Zero,
		TCS:               decimal.Zero,
		ExpectedPayout:    decimal.Zero,
	}

	if order.Status == domain.OrderCancelled {
		return b, nil
	}
	reversal := order.Status.IsReversal()

	if !reversal {
		b.Commission = money.Percent(price, pct)
	}
	gross := b.Commission

	for _, f := range card.Fees {
		if f.Value.IsNegative() {
			return domain.FeeBreakdown{}, invalid("fee %s on card %s is negative", f.Code, card.ID)
		}
		if reversal && !reversalFees[f.Code] {
			continue
		}
		var amt decimal.Decimal
		switch f.Type {
		case domain.FeePercent:
			amt = money.Percent(price, f.Value)
		case domain.FeeAmount:
			amt = f.Value
		default:
			return domain.FeeBreakdown{}, invalid("fee %s has unknown type %q", f.Code, f.Type)
		}
		b.Fees = append(b.Fees, domain.FeeLine{Code: f.Code, Type: f.Type, Value: f.Value, Amount: amt})
		gross = gross.Add(amt)
	}

	b.GrossDeductions = gross
	b.GST = money.Percent(gross, card.GSTPercent)

	if reversal {
		b.ExpectedPayout = gross.Add(b.GST).Neg()
		return b, nil
	}

	b.TCS = money.Percent(price, card.TCSPercent)
	b.ExpectedPayout = price.Sub(gross).Sub(b.GST).Sub(b.TCS)
	return b, nil
}
