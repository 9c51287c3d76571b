package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

type FeeLine struct {
	Code   string          `json:"code"`
	Type   FeeType         `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Amount decimal.Decimal `json:"amount"`
}

// FeeBreakdown is the itemized expected payout for one order.
type FeeBreakdown struct {
	OrderPrice        decimal.Decimal `json:"order_price"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	Commission        decimal.Decimal `json:"commission"`
	Fees              []FeeLine       `json:"fees"`
	GrossDeductions   decimal.Decimal `json:"gross_deductions"`
	GST               decimal.Decimal `json:"gst"`
	TCS               decimal.Decimal `json:"tcs"`
	ExpectedPayout    decimal.Decimal `json:"expected_payout"`
}

// FeeAmount returns the computed amount for a fee code, zero if absent.
func (b FeeBreakdown) FeeAmount(code string) decimal.Decimal {
	for _, l := range b.Fees {
		if l.Code == code {
			return l.Amount
		}
	}
	return decimal.Zero
}

// FeeVariance compares one fee component against the marketplace's own figure.
type FeeVariance struct {
	Code     string          `json:"code"`
	Expected decimal.Decimal `json:"expected"`
	Reported decimal.Decimal `json:"reported"`
	Delta    decimal.Decimal `json:"delta"`
}

// ReconciliationResult is a derived view; it is recomputed on demand.
type ReconciliationResult struct {
	OrderID                string          `json:"order_id"`
	RateCardID             string          `json:"rate_card_id"`
	SlabIndex              *int            `json:"slab_index,omitempty"`
	Breakdown              FeeBreakdown    `json:"breakdown"`
	ExpectedPayout         decimal.Decimal `json:"expected_payout"`
	ActualPayout           decimal.Decimal `json:"actual_payout"`
	Delta                  decimal.Decimal `json:"delta"`
	Tolerance              decimal.Decimal `json:"tolerance"`
	Mismatch               bool            `json:"mismatch"`
	Severity               Severity        `json:"severity"`
	Variances              []FeeVariance   `json:"variances,omitempty"`
	ExpectedSettlementDate *time.Time      `json:"expected_settlement_date,omitempty"`
	PayoutDate             *time.Time      `json:"payout_date,omitempty"`
	SettledLate            bool            `json:"settled_late"`
}
