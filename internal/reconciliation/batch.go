package reconciliation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/settleup/reconciler/internal/domain"
	"github.com/settleup/reconciler/internal/payout"
	"github.com/settleup/reconciler/internal/ratecard"
)

// Failure kinds besides the rate card resolution kinds from ratecard.KindName.
const (
	KindInvalidInput      = "INVALID_INPUT"
	KindMissingSettlement = "MISSING_SETTLEMENT"
)

// Failure records why one order could not be reconciled. Expected is set
// when the payout could still be computed.
type Failure struct {
	OrderID    string               `json:"order_id"`
	PlatformID string               `json:"platform_id"`
	Kind       string               `json:"kind"`
	Reason     string               `json:"reason"`
	Expected   *domain.FeeBreakdown `json:"expected,omitempty"`
}

type Input struct {
	Orders      []domain.Order
	Settlements []domain.Settlement
	Cards       []domain.RateCard
}

type Options struct {
	Tolerance decimal.Decimal
	Workers   int
}

// Summary aggregates one batch for the dashboard.
type Summary struct {
	Orders         int                     `json:"orders"`
	Reconciled     int                     `json:"reconciled"`
	Matched        int                     `json:"matched"`
	Mismatched     int                     `json:"mismatched"`
	Failed         int                     `json:"failed"`
	Orphans        int                     `json:"orphan_settlements"`
	FailuresByKind map[string]int          `json:"failures_by_kind"`
	BySeverity     map[domain.Severity]int `json:"by_severity"`
	TotalExpected  decimal.Decimal         `json:"total_expected"`
	TotalActual    decimal.Decimal         `json:"total_actual"`
	NetDelta       decimal.Decimal         `json:"net_delta"`
}

// Report is the outcome of one batch. It is never persisted.
type Report struct {
	GeneratedAt time.Time                     `json:"generated_at"`
	Results     []domain.ReconciliationResult `json:"results"`
	Failures    []Failure                     `json:"failures"`
	Orphans     []domain.Settlement           `json:"orphan_settlements"`
	Summary     Summary                       `json:"summary"`
}

type outcome struct {
	result  *domain.ReconciliationResult
	failure *Failure
}

// Reconcile processes every order independently. A failing order is recorded
// in the report and never stops the rest of the batch. The only error returned
// is ctx's, in which case the report covers the orders finished so far.
func Reconcile(ctx context.Context, in Input, opts Options) (*Report, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Tolerance.IsNegative() {
		return nil, errors.Join(payout.ErrInvalidInput, errors.New("negative tolerance"))
	}

	settled := groupSettlements(in.Settlements)
	outcomes := make([]outcome, len(in.Orders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range in.Orders {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			o := &in.Orders[i]
			outcomes[i] = reconcileOrder(o, in.Cards, settled[o.ID], opts.Tolerance)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		Results:     []domain.ReconciliationResult{},
		Failures:    []Failure{},
		Orphans:     orphans(in.Orders, in.Settlements),
	}
	for _, oc := range outcomes {
		switch {
		case oc.result != nil:
			report.Results = append(report.Results, *oc.result)
		case oc.failure != nil:
			report.Failures = append(report.Failures, *oc.failure)
		}
	}
	sort.Slice(report.Results, func(i, j int) bool { return report.Results[i].OrderID < report.Results[j].OrderID })
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].OrderID < report.Failures[j].OrderID })
	report.Summary = summarize(len(in.Orders), report)
	return report, err
}

// ReconcileOrder resolves, computes and classifies a single order.
func ReconcileOrder(o *domain.Order, cards []domain.RateCard, s *domain.Settlement, tolerance decimal.Decimal) (*domain.ReconciliationResult, *Failure) {
	oc := reconcileOrder(o, cards, s, tolerance)
	return oc.result, oc.failure
}

func reconcileOrder(o *domain.Order, cards []domain.RateCard, s *domain.Settlement, tolerance decimal.Decimal) outcome {
	fail := func(kind string, err error) outcome {
		return outcome{failure: &Failure{OrderID: o.ID, PlatformID: o.PlatformID, Kind: kind, Reason: err.Error()}}
	}

	res, err := ratecard.Resolve(cards, o.PlatformID, o.CategoryID, o.OrderDate, o.SellingPrice)
	if err != nil {
		kind := ratecard.KindName(err)
		if kind == "" {
			kind = KindInvalidInput
		}
		return fail(kind, err)
	}

	b, err := payout.ComputeExpectedPayout(o, res.Card, res.Slab)
	if err != nil {
		return fail(KindInvalidInput, err)
	}

	if s == nil {
		if o.Status != domain.OrderCancelled {
			oc := fail(KindMissingSettlement, errors.New("no settlement recorded for order"))
			oc.failure.Expected = &b
			return oc
		}
		s = &domain.Settlement{OrderID: o.ID}
	}

	r, err := payout.Classify(o.ID, b, *s, tolerance)
	if err != nil {
		return fail(KindInvalidInput, err)
	}
	r.RateCardID = res.Card.ID
	if res.Slab != nil {
		idx := res.SlabIndex
		r.SlabIndex = &idx
	}
	due := ratecard.ExpectedSettlementDate(res.Card, o.OrderDate)
	r.ExpectedSettlementDate = &due
	if r.PayoutDate != nil && r.PayoutDate.After(due) {
		r.SettledLate = true
	}
	return outcome{result: &r}
}

// groupSettlements merges split payouts for the same order: amounts and
// itemized fees are summed and the latest payout date is kept.
func groupSettlements(in []domain.Settlement) map[string]*domain.Settlement {
	out := make(map[string]*domain.Settlement, len(in))
	for _, s := range in {
		cur, ok := out[s.OrderID]
		if !ok {
			c := s
			c.Fees = nil
			if len(s.Fees) > 0 {
				c.Fees = make(map[string]decimal.Decimal, len(s.Fees))
				for k, v := range s.Fees {
					c.Fees[k] = v
				}
			}
			out[s.OrderID] = &c
			continue
		}
		cur.Amount = cur.Amount.Add(s.Amount)
		if s.PayoutDate.After(cur.PayoutDate) {
			cur.PayoutDate = s.PayoutDate
		}
		if cur.UTR == "" {
			cur.UTR = s.UTR
		}
		for k, v := range s.Fees {
			if cur.Fees == nil {
				cur.Fees = map[string]decimal.Decimal{}
			}
			cur.Fees[k] = cur.Fees[k].Add(v)
		}
	}
	return out
}

func orphans(orders []domain.Order, settlements []domain.Settlement) []domain.Settlement {
	known := make(map[string]bool, len(orders))
	for _, o := range orders {
		known[o.ID] = true
	}
	out := []domain.Settlement{}
	for _, s := range settlements {
		if !known[s.OrderID] {
			out = append(out, s)
		}
	}
	return out
}

func summarize(orders int, r *Report) Summary {
	s := Summary{
		Orders:         orders,
		Reconciled:     len(r.Results),
		Failed:         len(r.Failures),
		Orphans:        len(r.Orphans),
		FailuresByKind: map[string]int{},
		BySeverity:     map[domain.Severity]int{},
		TotalExpected:  decimal.Zero,
		TotalActual:    decimal.Zero,
		NetDelta:       decimal.Zero,
	}
	for _, res := range r.Results {
		if res.Mismatch {
			s.Mismatched++
		} else {
			s.Matched++
		}
		s.BySeverity[res.Severity]++
		s.TotalExpected = s.TotalExpected.Add(res.ExpectedPayout)
		s.TotalActual = s.TotalActual.Add(res.ActualPayout)
		s.NetDelta = s.NetDelta.Add(res.Delta)
	}
	for _, f := range r.Failures {
		s.FailuresByKind[f.Kind]++
	}
	return s
}
