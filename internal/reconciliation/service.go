package reconciliation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/settleup/reconciler/internal/domain"
	"github.com/settleup/reconciler/internal/observability"
	"github.com/settleup/reconciler/internal/repository"
)

// Service reconciles stored orders against stored settlements and rate cards.
type Service struct {
	orderRepo *repository.OrderRepo
	settRepo  *repository.SettlementRepo
	cardRepo  *repository.RateCardRepo
	opts      Options
	logger    *zap.Logger
}

// NewService creates a new reconciliation service.
func NewService(
	orderRepo *repository.OrderRepo,
	settRepo *repository.SettlementRepo,
	cardRepo *repository.RateCardRepo,
	opts Options,
	logger *zap.Logger,
) *Service {
	return &Service{
		orderRepo: orderRepo,
		settRepo:  settRepo,
		cardRepo:  cardRepo,
		opts:      opts,
		logger:    logger.With(zap.String("component", "reconciliation")),
	}
}

// Run reconciles every stored order matching the filter. Orphan settlements
// are only reported for an unfiltered run.
func (s *Service) Run(ctx context.Context, f repository.OrderFilter) (*Report, error) {
	start := time.Now()

	orders, err := s.orderRepo.All(f)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}

	var settlements []domain.Settlement
	if f == (repository.OrderFilter{}) {
		settlements, err = s.settRepo.All()
	} else {
		ids := make([]string, len(orders))
		for i, o := range orders {
			ids[i] = o.ID
		}
		settlements, err = s.settRepo.ByOrderIDs(ids)
	}
	if err != nil {
		return nil, fmt.Errorf("load settlements: %w", err)
	}

	cards, err := s.cardRepo.List(repository.RateCardFilter{Platform: f.Platform, Category: f.Category})
	if err != nil {
		return nil, fmt.Errorf("load rate cards: %w", err)
	}

	report, err := Reconcile(ctx, Input{Orders: orders, Settlements: settlements, Cards: cards}, s.opts)
	if err != nil {
		if report == nil {
			return nil, fmt.Errorf("reconcile: %w", err)
		}
		s.logger.Warn("Reconciliation interrupted", zap.Error(err),
			zap.Int("finished", len(report.Results)+len(report.Failures)),
			zap.Int("orders", len(orders)))
		return report, err
	}

	elapsed := time.Since(start)
	s.record(orders, report, elapsed)

	sum := report.Summary
	s.logger.Info("Reconciliation completed",
		zap.Int("orders", sum.Orders),
		zap.Int("matched", sum.Matched),
		zap.Int("mismatched", sum.Mismatched),
		zap.Int("failed", sum.Failed),
		zap.Int("orphans", sum.Orphans),
		zap.String("net_delta", sum.NetDelta.StringFixed(2)),
		zap.Duration("elapsed", elapsed))

	return report, nil
}

// ForOrder reconciles a single stored order.
func (s *Service) ForOrder(ctx context.Context, orderID string) (*domain.ReconciliationResult, *Failure, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	o, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	cards, err := s.cardRepo.ListFor(o.PlatformID, o.CategoryID)
	if err != nil {
		return nil, nil, fmt.Errorf("load rate cards: %w", err)
	}
	settlements, err := s.settRepo.ByOrderIDs([]string{o.ID})
	if err != nil {
		return nil, nil, fmt.Errorf("load settlements: %w", err)
	}

	res, failure := ReconcileOrder(o, cards, groupSettlements(settlements)[o.ID], s.opts.Tolerance)
	if failure != nil {
		s.logger.Debug("Order not reconciled",
			zap.String("order_id", o.ID),
			zap.String("kind", failure.Kind),
			zap.String("reason", failure.Reason))
	}
	return res, failure, nil
}

func (s *Service) record(orders []domain.Order, r *Report, elapsed time.Duration) {
	observability.RecordBatch(len(orders), elapsed)
	platforms := make(map[string]string, len(orders))
	for _, o := range orders {
		platforms[o.ID] = o.PlatformID
	}
	for _, res := range r.Results {
		observability.RecordResult(platforms[res.OrderID], string(res.Severity), res.Delta)
	}
	for _, f := range r.Failures {
		observability.RecordFailure(f.PlatformID, f.Kind)
	}
}
