package ingestion

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/settleup/reconciler/internal/observability"
	"github.com/settleup/reconciler/internal/reconciliation"
	"github.com/settleup/reconciler/internal/repository"
)

type Kind string

const (
	KindRateCards   Kind = "ratecards"
	KindOrders      Kind = "orders"
	KindSettlements Kind = "settlements"
)

// IngestResult is returned from a successful ingestion.
type IngestResult struct {
	UploadID              string `json:"upload_id"`
	Kind                  Kind   `json:"kind"`
	AlreadyIngested       bool   `json:"already_ingested"`
	RecordsParsed         int    `json:"records_parsed"`
	RecordsIngested       int    `json:"records_ingested"`
	DuplicatesSkipped     int    `json:"duplicates_skipped"`
	DiscrepanciesDetected int    `json:"discrepancies_detected"`
}

// Service stores uploaded rate cards, orders and settlements.
type Service struct {
	uploadRepo *repository.UploadRepo
	cardRepo   *repository.RateCardRepo
	orderRepo  *repository.OrderRepo
	settRepo   *repository.SettlementRepo
	reconSvc   *reconciliation.Service
	logger     *zap.Logger
}

// NewService creates a new ingestion service. reconSvc may be nil, in which
// case no reconciliation runs after an order or settlement upload.
func NewService(
	uploadRepo *repository.UploadRepo,
	cardRepo *repository.RateCardRepo,
	orderRepo *repository.OrderRepo,
	settRepo *repository.SettlementRepo,
	reconSvc *reconciliation.Service,
	logger *zap.Logger,
) *Service {
	return &Service{
		uploadRepo: uploadRepo,
		cardRepo:   cardRepo,
		orderRepo:  orderRepo,
		settRepo:   settRepo,
		reconSvc:   reconSvc,
		logger:     logger.With(zap.String("component", "ingestion")),
	}
}

// Ingest parses an uploaded file and stores its records. Re-uploading the
// same bytes is a no-op.
func (s *Service) Ingest(ctx context.Context, kind Kind, data []byte) (*IngestResult, error) {
	hash := fmt.Sprintf("%x", sha256.Sum256(data))
	exists, err := s.uploadRepo.ExistsByHash(hash)
	if err != nil {
		return nil, fmt.Errorf("check hash: %w", err)
	}
	if exists {
		return &IngestResult{Kind: kind, AlreadyIngested: true}, nil
	}

	var parsed, inserted int
	switch kind {
	case KindRateCards:
		parsed, inserted, err = s.ingestRateCards(data)
	case KindOrders:
		orders, perr := ParseOrderCSV(data)
		if perr != nil {
			return nil, fmt.Errorf("parse orders: %w", perr)
		}
		parsed = len(orders)
		inserted, err = s.orderRepo.BulkInsert(orders)
	case KindSettlements:
		settlements, perr := ParseSettlementCSV(data)
		if perr != nil {
			return nil, fmt.Errorf("parse settlements: %w", perr)
		}
		parsed = len(settlements)
		inserted, err = s.settRepo.BulkInsert(settlements)
	default:
		return nil, fmt.Errorf("unsupported upload kind: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", kind, err)
	}

	upload := &repository.Upload{
		ID:          uuid.NewString(),
		Kind:        string(kind),
		FileHash:    hash,
		RecordCount: parsed,
		IngestedAt:  time.Now().UTC(),
	}
	if err := s.uploadRepo.Insert(upload); err != nil {
		return nil, fmt.Errorf("insert upload: %w", err)
	}
	observability.RecordIngest(string(kind), inserted)

	s.logger.Info("Upload ingested",
		zap.String("upload_id", upload.ID),
		zap.String("kind", string(kind)),
		zap.Int("parsed", parsed),
		zap.Int("inserted", inserted))

	result := &IngestResult{
		UploadID:          upload.ID,
		Kind:              kind,
		RecordsParsed:     parsed,
		RecordsIngested:   inserted,
		DuplicatesSkipped: parsed - inserted,
	}

	if kind != KindRateCards && s.reconSvc != nil {
		report, err := s.reconSvc.Run(ctx, repository.OrderFilter{})
		if err != nil {
			// Ingestion already succeeded; the report can be re-run on demand.
			s.logger.Warn("Reconciliation after upload failed", zap.Error(err))
		} else {
			result.DiscrepanciesDetected = report.Summary.Mismatched + report.Summary.Failed
		}
	}
	return result, nil
}

// ingestRateCards stores every card of the file or none of them. Any invalid
// card, or an overlap with a stored card, rejects the whole file.
func (s *Service) ingestRateCards(data []byte) (int, int, error) {
	rows, err := ParseRateCardCSV(data)
	if err != nil {
		return 0, 0, fmt.Errorf("parse rate cards: %w", err)
	}
	cards, err := BuildRateCards(rows)
	if err != nil {
		return 0, 0, err
	}
	if err := s.cardRepo.InsertAll(cards); err != nil {
		return len(cards), 0, err
	}
	return len(cards), len(cards), nil
}
