package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/settleup/reconciler/internal/ingestion"
	"github.com/settleup/reconciler/internal/observability"
	"github.com/settleup/reconciler/internal/reconciliation"
	"github.com/settleup/reconciler/internal/repository"
)

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	CardRepo     *repository.RateCardRepo
	OrderRepo    *repository.OrderRepo
	IngestionSvc *ingestion.Service
	ReconSvc     *reconciliation.Service
	Health       *observability.HealthChecker
	Tolerance    decimal.Decimal
	MaxUploadMB  int
	Logger       *zap.Logger
}

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(d Deps) http.Handler {
	h := &Handlers{
		cardRepo:     d.CardRepo,
		orderRepo:    d.OrderRepo,
		ingestionSvc: d.IngestionSvc,
		reconSvc:     d.ReconSvc,
		tolerance:    d.Tolerance,
		maxUpload:    int64(d.MaxUploadMB) << 20,
		logger:       d.Logger.With(zap.String("component", "api")),
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", observability.Handler())
	if d.Health != nil {
		r.Get("/health", d.Health.HealthHandler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Rate cards.
		r.Post("/ratecards/import", h.Import(ingestion.KindRateCards))
		r.Get("/ratecards", h.ListRateCards)
		r.Get("/ratecards/{id}", h.GetRateCard)
		r.Post("/ratecards/resolve", h.ResolveRateCard)

		// Orders and settlements.
		r.Post("/orders/import", h.Import(ingestion.KindOrders))
		r.Get("/orders", h.ListOrders)
		r.Post("/settlements/import", h.Import(ingestion.KindSettlements))

		// Payouts.
		r.Post("/payout/preview", h.PreviewPayout)
		r.Get("/reconciliation", h.GetReconciliation)
		r.Get("/reconciliation/{orderID}", h.GetOrderReconciliation)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
