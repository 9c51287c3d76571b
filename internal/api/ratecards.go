package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
	"github.com/settleup/reconciler/internal/ratecard"
	"github.com/settleup/reconciler/internal/repository"
)

func (h *Handlers) ListRateCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.RateCardFilter{
		Platform: q.Get("marketplace"),
		Category: q.Get("category"),
		ActiveOn: parseTime(q.Get("active_on")),
	}

	cards, err := h.cardRepo.List(filter)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if cards == nil {
		cards = []domain.RateCard{}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"rate_cards": cards,
		"total":      len(cards),
	})
}

func (h *Handlers) GetRateCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	card, err := h.cardRepo.GetByID(id)
	if errors.Is(err, repository.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "rate card not found")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

// orderRef identifies the order a rate card is resolved for.
type orderRef struct {
	Marketplace string          `json:"marketplace"`
	Category    string          `json:"category"`
	OrderDate   string          `json:"order_date"`
	OrderPrice  decimal.Decimal `json:"order_price"`

	date time.Time
}

func (o *orderRef) validate() []string {
	var problems []string
	o.Marketplace = strings.TrimSpace(o.Marketplace)
	o.Category = strings.TrimSpace(o.Category)
	if o.Marketplace == "" {
		problems = append(problems, "marketplace is required")
	}
	if o.Category == "" {
		problems = append(problems, "category is required")
	}
	if t := parseTime(o.OrderDate); t != nil {
		o.date = *t
	} else {
		problems = append(problems, "order_date must be YYYY-MM-DD or RFC3339")
	}
	if o.OrderPrice.IsNegative() {
		problems = append(problems, "order_price must not be negative")
	}
	return problems
}

type resolveResponse struct {
	RateCard          *domain.RateCard `json:"rate_card"`
	Slab              *domain.Slab     `json:"slab,omitempty"`
	SlabIndex         *int             `json:"slab_index,omitempty"`
	CommissionPercent decimal.Decimal  `json:"commission_percent"`
}

func (h *Handlers) resolve(ref orderRef) (ratecard.Resolution, error) {
	cards, err := h.cardRepo.ListFor(ref.Marketplace, ref.Category)
	if err != nil {
		return ratecard.Resolution{}, err
	}
	return ratecard.Resolve(cards, ref.Marketplace, ref.Category, ref.date, ref.OrderPrice)
}

func (h *Handlers) ResolveRateCard(w http.ResponseWriter, r *http.Request) {
	var req orderRef
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if problems := req.validate(); len(problems) > 0 {
		h.writeError(w, http.StatusBadRequest, strings.Join(problems, "; "))
		return
	}

	res, err := h.resolve(req)
	if err != nil {
		if ratecard.KindName(err) == "" {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.writeResolutionError(w, err)
		return
	}

	resp := resolveResponse{
		RateCard:          res.Card,
		Slab:              res.Slab,
		CommissionPercent: res.CommissionPercent(),
	}
	if res.Slab != nil {
		idx := res.SlabIndex
		resp.SlabIndex = &idx
	}
	h.writeJSON(w, http.StatusOK, resp)
}
