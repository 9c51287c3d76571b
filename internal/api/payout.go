package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
	"github.com/settleup/reconciler/internal/payout"
	"github.com/settleup/reconciler/internal/ratecard"
	"github.com/settleup/reconciler/internal/reconciliation"
)

type previewRequest struct {
	orderRef
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`

	// Settlement, when given, is classified against the computed payout.
	Settlement *struct {
		Amount     decimal.Decimal            `json:"amount"`
		PayoutDate string                     `json:"payout_date"`
		Fees       map[string]decimal.Decimal `json:"fees"`
	} `json:"settlement"`
	Tolerance *decimal.Decimal `json:"tolerance"`
}

type previewResponse struct {
	RateCardID             string                       `json:"rate_card_id"`
	SlabIndex              *int                         `json:"slab_index,omitempty"`
	Breakdown              domain.FeeBreakdown          `json:"breakdown"`
	ExpectedSettlementDate time.Time                    `json:"expected_settlement_date"`
	Result                 *domain.ReconciliationResult `json:"result,omitempty"`
}

// PreviewPayout computes the expected payout for an order that need not be
// stored, and optionally classifies a settlement amount against it.
func (h *Handlers) PreviewPayout(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	problems := req.validate()
	if req.Status == "" {
		req.Status = domain.OrderDelivered
	}
	req.Status = domain.OrderStatus(strings.ToLower(string(req.Status)))
	if !req.Status.Valid() {
		problems = append(problems, "unknown status "+string(req.Status))
	}
	if req.Tolerance != nil && req.Tolerance.IsNegative() {
		problems = append(problems, "tolerance must not be negative")
	}
	var paidOn time.Time
	if req.Settlement != nil && req.Settlement.PayoutDate != "" {
		t := parseTime(req.Settlement.PayoutDate)
		if t == nil {
			problems = append(problems, "settlement.payout_date must be YYYY-MM-DD or RFC 3339")
		} else {
			paidOn = *t
		}
	}
	if len(problems) > 0 {
		h.writeError(w, http.StatusBadRequest, strings.Join(problems, "; "))
		return
	}
	if req.OrderID == "" {
		req.OrderID = "preview"
	}

	res, err := h.resolve(req.orderRef)
	if err != nil {
		if ratecard.KindName(err) == "" {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.writeResolutionError(w, err)
		return
	}

	order := domain.Order{
		ID:           req.OrderID,
		PlatformID:   req.Marketplace,
		CategoryID:   req.Category,
		SellingPrice: req.OrderPrice,
		OrderDate:    req.date,
		Status:       req.Status,
	}
	b, err := payout.ComputeExpectedPayout(&order, res.Card, res.Slab)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := previewResponse{
		RateCardID:             res.Card.ID,
		Breakdown:              b,
		ExpectedSettlementDate: ratecard.ExpectedSettlementDate(res.Card, req.date),
	}
	if res.Slab != nil {
		idx := res.SlabIndex
		resp.SlabIndex = &idx
	}

	if req.Settlement != nil {
		tolerance := h.tolerance
		if req.Tolerance != nil {
			tolerance = *req.Tolerance
		}
		s := domain.Settlement{
			OrderID:    order.ID,
			Amount:     req.Settlement.Amount,
			PayoutDate: paidOn,
			Fees:       req.Settlement.Fees,
		}
		result, failure := reconciliation.ReconcileOrder(&order, []domain.RateCard{*res.Card}, &s, tolerance)
		if failure != nil {
			h.writeError(w, http.StatusUnprocessableEntity, failure.Reason)
			return
		}
		resp.Result = result
	}

	h.writeJSON(w, http.StatusOK, resp)
}
