package api

import (
	"net/http"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
	"github.com/settleup/reconciler/internal/money"
	"github.com/settleup/reconciler/internal/repository"
)

const topDiscrepancies = 10

type marketplaceEntry struct {
	Marketplace    string          `json:"marketplace"`
	Orders         int             `json:"orders"`
	Mismatched     int             `json:"mismatched"`
	Failed         int             `json:"failed"`
	ExpectedPayout decimal.Decimal `json:"expected_payout"`
	ActualPayout   decimal.Decimal `json:"actual_payout"`
	NetDelta       decimal.Decimal `json:"net_delta"`
}

type discrepancyEntry struct {
	OrderID  string          `json:"order_id"`
	Delta    decimal.Decimal `json:"delta"`
	Severity domain.Severity `json:"severity"`
}

// GetDashboard reconciles everything stored and aggregates it per marketplace.
func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconSvc.Run(r.Context(), repository.OrderFilter{})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cardCount, err := h.cardRepo.Count()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	orders, err := h.orderRepo.All(repository.OrderFilter{})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	platformOf := make(map[string]string, len(orders))
	for _, o := range orders {
		platformOf[o.ID] = o.PlatformID
	}

	byPlatform := map[string]*marketplaceEntry{}
	entry := func(platform string) *marketplaceEntry {
		e, ok := byPlatform[platform]
		if !ok {
			e = &marketplaceEntry{
				Marketplace:    platform,
				ExpectedPayout: decimal.Zero,
				ActualPayout:   decimal.Zero,
				NetDelta:       decimal.Zero,
			}
			byPlatform[platform] = e
		}
		return e
	}

	var mismatches []discrepancyEntry
	for _, res := range report.Results {
		e := entry(platformOf[res.OrderID])
		e.Orders++
		e.ExpectedPayout = e.ExpectedPayout.Add(res.ExpectedPayout)
		e.ActualPayout = e.ActualPayout.Add(res.ActualPayout)
		e.NetDelta = e.NetDelta.Add(res.Delta)
		if res.Mismatch {
			e.Mismatched++
			mismatches = append(mismatches, discrepancyEntry{OrderID: res.OrderID, Delta: res.Delta, Severity: res.Severity})
		}
	}
	for _, f := range report.Failures {
		e := entry(f.PlatformID)
		e.Orders++
		e.Failed++
	}

	marketplaces := make([]marketplaceEntry, 0, len(byPlatform))
	for _, e := range byPlatform {
		e.ExpectedPayout = money.Round(e.ExpectedPayout)
		e.ActualPayout = money.Round(e.ActualPayout)
		e.NetDelta = money.Round(e.NetDelta)
		marketplaces = append(marketplaces, *e)
	}
	sort.Slice(marketplaces, func(i, j int) bool { return marketplaces[i].Marketplace < marketplaces[j].Marketplace })

	sort.SliceStable(mismatches, func(i, j int) bool {
		return mismatches[i].Delta.Abs().GreaterThan(mismatches[j].Delta.Abs())
	})
	if len(mismatches) > topDiscrepancies {
		mismatches = mismatches[:topDiscrepancies]
	}
	if mismatches == nil {
		mismatches = []discrepancyEntry{}
	}

	sum := report.Summary
	h.writeJSON(w, http.StatusOK, map[string]any{
		"generated_at": report.GeneratedAt,
		"rate_cards":   cardCount,
		"orders": map[string]int{
			"total":              sum.Orders,
			"matched":            sum.Matched,
			"mismatched":         sum.Mismatched,
			"failed":             sum.Failed,
			"orphan_settlements": sum.Orphans,
		},
		"payout": map[string]decimal.Decimal{
			"expected":  money.Round(sum.TotalExpected),
			"actual":    money.Round(sum.TotalActual),
			"net_delta": money.Round(sum.NetDelta),
		},
		"discrepancies": map[string]int{
			"critical": sum.BySeverity[domain.SeverityCritical],
			"high":     sum.BySeverity[domain.SeverityHigh],
			"medium":   sum.BySeverity[domain.SeverityMedium],
			"low":      sum.BySeverity[domain.SeverityLow],
		},
		"failures_by_kind":  sum.FailuresByKind,
		"by_marketplace":    marketplaces,
		"top_discrepancies": mismatches,
	})
}
