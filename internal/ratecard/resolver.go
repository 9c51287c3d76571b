package ratecard

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
)

// Resolution is the card and, for tiered cards, the slab that applies to an
// order. SlabIndex is -1 for flat cards.
type Resolution struct {
	Card      *domain.RateCard
	Slab      *domain.Slab
	SlabIndex int
}

// CommissionPercent is the slab's percent when a slab applies, else the card's.
func (r Resolution) CommissionPercent() decimal.Decimal {
	if r.Slab != nil {
		return r.Slab.CommissionPercent
	}
	return r.Card.CommissionPercent
}

// Resolve selects the single rate card whose validity window contains
// orderDate and, for tiered cards, the slab containing orderPrice.
// Overlapping windows or slabs are reported, never resolved by order.
func Resolve(cards []domain.RateCard, platformID, categoryID string, orderDate time.Time, orderPrice decimal.Decimal) (Resolution, error) {
	fail := func(kind error, ids []string, detail string) (Resolution, error) {
		return Resolution{}, &ResolutionError{
			Kind:       kind,
			PlatformID: platformID,
			CategoryID: categoryID,
			OrderDate:  orderDate,
			Price:      orderPrice,
			CardIDs:    ids,
			Detail:     detail,
		}
	}

	var matches []*domain.RateCard
	for i := range cards {
		c := &cards[i]
		if !sameKey(c.PlatformID, platformID) || !sameKey(c.CategoryID, categoryID) {
			continue
		}
		if c.ActiveOn(orderDate) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return fail(ErrNoActiveRateCard, nil, "")
	case 1:
	default:
		ids := make([]string, len(matches))
		for i, c := range matches {
			ids[i] = c.ID
		}
		return fail(ErrAmbiguousRateCard, ids, "validity windows overlap")
	}

	card := matches[0]
	ids := []string{card.ID}

	if card.GlobalMinPrice != nil && orderPrice.LessThan(*card.GlobalMinPrice) {
		return fail(ErrPriceOutOfBounds, ids, "below minimum "+card.GlobalMinPrice.String())
	}
	if card.GlobalMaxPrice != nil && orderPrice.GreaterThan(*card.GlobalMaxPrice) {
		return fail(ErrPriceOutOfBounds, ids, "above maximum "+card.GlobalMaxPrice.String())
	}

	switch card.Mode {
	case domain.CommissionFlat:
		return Resolution{Card: card, SlabIndex: -1}, nil
	case domain.CommissionTiered:
	default:
		return fail(ErrInvalidCard, ids, fmt.Sprintf("unknown commission mode %q", card.Mode))
	}

	idx := -1
	for i, s := range card.Slabs {
		if !s.Contains(orderPrice) {
			continue
		}
		if idx >= 0 {
			return fail(ErrNoMatchingSlab, ids, fmt.Sprintf("slabs %d and %d overlap", idx, i))
		}
		idx = i
	}
	if idx < 0 {
		return fail(ErrNoMatchingSlab, ids, "slab coverage gap")
	}
	return Resolution{Card: card, Slab: &card.Slabs[idx], SlabIndex: idx}, nil
}

func sameKey(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
