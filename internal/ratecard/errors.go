package ratecard

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNoActiveRateCard  = errors.New("no active rate card")
	ErrAmbiguousRateCard = errors.New("ambiguous rate card")
	ErrPriceOutOfBounds  = errors.New("price out of rate card bounds")
	ErrNoMatchingSlab    = errors.New("no matching commission slab")
	ErrInvalidCard       = errors.New("invalid rate card")
)

// ResolutionError describes why no single card/slab applies to an order.
// It matches its Kind with errors.Is.
type ResolutionError struct {
	Kind       error
	PlatformID string
	CategoryID string
	OrderDate  time.Time
	Price      decimal.Decimal
	CardIDs    []string
	Detail     string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("%v for %s/%s on %s at price %s",
		e.Kind, e.PlatformID, e.CategoryID, e.OrderDate.Format("2006-01-02"), e.Price)
	if len(e.CardIDs) > 0 {
		msg += fmt.Sprintf(" (cards %v)", e.CardIDs)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Kind }

// KindName returns a stable upper-case name for a resolution error, suitable
// for reports and metric labels.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrNoActiveRateCard):
		return "NO_ACTIVE_RATE_CARD"
	case errors.Is(err, ErrAmbiguousRateCard):
		return "AMBIGUOUS_RATE_CARD"
	case errors.Is(err, ErrPriceOutOfBounds):
		return "PRICE_OUT_OF_BOUNDS"
	case errors.Is(err, ErrNoMatchingSlab):
		return "NO_MATCHING_SLAB"
	case errors.Is(err, ErrInvalidCard):
		return "INVALID_RATE_CARD"
	default:
		return ""
	}
}
