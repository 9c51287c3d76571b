package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CommissionMode string

const (
	CommissionFlat   CommissionMode = "flat"
	CommissionTiered CommissionMode = "tiered"
)

type FeeType string

const (
	FeePercent FeeType = "percent"
	FeeAmount  FeeType = "amount"
)

// Well-known fee codes. Cards may carry other codes too.
const (
	FeeShipping   = "shipping"
	FeeRTO        = "rto"
	FeePackaging  = "packaging"
	FeeFixed      = "fixed"
	FeeCollection = "collection"
	FeeTech       = "tech"
	FeeStorage    = "storage"
)

type CycleKind string

const (
	CycleTPlus    CycleKind = "t_plus"
	CycleWeekly   CycleKind = "weekly"
	CycleBiweekly CycleKind = "biweekly"
	CycleMonthly  CycleKind = "monthly"
)

// SettlementCycle describes when the marketplace pays out for a dispatched
// order. It only drives the expected settlement date, never fee amounts.
type SettlementCycle struct {
	Kind       CycleKind    `json:"kind"`
	OffsetDays int          `json:"offset_days"`
	Weekday    time.Weekday `json:"weekday,omitempty"`
	DayOfMonth int          `json:"day_of_month,omitempty"`
	GraceDays  int          `json:"grace_days"`
}

// RateCard is one marketplace/category fee agreement.
type RateCard struct {
	ID                string           `json:"id"`
	PlatformID        string           `json:"platform_id"`
	CategoryID        string           `json:"category_id"`
	EffectiveFrom     time.Time        `json:"effective_from"`
	EffectiveTo       *time.Time       `json:"effective_to,omitempty"`
	Mode              CommissionMode   `json:"commission_mode"`
	CommissionPercent decimal.Decimal  `json:"commission_percent"`
	GlobalMinPrice    *decimal.Decimal `json:"global_min_price,omitempty"`
	GlobalMaxPrice    *decimal.Decimal `json:"global_max_price,omitempty"`
	GSTPercent        decimal.Decimal  `json:"gst_percent"`
	TCSPercent        decimal.Decimal  `json:"tcs_percent"`
	Cycle             SettlementCycle  `json:"settlement_cycle"`
	Slabs             []Slab           `json:"slabs,omitempty"`
	Fees              []Fee            `json:"fees,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

// Slab is a [MinPrice, MaxPrice) commission band. A nil MaxPrice is open upward.
type Slab struct {
	ID                int64            `json:"id,omitempty"`
	MinPrice          decimal.Decimal  `json:"min_price"`
	MaxPrice          *decimal.Decimal `json:"max_price,omitempty"`
	CommissionPercent decimal.Decimal  `json:"commission_percent"`
}

// Contains reports whether price falls inside the slab.
func (s Slab) Contains(price decimal.Decimal) bool {
	if price.LessThan(s.MinPrice) {
		return false
	}
	return s.MaxPrice == nil || price.LessThan(*s.MaxPrice)
}

type Fee struct {
	Code  string          `json:"code"`
	Type  FeeType         `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// ActiveOn reports whether the card's validity window contains the calendar
// date of t. Both ends are inclusive.
func (c *RateCard) ActiveOn(t time.Time) bool {
	d := DateOf(t)
	if d.Before(DateOf(c.EffectiveFrom)) {
		return false
	}
	return c.EffectiveTo == nil || !d.After(DateOf(*c.EffectiveTo))
}

// Fee returns the fee with the given code, if configured.
func (c *RateCard) Fee(code string) (Fee, bool) {
	for _, f := range c.Fees {
		if f.Code == code {
			return f, true
		}
	}
	return Fee{}, false
}

// DateOf truncates t to midnight UTC of its calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
