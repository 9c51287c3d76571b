package ratecard

import (
	"time"

	"github.com/settleup/reconciler/internal/domain"
)

// ExpectedSettlementDate returns the date the marketplace should have paid out
// for an order dispatched on the given date, grace days included.
func ExpectedSettlementDate(c *domain.RateCard, dispatched time.Time) time.Time {
	cy := c.Cycle
	base := domain.DateOf(dispatched).AddDate(0, 0, cy.OffsetDays)

	var due time.Time
	switch cy.Kind {
	case domain.CycleWeekly:
		due = nextWeekday(base, cy.Weekday)
	case domain.CycleBiweekly:
		anchor := nextWeekday(domain.DateOf(c.EffectiveFrom), cy.Weekday)
		due = nextWeekday(base, cy.Weekday)
		if due.Before(anchor) {
			due = anchor
		} else if weeks := int(due.Sub(anchor).Hours()/24) / 7; weeks%2 == 1 {
			due = due.AddDate(0, 0, 7)
		}
	case domain.CycleMonthly:
		due = dayInMonth(base.Year(), base.Month(), cy.DayOfMonth)
		if due.Before(base) {
			due = dayInMonth(base.Year(), base.Month()+1, cy.DayOfMonth)
		}
	default:
		due = base
	}
	return due.AddDate(0, 0, cy.GraceDays)
}

func nextWeekday(from time.Time, wd time.Weekday) time.Time {
	diff := (int(wd) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, diff)
}

// dayInMonth clamps day to the month's length. month may overflow into the
// next year.
func dayInMonth(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}
