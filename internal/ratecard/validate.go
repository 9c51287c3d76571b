package ratecard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// ValidateCard checks a card's internal consistency: window order, percent
// ranges, unique fee codes and, for tiered cards, that the slabs partition
// the price axis from the first slab's minimum upward with no gaps or overlaps.
func ValidateCard(c *domain.RateCard) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.PlatformID) == "" {
		add("platform is required")
	}
	if strings.TrimSpace(c.CategoryID) == "" {
		add("category is required")
	}
	if c.EffectiveFrom.IsZero() {
		add("effective_from is required")
	}
	if c.EffectiveTo != nil && domain.DateOf(*c.EffectiveTo).Before(domain.DateOf(c.EffectiveFrom)) {
		add("effective_to %s before effective_from %s",
			c.EffectiveTo.Format("2006-01-02"), c.EffectiveFrom.Format("2006-01-02"))
	}
	if c.GlobalMinPrice != nil && c.GlobalMinPrice.IsNegative() {
		add("global_min_price is negative")
	}
	if c.GlobalMinPrice != nil && c.GlobalMaxPrice != nil && c.GlobalMaxPrice.LessThan(*c.GlobalMinPrice) {
		add("global_max_price below global_min_price")
	}

	checkPercent := func(name string, v decimal.Decimal) {
		if v.IsNegative() || v.GreaterThan(hundred) {
			add("%s %s outside [0, 100]", name, v)
		}
	}
	checkPercent("gst_percent", c.GSTPercent)
	checkPercent("tcs_percent", c.TCSPercent)

	switch c.Mode {
	case domain.CommissionFlat:
		checkPercent("commission_percent", c.CommissionPercent)
		if len(c.Slabs) > 0 {
			add("flat card must not carry slabs")
		}
	case domain.CommissionTiered:
		problems = append(problems, slabProblems(c.Slabs)...)
		for i, s := range c.Slabs {
			checkPercent(fmt.Sprintf("slab %d commission_percent", i), s.CommissionPercent)
		}
	default:
		add("unknown commission mode %q", c.Mode)
	}

	seen := make(map[string]bool, len(c.Fees))
	for _, f := range c.Fees {
		code := strings.ToLower(strings.TrimSpace(f.Code))
		switch {
		case code == "":
			add("fee with empty code")
		case seen[code]:
			add("duplicate fee code %q", f.Code)
		}
		seen[code] = true
		if f.Type != domain.FeePercent && f.Type != domain.FeeAmount {
			add("fee %q has unknown type %q", f.Code, f.Type)
		}
		if f.Value.IsNegative() {
			add("fee %q is negative", f.Code)
		}
		if f.Type == domain.FeePercent && f.Value.GreaterThan(hundred) {
			add("fee %q percent above 100", f.Code)
		}
	}

	problems = append(problems, cycleProblems(c.Cycle)...)

	if len(problems) > 0 {
		return fmt.Errorf("%w %s/%s: %s", ErrInvalidCard, c.PlatformID, c.CategoryID, strings.Join(problems, "; "))
	}
	return nil
}

func slabProblems(slabs []domain.Slab) []string {
	if len(slabs) == 0 {
		return []string{"tiered card has no slabs"}
	}
	sorted := make([]domain.Slab, len(slabs))
	copy(sorted, slabs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPrice.LessThan(sorted[j].MinPrice)
	})

	var problems []string
	if sorted[0].MinPrice.IsNegative() {
		problems = append(problems, "first slab starts below zero")
	}
	for i, s := range sorted {
		if s.MaxPrice != nil && !s.MaxPrice.GreaterThan(s.MinPrice) {
			problems = append(problems, fmt.Sprintf("slab [%s, %s) is empty", s.MinPrice, s.MaxPrice))
		}
		if i == len(sorted)-1 {
			break
		}
		next := sorted[i+1]
		switch {
		case s.MaxPrice == nil:
			problems = append(problems, fmt.Sprintf("open-ended slab from %s is not the last", s.MinPrice))
		case s.MaxPrice.LessThan(next.MinPrice):
			problems = append(problems, fmt.Sprintf("gap between %s and %s", s.MaxPrice, next.MinPrice))
		case s.MaxPrice.GreaterThan(next.MinPrice):
			problems = append(problems, fmt.Sprintf("slabs overlap at %s", next.MinPrice))
		}
	}
	return problems
}

func cycleProblems(c domain.SettlementCycle) []string {
	var problems []string
	switch c.Kind {
	case "", domain.CycleTPlus, domain.CycleWeekly, domain.CycleBiweekly:
	case domain.CycleMonthly:
		if c.DayOfMonth < 1 || c.DayOfMonth > 31 {
			problems = append(problems, fmt.Sprintf("day_of_month %d outside 1..31", c.DayOfMonth))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown settlement cycle %q", c.Kind))
	}
	if c.Weekday < 0 || c.Weekday > 6 {
		problems = append(problems, fmt.Sprintf("weekday %d outside 0..6", c.Weekday))
	}
	if c.OffsetDays < 0 || c.GraceDays < 0 {
		problems = append(problems, "settlement offset and grace days must be non-negative")
	}
	return problems
}

// Overlaps reports whether two cards for the same platform and category are
// active on at least one common date.
func Overlaps(a, b *domain.RateCard) bool {
	if !sameKey(a.PlatformID, b.PlatformID) || !sameKey(a.CategoryID, b.CategoryID) {
		return false
	}
	aFrom, bFrom := domain.DateOf(a.EffectiveFrom), domain.DateOf(b.EffectiveFrom)
	if a.EffectiveTo != nil && domain.DateOf(*a.EffectiveTo).Before(bFrom) {
		return false
	}
	if b.EffectiveTo != nil && domain.DateOf(*b.EffectiveTo).Before(aFrom) {
		return false
	}
	return true
}

// ValidateCatalog rejects any pair of cards whose windows overlap for the
// same platform and category.
func ValidateCatalog(cards []domain.RateCard) error {
	var conflicts []string
	for i := range cards {
		for j := i + 1; j < len(cards); j++ {
			if Overlaps(&cards[i], &cards[j]) {
				conflicts = append(conflicts, fmt.Sprintf("%s/%s: %s and %s",
					cards[i].PlatformID, cards[i].CategoryID, label(&cards[i]), label(&cards[j])))
			}
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: overlapping windows: %s", ErrAmbiguousRateCard, strings.Join(conflicts, "; "))
	}
	return nil
}

func label(c *domain.RateCard) string {
	if c.ID != "" {
		return c.ID
	}
	to := "open"
	if c.EffectiveTo != nil {
		to = c.EffectiveTo.Format("2006-01-02")
	}
	return c.EffectiveFrom.Format("2006-01-02") + ".." + to
}
