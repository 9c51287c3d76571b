package ingestion

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
	"github.com/settleup/reconciler/internal/ratecard"
)

// RateCardRow is one validated line of a rate card import. Rows sharing
// marketplace, category and validity window make up one card.
type RateCardRow struct {
	Line          int
	Marketplace   string
	Category      string
	PriceMin      *decimal.Decimal
	PriceMax      *decimal.Decimal
	CommissionPct decimal.Decimal
	Fees          []domain.Fee
	GSTRate       decimal.Decimal
	TCSRate       decimal.Decimal
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
	Cycle         domain.SettlementCycle
}

var rateCardRequired = []string{"marketplace", "category", "commission_pct", "gst_rate", "effective_from"}

var feeColumns = []struct{ col, code string }{
	{"shipping_fee", domain.FeeShipping},
	{"fixed_fee", domain.FeeFixed},
	{"rto_fee", domain.FeeRTO},
	{"packaging_fee", domain.FeePackaging},
}

// ParseRateCardCSV parses a rate card import.
//
// Expected header (any order, extra columns ignored):
//
//	marketplace,category,price_range_min,price_range_max,commission_pct,shipping_fee,
//	fixed_fee,rto_fee,packaging_fee,gst_rate,effective_from,effective_to
//
// Optional: tcs_rate, fee_<code> for other fees, and settlement_cycle,
// settlement_offset_days, settlement_weekday, settlement_day_of_month,
// settlement_grace_days. A fee value ending in % is a percent of order value.
func ParseRateCardCSV(data []byte) ([]RateCardRow, error) {
	t, err := readTable(data, rateCardRequired...)
	if err != nil {
		return nil, err
	}

	var extraFees []string
	for col := range t.cols {
		if strings.HasPrefix(col, "fee_") && len(col) > len("fee_") {
			extraFees = append(extraFees, col)
		}
	}
	sort.Strings(extraFees)

	var rows []RateCardRow
	var errs []error
	for i, raw := range t.rows {
		if blank(raw) {
			continue
		}
		re := &rowErrors{line: t.lines[i]}
		row := RateCardRow{
			Line:          re.line,
			Marketplace:   re.required("marketplace", t.get(raw, "marketplace")),
			Category:      re.required("category", t.get(raw, "category")),
			PriceMin:      re.optionalAmount("price_range_min", t.get(raw, "price_range_min")),
			PriceMax:      re.optionalAmount("price_range_max", t.get(raw, "price_range_max")),
			CommissionPct: re.amount("commission_pct", t.get(raw, "commission_pct")),
			GSTRate:       re.amount("gst_rate", t.get(raw, "gst_rate")),
			EffectiveFrom: re.date("effective_from", t.get(raw, "effective_from")),
			EffectiveTo:   re.optionalDate("effective_to", t.get(raw, "effective_to")),
		}
		if tcs := re.optionalAmount("tcs_rate", t.get(raw, "tcs_rate")); tcs != nil {
			row.TCSRate = *tcs
		}

		for _, fc := range feeColumns {
			if f, ok := parseFee(re, fc.col, fc.code, t.get(raw, fc.col)); ok {
				row.Fees = append(row.Fees, f)
			}
		}
		for _, col := range extraFees {
			if f, ok := parseFee(re, col, strings.TrimPrefix(col, "fee_"), t.get(raw, col)); ok {
				row.Fees = append(row.Fees, f)
			}
		}

		row.Cycle = parseCycle(re, t, raw)

		if err := re.err(); err != nil {
			errs = append(errs, err)
			continue
		}
		rows = append(rows, row)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rows, nil
}

func parseFee(re *rowErrors, col, code, v string) (domain.Fee, bool) {
	if v == "" {
		return domain.Fee{}, false
	}
	f := domain.Fee{Code: code, Type: domain.FeeAmount}
	if strings.HasSuffix(v, "%") {
		f.Type = domain.FeePercent
	}
	f.Value = re.amount(col, v)
	return f, true
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

func parseCycle(re *rowErrors, t *table, raw []string) domain.SettlementCycle {
	var c domain.SettlementCycle
	kind := strings.ToLower(t.get(raw, "settlement_cycle"))

	intCol := func(col string) int {
		v := t.get(raw, col)
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			re.add(col, err)
		}
		return n
	}

	// "T+7" is shorthand for a t_plus cycle with a 7 day offset.
	if strings.HasPrefix(kind, "t+") {
		n, err := strconv.Atoi(strings.TrimPrefix(kind, "t+"))
		if err != nil {
			re.add("settlement_cycle", err)
		}
		c.Kind, c.OffsetDays = domain.CycleTPlus, n
	} else {
		c.Kind = domain.CycleKind(kind)
		c.OffsetDays = intCol("settlement_offset_days")
	}
	c.DayOfMonth = intCol("settlement_day_of_month")
	c.GraceDays = intCol("settlement_grace_days")

	if wd := strings.ToLower(t.get(raw, "settlement_weekday")); wd != "" {
		day, ok := weekdays[wd]
		if !ok {
			re.add("settlement_weekday", fmt.Errorf("unknown weekday %q", wd))
		}
		c.Weekday = day
	}
	return c
}

// BuildRateCards groups rows into cards. A group of one row is a flat card
// whose price range becomes the card's global bounds; a larger group is a
// tiered card with one slab per row. Cards are validated individually and as
// a catalog.
func BuildRateCards(rows []RateCardRow) ([]domain.RateCard, error) {
	type group struct {
		key  string
		rows []RateCardRow
	}
	var groups []*group
	byKey := map[string]*group{}
	for _, r := range rows {
		to := ""
		if r.EffectiveTo != nil {
			to = r.EffectiveTo.Format("2006-01-02")
		}
		key := strings.ToLower(r.Marketplace) + "|" + strings.ToLower(r.Category) + "|" +
			r.EffectiveFrom.Format("2006-01-02") + "|" + to
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, r)
	}

	var cards []domain.RateCard
	var errs []error
	for _, g := range groups {
		c, err := buildCard(g.rows)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		cards = append(cards, c)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := ratecard.ValidateCatalog(cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func buildCard(rows []RateCardRow) (domain.RateCard, error) {
	first := rows[0]
	c := domain.RateCard{
		ID:            uuid.NewString(),
		PlatformID:    first.Marketplace,
		CategoryID:    first.Category,
		EffectiveFrom: first.EffectiveFrom,
		EffectiveTo:   first.EffectiveTo,
		GSTPercent:    first.GSTRate,
		TCSPercent:    first.TCSRate,
		Cycle:         first.Cycle,
		Fees:          first.Fees,
	}

	if len(rows) == 1 {
		c.Mode = domain.CommissionFlat
		c.CommissionPercent = first.CommissionPct
		c.GlobalMinPrice = first.PriceMin
		c.GlobalMaxPrice = first.PriceMax
	} else {
		c.Mode = domain.CommissionTiered
		for _, r := range rows {
			if !r.GSTRate.Equal(first.GSTRate) || !r.TCSRate.Equal(first.TCSRate) || !sameFees(r.Fees, first.Fees) {
				return domain.RateCard{}, fmt.Errorf("line %d: tax rates and fees must match line %d of the same card",
					r.Line, first.Line)
			}
			minPrice := decimal.Zero
			if r.PriceMin != nil {
				minPrice = *r.PriceMin
			}
			c.Slabs = append(c.Slabs, domain.Slab{
				MinPrice:          minPrice,
				MaxPrice:          r.PriceMax,
				CommissionPercent: r.CommissionPct,
			})
		}
		sort.SliceStable(c.Slabs, func(i, j int) bool {
			return c.Slabs[i].MinPrice.LessThan(c.Slabs[j].MinPrice)
		})
	}

	if err := ratecard.ValidateCard(&c); err != nil {
		return domain.RateCard{}, fmt.Errorf("line %d: %w", first.Line, err)
	}
	return c, nil
}

func sameFees(a, b []domain.Fee) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Code != b[i].Code || a[i].Type != b[i].Type || !a[i].Value.Equal(b[i].Value) {
			return false
		}
	}
	return true
}
