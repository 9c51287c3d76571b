package ratecard

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/settleup/reconciler/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayp(s string) *time.Time {
	t := day(s)
	return &t
}

func flatCard(id, from string, to *time.Time) domain.RateCard {
	return domain.RateCard{
		ID:                id,
		PlatformID:        "Amazon",
		CategoryID:        "Fashion",
		EffectiveFrom:     day(from),
		EffectiveTo:       to,
		Mode:              domain.CommissionFlat,
		CommissionPercent: d("15"),
		GSTPercent:        d("18"),
		TCSPercent:        d("1"),
	}
}

func tieredCard() domain.RateCard {
	c := flatCard("tiered", "2024-01-01", nil)
	c.Mode = domain.CommissionTiered
	c.Slabs = []domain.Slab{
		{MinPrice: d("0"), MaxPrice: dp("500"), CommissionPercent: d("10")},
		{MinPrice: d("500"), CommissionPercent: d("12")},
	}
	return c
}

func TestResolve_WindowSelection(t *testing.T) {
	cards := []domain.RateCard{
		flatCard("q1", "2024-01-01", dayp("2024-03-31")),
		flatCard("q2", "2024-04-01", dayp("2024-06-30")),
		flatCard("h2", "2024-07-01", nil),
	}

	tests := []struct {
		name   string
		date   string
		wantID string
	}{
		{"inside first window", "2024-02-15", "q1"},
		{"inclusive start", "2024-04-01", "q2"},
		{"inclusive end", "2024-06-30", "q2"},
		{"open ended", "2031-01-01", "h2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Resolve(cards, "amazon", "fashion", day(tt.date), d("100"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, res.Card.ID)
			assert.Nil(t, res.Slab)
			assert.Equal(t, -1, res.SlabIndex)
		})
	}
}

func TestResolve_TimeOfDayIgnored(t *testing.T) {
	cards := []domain.RateCard{flatCard("q1", "2024-01-01", dayp("2024-03-31"))}
	late := time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC)

	res, err := Resolve(cards, "Amazon", "Fashion", late, d("100"))
	require.NoError(t, err)
	assert.Equal(t, "q1", res.Card.ID)
}

func TestResolve_NoActiveRateCard(t *testing.T) {
	cards := []domain.RateCard{flatCard("q1", "2024-01-01", dayp("2024-03-31"))}

	_, err := Resolve(cards, "Amazon", "Fashion", day("2023-12-31"), d("100"))
	assert.ErrorIs(t, err, ErrNoActiveRateCard)

	_, err = Resolve(cards, "Amazon", "Electronics", day("2024-02-01"), d("100"))
	assert.ErrorIs(t, err, ErrNoActiveRateCard)

	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "Electronics", rerr.CategoryID)
	assert.Equal(t, "NO_ACTIVE_RATE_CARD", KindName(err))
}

func TestResolve_AmbiguousRateCard(t *testing.T) {
	cards := []domain.RateCard{
		flatCard("a", "2024-01-01", dayp("2024-03-31")),
		flatCard("b", "2024-03-31", nil),
	}

	_, err := Resolve(cards, "Amazon", "Fashion", day("2024-03-31"), d("100"))
	require.ErrorIs(t, err, ErrAmbiguousRateCard)

	var rerr *ResolutionError
	require.True(t, errors.As(err, &rerr))
	assert.ElementsMatch(t, []string{"a", "b"}, rerr.CardIDs)

	res, err := Resolve(cards, "Amazon", "Fashion", day("2024-03-30"), d("100"))
	require.NoError(t, err)
	assert.Equal(t, "a", res.Card.ID)
}

func TestResolve_PriceOutOfBounds(t *testing.T) {
	c := flatCard("bounded", "2024-01-01", nil)
	c.GlobalMinPrice = dp("100")
	c.GlobalMaxPrice = dp("5000")
	cards := []domain.RateCard{c}

	for _, price := range []string{"99.99", "5000.01"} {
		_, err := Resolve(cards, "Amazon", "Fashion", day("2024-05-01"), d(price))
		assert.ErrorIs(t, err, ErrPriceOutOfBounds, price)
	}
	for _, price := range []string{"100", "5000"} {
		_, err := Resolve(cards, "Amazon", "Fashion", day("2024-05-01"), d(price))
		assert.NoError(t, err, price)
	}
}

func TestResolve_SlabBoundaries(t *testing.T) {
	cards := []domain.RateCard{tieredCard()}

	tests := []struct {
		price   string
		slab    int
		percent string
	}{
		{"0", 0, "10"},
		{"499.99", 0, "10"},
		{"500", 1, "12"},
		{"1000000", 1, "12"},
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			res, err := Resolve(cards, "Amazon", "Fashion", day("2024-05-01"), d(tt.price))
			require.NoError(t, err)
			require.NotNil(t, res.Slab)
			assert.Equal(t, tt.slab, res.SlabIndex)
			assert.True(t, d(tt.percent).Equal(res.CommissionPercent()))
		})
	}
}

func TestResolve_SlabGapAndOverlap(t *testing.T) {
	gap := tieredCard()
	gap.Slabs[1].MinPrice = d("600")
	_, err := Resolve([]domain.RateCard{gap}, "Amazon", "Fashion", day("2024-05-01"), d("550"))
	assert.ErrorIs(t, err, ErrNoMatchingSlab)

	overlap := tieredCard()
	overlap.Slabs[1].MinPrice = d("400")
	_, err = Resolve([]domain.RateCard{overlap}, "Amazon", "Fashion", day("2024-05-01"), d("450"))
	require.ErrorIs(t, err, ErrNoMatchingSlab)
	assert.Contains(t, err.Error(), "overlap")
}

func TestResolve_PartitionCoversEveryPrice(t *testing.T) {
	c := tieredCard()
	c.Slabs = []domain.Slab{
		{MinPrice: d("0"), MaxPrice: dp("300"), CommissionPercent: d("5")},
		{MinPrice: d("300"), MaxPrice: dp("1000"), CommissionPercent: d("8")},
		{MinPrice: d("1000"), MaxPrice: dp("2500.50"), CommissionPercent: d("11")},
		{MinPrice: d("2500.50"), CommissionPercent: d("14")},
	}
	require.NoError(t, ValidateCard(&c))
	cards := []domain.RateCard{c}

	for cents := int64(0); cents <= 400000; cents += 1777 {
		price := decimal.New(cents, -2)
		res, err := Resolve(cards, "Amazon", "Fashion", day("2024-05-01"), price)
		require.NoError(t, err, price.String())
		assert.True(t, res.Slab.Contains(price))
	}
	for i, s := range c.Slabs {
		res, err := Resolve(cards, "Amazon", "Fashion", day("2024-05-01"), s.MinPrice)
		require.NoError(t, err)
		assert.Equal(t, i, res.SlabIndex, "boundary %s", s.MinPrice)
	}
}
