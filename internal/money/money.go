package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrEmpty is returned by Parse for a blank value.
var ErrEmpty = errors.New("empty amount")

// symbols stripped before parsing. Marketplace exports are mostly INR.
var symbols = []string{"₹", "Rs.", "Rs", "INR", "%"}

// Parse coerces a raw amount such as "₹1,299.50" or " 12.5% " into a decimal.
func Parse(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	for _, sym := range symbols {
		v = strings.TrimPrefix(v, sym)
		v = strings.TrimSuffix(v, sym)
	}
	v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if v == "" {
		return decimal.Zero, ErrEmpty
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// ParseOptional returns nil for a blank value.
func ParseOptional(s string) (*decimal.Decimal, error) {
	d, err := Parse(s)
	if errors.Is(err, ErrEmpty) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Round rounds to paise.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns base * pct / 100.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(decimal.NewFromInt(100))
}
