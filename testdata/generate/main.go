package main

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
	"github.com/settleup/reconciler/internal/ingestion"
	"github.com/settleup/reconciler/internal/payout"
	"github.com/settleup/reconciler/internal/ratecard"
)

// Generates orders.csv and settlements.csv priced against ratecards.csv, with
// a sprinkling of short payments, missing payouts and orphan settlements.
func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	data, err := os.ReadFile(filepath.Join(baseDir, "ratecards.csv"))
	if err != nil {
		panic(err)
	}
	rows, err := ingestion.ParseRateCardCSV(data)
	if err != nil {
		panic(err)
	}
	cards, err := ingestion.BuildRateCards(rows)
	if err != nil {
		panic(err)
	}

	startDate := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	dayRange := 120

	type group struct {
		platform, category string
		count              int
	}
	groups := []group{
		{"Amazon", "Fashion", 60},
		{"Flipkart", "Home", 50},
		{"Meesho", "Kids", 30},
		// No card exists for this pair.
		{"Amazon", "Electronics", 5},
	}

	var orders []domain.Order
	for _, g := range groups {
		for i := 1; i <= g.count; i++ {
			status := domain.OrderDelivered
			switch roll := rng.Float64(); {
			case roll > 0.95:
				status = domain.OrderCancelled
			case roll > 0.88:
				status = domain.OrderRTO
			}
			// Selling price between 99 and 2499.
			price := decimal.NewFromInt(int64(99 + rng.Intn(2401)))
			orders = append(orders, domain.Order{
				ID:           fmt.Sprintf("%s-%s-%04d", g.platform[:3], g.category[:3], i),
				PlatformID:   g.platform,
				CategoryID:   g.category,
				SKU:          fmt.Sprintf("SKU-%05d", rng.Intn(100000)),
				SellingPrice: price,
				OrderDate:    startDate.AddDate(0, 0, rng.Intn(dayRange)),
				Status:       status,
			})
		}
	}

	writeOrders(filepath.Join(baseDir, "orders.csv"), orders)
	fmt.Printf("Generated %d orders -> orders.csv\n", len(orders))

	n := writeSettlements(rng, filepath.Join(baseDir, "settlements.csv"), orders, cards)
	fmt.Printf("Generated %d settlements -> settlements.csv\n", n)
	fmt.Println("Test data generation complete.")
}

func writeOrders(path string, orders []domain.Order) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"order_id", "marketplace", "category", "sku", "selling_price", "order_date", "status"})
	for _, o := range orders {
		w.Write([]string{
			o.ID, o.PlatformID, o.CategoryID, o.SKU,
			o.SellingPrice.StringFixed(2), o.OrderDate.Format("2006-01-02"), string(o.Status),
		})
	}
}

func writeSettlements(rng *rand.Rand, path string, orders []domain.Order, cards []domain.RateCard) int {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{"order_id", "settlement_amount", "payout_date", "utr", "fee_commission", "fee_shipping"})

	count := 0
	for i, o := range orders {
		if o.Status == domain.OrderCancelled {
			continue
		}
		res, err := ratecard.Resolve(cards, o.PlatformID, o.CategoryID, o.OrderDate, o.SellingPrice)
		var b domain.FeeBreakdown
		due := o.OrderDate.AddDate(0, 0, 7)
		if err == nil {
			b, err = payout.ComputeExpectedPayout(&o, res.Card, res.Slab)
			due = ratecard.ExpectedSettlementDate(res.Card, o.OrderDate)
		}
		if err != nil {
			// Unpriced orders still get paid something.
			b.ExpectedPayout = o.SellingPrice.Mul(decimal.RequireFromString("0.8"))
		}

		amount := b.ExpectedPayout.Round(2)
		roll := rng.Float64()
		switch {
		// 6% missing.
		case roll > 0.94:
			continue
		// 5% short-paid by 2-10% of price.
		case roll > 0.89:
			short := o.SellingPrice.Mul(decimal.NewFromFloat(0.02 + rng.Float64()*0.08)).Round(2)
			amount = amount.Sub(short)
		}

		orderID := o.ID
		// A couple of orphans.
		if i < 2 {
			orderID = fmt.Sprintf("GHOST-%03d", i+1)
		}

		payoutDate := due.AddDate(0, 0, rng.Intn(4)-1)
		w.Write([]string{
			orderID,
			amount.StringFixed(2),
			payoutDate.Format("2006-01-02"),
			fmt.Sprintf("UTR%010d", rng.Int63n(1e10)),
			b.Commission.StringFixed(2),
			b.FeeAmount(domain.FeeShipping).StringFixed(2),
		})
		count++
	}
	return count
}

func findTestdataDir() string {
	candidates := []string{
		"testdata",
		"./testdata",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
