package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// An in-memory database lives only as long as its connection.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rate_cards (
			id TEXT PRIMARY KEY,
			platform_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			effective_from TEXT NOT NULL,
			effective_to TEXT,
			commission_mode TEXT NOT NULL,
			commission_percent TEXT NOT NULL,
			global_min_price TEXT,
			global_max_price TEXT,
			gst_percent TEXT NOT NULL,
			tcs_percent TEXT NOT NULL,
			cycle_kind TEXT NOT NULL DEFAULT '',
			cycle_offset_days INTEGER NOT NULL DEFAULT 0,
			cycle_weekday INTEGER NOT NULL DEFAULT 0,
			cycle_day_of_month INTEGER NOT NULL DEFAULT 0,
			cycle_grace_days INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_cards_key ON rate_cards(platform_id COLLATE NOCASE, category_id COLLATE NOCASE)`,

		`CREATE TABLE IF NOT EXISTS rate_card_slabs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rate_card_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			min_price TEXT NOT NULL,
			max_price TEXT,
			commission_percent TEXT NOT NULL,
			FOREIGN KEY (rate_card_id) REFERENCES rate_cards(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_card_slabs_card ON rate_card_slabs(rate_card_id)`,

		`CREATE TABLE IF NOT EXISTS rate_card_fees (
			rate_card_id TEXT NOT NULL,
			code TEXT NOT NULL,
			fee_type TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (rate_card_id, code),
			FOREIGN KEY (rate_card_id) REFERENCES rate_cards(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS uploads (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			file_hash TEXT UNIQUE NOT NULL,
			record_count INTEGER NOT NULL,
			ingested_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			platform_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			sku TEXT NOT NULL,
			selling_price TEXT NOT NULL,
			order_date TEXT NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_platform ON orders(platform_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_date ON orders(order_date)`,

		`CREATE TABLE IF NOT EXISTS settlements (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL,
			amount TEXT NOT NULL,
			payout_date TEXT NOT NULL,
			utr TEXT NOT NULL DEFAULT '',
			fees_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlements_order ON settlements(order_id)`,
		// A UTR identifies one transfer; without one, the same order, date and
		// amount in a re-exported report is the same payout.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_settlements_utr ON settlements(order_id, utr) WHERE utr <> ''`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_settlements_no_utr ON settlements(order_id, payout_date, amount) WHERE utr = ''`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}

// --- helpers ---

func formatNullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}

func parseNullableDate(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(dateLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}
