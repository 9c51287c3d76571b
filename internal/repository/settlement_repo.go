package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
)

type SettlementRepo struct {
	db *sql.DB
}

func NewSettlementRepo(db *sql.DB) *SettlementRepo {
	return &SettlementRepo{db: db}
}

// BulkInsert stores settlements. A row repeating a stored order id + UTR, or
// for rows without a UTR the same order id, payout date and amount, is ignored.
func (r *SettlementRepo) BulkInsert(settlements []domain.Settlement) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO settlements (order_id, amount, payout_date, utr, fees_json)
		VALUES (?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range settlements {
		s := &settlements[i]
		var fees any
		if len(s.Fees) > 0 {
			b, err := json.Marshal(s.Fees)
			if err != nil {
				return inserted, fmt.Errorf("encode fees %d: %w", i, err)
			}
			fees = string(b)
		}
		res, err := stmt.Exec(
			s.OrderID, s.Amount.String(), s.PayoutDate.Format(dateLayout), strings.TrimSpace(s.UTR), fees,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert settlement %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// All returns every stored settlement.
func (r *SettlementRepo) All() ([]domain.Settlement, error) {
	return r.scanAll(settlementSelect + " ORDER BY order_id, id")
}

// ByOrderIDs returns the settlements recorded against any of the given orders.
func (r *SettlementRepo) ByOrderIDs(ids []string) ([]domain.Settlement, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Settlement
	// Stay under SQLite's bound parameter limit.
	for start := 0; start < len(ids); start += 500 {
		end := min(start+500, len(ids))
		chunk := ids[start:end]
		marks := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		part, err := r.scanAll(settlementSelect+" WHERE order_id IN ("+marks+") ORDER BY order_id, id", args...)
		if err != nil {
			return nil, err
		}
		out = append(out, part...)
	}
	return out, nil
}

const settlementSelect = `SELECT order_id, amount, payout_date, utr, fees_json FROM settlements`

func (r *SettlementRepo) scanAll(q string, args ...any) ([]domain.Settlement, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		var s domain.Settlement
		var payout string
		var utr, fees sql.NullString
		if err := rows.Scan(&s.OrderID, &s.Amount, &payout, &utr, &fees); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		s.PayoutDate, _ = time.Parse(dateLayout, payout)
		s.UTR = utr.String
		if fees.Valid && fees.String != "" {
			s.Fees = map[string]decimal.Decimal{}
			if err := json.Unmarshal([]byte(fees.String), &s.Fees); err != nil {
				return nil, fmt.Errorf("decode fees for %s: %w", s.OrderID, err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
