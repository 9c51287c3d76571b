package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/domain"
	"github.com/settleup/reconciler/internal/ratecard"
)

type RateCardRepo struct {
	db *sql.DB
}

func NewRateCardRepo(db *sql.DB) *RateCardRepo {
	return &RateCardRepo{db: db}
}

// Insert stores a single card. See InsertAll.
func (r *RateCardRepo) Insert(c *domain.RateCard) error {
	cards := []domain.RateCard{*c}
	if err := r.InsertAll(cards); err != nil {
		return err
	}
	*c = cards[0]
	return nil
}

// InsertAll stores cards with their slabs and fees in one transaction: either
// every card is stored or none is. Each card must be valid and must not overlap
// a stored card, or another card of the batch, for the same platform and
// category.
func (r *RateCardRepo) InsertAll(cards []domain.RateCard) error {
	for i := range cards {
		if err := ratecard.ValidateCard(&cards[i]); err != nil {
			return err
		}
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Take the write lock before reading windows so concurrent imports
	// serialise instead of both passing the overlap check.
	if _, err := tx.Exec("DELETE FROM rate_cards WHERE 0"); err != nil {
		return fmt.Errorf("lock rate cards: %w", err)
	}

	now := time.Now().UTC()
	for i := range cards {
		c := &cards[i]
		if err := checkOverlap(tx, c); err != nil {
			return err
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		if err := insertCard(tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// checkOverlap compares c with every card already visible to tx, including
// cards inserted earlier in the same transaction.
func checkOverlap(tx *sql.Tx, c *domain.RateCard) error {
	rows, err := tx.Query(
		`SELECT id, platform_id, category_id, effective_from, effective_to FROM rate_cards
		WHERE platform_id = ? COLLATE NOCASE AND category_id = ? COLLATE NOCASE`,
		strings.TrimSpace(c.PlatformID), strings.TrimSpace(c.CategoryID))
	if err != nil {
		return fmt.Errorf("load existing cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stored domain.RateCard
		var from string
		var to sql.NullString
		if err := rows.Scan(&stored.ID, &stored.PlatformID, &stored.CategoryID, &from, &to); err != nil {
			return fmt.Errorf("scan existing card: %w", err)
		}
		if stored.EffectiveFrom, err = time.Parse(dateLayout, from); err != nil {
			return fmt.Errorf("effective_from %q: %w", from, err)
		}
		stored.EffectiveTo = parseNullableDate(to)
		if ratecard.Overlaps(&stored, c) {
			return fmt.Errorf("%w: %s/%s from %s overlaps stored card %s",
				ratecard.ErrAmbiguousRateCard, c.PlatformID, c.CategoryID,
				c.EffectiveFrom.Format(dateLayout), stored.ID)
		}
	}
	return rows.Err()
}

func insertCard(tx *sql.Tx, c *domain.RateCard) error {
	_, err := tx.Exec(
		`INSERT INTO rate_cards
		(id, platform_id, category_id, effective_from, effective_to, commission_mode,
		 commission_percent, global_min_price, global_max_price, gst_percent, tcs_percent,
		 cycle_kind, cycle_offset_days, cycle_weekday, cycle_day_of_month, cycle_grace_days,
		 created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.PlatformID, c.CategoryID, c.EffectiveFrom.Format(dateLayout),
		formatNullableDate(c.EffectiveTo), string(c.Mode), c.CommissionPercent.String(),
		nullableDecimal(c.GlobalMinPrice), nullableDecimal(c.GlobalMaxPrice),
		c.GSTPercent.String(), c.TCSPercent.String(),
		string(c.Cycle.Kind), c.Cycle.OffsetDays, int(c.Cycle.Weekday), c.Cycle.DayOfMonth,
		c.Cycle.GraceDays, c.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert rate card %s: %w", c.ID, err)
	}

	for i, s := range c.Slabs {
		res, err := tx.Exec(
			`INSERT INTO rate_card_slabs (rate_card_id, position, min_price, max_price, commission_percent)
			VALUES (?,?,?,?,?)`,
			c.ID, i, s.MinPrice.String(), nullableDecimal(s.MaxPrice), s.CommissionPercent.String(),
		)
		if err != nil {
			return fmt.Errorf("insert slab %d: %w", i, err)
		}
		c.Slabs[i].ID, _ = res.LastInsertId()
	}

	for _, f := range c.Fees {
		if _, err := tx.Exec(
			`INSERT INTO rate_card_fees (rate_card_id, code, fee_type, value) VALUES (?,?,?,?)`,
			c.ID, f.Code, string(f.Type), f.Value.String(),
		); err != nil {
			return fmt.Errorf("insert fee %s: %w", f.Code, err)
		}
	}
	return nil
}

// Delete removes a card; slabs and fees cascade.
func (r *RateCardRepo) Delete(id string) error {
	res, err := r.db.Exec("DELETE FROM rate_cards WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete rate card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RateCardRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM rate_cards").Scan(&count)
	return count, err
}

func (r *RateCardRepo) GetByID(id string) (*domain.RateCard, error) {
	cards, err := r.query(" WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrNotFound
	}
	return &cards[0], nil
}

// ListFor returns every card for a platform and category, whatever its window.
func (r *RateCardRepo) ListFor(platformID, categoryID string) ([]domain.RateCard, error) {
	return r.query(" WHERE platform_id = ? COLLATE NOCASE AND category_id = ? COLLATE NOCASE",
		strings.TrimSpace(platformID), strings.TrimSpace(categoryID))
}

type RateCardFilter struct {
	Platform string
	Category string
	// ActiveOn keeps only cards whose window contains this date.
	ActiveOn *time.Time
}

func (r *RateCardRepo) List(f RateCardFilter) ([]domain.RateCard, error) {
	var clauses []string
	var args []any

	if f.Platform != "" {
		clauses = append(clauses, "platform_id = ? COLLATE NOCASE")
		args = append(args, f.Platform)
	}
	if f.Category != "" {
		clauses = append(clauses, "category_id = ? COLLATE NOCASE")
		args = append(args, f.Category)
	}
	if f.ActiveOn != nil {
		d := f.ActiveOn.Format(dateLayout)
		clauses = append(clauses, "effective_from <= ? AND (effective_to IS NULL OR effective_to >= ?)")
		args = append(args, d, d)
	}

	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	return r.query(where, args...)
}

func (r *RateCardRepo) query(where string, args ...any) ([]domain.RateCard, error) {
	rows, err := r.db.Query(
		`SELECT id, platform_id, category_id, effective_from, effective_to, commission_mode,
		 commission_percent, global_min_price, global_max_price, gst_percent, tcs_percent,
		 cycle_kind, cycle_offset_days, cycle_weekday, cycle_day_of_month, cycle_grace_days,
		 created_at
		FROM rate_cards`+where+` ORDER BY platform_id, category_id, effective_from`, args...)
	if err != nil {
		return nil, fmt.Errorf("query rate cards: %w", err)
	}
	defer rows.Close()

	var cards []domain.RateCard
	index := map[string]int{}
	for rows.Next() {
		c, err := scanRateCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rate card: %w", err)
		}
		index[c.ID] = len(cards)
		cards = append(cards, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return cards, nil
	}

	if err := r.attachSlabs(cards, index); err != nil {
		return nil, err
	}
	if err := r.attachFees(cards, index); err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *RateCardRepo) attachSlabs(cards []domain.RateCard, index map[string]int) error {
	ids, args := inClause(index)
	rows, err := r.db.Query(
		`SELECT id, rate_card_id, min_price, max_price, commission_percent
		FROM rate_card_slabs WHERE rate_card_id IN (`+ids+`) ORDER BY rate_card_id, position`, args...)
	if err != nil {
		return fmt.Errorf("query slabs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.Slab
		var cardID string
		var maxPrice decimal.NullDecimal
		if err := rows.Scan(&s.ID, &cardID, &s.MinPrice, &maxPrice, &s.CommissionPercent); err != nil {
			return fmt.Errorf("scan slab: %w", err)
		}
		if maxPrice.Valid {
			v := maxPrice.Decimal
			s.MaxPrice = &v
		}
		if i, ok := index[cardID]; ok {
			cards[i].Slabs = append(cards[i].Slabs, s)
		}
	}
	return rows.Err()
}

func (r *RateCardRepo) attachFees(cards []domain.RateCard, index map[string]int) error {
	ids, args := inClause(index)
	rows, err := r.db.Query(
		`SELECT rate_card_id, code, fee_type, value
		FROM rate_card_fees WHERE rate_card_id IN (`+ids+`) ORDER BY rate_card_id, code`, args...)
	if err != nil {
		return fmt.Errorf("query fees: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f domain.Fee
		var cardID, feeType string
		if err := rows.Scan(&cardID, &f.Code, &feeType, &f.Value); err != nil {
			return fmt.Errorf("scan fee: %w", err)
		}
		f.Type = domain.FeeType(feeType)
		if i, ok := index[cardID]; ok {
			cards[i].Fees = append(cards[i].Fees, f)
		}
	}
	return rows.Err()
}

func scanRateCard(rows *sql.Rows) (*domain.RateCard, error) {
	var c domain.RateCard
	var from, mode, kind, createdAt string
	var to sql.NullString
	var minPrice, maxPrice decimal.NullDecimal
	var weekday int

	err := rows.Scan(
		&c.ID, &c.PlatformID, &c.CategoryID, &from, &to, &mode,
		&c.CommissionPercent, &minPrice, &maxPrice, &c.GSTPercent, &c.TCSPercent,
		&kind, &c.Cycle.OffsetDays, &weekday, &c.Cycle.DayOfMonth, &c.Cycle.GraceDays,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.EffectiveFrom, err = time.Parse(dateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("effective_from %q: %w", from, err)
	}
	c.EffectiveTo = parseNullableDate(to)
	c.Mode = domain.CommissionMode(mode)
	c.Cycle.Kind = domain.CycleKind(kind)
	c.Cycle.Weekday = time.Weekday(weekday)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if minPrice.Valid {
		v := minPrice.Decimal
		c.GlobalMinPrice = &v
	}
	if maxPrice.Valid {
		v := maxPrice.Decimal
		c.GlobalMaxPrice = &v
	}
	return &c, nil
}

func nullableDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func inClause(index map[string]int) (string, []any) {
	marks := make([]string, 0, len(index))
	args := make([]any, 0, len(index))
	for id := range index {
		marks = append(marks, "?")
		args = append(args, id)
	}
	return strings.Join(marks, ","), args
}
