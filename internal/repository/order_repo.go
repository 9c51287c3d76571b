package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/settleup/reconciler/internal/domain"
)

type OrderRepo struct {
	db *sql.DB
}

func NewOrderRepo(db *sql.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// BulkInsert stores orders, ignoring ids that already exist. Orders are
// immutable once recorded.
func (r *OrderRepo) BulkInsert(orders []domain.Order) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO orders
		(id, platform_id, category_id, sku, selling_price, order_date, status)
		VALUES (?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range orders {
		o := &orders[i]
		res, err := stmt.Exec(
			o.ID, o.PlatformID, o.CategoryID, o.SKU, o.SellingPrice.String(),
			o.OrderDate.Format(dateLayout), string(o.Status),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert order %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *OrderRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&count)
	return count, err
}

func (r *OrderRepo) GetByID(id string) (*domain.Order, error) {
	rows, err := r.db.Query(orderSelect+" WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanOrder(rows)
}

type OrderFilter struct {
	Platform string
	Category string
	Status   string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

// List returns one page of orders plus the total matching count.
func (r *OrderRepo) List(f OrderFilter) ([]domain.Order, int, error) {
	where, args := buildOrderWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	args = append(args, f.Limit, offset)
	orders, err := r.scanAll(orderSelect+where+" ORDER BY order_date DESC, id LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// All returns every order matching the filter, ignoring pagination.
func (r *OrderRepo) All(f OrderFilter) ([]domain.Order, error) {
	where, args := buildOrderWhere(f)
	return r.scanAll(orderSelect+where+" ORDER BY id", args...)
}

const orderSelect = `SELECT id, platform_id, category_id, sku, selling_price, order_date, status FROM orders`

func (r *OrderRepo) scanAll(q string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func buildOrderWhere(f OrderFilter) (string, []any) {
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
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		clauses = append(clauses, "order_date >= ?")
		args = append(args, f.From.Format(dateLayout))
	}
	if f.To != nil {
		clauses = append(clauses, "order_date <= ?")
		args = append(args, f.To.Format(dateLayout))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanOrder(rows *sql.Rows) (*domain.Order, error) {
	var o domain.Order
	var orderDate, status string

	if err := rows.Scan(&o.ID, &o.PlatformID, &o.CategoryID, &o.SKU, &o.SellingPrice, &orderDate, &status); err != nil {
		return nil, err
	}
	t, err := time.Parse(dateLayout, orderDate)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("order %s date %q", o.ID, orderDate), err)
	}
	o.OrderDate = t
	o.Status = domain.OrderStatus(status)
	return &o, nil
}
