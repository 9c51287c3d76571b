package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleup/reconciler/internal/money"
)

var dateLayouts = []string{"2006-01-02", time.RFC3339, "02-01-2006", "02/01/2006"}

// table is a header-addressed view over a CSV file. lines holds the physical
// line each row starts on.
type table struct {
	cols  map[string]int
	rows  [][]string
	lines []int
}

func readTable(data []byte, required ...string) (*table, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &table{cols: make(map[string]int, len(header))}
	for i, h := range header {
		t.cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, c := range required {
		if _, ok := t.cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ParseError already names the line.
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		t.rows = append(t.rows, row)
		t.lines = append(t.lines, line)
	}
	return t, nil
}

// get returns the trimmed cell, or "" when the column or cell is absent.
func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// rowErrors collects problems for one line so a single bad file reports
// every issue at once.
type rowErrors struct {
	line int
	errs []error
}

func (r *rowErrors) add(field string, err error) {
	r.errs = append(r.errs, fmt.Errorf("line %d %s: %w", r.line, field, err))
}

func (r *rowErrors) err() error { return errors.Join(r.errs...) }

func (r *rowErrors) required(field, v string) string {
	if v == "" {
		r.add(field, errors.New("required"))
	}
	return v
}

func (r *rowErrors) amount(field, v string) decimal.Decimal {
	d, err := money.Parse(v)
	if err != nil {
		r.add(field, err)
	}
	return d
}

func (r *rowErrors) optionalAmount(field, v string) *decimal.Decimal {
	d, err := money.ParseOptional(v)
	if err != nil {
		r.add(field, err)
	}
	return d
}

func (r *rowErrors) date(field, v string) time.Time {
	if v == "" {
		r.add(field, errors.New("required"))
		return time.Time{}
	}
	t, err := parseDate(v)
	if err != nil {
		r.add(field, err)
	}
	return t
}

func (r *rowErrors) optionalDate(field, v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := parseDate(v)
	if err != nil {
		r.add(field, err)
		return nil
	}
	return &t
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
