package database

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Row is a wrapper over one scanned result row providing the accessor
// sugar several call sites rely on:
//
//   - key suffix "_L" / "_U" returns a string value lower/uppercased
//   - key suffix "_R<n>" returns a numeric value rounded to n decimals
//     (n defaults to 0)
//   - a bare prefix resolves when exactly one column name starts with
//     it; an ambiguous prefix or a miss is an error
type Row struct {
	values map[string]any
}

// NewRow creates a Row from a column-name to value map.
func NewRow(values map[string]any) *Row {
	return &Row{values: values}
}

// ScanRow reads the current row of rows into a Row keyed by column name.
func ScanRow(rows *sql.Rows) (*Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("getting columns: %w", err)
	}

	raw := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scanning row: %w", err)
	}

	values := make(map[string]any, len(cols))
	for i, c := range cols {
		values[c] = raw[i]
	}
	return &Row{values: values}, nil
}

// Columns returns the available column names, sorted.
func (r *Row) Columns() []string {
	cols := make([]string, 0, len(r.values))
	for c := range r.values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Get resolves key against the row, applying suffix and prefix sugar.
func (r *Row) Get(key string) (any, error) {
	// An exact column match always wins, before any suffix interpretation.
	if v, ok := r.values[key]; ok {
		return v, nil
	}

	if base, ok := strings.CutSuffix(key, "_L"); ok {
		v, err := r.Get(base)
		if err != nil {
			return nil, err
		}
		return caseValue(v, strings.ToLower)
	}
	if base, ok := strings.CutSuffix(key, "_U"); ok {
		v, err := r.Get(base)
		if err != nil {
			return nil, err
		}
		return caseValue(v, strings.ToUpper)
	}
	if base, digits, ok := cutRoundSuffix(key); ok {
		v, err := r.Get(base)
		if err != nil {
			return nil, err
		}
		return roundValue(v, digits)
	}

	return r.resolvePrefix(key)
}

// GetString is Get with a string assertion.
func (r *Row) GetString(key string) (string, error) {
	v, err := r.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("column %q is not a string (got %T)", key, v)
	}
	return s, nil
}

// cutRoundSuffix splits "freq_R2" into ("freq", 2, true). The tail
// after "_R" must be empty or all digits, otherwise the key is not a
// rounding request.
func cutRoundSuffix(key string) (base string, digits int, ok bool) {
	idx := strings.LastIndex(key, "_R")
	if idx < 0 {
		return "", 0, false
	}
	tail := key[idx+2:]
	if tail == "" {
		return key[:idx], 0, true
	}
	n, err := strconv.Atoi(tail)
	if err != nil {
		return "", 0, false
	}
	return key[:idx], n, true
}

func caseValue(v any, f func(string) string) (any, error) {
	s, ok := v.(string)
	if !ok {
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("case conversion requires a string value (got %T)", v)
		}
		s = string(b)
	}
	return f(s), nil
}

func roundValue(v any, digits int) (any, error) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int64:
		f = float64(x)
	default:
		return nil, fmt.Errorf("rounding requires a numeric value (got %T)", v)
	}
	scale := math.Pow(10, float64(digits))
	return math.Round(f*scale) / scale, nil
}

func (r *Row) resolvePrefix(prefix string) (any, error) {
	var matches []string
	for c := range r.values {
		if strings.HasPrefix(c, prefix) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 1:
		return r.values[matches[0]], nil
	case 0:
		return nil, fmt.Errorf("no column matches %q (available: %s)",
			prefix, strings.Join(r.Columns(), ", "))
	default:
		sort.Strings(matches)
		return nil, fmt.Errorf("ambiguous column prefix %q (matches: %s)",
			prefix, strings.Join(matches, ", "))
	}
}
