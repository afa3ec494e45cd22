// Package store defines the record store capability used by the data access
// layer. Backends read rows filtered by equality and ordered by one column, and
// write rows by insert or upsert. Every error a backend returns is an
// *apperr.Error.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Backend is implemented by the PostgREST, in-memory and PostgreSQL stores.
type Backend interface {
	// Select decodes the matching rows of table into dest, a pointer to a slice.
	Select(ctx context.Context, table string, q Query, dest any) error
	// Insert writes rows, a struct or slice of structs, to table.
	Insert(ctx context.Context, table string, rows any) error
	// Upsert inserts rows, merging into existing rows that collide on onConflict.
	Upsert(ctx context.Context, table string, rows any, onConflict string) error
}

// Filter is an equality match on one column.
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality filter, formatting value the way it appears on the wire.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Value: FormatValue(value)}
}

// Order sorts results by one column.
type Order struct {
	Column    string
	Ascending bool
}

// Query selects rows. A zero Limit means no limit.
type Query struct {
	Filters []Filter
	Order   *Order
	Limit   int
}

// Where returns a query with the given filters.
func Where(filters ...Filter) Query {
	return Query{Filters: filters}
}

// OrderBy returns a copy of q ordered by column.
func (q Query) OrderBy(column string, ascending bool) Query {
	q.Order = &Order{Column: column, Ascending: ascending}
	return q
}

// Take returns a copy of q limited to n rows.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// FormatValue renders a filter value as text.
func FormatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case uuid.UUID:
		return val.String()
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Row is a record in its JSON object form.
type Row map[string]any

// EncodeRows converts a struct, or a slice of structs, into rows using their
// JSON encoding.
func EncodeRows(rows any) ([]Row, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rows: %w", err)
	}

	var out []Row
	if len(data) > 0 && data[0] == '{' {
		var r Row
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to encode rows: %w", err)
		}
		return []Row{r}, nil
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("rows must be an object or array of objects: %w", err)
	}
	return out, nil
}

// Columns returns the sorted union of keys across rows.
func Columns(rows []Row) []string {
	seen := map[string]struct{}{}
	var cols []string
	for _, r := range rows {
		for k := range r {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	slices.Sort(cols)
	return cols
}
