// Package memory implements store.Backend with in-process tables.
// This implementation is for development and testing only - data is lost on restart.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend keeps each table as a list of JSON object rows in insertion order.
type Backend struct {
	mu     sync.RWMutex
	tables map[string][]store.Row
	// keys are the unique columns per table; inserts that collide are rejected.
	keys map[string]string
}

// Option configures a Backend.
type Option func(*Backend)

// WithPrimaryKey declares column as unique for table.
func WithPrimaryKey(table, column string) Option {
	return func(b *Backend) {
		b.keys[table] = column
	}
}

// New creates an empty backend. Tables are created on first write.
func New(opts ...Option) *Backend {
	b := &Backend{
		tables: make(map[string][]store.Row),
		keys:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Select(ctx context.Context, table string, q store.Query, dest any) error {
	b.mu.RLock()
	var matched []store.Row
	for _, r := range b.tables[table] {
		if matches(r, q.Filters) {
			matched = append(matched, r)
		}
	}
	b.mu.RUnlock()

	if q.Order != nil {
		col, asc := q.Order.Column, q.Order.Ascending
		slices.SortStableFunc(matched, func(x, y store.Row) int {
			c := compareValues(x[col], y[col])
			if !asc {
				c = -c
			}
			return c
		})
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	if matched == nil {
		matched = []store.Row{}
	}

	// round trip through JSON so callers never share row maps
	data, err := json.Marshal(matched)
	if err != nil {
		return apperr.Remote("failed to encode "+table+" rows", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return apperr.Remote("failed to decode "+table+" rows", err)
	}
	return nil
}

func (b *Backend) Insert(ctx context.Context, table string, rows any) error {
	encoded, err := store.EncodeRows(rows)
	if err != nil {
		return apperr.Remote(err.Error(), err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if key, ok := b.keys[table]; ok {
		for _, r := range encoded {
			if b.indexOf(table, key, r[key]) >= 0 {
				return apperr.Remote(fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", table), nil)
			}
		}
	}

	b.tables[table] = append(b.tables[table], encoded...)
	return nil
}

func (b *Backend) Upsert(ctx context.Context, table string, rows any, onConflict string) error {
	if onConflict == "" {
		return b.Insert(ctx, table, rows)
	}

	encoded, err := store.EncodeRows(rows)
	if err != nil {
		return apperr.Remote(err.Error(), err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range encoded {
		idx := b.indexOf(table, onConflict, r[onConflict])
		if idx < 0 {
			b.tables[table] = append(b.tables[table], r)
			continue
		}
		merged := store.Row{}
		for k, v := range b.tables[table][idx] {
			merged[k] = v
		}
		for k, v := range r {
			merged[k] = v
		}
		b.tables[table][idx] = merged
	}
	return nil
}

// Len returns the number of rows in table.
func (b *Backend) Len(table string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.tables[table])
}

// indexOf must be called with the lock held.
func (b *Backend) indexOf(table, column string, value any) int {
	want := store.FormatValue(value)
	for i, r := range b.tables[table] {
		if v, ok := r[column]; ok && store.FormatValue(v) == want {
			return i
		}
	}
	return -1
}

func matches(r store.Row, filters []store.Filter) bool {
	for _, f := range filters {
		v, ok := r[f.Column]
		if !ok || v == nil || store.FormatValue(v) != f.Value {
			return false
		}
	}
	return true
}

// compareValues orders JSON scalars. Strings that parse as timestamps compare
// as instants so offsets sort correctly. Nulls sort last.
func compareValues(x, y any) int {
	switch {
	case x == nil && y == nil:
		return 0
	case x == nil:
		return 1
	case y == nil:
		return -1
	}

	switch xv := x.(type) {
	case float64:
		if yv, ok := y.(float64); ok {
			return cmp.Compare(xv, yv)
		}
	case bool:
		if yv, ok := y.(bool); ok {
			switch {
			case xv == yv:
				return 0
			case !xv:
				return -1
			default:
				return 1
			}
		}
	case string:
		if yv, ok := y.(string); ok {
			xt, xerr := time.Parse(time.RFC3339Nano, xv)
			yt, yerr := time.Parse(time.RFC3339Nano, yv)
			if xerr == nil && yerr == nil {
				return xt.Compare(yt)
			}
			return cmp.Compare(xv, yv)
		}
	}
	return cmp.Compare(store.FormatValue(x), store.FormatValue(y))
}
