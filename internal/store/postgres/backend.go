// Package postgres implements store.Backend directly against PostgreSQL with
// the same schema the REST API serves. Rows travel as JSON: reads aggregate
// with json_agg and writes expand with json_populate_recordset, so records
// keep their wire encoding end to end.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend is a PostgreSQL record store.
type Backend struct {
	pool *pgxpool.Pool
	cfg  Config
	owns bool
}

// New connects to PostgreSQL and applies migrations when cfg.AutoMigrate is set.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := NewPool(ctx, &cfg.Pool)
	if err != nil {
		return nil, err
	}

	b, err := NewWithPool(ctx, pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	b.owns = true

	log.Info().
		Int32("max_conns", cfg.Pool.MaxConns).
		Bool("auto_migrate", cfg.AutoMigrate).
		Msg("PostgreSQL record store ready")

	return b, nil
}

// NewWithPool uses an existing pool. The caller keeps ownership of the pool.
func NewWithPool(ctx context.Context, pool *pgxpool.Pool, cfg Config) (*Backend, error) {
	if cfg.QueryTimeout == 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}
	return &Backend{pool: pool, cfg: cfg}, nil
}

// Close releases the pool if the backend created it.
func (b *Backend) Close() {
	if b.owns {
		b.pool.Close()
	}
}

// Ping checks the database is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	return mapPostgresError(b.pool.Ping(ctx))
}

func (b *Backend) Select(ctx context.Context, table string, q store.Query, dest any) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	sql, args := selectSQL(table, q)

	var data []byte
	if err := b.pool.QueryRow(ctx, sql, args...).Scan(&data); err != nil {
		return mapPostgresError(err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return apperr.Remote("failed to decode "+table+" rows", err)
	}
	return nil
}

func (b *Backend) Insert(ctx context.Context, table string, rows any) error {
	return b.write(ctx, table, rows, "")
}

func (b *Backend) Upsert(ctx context.Context, table string, rows any, onConflict string) error {
	return b.write(ctx, table, rows, onConflict)
}

func (b *Backend) write(ctx context.Context, table string, rows any, onConflict string) error {
	encoded, err := store.EncodeRows(rows)
	if err != nil {
		return apperr.Remote(err.Error(), err)
	}
	if len(encoded) == 0 {
		return nil
	}

	payload, err := json.Marshal(encoded)
	if err != nil {
		return apperr.Remote("failed to encode "+table+" rows", err)
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	tag, err := b.pool.Exec(ctx, writeSQL(table, store.Columns(encoded), onConflict), string(payload))
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().Str("table", table).Int64("rows", tag.RowsAffected()).Msg("wrote rows")
	return nil
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.QueryTimeout < 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.cfg.QueryTimeout)
}

// selectSQL builds the aggregate query. Filter values are bound as text and
// cast by PostgreSQL to the column type.
func selectSQL(table string, q store.Query) (string, []any) {
	var where strings.Builder
	args := make([]any, 0, len(q.Filters))
	for i, f := range q.Filters {
		if i == 0 {
			where.WriteString(" WHERE ")
		} else {
			where.WriteString(" AND ")
		}
		args = append(args, f.Value)
		fmt.Fprintf(&where, "%s = $%d", pgx.Identifier{f.Column}.Sanitize(), len(args))
	}

	agg, inner := "", ""
	if q.Order != nil {
		dir := " DESC NULLS FIRST"
		if q.Order.Ascending {
			dir = " ASC NULLS LAST"
		}
		col := pgx.Identifier{q.Order.Column}.Sanitize()
		inner = " ORDER BY " + col + dir
		agg = " ORDER BY t." + col + dir
	}

	limit := ""
	if q.Limit > 0 {
		limit = " LIMIT " + strconv.Itoa(q.Limit)
	}

	sql := fmt.Sprintf("SELECT COALESCE(json_agg(t%s), '[]'::json) FROM (SELECT * FROM %s%s%s%s) t",
		agg, pgx.Identifier{table}.Sanitize(), where.String(), inner, limit)
	return sql, args
}

// writeSQL builds an insert of the given columns from a JSON array bound to $1.
// With onConflict the listed columns overwrite the existing row.
func writeSQL(table string, columns []string, onConflict string) string {
	ident := pgx.Identifier{table}.Sanitize()

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	cols := strings.Join(quoted, ", ")

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) SELECT %s FROM json_populate_recordset(NULL::%s, $1::json)", ident, cols, cols, ident)

	if onConflict == "" {
		return sb.String()
	}

	conflict := pgx.Identifier{onConflict}.Sanitize()
	var updates []string
	for i, c := range columns {
		if c == onConflict {
			continue
		}
		updates = append(updates, quoted[i]+" = EXCLUDED."+quoted[i])
	}

	if len(updates) == 0 {
		fmt.Fprintf(&sb, " ON CONFLICT (%s) DO NOTHING", conflict)
		return sb.String()
	}
	fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s", conflict, strings.Join(updates, ", "))
	return sb.String()
}
