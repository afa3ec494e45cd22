package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/store"
)

func TestSelectSQL(t *testing.T) {
	tests := []struct {
		name     string
		query    store.Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "all rows",
			query:    store.Query{},
			wantSQL:  `SELECT COALESCE(json_agg(t), '[]'::json) FROM (SELECT * FROM "events") t`,
			wantArgs: []any{},
		},
		{
			name:     "owned and ordered",
			query:    store.Where(store.Eq("creator_id", "u1")).OrderBy("start_date", true),
			wantSQL:  `SELECT COALESCE(json_agg(t ORDER BY t."start_date" ASC NULLS LAST), '[]'::json) FROM (SELECT * FROM "events" WHERE "creator_id" = $1 ORDER BY "start_date" ASC NULLS LAST) t`,
			wantArgs: []any{"u1"},
		},
		{
			name:     "two filters descending with limit",
			query:    store.Where(store.Eq("creator_id", "u1"), store.Eq("title", "x")).OrderBy("created_at", false).Take(3),
			wantSQL:  `SELECT COALESCE(json_agg(t ORDER BY t."created_at" DESC NULLS FIRST), '[]'::json) FROM (SELECT * FROM "events" WHERE "creator_id" = $1 AND "title" = $2 ORDER BY "created_at" DESC NULLS FIRST LIMIT 3) t`,
			wantArgs: []any{"u1", "x"},
		},
		{
			name:     "identifiers are quoted",
			query:    store.Where(store.Eq(`id"; DROP TABLE events; --`, "1")),
			wantSQL:  `SELECT COALESCE(json_agg(t), '[]'::json) FROM (SELECT * FROM "events" WHERE "id""; DROP TABLE events; --" = $1) t`,
			wantArgs: []any{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := selectSQL("events", tt.query)
			require.Equal(t, tt.wantSQL, sql)
			require.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestWriteSQL(t *testing.T) {
	cols := []string{"full_name", "id", "username"}

	require.Equal(t,
		`INSERT INTO "profiles" ("full_name", "id", "username") SELECT "full_name", "id", "username" FROM json_populate_recordset(NULL::"profiles", $1::json)`,
		writeSQL("profiles", cols, ""))

	require.Equal(t,
		`INSERT INTO "profiles" ("full_name", "id", "username") SELECT "full_name", "id", "username" FROM json_populate_recordset(NULL::"profiles", $1::json) ON CONFLICT ("id") DO UPDATE SET "full_name" = EXCLUDED."full_name", "username" = EXCLUDED."username"`,
		writeSQL("profiles", cols, "id"))

	require.Equal(t,
		`INSERT INTO "profiles" ("id") SELECT "id" FROM json_populate_recordset(NULL::"profiles", $1::json) ON CONFLICT ("id") DO NOTHING`,
		writeSQL("profiles", []string{"id"}, "id"))
}

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{
			name:     "check violation",
			err:      &pgconn.PgError{Code: pgerrcode.CheckViolation, Message: `new row for relation "events" violates check constraint "events_end_after_start"`},
			sentinel: apperr.ErrValidation,
			message:  `new row for relation "events" violates check constraint "events_end_after_start"`,
		},
		{
			name:     "unique violation",
			err:      fmt.Errorf("exec: %w", &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: `duplicate key value violates unique constraint "profiles_username_key"`}),
			sentinel: apperr.ErrRemote,
			message:  `duplicate key value violates unique constraint "profiles_username_key"`,
		},
		{
			name:     "insufficient privilege",
			err:      &pgconn.PgError{Code: pgerrcode.InsufficientPrivilege, Message: "permission denied for table events"},
			sentinel: apperr.ErrNotAuthenticated,
			message:  "permission denied for table events",
		},
		{
			name:     "connection failure",
			err:      &pgconn.PgError{Code: pgerrcode.CannotConnectNow, Message: "the database system is starting up"},
			sentinel: apperr.ErrRemote,
			message:  "database unavailable: the database system is starting up",
		},
		{
			name:     "timeout",
			err:      fmt.Errorf("query: %w", context.DeadlineExceeded),
			sentinel: apperr.ErrRemote,
			message:  "query timed out",
		},
		{
			name:     "plain error",
			err:      errors.New("conn closed"),
			sentinel: apperr.ErrRemote,
			message:  "conn closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapPostgresError(tt.err)
			require.ErrorIs(t, err, tt.sentinel)
			require.Equal(t, tt.message, apperr.Normalize(err).Message)
		})
	}

	require.NoError(t, mapPostgresError(nil))
}

func TestConfig_defaultsAndValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	require.Error(t, cfg.Validate(), "connection string is required")
	require.Equal(t, defaultQueryTimeout, cfg.QueryTimeout)
	require.EqualValues(t, 10, cfg.Pool.MaxConns)
	require.EqualValues(t, 1, cfg.Pool.MinConns)
	require.Equal(t, time.Hour, cfg.Pool.MaxConnLifetime)

	cfg.Pool.ConnString = "postgres://localhost/eventdesk"
	require.NoError(t, cfg.Validate())

	cfg.Pool.MinConns = 50
	require.Error(t, cfg.Validate())
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Equal(t, 1, migrations[0].version)
	require.Contains(t, migrations[0].content, "CREATE TABLE IF NOT EXISTS events")

	for i := 1; i < len(migrations); i++ {
		require.Less(t, migrations[i-1].version, migrations[i].version)
	}
}
