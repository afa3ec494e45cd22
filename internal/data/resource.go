// Package data reads and writes records on behalf of the signed-in user. Every
// read is filtered to rows the user owns and every write has its owner key
// forced to the user, so a caller can never touch another user's records.
package data

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/eventdesk/internal/apperr"
	"github.com/wolfeidau/eventdesk/internal/store"
	"github.com/wolfeidau/eventdesk/internal/telemetry"
)

// Resource describes how a record type is stored and owned.
type Resource struct {
	Table string
	// OwnerColumn holds the owning user id.
	OwnerColumn string
	// OrderColumn sorts reads ascending; empty for unordered.
	OrderColumn string
	// ConflictColumn makes writes an upsert on that column; empty for insert-only.
	ConflictColumn string
	// Single resources hold at most one row per owner.
	Single bool
}

var (
	// Profiles are one per user, keyed and owned by the user id.
	Profiles = Resource{Table: "profiles", OwnerColumn: "id", ConflictColumn: "id", Single: true}

	// Events are owned by their creator and listed by start date. Insert-only.
	Events = Resource{Table: "events", OwnerColumn: "creator_id", OrderColumn: "start_date"}
)

// Owned is implemented by records whose owner key can be forced.
type Owned interface {
	SetOwner(userID uuid.UUID)
}

// FetchOwn returns the rows of res owned by userID.
func FetchOwn[T any](ctx context.Context, backend store.Backend, res Resource, userID uuid.UUID) (rows []T, err error) {
	ctx, done := observe(ctx, "select", res.Table)
	defer func() { done(err, len(rows)) }()

	if userID == uuid.Nil {
		return nil, apperr.NotAuthenticated("")
	}

	q := store.Where(store.Eq(res.OwnerColumn, userID))
	if res.OrderColumn != "" {
		q = q.OrderBy(res.OrderColumn, true)
	}
	if res.Single {
		q = q.Take(1)
	}

	rows = []T{}
	if err := backend.Select(ctx, res.Table, q, &rows); err != nil {
		return nil, apperr.From(err)
	}
	return rows, nil
}

// FetchOneOwn returns the single row of res owned by userID, failing with
// apperr.ErrNotFound when there is none.
func FetchOneOwn[T any](ctx context.Context, backend store.Backend, res Resource, userID uuid.UUID) (*T, error) {
	rows, err := FetchOwn[T](ctx, backend, res, userID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("No " + res.Table + " found")
	}
	return &rows[0], nil
}

// WriteOwn stores record with its owner key set to userID. Resources with a
// conflict column are upserted, the rest inserted.
func WriteOwn[T Owned](ctx context.Context, backend store.Backend, res Resource, userID uuid.UUID, record T) (err error) {
	op := "insert"
	if res.ConflictColumn != "" {
		op = "upsert"
	}
	ctx, done := observe(ctx, op, res.Table)
	defer func() { done(err, 0) }()

	if userID == uuid.Nil {
		return apperr.NotAuthenticated("")
	}

	record.SetOwner(userID)

	if res.ConflictColumn != "" {
		err = backend.Upsert(ctx, res.Table, []T{record}, res.ConflictColumn)
	} else {
		err = backend.Insert(ctx, res.Table, []T{record})
	}
	if err != nil {
		return apperr.From(err)
	}
	return nil
}

func observe(ctx context.Context, op, table string) (context.Context, func(error, int)) {
	started := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "data."+op+" "+table)
	return ctx, func(err error, rows int) {
		m := telemetry.GetMetrics()
		kind := ""
		if err != nil {
			kind = apperr.KindOf(err).String()
			log.Debug().Err(err).Str("op", op).Str("table", table).Msg("record store call failed")
		} else if op == "select" {
			m.RowsReturned.Record(ctx, int64(rows))
		}
		m.RecordData(ctx, op, table, started, kind)
		telemetry.EndSpan(span, err)
	}
}
