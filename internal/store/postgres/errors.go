package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/eventdesk/internal/apperr"
)

// mapPostgresError classifies database errors the same way the REST backend
// classifies PostgREST responses, keeping the server message.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Remote("query timed out", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return apperr.Remote(err.Error(), err)
	}

	switch pgErr.Code {
	case pgerrcode.CheckViolation, pgerrcode.NotNullViolation, pgerrcode.InvalidTextRepresentation,
		pgerrcode.InvalidDatetimeFormat:
		// rejected input, nothing was written
		return apperr.Validation(pgErr.Message)

	case pgerrcode.InsufficientPrivilege:
		return &apperr.Error{Kind: apperr.KindNotAuthenticated, Message: pgErr.Message, Err: err}

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown,
		pgerrcode.TooManyConnections:
		return apperr.Remote("database unavailable: "+pgErr.Message, err)

	case pgerrcode.QueryCanceled:
		return apperr.Remote("query canceled", err)

	default:
		// unique, foreign key and the rest pass the server message through
		return apperr.Remote(pgErr.Message, err)
	}
}
