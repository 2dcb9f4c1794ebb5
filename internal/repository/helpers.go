package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/lib/pq"
)

// sqlxDB is the slice of sqlx that repositories need; both *sqlx.DB and
// *sqlx.Tx satisfy it, so a repository can run against a transaction via
// WithTx.
type sqlxDB interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// itoa shortens strconv.Itoa for building positional parameters.
func itoa(n int) string {
	return strconv.Itoa(n)
}

// int64Array adapts an id slice for a Postgres bigint[] parameter.
func int64Array(ids []int64) interface{} {
	return pq.Array(ids)
}

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. Find* operations use this so a missing row
// is not an error condition.
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}
