package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// IsUniqueViolationOn reports whether err is a Postgres unique constraint
// violation on the given table. Callers must scope to a table: a 23505 from
// anywhere else in a rolled-back transaction is a data error, not a
// duplicate of the row the caller was inserting.
func IsUniqueViolationOn(err error, table string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && pgErr.TableName == table
}
