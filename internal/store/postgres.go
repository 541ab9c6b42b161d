package store

import _ "github.com/jackc/pgx/v5/stdlib"

// NewPostgres opens a Postgres store through pgx's database/sql driver.
// dsn is a postgres:// URL or key=value connection string.
func NewPostgres(dsn string) (*SQL, error) {
	return openSQL("pgx", dsn, dialectPostgres)
}
