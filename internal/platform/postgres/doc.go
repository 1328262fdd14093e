// Package postgres provides the PostgreSQL implementation of the store
// interfaces, using database/sql over the pgx driver. Database errors are
// mapped to the sentinel errors defined in the store package so callers
// never depend on driver specifics.
package postgres
