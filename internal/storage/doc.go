// Package storage persists jam polls and scheduler state in a relational
// database.
//
// Two drivers are supported:
//   - "sqlite": a local database file (modernc.org/sqlite, no cgo)
//   - "mysql": a MySQL/MariaDB server (github.com/go-sql-driver/mysql)
//
// Both share one SQLStore; the statements that differ between the two
// live in a dialect value.
package storage
