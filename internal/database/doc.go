// Package database manages the PostgreSQL connection pool and schema migrations.
//
// Connect builds a pgx pool from config.DBConfig and pings it; Migrate applies
// the embedded golang-migrate files through the pgx v5 driver.
package database
