// Package model defines the market events shared across the ingestor.
//
// All types mirror the database schema in db/migrations.
//
// Conventions:
//   - Prices and amounts: integer silver / item counts
//   - Location ids: 4-digit zero-padded strings (e.g. "0007")
//   - Timestamps: time.Time in UTC
//   - Identity: each event exposes Key(); value fields never take part in identity
package model
