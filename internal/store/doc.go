// Package store writes market events to PostgreSQL.
//
// Each write is one statement over columnar array parameters (UNNEST) inside
// its own transaction. Primary upserts only replace a stored row when the
// incoming updated_at is not older, so replaying an old batch never regresses
// newer data. Backup writes are append-only and tag every row with the flush
// batch id.
package store
