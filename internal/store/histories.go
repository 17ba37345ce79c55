package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/aodata-ingest/internal/model"
)

const upsertHistoriesSQL = `
INSERT INTO market_history (
    item_unique_name, location_id, quality_level, timescale, timestamp,
    item_amount, silver_amount, updated_at)
SELECT
    h.item_unique_name, h.location_id, h.quality_level, h.timescale, h.timestamp,
    h.item_amount, h.silver_amount, h.updated_at
FROM UNNEST(
    $1::VARCHAR[], $2::VARCHAR[], $3::INT[], $4::INT[], $5::TIMESTAMPTZ[],
    $6::BIGINT[], $7::BIGINT[], $8::TIMESTAMPTZ[])
    AS h(item_unique_name, location_id, quality_level, timescale, timestamp,
         item_amount, silver_amount, updated_at)
ON CONFLICT (item_unique_name, location_id, quality_level, timescale, timestamp) DO UPDATE SET
    silver_amount = EXCLUDED.silver_amount,
    item_amount   = EXCLUDED.item_amount,
    updated_at    = EXCLUDED.updated_at
WHERE market_history.updated_at <= EXCLUDED.updated_at`

const backupHistoriesSQL = `
INSERT INTO market_history_backup (
    batch_id, item_unique_name, location_id, quality_level, timescale, timestamp,
    item_amount, silver_amount, updated_at)
SELECT
    $1::UUID, h.item_unique_name, h.location_id, h.quality_level, h.timescale, h.timestamp,
    h.item_amount, h.silver_amount, h.updated_at
FROM UNNEST(
    $2::VARCHAR[], $3::VARCHAR[], $4::INT[], $5::INT[], $6::TIMESTAMPTZ[],
    $7::BIGINT[], $8::BIGINT[], $9::TIMESTAMPTZ[])
    AS h(item_unique_name, location_id, quality_level, timescale, timestamp,
         item_amount, silver_amount, updated_at)`

// HistoryStore writes history points to market_history and market_history_backup.
type HistoryStore struct {
	db Beginner
}

// NewHistoryStore creates a HistoryStore.
func NewHistoryStore(db Beginner) *HistoryStore {
	return &HistoryStore{db: db}
}

type historyColumns struct {
	items      []string
	locations  []string
	qualities  []int32
	timescales []int32
	timestamps []time.Time
	itemAmts   []int64
	silverAmts []int64
	updatedAt  []time.Time
}

func toHistoryColumns(rows []model.HistoryPoint) historyColumns {
	n := len(rows)
	c := historyColumns{
		items:      make([]string, 0, n),
		locations:  make([]string, 0, n),
		qualities:  make([]int32, 0, n),
		timescales: make([]int32, 0, n),
		timestamps: make([]time.Time, 0, n),
		itemAmts:   make([]int64, 0, n),
		silverAmts: make([]int64, 0, n),
		updatedAt:  make([]time.Time, 0, n),
	}
	for _, h := range rows {
		c.items = append(c.items, h.ItemUniqueName)
		c.locations = append(c.locations, h.LocationID)
		c.qualities = append(c.qualities, h.QualityLevel)
		c.timescales = append(c.timescales, h.Timescale)
		c.timestamps = append(c.timestamps, h.Timestamp)
		c.itemAmts = append(c.itemAmts, h.ItemAmount)
		c.silverAmts = append(c.silverAmts, h.SilverAmount)
		c.updatedAt = append(c.updatedAt, h.UpdatedAt)
	}
	return c
}

// Upsert writes rows to market_history. Keys must be unique within rows.
func (s *HistoryStore) Upsert(ctx context.Context, rows []model.HistoryPoint) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	c := toHistoryColumns(rows)

	var affected int64
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upsertHistoriesSQL,
			c.items, c.locations, c.qualities, c.timescales, c.timestamps,
			c.itemAmts, c.silverAmts, c.updatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert market histories: %w", err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// Backup appends rows to market_history_backup under batchID.
func (s *HistoryStore) Backup(ctx context.Context, batchID uuid.UUID, rows []model.HistoryPoint) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	c := toHistoryColumns(rows)

	var affected int64
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, backupHistoriesSQL, batchID.String(),
			c.items, c.locations, c.qualities, c.timescales, c.timestamps,
			c.itemAmts, c.silverAmts, c.updatedAt,
		)
		if err != nil {
			return fmt.Errorf("backup market histories: %w", err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
