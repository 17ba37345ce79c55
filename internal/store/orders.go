package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/aodata-ingest/internal/model"
)

// Removes rows the batch is about to replace, unless the stored row is newer.
const deleteOrdersSQL = `
DELETE FROM market_order m
USING UNNEST($1::BIGINT[], $2::TIMESTAMPTZ[]) AS b(id, updated_at)
WHERE m.id = b.id AND m.updated_at <= b.updated_at`

const upsertOrdersSQL = `
INSERT INTO market_order (
    id, item_unique_name, location_id, quality_level, enchantment_level,
    unit_price_silver, amount, auction_type, expires_at, created_at, updated_at)
SELECT
    o.id, o.item_unique_name, o.location_id, o.quality_level, o.enchantment_level,
    o.unit_price_silver, o.amount, o.auction_type, o.expires_at, o.created_at, o.updated_at
FROM UNNEST(
    $1::BIGINT[], $2::VARCHAR[], $3::VARCHAR[], $4::INT[], $5::INT[],
    $6::BIGINT[], $7::INT[], $8::VARCHAR[], $9::TIMESTAMPTZ[], $10::TIMESTAMPTZ[], $11::TIMESTAMPTZ[])
    AS o(id, item_unique_name, location_id, quality_level, enchantment_level,
         unit_price_silver, amount, auction_type, expires_at, created_at, updated_at)
WHERE o.item_unique_name IN (SELECT unique_name FROM item)
ON CONFLICT (id) DO UPDATE SET
    item_unique_name  = EXCLUDED.item_unique_name,
    location_id       = EXCLUDED.location_id,
    quality_level     = EXCLUDED.quality_level,
    enchantment_level = EXCLUDED.enchantment_level,
    unit_price_silver = EXCLUDED.unit_price_silver,
    amount            = EXCLUDED.amount,
    auction_type      = EXCLUDED.auction_type,
    expires_at        = EXCLUDED.expires_at,
    updated_at        = EXCLUDED.updated_at
WHERE market_order.updated_at <= EXCLUDED.updated_at`

const backupOrdersSQL = `
INSERT INTO market_order_backup (
    batch_id, id, item_unique_name, location_id, quality_level, enchantment_level,
    unit_price_silver, amount, auction_type, expires_at, updated_at)
SELECT
    $1::UUID, o.id, o.item_unique_name, o.location_id, o.quality_level, o.enchantment_level,
    o.unit_price_silver, o.amount, o.auction_type, o.expires_at, o.updated_at
FROM UNNEST(
    $2::BIGINT[], $3::VARCHAR[], $4::VARCHAR[], $5::INT[], $6::INT[],
    $7::BIGINT[], $8::INT[], $9::VARCHAR[], $10::TIMESTAMPTZ[], $11::TIMESTAMPTZ[])
    AS o(id, item_unique_name, location_id, quality_level, enchantment_level,
         unit_price_silver, amount, auction_type, expires_at, updated_at)`

// OrderStore writes market orders to market_order and market_order_backup.
type OrderStore struct {
	db                 Beginner
	deleteBeforeInsert bool
}

// NewOrderStore creates an OrderStore. With deleteBeforeInsert, rows for the
// batch ids are deleted before the insert so orders for items no longer in
// the item table disappear instead of going stale.
func NewOrderStore(db Beginner, deleteBeforeInsert bool) *OrderStore {
	return &OrderStore{db: db, deleteBeforeInsert: deleteBeforeInsert}
}

// orderColumns is the columnar form of a batch.
type orderColumns struct {
	ids          []int64
	items        []string
	locations    []string
	qualities    []int32
	enchantments []int32
	prices       []int64
	amounts      []int32
	auctionTypes []string
	expiresAt    []time.Time
	createdAt    []time.Time
	updatedAt    []time.Time
}

func toOrderColumns(rows []model.Order) orderColumns {
	n := len(rows)
	c := orderColumns{
		ids:          make([]int64, 0, n),
		items:        make([]string, 0, n),
		locations:    make([]string, 0, n),
		qualities:    make([]int32, 0, n),
		enchantments: make([]int32, 0, n),
		prices:       make([]int64, 0, n),
		amounts:      make([]int32, 0, n),
		auctionTypes: make([]string, 0, n),
		expiresAt:    make([]time.Time, 0, n),
		createdAt:    make([]time.Time, 0, n),
		updatedAt:    make([]time.Time, 0, n),
	}
	for _, o := range rows {
		c.ids = append(c.ids, o.ID)
		c.items = append(c.items, o.ItemUniqueName)
		c.locations = append(c.locations, o.LocationID)
		c.qualities = append(c.qualities, o.QualityLevel)
		c.enchantments = append(c.enchantments, o.EnchantmentLevel)
		c.prices = append(c.prices, o.UnitPriceSilver)
		c.amounts = append(c.amounts, o.Amount)
		c.auctionTypes = append(c.auctionTypes, o.AuctionType)
		c.expiresAt = append(c.expiresAt, o.ExpiresAt)
		c.createdAt = append(c.createdAt, o.CreatedAt)
		c.updatedAt = append(c.updatedAt, o.UpdatedAt)
	}
	return c
}

// Upsert writes rows to market_order. Rows whose item is unknown are skipped.
// Keys must be unique within rows.
func (s *OrderStore) Upsert(ctx context.Context, rows []model.Order) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	c := toOrderColumns(rows)

	var affected int64
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		if s.deleteBeforeInsert {
			if _, err := tx.Exec(ctx, deleteOrdersSQL, c.ids, c.updatedAt); err != nil {
				return fmt.Errorf("delete market orders: %w", err)
			}
		}
		tag, err := tx.Exec(ctx, upsertOrdersSQL,
			c.ids, c.items, c.locations, c.qualities, c.enchantments,
			c.prices, c.amounts, c.auctionTypes, c.expiresAt, c.createdAt, c.updatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert market orders: %w", err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// Backup appends rows to market_order_backup under batchID.
func (s *OrderStore) Backup(ctx context.Context, batchID uuid.UUID, rows []model.Order) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	c := toOrderColumns(rows)

	var affected int64
	err := inTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, backupOrdersSQL, batchID.String(),
			c.ids, c.items, c.locations, c.qualities, c.enchantments,
			c.prices, c.amounts, c.auctionTypes, c.expiresAt, c.updatedAt,
		)
		if err != nil {
			return fmt.Errorf("backup market orders: %w", err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
