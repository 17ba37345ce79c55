package model

import "time"

// Kind names an event stream. Each kind has its own subscription, buffer and tables.
type Kind string

const (
	KindOrder   Kind = "market_order"
	KindHistory Kind = "market_history"
)

// -----------------------------------------------------------------------------
// Market Orders
// -----------------------------------------------------------------------------

// Order is a snapshot of a single auction-house order.
type Order struct {
	ID               int64     `json:"id"`                // Primary key (order id from the game)
	ItemUniqueName   string    `json:"item_unique_name"`  // Foreign key to item.unique_name
	ItemGroupName    string    `json:"item_group_name"`   // Item group; informational only
	LocationID       string    `json:"location_id"`       // Market location, zero-padded
	QualityLevel     int32     `json:"quality_level"`     // 1-5
	EnchantmentLevel int32     `json:"enchantment_level"` // 0-4
	UnitPriceSilver  int64     `json:"unit_price_silver"` // Price per unit
	Amount           int32     `json:"amount"`            // Units still offered
	AuctionType      string    `json:"auction_type"`      // "offer" or "request"
	ExpiresAt        time.Time `json:"expires_at"`        // Order expiry
	CreatedAt        time.Time `json:"created_at"`        // First ingestion
	UpdatedAt        time.Time `json:"updated_at"`        // Ingestion of this observation
}

// Key returns the order's identity.
func (o Order) Key() int64 {
	return o.ID
}

// -----------------------------------------------------------------------------
// Market History
// -----------------------------------------------------------------------------

// HistoryKey identifies one history bucket. The timestamp is kept in
// milliseconds so the key stays comparable regardless of time.Location.
type HistoryKey struct {
	ItemUniqueName string
	LocationID     string
	QualityLevel   int32
	Timescale      int32
	TimestampMs    int64
}

// HistoryPoint is one aggregated trade bucket for an item at a location.
type HistoryPoint struct {
	ItemUniqueName string    `json:"item_unique_name"`
	LocationID     string    `json:"location_id"`
	QualityLevel   int32     `json:"quality_level"`
	Timescale      int32     `json:"timescale"`     // Bucket width code (0 = hourly, 1 = daily, ...)
	Timestamp      time.Time `json:"timestamp"`     // Bucket start
	ItemAmount     int64     `json:"item_amount"`   // Items traded in the bucket
	SilverAmount   int64     `json:"silver_amount"` // Silver traded in the bucket
	UpdatedAt      time.Time `json:"updated_at"`    // Ingestion of this observation
}

// Key returns the history point's identity.
func (h HistoryPoint) Key() HistoryKey {
	return HistoryKey{
		ItemUniqueName: h.ItemUniqueName,
		LocationID:     h.LocationID,
		QualityLevel:   h.QualityLevel,
		Timescale:      h.Timescale,
		TimestampMs:    h.Timestamp.UnixMilli(),
	}
}
