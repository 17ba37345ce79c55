package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rickgao/aodata-ingest/internal/model"
)

// Decode errors
var (
	ErrMissingID       = errors.New("missing order id")
	ErrMissingItem     = errors.New("missing item id")
	ErrInvalidLocation = errors.New("invalid location id")
	ErrInvalidExpiry   = errors.New("invalid expiry")
	ErrEmptyHistory    = errors.New("no history entries")
)

// expiresLayouts are the naive (zone-less) datetime forms seen in order payloads.
var expiresLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// ticksEpochOffsetMs converts .NET ticks (100ns since 0001-01-01) to Unix milliseconds.
const ticksEpochOffsetMs = 62_136_892_800_000

// orderWire is the JSON shape of a market order message.
type orderWire struct {
	ID               int64  `json:"Id"`
	ItemTypeID       string `json:"ItemTypeId"`
	ItemGroupTypeID  string `json:"ItemGroupTypeId"`
	LocationID       int64  `json:"LocationId"`
	QualityLevel     int32  `json:"QualityLevel"`
	EnchantmentLevel int32  `json:"EnchantmentLevel"`
	UnitPriceSilver  int64  `json:"UnitPriceSilver"`
	Amount           int32  `json:"Amount"`
	AuctionType      string `json:"AuctionType"`
	Expires          string `json:"Expires"`
}

// historiesWire is the JSON shape of a market history message.
type historiesWire struct {
	AlbionID        int64         `json:"AlbionId"`
	AlbionIDString  string        `json:"AlbionIdString"`
	LocationID      int64         `json:"LocationId"`
	QualityLevel    int32         `json:"QualityLevel"`
	Timescale       int32         `json:"Timescale"`
	MarketHistories []historyWire `json:"MarketHistories"`
}

type historyWire struct {
	ItemAmount   int64 `json:"ItemAmount"`
	SilverAmount int64 `json:"SilverAmount"`
	Timestamp    int64 `json:"Timestamp"` // .NET ticks
}

// DecodeOrder parses a market order message. One message yields one order.
func DecodeOrder(data []byte, receivedAt time.Time) ([]model.Order, error) {
	var wire orderWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse order: %w", err)
	}
	if wire.ID == 0 {
		return nil, ErrMissingID
	}
	if wire.ItemTypeID == "" {
		return nil, ErrMissingItem
	}

	location, err := formatLocation(wire.LocationID)
	if err != nil {
		return nil, err
	}
	expires, err := parseExpires(wire.Expires)
	if err != nil {
		return nil, err
	}

	now := receivedAt.UTC()
	return []model.Order{{
		ID:               wire.ID,
		ItemUniqueName:   wire.ItemTypeID,
		ItemGroupName:    wire.ItemGroupTypeID,
		LocationID:       location,
		QualityLevel:     wire.QualityLevel,
		EnchantmentLevel: wire.EnchantmentLevel,
		UnitPriceSilver:  wire.UnitPriceSilver,
		Amount:           wire.Amount,
		AuctionType:      wire.AuctionType,
		ExpiresAt:        expires,
		CreatedAt:        now,
		UpdatedAt:        now,
	}}, nil
}

// DecodeHistories parses a market history message. One message yields one
// point per entry in MarketHistories.
func DecodeHistories(data []byte, receivedAt time.Time) ([]model.HistoryPoint, error) {
	var wire historiesWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parse histories: %w", err)
	}
	if wire.AlbionIDString == "" {
		return nil, ErrMissingItem
	}
	if len(wire.MarketHistories) == 0 {
		return nil, ErrEmptyHistory
	}

	location, err := formatLocation(wire.LocationID)
	if err != nil {
		return nil, err
	}

	now := receivedAt.UTC()
	points := make([]model.HistoryPoint, 0, len(wire.MarketHistories))
	for _, h := range wire.MarketHistories {
		points = append(points, model.HistoryPoint{
			ItemUniqueName: wire.AlbionIDString,
			LocationID:     location,
			QualityLevel:   wire.QualityLevel,
			Timescale:      wire.Timescale,
			Timestamp:      TicksToTime(h.Timestamp),
			ItemAmount:     h.ItemAmount,
			SilverAmount:   h.SilverAmount,
			UpdatedAt:      now,
		})
	}
	return points, nil
}

// TicksToTime converts .NET ticks to a UTC time with millisecond precision.
func TicksToTime(ticks int64) time.Time {
	return time.UnixMilli(ticks/10_000 - ticksEpochOffsetMs).UTC()
}

// formatLocation zero-pads numeric location ids to four digits (7 -> "0007").
func formatLocation(id int64) (string, error) {
	if id < 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidLocation, id)
	}
	s := strconv.FormatInt(id, 10)
	for len(s) < 4 {
		s = "0" + s
	}
	return s, nil
}

func parseExpires(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidExpiry)
	}
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
}
