package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrEmptySubject  = errors.New("empty subject")
)

// RawMessage is a message from the bus to an Ingestor.
type RawMessage struct {
	Subject    string    // Subject the message was published on
	Data       []byte    // Opaque payload
	ReceivedAt time.Time // Local timestamp when the client received the message
}

// ClientConfig configures a NATS client.
type ClientConfig struct {
	URL            string        // e.g. nats://localhost:4222
	User           string        // Empty = no auth
	Password       string        //
	Name           string        // Connection name reported to the server
	ConnectTimeout time.Duration // Dial timeout for the initial connect
	ReconnectWait  time.Duration // Wait between reconnect attempts
	PendingLimit   int           // Per-subscription channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:            "nats://localhost:4222",
		Name:           "aodata-ingest",
		ConnectTimeout: 10 * time.Second,
		ReconnectWait:  2 * time.Second,
		PendingLimit:   65536,
	}
}

// ClientStats contains runtime statistics.
type ClientStats struct {
	Connected     bool   `json:"connected"`
	Subscriptions int    `json:"subscriptions"`
	InMsgs        uint64 `json:"in_msgs"`
	InBytes       uint64 `json:"in_bytes"`
	Reconnects    uint64 `json:"reconnects"`
	Disconnects   int64  `json:"disconnects"`
}
