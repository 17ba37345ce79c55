package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// Client is a connection to the NATS bus.
type Client interface {
	// Connect establishes the connection. Fails if the server is unreachable.
	Connect(ctx context.Context) error

	// Subscribe starts delivering messages for subject.
	Subscribe(subject string) (Subscription, error)

	// IsConnected returns current connection state.
	IsConnected() bool

	// Stats returns connection statistics.
	Stats() ClientStats

	// Close drains subscriptions and closes the connection.
	Close() error
}

// Subscription delivers messages for one subject.
type Subscription interface {
	// Subject returns the subscribed subject.
	Subject() string

	// Messages returns the delivery channel. It is never closed; watch Done.
	Messages() <-chan RawMessage

	// Done is closed once no more messages will be delivered.
	Done() <-chan struct{}

	// Unsubscribe stops delivery.
	Unsubscribe() error
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   *nats.Conn
	subs   []*subscription
	closed bool

	disconnects atomic.Int64
}

// NewClient creates a new NATS client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PendingLimit < 1 {
		cfg.PendingLimit = DefaultClientConfig().PendingLimit
	}
	return &client{
		cfg:    cfg,
		logger: logger,
	}
}

// Connect establishes the connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}

	timeout := c.cfg.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout || timeout == 0 {
			timeout = remaining
		}
	}

	opts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.disconnects.Add(1)
			c.logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Info("nats connection closed")
			c.closeSubscriptions()
		}),
	}
	if timeout > 0 {
		opts = append(opts, nats.Timeout(timeout))
	}
	if c.cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(c.cfg.ReconnectWait))
	}
	if c.cfg.User != "" {
		opts = append(opts, nats.UserInfo(c.cfg.User, c.cfg.Password))
	}

	conn, err := nats.Connect(c.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.URL, err)
	}
	c.conn = conn

	c.logger.Info("connected to nats", "url", conn.ConnectedUrl())
	return nil
}

// Subscribe starts delivering messages for subject.
func (c *client) Subscribe(subject string) (Subscription, error) {
	if subject == "" {
		return nil, ErrEmptySubject
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrAlreadyClosed
	}
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	s := &subscription{
		subject:  subject,
		messages: make(chan RawMessage, c.cfg.PendingLimit),
		done:     make(chan struct{}),
	}

	sub, err := c.conn.Subscribe(subject, s.deliver)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	s.sub = sub
	c.subs = append(c.subs, s)

	c.logger.Info("subscribed", "subject", subject)
	return s, nil
}

// IsConnected returns current connection state.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Stats returns connection statistics.
func (c *client) Stats() ClientStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := ClientStats{
		Subscriptions: len(c.subs),
		Disconnects:   c.disconnects.Load(),
	}
	if c.conn != nil {
		s := c.conn.Stats()
		stats.Connected = c.conn.IsConnected()
		stats.InMsgs = s.InMsgs
		stats.InBytes = s.InBytes
		stats.Reconnects = s.Reconnects
	}
	return stats
}

// Close drains subscriptions and closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	// Drain flushes pending deliveries and then closes the connection,
	// which fires ClosedHandler.
	if err := conn.Drain(); err != nil {
		conn.Close()
		c.closeSubscriptions()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}

func (c *client) closeSubscriptions() {
	c.mu.Lock()
	subs := c.subs
	c.mu.Unlock()

	for _, s := range subs {
		s.markDone()
	}
}

// subscription implements the Subscription interface.
type subscription struct {
	subject  string
	sub      *nats.Subscription
	messages chan RawMessage
	done     chan struct{}
	doneOnce sync.Once
}

func (s *subscription) Subject() string              { return s.subject }
func (s *subscription) Messages() <-chan RawMessage { return s.messages }
func (s *subscription) Done() <-chan struct{}        { return s.done }

// Unsubscribe stops delivery. Safe to call more than once.
func (s *subscription) Unsubscribe() error {
	s.markDone()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Unsubscribe()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
		return fmt.Errorf("unsubscribe %s: %w", s.subject, err)
	}
	return nil
}

// deliver runs on the nats dispatch goroutine for this subscription.
func (s *subscription) deliver(msg *nats.Msg) {
	raw := RawMessage{
		Subject:    msg.Subject,
		Data:       msg.Data,
		ReceivedAt: time.Now(),
	}
	select {
	case s.messages <- raw:
	case <-s.done:
	}
}

func (s *subscription) markDone() {
	s.doneOnce.Do(func() {
		close(s.done)
	})
}
