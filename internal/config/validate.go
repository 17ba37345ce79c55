package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validate checks that all required fields are set and values are valid.
func (c *IngestorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if c.NATS.OrderSubject == "" || c.NATS.HistorySubject == "" {
		return errors.New("nats.order_subject and nats.history_subject are required")
	}
	if c.NATS.OrderSubject == c.NATS.HistorySubject {
		return fmt.Errorf("nats.order_subject and nats.history_subject must differ, both are %q", c.NATS.OrderSubject)
	}
	if c.NATS.PendingLimit < 1 {
		return errors.New("nats.pending_limit must be >= 1")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	switch c.Writers.Policy {
	case PolicySize:
		if c.Writers.BatchSize < 1 {
			return errors.New("writers.batch_size must be >= 1")
		}
		if c.Writers.PollInterval <= 0 {
			return errors.New("writers.poll_interval must be > 0")
		}
	case PolicyTimer:
		if c.Writers.FlushInterval <= 0 {
			return errors.New("writers.flush_interval must be > 0")
		}
	default:
		return fmt.Errorf("writers.policy must be %q or %q, got %q", PolicySize, PolicyTimer, c.Writers.Policy)
	}
	if c.Writers.MaxAttempts < 1 {
		return errors.New("writers.max_attempts must be >= 1")
	}
	if c.Writers.RetryInitial > c.Writers.RetryMax {
		return fmt.Errorf("writers.retry_initial (%s) cannot exceed retry_max (%s)", c.Writers.RetryInitial, c.Writers.RetryMax)
	}
	if c.Writers.WriteTimeout <= 0 {
		return errors.New("writers.write_timeout must be > 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// SlogLevel parses the configured level name.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
