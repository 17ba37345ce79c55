package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID         = "ingestor"
	DefaultEnvironment        = "development"
	DefaultNATSURL            = "nats://localhost:4222"
	DefaultOrderSubject       = "marketorders.deduped"
	DefaultHistorySubject     = "markethistories.deduped"
	DefaultNATSConnectTimeout = 10 * time.Second
	DefaultPendingLimit       = 65536
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 5
	DefaultMinConns           = 1
	DefaultPolicy             = PolicySize
	DefaultBatchSize          = 1000
	DefaultPollInterval       = 100 * time.Millisecond
	DefaultFlushInterval      = 60 * time.Second
	DefaultMaxAttempts        = 5
	DefaultRetryInitial       = 1 * time.Second
	DefaultRetryMax           = 1 * time.Minute
	DefaultWriteTimeout       = 30 * time.Second
	DefaultMetricsPort        = 8080
	DefaultOTLPEndpoint       = "localhost:4318"
	DefaultMetricInterval     = 30 * time.Second
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// Flush policies.
const (
	PolicySize  = "size"
	PolicyTimer = "timer"
)

func (c *IngestorConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}
	if c.Instance.Environment == "" {
		c.Instance.Environment = DefaultEnvironment
	}

	// NATS defaults
	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	if c.NATS.OrderSubject == "" {
		c.NATS.OrderSubject = DefaultOrderSubject
	}
	if c.NATS.HistorySubject == "" {
		c.NATS.HistorySubject = DefaultHistorySubject
	}
	if c.NATS.ConnectTimeout == 0 {
		c.NATS.ConnectTimeout = DefaultNATSConnectTimeout
	}
	if c.NATS.PendingLimit == 0 {
		c.NATS.PendingLimit = DefaultPendingLimit
	}

	// Database defaults
	applyDBDefaults(&c.Database)

	// Writers defaults
	if c.Writers.Policy == "" {
		c.Writers.Policy = DefaultPolicy
	}
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.PollInterval == 0 {
		c.Writers.PollInterval = DefaultPollInterval
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.MaxAttempts == 0 {
		c.Writers.MaxAttempts = DefaultMaxAttempts
	}
	if c.Writers.RetryInitial == 0 {
		c.Writers.RetryInitial = DefaultRetryInitial
	}
	if c.Writers.RetryMax == 0 {
		c.Writers.RetryMax = DefaultRetryMax
	}
	if c.Writers.WriteTimeout == 0 {
		c.Writers.WriteTimeout = DefaultWriteTimeout
	}
	if c.Writers.DeleteBeforeInsert == nil {
		enabled := true
		c.Writers.DeleteBeforeInsert = &enabled
	}

	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}

	// Telemetry defaults
	if c.Telemetry.OTLPEndpoint == "" {
		c.Telemetry.OTLPEndpoint = DefaultOTLPEndpoint
	}
	if c.Telemetry.MetricInterval == 0 {
		c.Telemetry.MetricInterval = DefaultMetricInterval
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
