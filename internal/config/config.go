package config

import "time"

// IngestorConfig is the root configuration for an ingestor instance.
type IngestorConfig struct {
	Instance  InstanceConfig  `yaml:"instance" envPrefix:"INSTANCE_"`
	NATS      NATSConfig      `yaml:"nats" envPrefix:"NATS_"`
	Database  DBConfig        `yaml:"database" envPrefix:"DB_"`
	Writers   WritersConfig   `yaml:"writers" envPrefix:"WRITERS_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
}

// InstanceConfig identifies this ingestor.
type InstanceConfig struct {
	ID          string `yaml:"id" env:"ID"`
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
}

// NATSConfig holds bus connection settings.
type NATSConfig struct {
	URL            string        `yaml:"url" env:"URL"`
	User           string        `yaml:"user" env:"USER"`
	Password       string        `yaml:"password" env:"PASSWORD"`
	OrderSubject   string        `yaml:"order_subject" env:"ORDER_SUBJECT"`
	HistorySubject string        `yaml:"history_subject" env:"HISTORY_SUBJECT"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	PendingLimit   int           `yaml:"pending_limit" env:"PENDING_LIMIT"` // Per-subscription channel size
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Name     string `yaml:"name" env:"NAME"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxConns int    `yaml:"max_conns" env:"MAX_CONNS"`
	MinConns int    `yaml:"min_conns" env:"MIN_CONNS"`
}

// WritersConfig holds buffering and batch writer settings shared by every event kind.
type WritersConfig struct {
	Policy             string        `yaml:"policy" env:"POLICY"`                 // "size" or "timer"
	BatchSize          int           `yaml:"batch_size" env:"BATCH_SIZE"`         // Size policy threshold
	PollInterval       time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`   // Size policy recheck interval
	FlushInterval      time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"` // Timer policy interval
	MaxAttempts        int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	RetryInitial       time.Duration `yaml:"retry_initial" env:"RETRY_INITIAL"`
	RetryMax           time.Duration `yaml:"retry_max" env:"RETRY_MAX"`
	WriteTimeout       time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	DeadLetterDir      string        `yaml:"dead_letter_dir" env:"DEAD_LETTER_DIR"`
	DeleteBeforeInsert *bool         `yaml:"delete_before_insert" env:"DELETE_BEFORE_INSERT"`
}

// MetricsConfig holds the health/debug HTTP server settings.
type MetricsConfig struct {
	Port int `yaml:"port" env:"PORT"`
}

// TelemetryConfig holds OpenTelemetry metric export settings.
type TelemetryConfig struct {
	Enabled        bool          `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	OTLPInsecure   bool          `yaml:"otlp_insecure" env:"OTLP_INSECURE"`
	MetricInterval time.Duration `yaml:"metric_interval" env:"METRIC_INTERVAL"`
}

// LoggingConfig holds slog handler settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // text or json
}
