// Package config loads service configuration.
//
// Sources, highest priority first:
//  1. Environment variables with nested keys joined by "_" (DATABASE_URL,
//     SWEEPER_INTERVAL, NOTIFICATION_STAFF_IDS, ...)
//  2. config.yaml in ., ./config or /etc/kalium (optional)
//  3. Defaults from setDefaults
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Notification sink names.
const (
	SinkLog   = "log"
	SinkInbox = "inbox"
	SinkKafka = "kafka"
)

// Blob drivers for report export.
const (
	BlobFS = "fs"
	BlobS3 = "s3"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Sweeper      SweeperConfig      `mapstructure:"sweeper"`
	Notification NotificationConfig `mapstructure:"notification"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
	Report       ReportConfig       `mapstructure:"report"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// DatabaseConfig selects the persistence driver and holds its settings.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`

	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	// Pool configuration, shared by the store, River and the inbox sink.
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	SQLitePath string `mapstructure:"sqlite_path"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	NotifyPoolSize  int `mapstructure:"notify_pool_size"`
}

// SweeperConfig controls expiration of approved orders whose start time passed.
type SweeperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// NotificationConfig selects notification sinks and staff recipients.
type NotificationConfig struct {
	Sinks []string `mapstructure:"sinks"`

	// StaffIDs receive stock and incident notifications.
	StaffIDs []string `mapstructure:"staff_ids"`

	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig configures the Kafka notification sink.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	URLPath     string  `mapstructure:"url_path"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

// ReportConfig configures the periodic inventory report export.
type ReportConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Blob     BlobConfig    `mapstructure:"blob"`
}

// BlobConfig selects where exported reports are written.
type BlobConfig struct {
	Driver string `mapstructure:"driver"`

	// Root is the directory used by the fs driver.
	Root string `mapstructure:"root"`

	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	Prefix    string `mapstructure:"prefix"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/kalium")

	// database.max_conns → DATABASE_MAX_CONNS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMemory:
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not one of postgres, sqlite, memory", c.Database.Driver)
	}

	if c.Sweeper.Enabled && c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}

	for _, sink := range c.Notification.Sinks {
		switch sink {
		case SinkLog, SinkKafka:
		case SinkInbox:
			if c.Database.Driver != DriverPostgres {
				return fmt.Errorf("notification sink %q requires the postgres driver", sink)
			}
		default:
			return fmt.Errorf("unknown notification sink %q", sink)
		}
	}
	if slices.Contains(c.Notification.Sinks, SinkKafka) {
		if len(c.Notification.Kafka.Brokers) == 0 || c.Notification.Kafka.Topic == "" {
			return fmt.Errorf("notification.kafka.brokers and topic are required for the kafka sink")
		}
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}

	if c.Report.Enabled {
		if c.Report.Interval <= 0 {
			return fmt.Errorf("report.interval must be positive")
		}
		switch c.Report.Blob.Driver {
		case BlobFS:
			if c.Report.Blob.Root == "" {
				return fmt.Errorf("report.blob.root must be set for the fs driver")
			}
		case BlobS3:
			if c.Report.Blob.Bucket == "" {
				return fmt.Errorf("report.blob.bucket must be set for the s3 driver")
			}
		default:
			return fmt.Errorf("report.blob.driver %q is not one of fs, s3", c.Report.Blob.Driver)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.allow_credentials", true)

	// Database
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "kalium")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "kalium")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.sqlite_path", "kalium.db")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 5)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 50)
	v.SetDefault("worker.notify_pool_size", 20)

	// Sweeper
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", "1h")

	// Notification
	v.SetDefault("notification.sinks", []string{SinkLog})
	v.SetDefault("notification.staff_ids", []string{})
	v.SetDefault("notification.kafka.brokers", []string{})
	v.SetDefault("notification.kafka.topic", "kalium.notifications")
	v.SetDefault("notification.kafka.batch_timeout", "50ms")

	// Tracing
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.url_path", "/v1/traces")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("tracing.service_name", "kalium")

	// Report export
	v.SetDefault("report.enabled", false)
	v.SetDefault("report.interval", "24h")
	v.SetDefault("report.blob.driver", BlobFS)
	v.SetDefault("report.blob.root", "reports")
	v.SetDefault("report.blob.region", "us-east-1")
	v.SetDefault("report.blob.path_style", false)
	v.SetDefault("report.blob.prefix", "inventory/")
}
