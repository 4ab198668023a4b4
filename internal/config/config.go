// Package config loads docstore settings from an optional YAML file and
// DOCSTORE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/prn-tf/alexander-docstore/internal/pkg/crypto"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	GC       GCConfig       `mapstructure:"gc"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORSOrigins lists allowed origins. "*" allows any origin.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig selects and configures the catalog database.
type DatabaseConfig struct {
	// Driver is a registered repository driver: "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`

	// postgres
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// sqlite
	Path            string `mapstructure:"path"`
	JournalMode     string `mapstructure:"journal_mode"`
	BusyTimeout     int    `mapstructure:"busy_timeout"` // milliseconds
	CacheSize       int    `mapstructure:"cache_size"`   // negative is KiB
	SynchronousMode string `mapstructure:"synchronous_mode"`
}

// DSN returns the PostgreSQL keyword/value connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// IsEmbedded reports whether the catalog lives in a local SQLite file.
func (c DatabaseConfig) IsEmbedded() bool {
	return c.Driver == "sqlite"
}

// RedisConfig enables the shared cache and distributed locks.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig holds chunk storage settings.
type StorageConfig struct {
	// Backend selects where chunks live: "database", "filesystem" or "s3".
	Backend string `mapstructure:"backend"`

	// ChunkSize is the decoded size of one chunk in bytes.
	ChunkSize int `mapstructure:"chunk_size"`

	// MaxUploadSize caps a single uploaded file in bytes.
	MaxUploadSize int64 `mapstructure:"max_upload_size"`

	// Compression is the chunk codec: "none", "zstd" or "lz4".
	Compression string `mapstructure:"compression"`

	// EncryptionKey is a hex-encoded 32-byte key. When set, chunks are sealed
	// with AES-256-GCM.
	EncryptionKey string `mapstructure:"encryption_key"`

	// DataDir is the root directory of the filesystem backend.
	DataDir string `mapstructure:"data_dir"`

	S3 S3StorageConfig `mapstructure:"s3"`
}

// GetEncryptionKey returns the decoded encryption key, or nil when unset.
func (c StorageConfig) GetEncryptionKey() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, nil
	}
	key, err := crypto.ParseKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("storage.encryption_key: %w", err)
	}
	return key, nil
}

// S3StorageConfig holds S3 backend settings.
type S3StorageConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// CacheConfig holds metadata cache settings.
type CacheConfig struct {
	// Enabled turns on the read-through document cache.
	Enabled bool `mapstructure:"enabled"`

	// TTL is how long a cached document stays valid.
	TTL time.Duration `mapstructure:"ttl"`

	// MaxSize is the entry limit of the in-memory cache.
	MaxSize int `mapstructure:"max_size"`

	// CleanupInterval is how often expired in-memory entries are evicted.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LoggingConfig configures the zerolog logger built by NewLogger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig exposes Prometheus metrics on a separate listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// GCConfig holds orphan blob collection settings.
type GCConfig struct {
	// Enabled schedules collection inside the server.
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`

	// GracePeriod must exceed the longest upload so in-flight blobs are
	// never collected.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	BatchSize   int           `mapstructure:"batch_size"`
	DryRun      bool          `mapstructure:"dry_run"`
}

// EnvPrefix prefixes environment overrides, e.g. DOCSTORE_SERVER_PORT.
const EnvPrefix = "DOCSTORE"

var searchPaths = []string{".", "./configs", "/etc/docstore"}

// defaults also registers every key with viper, which AutomaticEnv needs
// before Unmarshal picks up an environment override.
var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             5000,
	"server.read_timeout":     time.Minute,
	"server.write_timeout":    5 * time.Minute,
	"server.idle_timeout":     2 * time.Minute,
	"server.shutdown_timeout": 30 * time.Second,
	"server.cors_origins":     []string{"*"},

	"database.driver":             "sqlite",
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "docstore",
	"database.password":           "",
	"database.database":           "docstore",
	"database.ssl_mode":           "prefer",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  5 * time.Minute,
	"database.conn_max_idle_time": 5 * time.Minute,
	"database.path":               "./data/docstore.db",
	"database.journal_mode":       "WAL",
	"database.busy_timeout":       5000,
	"database.cache_size":         -2000,
	"database.synchronous_mode":   "NORMAL",

	"redis.enabled":      false,
	"redis.host":         "localhost",
	"redis.port":         6379,
	"redis.password":     "",
	"redis.db":           0,
	"redis.pool_size":    10,
	"redis.dial_timeout": 5 * time.Second,

	"storage.backend":              "database",
	"storage.chunk_size":           255 * 1024,
	"storage.max_upload_size":      20 << 20,
	"storage.compression":          "none",
	"storage.encryption_key":       "",
	"storage.data_dir":             "./data/chunks",
	"storage.s3.endpoint":          "",
	"storage.s3.region":            "us-east-1",
	"storage.s3.bucket":            "",
	"storage.s3.prefix":            "chunks",
	"storage.s3.access_key_id":     "",
	"storage.s3.secret_access_key": "",
	"storage.s3.use_path_style":    true,

	"cache.enabled":          true,
	"cache.ttl":              5 * time.Minute,
	"cache.max_size":         10000,
	"cache.cleanup_interval": time.Minute,

	"logging.level":       "info",
	"logging.format":      "json",
	"logging.output":      "stdout",
	"logging.time_format": time.RFC3339,

	"metrics.enabled": true,
	"metrics.port":    9091,
	"metrics.path":    "/metrics",

	"gc.enabled":      false,
	"gc.interval":     time.Hour,
	"gc.grace_period": 24 * time.Hour,
	"gc.batch_size":   1000,
	"gc.dry_run":      false,
}

// Load builds the configuration from defaults, the YAML file at path (or
// config.yaml in the search paths when path is empty) and the environment,
// in increasing precedence. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range searchPaths {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 1<<16, "server.port %d out of range", c.Server.Port)

	db := c.Database
	switch db.Driver {
	case "postgres":
		check(db.Host != "", "database.host is required for postgres")
		check(db.User != "", "database.user is required for postgres")
		check(db.Database != "", "database.database is required for postgres")
	case "sqlite":
		check(db.Path != "", "database.path is required for sqlite")
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want postgres or sqlite", db.Driver))
	}

	st := c.Storage
	switch st.Backend {
	case "database":
	case "filesystem":
		check(st.DataDir != "", "storage.data_dir is required for the filesystem backend")
	case "s3":
		check(st.S3.Bucket != "", "storage.s3.bucket is required for the s3 backend")
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want database, filesystem or s3", st.Backend))
	}
	check(st.ChunkSize > 0, "storage.chunk_size must be positive")
	check(st.MaxUploadSize > 0, "storage.max_upload_size must be positive")

	switch strings.ToLower(st.Compression) {
	case "", "none", "zstd", "lz4":
	default:
		errs = append(errs, fmt.Errorf("storage.compression %q: want none, zstd or lz4", st.Compression))
	}
	if _, err := st.GetEncryptionKey(); err != nil {
		errs = append(errs, err)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	check(!c.GC.Enabled || c.GC.Interval > 0, "gc.interval must be positive when gc is enabled")

	return errors.Join(errs...)
}
