// Package config loads idrecon settings from defaults, an optional YAML file,
// .env files and IDRECON_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "IDRECON"

// Supported store drivers.
const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full application configuration.
type Config struct {
	HTTP     HTTPConfig
	Store    StoreConfig
	Log      LogConfig
	Snapshot SnapshotConfig

	// ConfigFile is the config file actually read, if any.
	ConfigFile string
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	Metrics         bool
}

// StoreConfig selects and configures the contact store.
type StoreConfig struct {
	Driver     string
	DSN        string
	MaxRetries int
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// SnapshotConfig configures snapshot export targets.
type SnapshotConfig struct {
	Dir          string
	S3Bucket     string
	S3Prefix     string
	S3Region     string
	S3Endpoint   string
	S3PathStyle  bool
	S3AccessKey  string
	S3SecretKey  string
	S3SessionKey string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.metrics", true)

	v.SetDefault("store.driver", DriverSQLite3)
	v.SetDefault("store.dsn", "contacts.db")
	v.SetDefault("store.max_retries", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")

	v.SetDefault("snapshot.dir", "")
	v.SetDefault("snapshot.s3_bucket", "")
	v.SetDefault("snapshot.s3_prefix", "")
	v.SetDefault("snapshot.s3_region", "us-east-1")
	v.SetDefault("snapshot.s3_endpoint", "")
	v.SetDefault("snapshot.s3_path_style", false)
	v.SetDefault("snapshot.s3_access_key", "")
	v.SetDefault("snapshot.s3_secret_key", "")
	v.SetDefault("snapshot.s3_session_key", "")
}

// Load reads configuration. When configFile is empty, idrecon.yaml in the
// working directory is used if present.
func Load(configFile string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("idrecon")
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:            v.GetString("http.addr"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			Metrics:         v.GetBool("http.metrics"),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(v.GetString("store.driver")),
			DSN:        v.GetString("store.dsn"),
			MaxRetries: v.GetInt("store.max_retries"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Snapshot: SnapshotConfig{
			Dir:          v.GetString("snapshot.dir"),
			S3Bucket:     v.GetString("snapshot.s3_bucket"),
			S3Prefix:     v.GetString("snapshot.s3_prefix"),
			S3Region:     v.GetString("snapshot.s3_region"),
			S3Endpoint:   v.GetString("snapshot.s3_endpoint"),
			S3PathStyle:  v.GetBool("snapshot.s3_path_style"),
			S3AccessKey:  v.GetString("snapshot.s3_access_key"),
			S3SecretKey:  v.GetString("snapshot.s3_secret_key"),
			S3SessionKey: v.GetString("snapshot.s3_session_key"),
		},
		ConfigFile: v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for impossible values.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite3, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported store driver %q (want %s, %s or %s)",
			c.Store.Driver, DriverSQLite3, DriverSQLite, DriverPostgres)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store dsn must not be empty")
	}
	if c.Store.MaxRetries < 1 {
		return fmt.Errorf("store max_retries must be at least 1, got %d", c.Store.MaxRetries)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http addr must not be empty")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("http shutdown_timeout must be positive, got %s", c.HTTP.ShutdownTimeout)
	}
	return nil
}

// loadEnvFiles loads .env then .env.local. Variables already set in the
// process environment are never overridden.
func loadEnvFiles() {
	for _, envFile := range []string{".env", ".env.local"} {
		_ = godotenv.Load(envFile)
	}
}
