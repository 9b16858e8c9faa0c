package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the relay runtime parameters.
type Config struct {
	HTTPAddress         string          `mapstructure:"http_address"`
	StaticDir           string          `mapstructure:"static_dir"`
	ShutdownGracePeriod time.Duration   `mapstructure:"shutdown_grace_period"`
	Log                 LogConfig       `mapstructure:"log"`
	Store               StoreConfig     `mapstructure:"store"`
	WS                  WebSocketConfig `mapstructure:"ws"`
	Metrics             MetricsConfig   `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects the persistence backend: memory, sqlite or mongo.
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	SQLitePath    string `mapstructure:"sqlite_path"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

type WebSocketConfig struct {
	SendBuffer    int   `mapstructure:"send_buffer"`
	MaxFrameBytes int64 `mapstructure:"max_frame_bytes"`
	// AllowedOrigins empty means any origin is accepted.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

const (
	defaultHTTPAddress         = ":8080"
	defaultStaticDir           = "./static"
	defaultShutdownGracePeriod = 5 * time.Second
	defaultLogLevel            = "info"
	defaultLogFormat           = "console"
	defaultStoreDriver         = DriverMemory
	defaultSQLitePath          = "data/yarelay.db"
	defaultMongoURI            = "mongodb://localhost:27017"
	defaultMongoDatabase       = "yarelay"
	defaultSendBuffer          = 64
	defaultMaxFrameBytes       = 64 * 1024
)

// Load reads configuration from the provided file path (if any) and the
// environment. Environment variables are prefixed with YARELAY_ and override
// file values, e.g. YARELAY_STORE_DRIVER=sqlite.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("YARELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_address", defaultHTTPAddress)
	v.SetDefault("static_dir", defaultStaticDir)
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.format", defaultLogFormat)
	v.SetDefault("store.driver", defaultStoreDriver)
	v.SetDefault("store.sqlite_path", defaultSQLitePath)
	v.SetDefault("store.mongo_uri", defaultMongoURI)
	v.SetDefault("store.mongo_database", defaultMongoDatabase)
	v.SetDefault("ws.send_buffer", defaultSendBuffer)
	v.SetDefault("ws.max_frame_bytes", defaultMaxFrameBytes)
	v.SetDefault("ws.allowed_origins", []string{})
	v.SetDefault("metrics.enabled", true)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	dur, err := time.ParseDuration(v.GetString("shutdown_grace_period"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid shutdown_grace_period: %w", err)
	}
	cfg.ShutdownGracePeriod = dur

	cfg.WS.AllowedOrigins = trimList(cfg.WS.AllowedOrigins)

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http_address is required")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return fmt.Errorf("store.mongo_uri and store.mongo_database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.WS.SendBuffer <= 0 {
		return fmt.Errorf("ws.send_buffer must be positive")
	}
	if c.WS.MaxFrameBytes <= 0 {
		return fmt.Errorf("ws.max_frame_bytes must be positive")
	}
	return nil
}

// trimList cleans origins given as a comma separated environment value.
func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, part := range in {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
