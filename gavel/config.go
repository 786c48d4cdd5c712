package gavel

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
	DB     DBConfig     `toml:"db"`
	Redis  RedisConfig  `toml:"redis"`
	NATS   NATSConfig   `toml:"nats"`
	Engine EngineConfig `toml:"engine"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type ServerConfig struct {
	// HTTPAddr serves the REST API, WSAddr the event stream listener.
	HTTPAddr string `toml:"http_addr"`
	WSAddr   string `toml:"ws_addr"`
}

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

type RedisConfig struct {
	// Addr empty disables the hot projection cache.
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type NATSConfig struct {
	// URL empty disables the durable event stream.
	URL    string `toml:"url"`
	Stream string `toml:"stream"`
}

// EngineConfig carries the bidding rules that the observed system left
// as deployment choices: the anti-snipe window and extension, the
// per-lot lock acquire budget and the lifecycle sweep cadence.
type EngineConfig struct {
	SoftCloseWindowSecs    int   `toml:"soft_close_window_secs"`
	SoftCloseExtensionSecs int   `toml:"soft_close_extension_secs"`
	LockTimeoutMillis      int   `toml:"lock_timeout_millis"`
	SweepIntervalSecs      int   `toml:"sweep_interval_secs"`
	DefaultIncrement       int64 `toml:"default_increment"`
	// IncrementTiers is the house ladder applied to lots without a
	// flat step, sorted by ascending threshold. Empty means every such
	// lot steps by DefaultIncrement.
	IncrementTiers []IncrementTierConfig `toml:"increment_tiers"`
}

type IncrementTierConfig struct {
	Threshold int64 `toml:"threshold"`
	Step      int64 `toml:"step"`
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.WSAddr == "" {
		c.Server.WSAddr = ":8081"
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "LOT_EVENTS"
	}
	if c.Engine.SoftCloseWindowSecs <= 0 {
		c.Engine.SoftCloseWindowSecs = 30
	}
	if c.Engine.SoftCloseExtensionSecs <= 0 {
		c.Engine.SoftCloseExtensionSecs = 60
	}
	if c.Engine.LockTimeoutMillis <= 0 {
		c.Engine.LockTimeoutMillis = 2000
	}
	if c.Engine.SweepIntervalSecs <= 0 {
		c.Engine.SweepIntervalSecs = 5
	}
	if c.Engine.DefaultIncrement <= 0 {
		c.Engine.DefaultIncrement = 1000
	}
}

func (e EngineConfig) SoftCloseWindow() time.Duration {
	return time.Duration(e.SoftCloseWindowSecs) * time.Second
}

func (e EngineConfig) SoftCloseExtension() time.Duration {
	return time.Duration(e.SoftCloseExtensionSecs) * time.Second
}

func (e EngineConfig) LockTimeout() time.Duration {
	return time.Duration(e.LockTimeoutMillis) * time.Millisecond
}

func (e EngineConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalSecs) * time.Second
}
