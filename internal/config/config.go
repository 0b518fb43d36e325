package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lyricosd/internal/store"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSocketPath    = "/tmp/lyricosd.sock"
	DefaultStateFile     = "/tmp/lyricosd.line"
	DefaultCheckInterval = 200 * time.Millisecond
	DefaultIdleText      = "♪"
	DefaultLogLevel      = "info"
	DefaultPlayerTimeout = 500 * time.Millisecond
	DefaultCacheTTL      = 10 * time.Minute

	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// TomlConfig mirrors the config file. Durations are strings so an invalid
// value can fall back to its default with a warning.
type TomlConfig struct {
	App struct {
		SocketPath    string `toml:"socket_path"`
		StateFile     string `toml:"state_file"`
		CheckInterval string `toml:"check_interval"`
		LogLevel      string `toml:"log_level"`
		IdleText      string `toml:"idle_text"`
		Lead          string `toml:"lead"`
	} `toml:"app"`

	Store struct {
		Path string `toml:"path"`
	} `toml:"store"`

	Index struct {
		Workers int  `toml:"workers"`
		Strict  bool `toml:"strict"`
	} `toml:"index"`

	Player struct {
		Backend string `toml:"backend"`
		BusName string `toml:"bus_name"`
		Timeout string `toml:"timeout"`
	} `toml:"player"`

	Cache struct {
		Backend string `toml:"backend"`
		TTL     string `toml:"ttl"`
	} `toml:"cache"`

	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
	} `toml:"redis"`

	StatusBar struct {
		Process string `toml:"process"`
		Signal  int    `toml:"signal"`
	} `toml:"statusbar"`
}

type AppConfig struct {
	SocketPath    string
	StateFile     string
	CheckInterval time.Duration
	LogLevel      string
	IdleText      string
	Lead          time.Duration
}

type StoreConfig struct {
	Path string
}

type IndexConfig struct {
	Workers int
	Strict  bool
}

type PlayerConfig struct {
	Backend string
	BusName string
	Timeout time.Duration
}

type CacheConfig struct {
	Backend string
	TTL     time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StatusBarConfig names the bar process to signal. Signal 0 disables it.
type StatusBarConfig struct {
	Process string
	Signal  int
}

type Config struct {
	App       AppConfig
	Store     StoreConfig
	Index     IndexConfig
	Player    PlayerConfig
	Cache     CacheConfig
	Redis     RedisConfig
	StatusBar StatusBarConfig
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		App: AppConfig{
			SocketPath:    DefaultSocketPath,
			StateFile:     DefaultStateFile,
			CheckInterval: DefaultCheckInterval,
			LogLevel:      DefaultLogLevel,
			IdleText:      DefaultIdleText,
		},
		Store: StoreConfig{Path: store.DefaultPath()},
		Index: IndexConfig{Workers: 4},
		Player: PlayerConfig{
			Backend: "mpris",
			Timeout: DefaultPlayerTimeout,
		},
		Cache: CacheConfig{Backend: CacheMemory, TTL: DefaultCacheTTL},
		Redis: RedisConfig{Addr: "localhost:6379"},
		StatusBar: StatusBarConfig{
			Process: "i3blocks",
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/lyricosd/config.toml, falling back to
// ~/.config.
func DefaultPath() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, store.AppName, "config.toml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot get user home directory")
		return "config.toml"
	}

	return filepath.Join(homeDir, ".config", store.AppName, "config.toml")
}

// Load reads the config file at path, or DefaultPath when path is empty. A
// missing file yields the defaults; a file that does not decode is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	var tc TomlConfig
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("path", path).Msg("Config file not found, using defaults")
	} else if _, err := toml.DecodeFile(path, &tc); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	} else {
		log.Debug().Str("path", path).Msg("Loaded config")
	}

	cfg := Default()
	cfg.apply(&tc)
	if env := os.Getenv("LYRICOSD_LOG_LEVEL"); env != "" {
		cfg.App.LogLevel = env
	}
	return cfg, nil
}

func (c *Config) apply(tc *TomlConfig) {
	if tc.App.SocketPath != "" {
		c.App.SocketPath = tc.App.SocketPath
	}
	if tc.App.StateFile != "" {
		c.App.StateFile = tc.App.StateFile
	}
	overrideDuration("app.check_interval", tc.App.CheckInterval, &c.App.CheckInterval)
	if tc.App.LogLevel != "" {
		c.App.LogLevel = tc.App.LogLevel
	}
	if tc.App.IdleText != "" {
		c.App.IdleText = tc.App.IdleText
	}
	overrideDuration("app.lead", tc.App.Lead, &c.App.Lead)

	if tc.Store.Path != "" {
		c.Store.Path = expandHome(tc.Store.Path)
	}

	if tc.Index.Workers > 0 {
		c.Index.Workers = tc.Index.Workers
	}
	c.Index.Strict = tc.Index.Strict

	if tc.Player.Backend != "" {
		c.Player.Backend = tc.Player.Backend
	}
	if tc.Player.BusName != "" {
		c.Player.BusName = tc.Player.BusName
	}
	overrideDuration("player.timeout", tc.Player.Timeout, &c.Player.Timeout)

	switch tc.Cache.Backend {
	case "":
	case CacheMemory, CacheRedis, CacheNone:
		c.Cache.Backend = tc.Cache.Backend
	default:
		log.Warn().Str("backend", tc.Cache.Backend).Msg("Unknown cache backend, using default")
	}
	overrideDuration("cache.ttl", tc.Cache.TTL, &c.Cache.TTL)

	if tc.Redis.Addr != "" {
		c.Redis.Addr = tc.Redis.Addr
	}
	if tc.Redis.Password != "" {
		c.Redis.Password = tc.Redis.Password
	}
	if tc.Redis.DB != 0 {
		c.Redis.DB = tc.Redis.DB
	}

	if tc.StatusBar.Process != "" {
		c.StatusBar.Process = tc.StatusBar.Process
	}
	if tc.StatusBar.Signal > 0 {
		c.StatusBar.Signal = tc.StatusBar.Signal
	}
}

func overrideDuration(key, value string, dst *time.Duration) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid duration, using default")
		return
	}
	*dst = d
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
