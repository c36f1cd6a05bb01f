package config

import (
	"errors"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvRedisURL overrides redis.url when set. The variable name is shared
// with other weight-store clients pointing at the same server.
const EnvRedisURL = "RWC_REDIS_URL"

type Config struct {
	Redis struct {
		URL             string `toml:"url"`
		KeyPrefix       string `toml:"key_prefix"`
		HeartbeatPrefix string `toml:"heartbeat_prefix"`
	} `toml:"redis"`

	Strategy struct {
		Name         string `toml:"name"`
		BaseFreq     string `toml:"base_freq"`
		Description  string `toml:"description"`
		Author       string `toml:"author"`
		OutsampleSdt string `toml:"outsample_sdt"`
	} `toml:"strategy"`

	Publish struct {
		BatchSize int  `toml:"batch_size"`
		Heartbeat bool `toml:"heartbeat"`
	} `toml:"publish"`

	Archive struct {
		Driver      string `toml:"driver"` // "sqlite" or "postgres", empty disables
		SqlitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
	} `toml:"archive"`

	Serve struct {
		Addr string `toml:"addr"`
	} `toml:"serve"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if url := os.Getenv(EnvRedisURL); url != "" {
		cfg.Redis.URL = url
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "Weights"
	}
	if cfg.Redis.HeartbeatPrefix == "" {
		cfg.Redis.HeartbeatPrefix = "heartbeat"
	}
	if cfg.Publish.BatchSize <= 0 {
		cfg.Publish.BatchSize = 10000
	}
	if cfg.Serve.Addr == "" {
		cfg.Serve.Addr = ":8399"
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Redis.URL) == "" {
		return errors.New("redis.url is empty and " + EnvRedisURL + " is not set")
	}
	cfg.Strategy.Name = strings.TrimSpace(cfg.Strategy.Name)
	if cfg.Strategy.Name == "" {
		return errors.New("strategy.name is empty")
	}
	if strings.ContainsRune(cfg.Strategy.Name, ':') {
		return errors.New("strategy.name must not contain ':'")
	}
	switch cfg.Archive.Driver {
	case "", "sqlite", "postgres":
	default:
		return errors.New("archive.driver must be sqlite, postgres or empty")
	}
	if cfg.Archive.Driver == "sqlite" && strings.TrimSpace(cfg.Archive.SqlitePath) == "" {
		return errors.New("archive.sqlite_path empty but driver is sqlite")
	}
	if cfg.Archive.Driver == "postgres" && strings.TrimSpace(cfg.Archive.PostgresDSN) == "" {
		return errors.New("archive.postgres_dsn empty but driver is postgres")
	}
	return nil
}
