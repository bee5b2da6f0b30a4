package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backends accepted by store.backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`
	Store struct {
		Backend string `yaml:"backend"`
		Timeout string `yaml:"timeout"`
	} `yaml:"store"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
}

// Load reads YAML config from path. A missing file yields defaults so the service can run
// from environment variables alone.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	setIf(&c.Server.Port, "PORT")
	setIf(&c.Store.Backend, "STORE_BACKEND")
	setIf(&c.Postgres.URL, "DATABASE_URL")
	setIf(&c.SQLite.Path, "SQLITE_PATH")
	setIf(&c.Redis.Addr, "REDIS_ADDR")
	setIf(&c.Redis.Password, "REDIS_PASSWORD")
	setIf(&c.Log.Mode, "LOG_MODE")
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}
	return nil
}

func setIf(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "3001"
	}
	if c.Store.Backend == "" {
		switch {
		case c.Postgres.URL != "":
			c.Store.Backend = BackendPostgres
		case c.Redis.Addr != "":
			c.Store.Backend = BackendRedis
		case c.SQLite.Path != "":
			c.Store.Backend = BackendSQLite
		default:
			c.Store.Backend = BackendMemory
		}
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "perf"
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}
}

// Validate checks that the selected backend has what it needs.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("store.backend %q requires postgres.url", c.Store.Backend)
		}
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("store.backend %q requires sqlite.path", c.Store.Backend)
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("store.backend %q requires redis.addr", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
