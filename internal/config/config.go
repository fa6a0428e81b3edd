package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Store       StoreConfig       `json:"store"`
	Persistence PersistenceConfig `json:"persistence"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Index       IndexConfig       `json:"index"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

// StoreConfig selects the store variant. Variant is one of "single",
// "concurrent" or "sharded"; Shards only applies to the sharded variant.
type StoreConfig struct {
	Variant string `json:"variant"`
	Shards  int    `json:"shards"`
}

// PersistenceConfig selects the snapshot backend. Backend is one of
// "file", "sqlite", "postgres", "redis" or "none".
type PersistenceConfig struct {
	Backend  string         `json:"backend"`
	File     FileConfig     `json:"file"`
	SQLite   SQLiteConfig   `json:"sqlite"`
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type FileConfig struct {
	Path string `json:"path"`
}

type SQLiteConfig struct {
	Path string `json:"path"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// MaintenanceConfig controls the background retention sweep. An Interval
// of 0 disables the sweep. Threshold is a pointer so an explicit 0 (sweep
// that evicts nothing) is distinguishable from unset; Load fills in the
// default, so it is never nil afterwards.
type MaintenanceConfig struct {
	IntervalSeconds int      `json:"interval_seconds"`
	Threshold       *float64 `json:"threshold"`
}

// IndexConfig selects an optional similarity index. Backend is one of
// "qdrant", "chromem" or "none". Dimension must match the vectors fed to
// the store for the index path to engage.
type IndexConfig struct {
	Backend    string       `json:"backend"`
	Dimension  int          `json:"dimension"`
	Collection string       `json:"collection"`
	Qdrant     QdrantConfig `json:"qdrant"`
}

type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Store.Variant == "" {
		c.Store.Variant = "single"
	}
	if c.Store.Shards == 0 {
		c.Store.Shards = 16
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "none"
	}
	if c.Maintenance.Threshold == nil {
		threshold := 0.05
		c.Maintenance.Threshold = &threshold
	}
	if c.Index.Backend == "" {
		c.Index.Backend = "none"
	}
}
