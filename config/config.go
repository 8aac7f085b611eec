// Package config loads server configuration: compiled defaults,
// overridden by an optional YAML file, overridden by environment
// variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob the server reads at startup.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// CacheType selects the storage backend: "redis" or "memory".
	CacheType string `yaml:"cache_type"`

	Redis RedisConfig `yaml:"redis"`

	// CacheTTLSeconds bounds page-state records. 0 disables expiry.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	Queue QueueConfig `yaml:"queue"`

	HeartbeatSeconds int `yaml:"heartbeat_seconds"`

	CORSOrigins []string `yaml:"cors_origins"`

	// PersistentConnections declares whether this process can hold push
	// channels across requests. A long-running server can; set false for
	// isolate-per-request hosts to force queue-only delivery.
	PersistentConnections bool `yaml:"persistent_connections"`

	LogLevel string `yaml:"log_level"`
}

// RedisConfig holds connection settings for the Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// QueueConfig tunes the per-client action backlog.
type QueueConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
	MaxLength  int `yaml:"max_length"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":3000",
		CacheType:  "redis",
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "edge-sync",
		},
		CacheTTLSeconds: 3600,
		Queue: QueueConfig{
			TTLSeconds: 300,
			MaxLength:  100,
		},
		HeartbeatSeconds:      30,
		CORSOrigins:           []string{"*"},
		PersistentConnections: true,
		LogLevel:              "info",
	}
}

// Load builds the effective configuration. path may be empty; when set
// it must name a readable YAML file. Environment variables win over the
// file, which wins over defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("CACHE_TYPE"); v != "" {
		c.CacheType = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v := os.Getenv("CACHE_PREFIX"); v != "" {
		c.Redis.Prefix = v
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil && ttl >= 0 {
			c.CacheTTLSeconds = ttl
		}
	}
	if v := os.Getenv("QUEUE_TTL"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil && ttl >= 0 {
			c.Queue.TTLSeconds = ttl
		}
	}
	if v := os.Getenv("QUEUE_MAX_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Queue.MaxLength = n
		}
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.HeartbeatSeconds = n
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins := make([]string, 0)
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			c.CORSOrigins = origins
		}
	}
	if v := os.Getenv("PERSISTENT_CONNECTIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.PersistentConnections = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.CacheType {
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required when cache_type is redis")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown cache_type %q (want redis or memory)", c.CacheType)
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("cache_ttl_seconds must not be negative")
	}
	if c.Queue.TTLSeconds <= 0 {
		return fmt.Errorf("queue ttl_seconds must be positive")
	}
	if c.Queue.MaxLength <= 0 {
		return fmt.Errorf("queue max_length must be positive")
	}
	if c.HeartbeatSeconds <= 0 {
		return fmt.Errorf("heartbeat_seconds must be positive")
	}
	return nil
}

// CacheTTL returns the page-state TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// QueueTTL returns the queued-action TTL as a duration.
func (c *Config) QueueTTL() time.Duration {
	return time.Duration(c.Queue.TTLSeconds) * time.Second
}

// HeartbeatInterval returns the sweep interval as a duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}
