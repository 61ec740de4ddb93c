package config

import (
	"fmt"
	"strings"
	"time"
)

// MongoConfig holds the document store connection and watched collections.
type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collections    []string      `yaml:"collections"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// EnablePreImages turns on changeStreamPreAndPostImages for the watched
	// collections at startup. Without it updates evict only new-image keys.
	EnablePreImages bool `yaml:"enable_pre_images"`
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:             "mongodb://localhost:27017",
		Database:        "warden",
		Collections:     []string{"guild_settings", "channels", "role_rules", "quarantine", "members"},
		ConnectTimeout:  10 * time.Second,
		EnablePreImages: true,
	}
}

func (c *MongoConfig) ApplyDefaults() {
	d := DefaultMongoConfig()
	if c.URI == "" {
		c.URI = d.URI
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
}

func (c *MongoConfig) ApplyEnvOverrides() {
	envString("WARDEN_MONGO_URI", &c.URI)
	envString("WARDEN_MONGO_DATABASE", &c.Database)
	envBool("WARDEN_MONGO_ENABLE_PRE_IMAGES", &c.EnablePreImages)
	var colls string
	envString("WARDEN_MONGO_COLLECTIONS", &colls)
	if colls != "" {
		c.Collections = nil
		for _, coll := range strings.Split(colls, ",") {
			if coll = strings.TrimSpace(coll); coll != "" {
				c.Collections = append(c.Collections, coll)
			}
		}
	}
}

func (c *MongoConfig) ResolvePaths(_ string) {}

func (c *MongoConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if c.Database == "" {
		return fmt.Errorf("mongo.database is required")
	}
	seen := make(map[string]bool, len(c.Collections))
	for _, coll := range c.Collections {
		if coll == "" {
			return fmt.Errorf("mongo.collections contains an empty name")
		}
		if seen[coll] {
			return fmt.Errorf("mongo.collections lists %s twice", coll)
		}
		seen[coll] = true
	}
	return nil
}

// RedisConfig holds the shared cache connection.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
	// EntityTTL bounds how long a derived entry may be served stale.
	EntityTTL time.Duration `yaml:"entity_ttl"`
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		PoolSize:  10,
		EntityTTL: 10 * time.Minute,
	}
}

func (c *RedisConfig) ApplyDefaults() {
	d := DefaultRedisConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.PoolSize == 0 {
		c.PoolSize = d.PoolSize
	}
	if c.EntityTTL == 0 {
		c.EntityTTL = d.EntityTTL
	}
}

func (c *RedisConfig) ApplyEnvOverrides() {
	envString("WARDEN_REDIS_ADDR", &c.Addr)
	envString("WARDEN_REDIS_PASSWORD", &c.Password)
	envInt("WARDEN_REDIS_DB", &c.DB)
}

func (c *RedisConfig) ResolvePaths(_ string) {}

func (c *RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.DB < 0 {
		return fmt.Errorf("redis.db cannot be negative")
	}
	if c.EntityTTL < 0 {
		return fmt.Errorf("redis.entity_ttl cannot be negative")
	}
	return nil
}

// WatcherConfig holds change-stream watcher settings.
type WatcherConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	// Rules replaces the built-in key templates per collection when set.
	Rules map[string][]string `yaml:"rules"`
}

// DefaultWatcherConfig returns default watcher configuration
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     60 * time.Second,
	}
}

func (c *WatcherConfig) ApplyDefaults() {
	d := DefaultWatcherConfig()
	if c.InitialBackoff == 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = d.MaxBackoff
	}
}

func (c *WatcherConfig) ApplyEnvOverrides() {}

func (c *WatcherConfig) ResolvePaths(_ string) {}

func (c *WatcherConfig) Validate() error {
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("watcher.initial_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("watcher.max_backoff must not be below initial_backoff")
	}
	return nil
}

// AdminConfig holds the health and metrics listener.
type AdminConfig struct {
	// Listen is the address for /healthz and /metrics. Empty disables it.
	Listen string `yaml:"listen"`
}

// DefaultAdminConfig returns default admin configuration
func DefaultAdminConfig() AdminConfig {
	return AdminConfig{Listen: ":9090"}
}

func (c *AdminConfig) ApplyDefaults() {}

func (c *AdminConfig) ApplyEnvOverrides() {
	envString("WARDEN_ADMIN_LISTEN", &c.Listen)
}

func (c *AdminConfig) ResolvePaths(_ string) {}

func (c *AdminConfig) Validate() error {
	return nil
}
