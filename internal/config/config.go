package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultDir is the directory searched for config.yml and config.local.yml.
const DefaultDir = "config"

// Config holds the application configuration
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Redis    RedisConfig    `yaml:"redis"`
	Watcher  WatcherConfig  `yaml:"watcher"`
	Admin    AdminConfig    `yaml:"admin"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging:  DefaultLoggingConfig(),
		Dispatch: DefaultDispatchConfig(),
		Gateway:  DefaultGatewayConfig(),
		Mongo:    DefaultMongoConfig(),
		Redis:    DefaultRedisConfig(),
		Watcher:  DefaultWatcherConfig(),
		Admin:    DefaultAdminConfig(),
	}
}

// Load loads configuration from configDir and environment variables.
// Order: defaults -> config.yml -> config.local.yml -> ApplyDefaults ->
// ApplyEnvOverrides -> ResolvePaths -> Validate
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultDir
	}

	// Defaults first so YAML can override them, including bool fields.
	cfg := Default()

	loadFile(filepath.Join(configDir, "config.yml"), cfg)
	loadFile(filepath.Join(configDir, "config.local.yml"), cfg)

	if err := ApplySections(configDir, cfg.Sections()...); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// Sections returns every section in lifecycle order.
func (c *Config) Sections() []Section {
	return []Section{
		&c.Logging,
		&c.Dispatch,
		&c.Gateway,
		&c.Mongo,
		&c.Redis,
		&c.Watcher,
		&c.Admin,
	}
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func loadFile(filename string, cfg *Config) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return // File doesn't exist, skip
		}
		log.Printf("Warning: Error reading %s: %v", filename, err)
		return
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("Warning: Error parsing %s: %v", filename, err)
	}
}
