package config

import (
	"fmt"
	"path/filepath"
	"slices"
)

// LoggingConfig configures the process logger: a console stream and a pair
// of rotating files (warden.log and warden-errors.log).
type LoggingConfig struct {
	Level   string        `yaml:"level"`
	Format  string        `yaml:"format"`
	Console LogOutput     `yaml:"console"`
	File    FileLogOutput `yaml:"file"`
}

// LogOutput is one log destination. Empty Level and Format inherit the
// top-level values.
type LogOutput struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
}

// FileLogOutput is the rotating file destination.
type FileLogOutput struct {
	LogOutput `yaml:",inline"`

	// Dir is relative to the parent of the config directory unless absolute.
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:   "info",
		Format:  "text",
		Console: LogOutput{Enabled: true},
		File: FileLogOutput{
			LogOutput:  LogOutput{Enabled: true},
			Dir:        "logs",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

func (c *LoggingConfig) ApplyDefaults() {
	d := DefaultLoggingConfig()
	if c.Level == "" {
		c.Level = d.Level
	}
	if c.Format == "" {
		c.Format = d.Format
	}
	c.Console.inherit(c.Level, c.Format)
	c.File.inherit(c.Level, c.Format)

	if c.File.Dir == "" {
		c.File.Dir = d.File.Dir
	}
	if c.File.MaxSizeMB == 0 {
		c.File.MaxSizeMB = d.File.MaxSizeMB
	}
	if c.File.MaxBackups == 0 {
		c.File.MaxBackups = d.File.MaxBackups
	}
	if c.File.MaxAgeDays == 0 {
		c.File.MaxAgeDays = d.File.MaxAgeDays
	}
}

func (o *LogOutput) inherit(level, format string) {
	if o.Level == "" {
		o.Level = level
	}
	if o.Format == "" {
		o.Format = format
	}
}

func (c *LoggingConfig) ApplyEnvOverrides() {
	envString("WARDEN_LOG_LEVEL", &c.Level)
	envString("WARDEN_LOG_FORMAT", &c.Format)
	envString("WARDEN_LOG_DIR", &c.File.Dir)
	envBool("WARDEN_LOG_FILE", &c.File.Enabled)
}

func (c *LoggingConfig) ResolvePaths(configDir string) {
	if c.File.Dir != "" && !filepath.IsAbs(c.File.Dir) {
		c.File.Dir = filepath.Join(filepath.Dir(configDir), c.File.Dir)
	}
}

func (c *LoggingConfig) Validate() error {
	if err := checkLogOutput("logging", c.Level, c.Format); err != nil {
		return err
	}
	if c.Console.Enabled {
		if err := checkLogOutput("logging.console", c.Console.Level, c.Console.Format); err != nil {
			return err
		}
	}
	if c.File.Enabled {
		if err := checkLogOutput("logging.file", c.File.Level, c.File.Format); err != nil {
			return err
		}
		if c.File.Dir == "" {
			return fmt.Errorf("logging.file.dir is required when file logging is enabled")
		}
		if c.File.MaxSizeMB < 0 || c.File.MaxBackups < 0 || c.File.MaxAgeDays < 0 {
			return fmt.Errorf("logging.file rotation limits cannot be negative")
		}
	}
	return nil
}

func checkLogOutput(section, level, format string) error {
	if level != "" && !slices.Contains(logLevels, level) {
		return fmt.Errorf("invalid %s level: %s (must be one of %v)", section, level, logLevels)
	}
	if format != "" && !slices.Contains(logFormats, format) {
		return fmt.Errorf("invalid %s format: %s (must be one of %v)", section, format, logFormats)
	}
	return nil
}
