package config

import (
	"fmt"
	"time"
)

// ClassConfig sizes one priority class.
type ClassConfig struct {
	QueueCapacity int `yaml:"queue_capacity"`
	Permits       int `yaml:"permits"`
}

// DispatchConfig holds the priority dispatcher configuration.
type DispatchConfig struct {
	High   ClassConfig `yaml:"high"`
	Normal ClassConfig `yaml:"normal"`
	Low    ClassConfig `yaml:"low"`

	// FailureThreshold is the number of consecutive source failures after
	// which ingestion is reported degraded.
	FailureThreshold int           `yaml:"failure_threshold"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	// DrainTimeout bounds the wait for in-flight handlers on shutdown.
	// Zero means do not wait.
	DrainTimeout  time.Duration `yaml:"drain_timeout"`
	SlowBlock     time.Duration `yaml:"slow_block"`
	CriticalBlock time.Duration `yaml:"critical_block"`
}

// DefaultDispatchConfig returns default dispatcher configuration
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		High:             ClassConfig{QueueCapacity: 256, Permits: 32},
		Normal:           ClassConfig{QueueCapacity: 1024, Permits: 16},
		Low:              ClassConfig{QueueCapacity: 2048, Permits: 4},
		FailureThreshold: 5,
		RetryDelay:       time.Second,
		DrainTimeout:     10 * time.Second,
		SlowBlock:        100 * time.Millisecond,
		CriticalBlock:    time.Second,
	}
}

func (c *DispatchConfig) ApplyDefaults() {
	defaults := DefaultDispatchConfig()
	fillClass(&c.High, defaults.High)
	fillClass(&c.Normal, defaults.Normal)
	fillClass(&c.Low, defaults.Low)
	if c.FailureThreshold == 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaults.RetryDelay
	}
	if c.SlowBlock == 0 {
		c.SlowBlock = defaults.SlowBlock
	}
	if c.CriticalBlock == 0 {
		c.CriticalBlock = defaults.CriticalBlock
	}
}

func fillClass(c *ClassConfig, d ClassConfig) {
	if c.QueueCapacity == 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.Permits == 0 {
		c.Permits = d.Permits
	}
}

func (c *DispatchConfig) ApplyEnvOverrides() {
	envInt("WARDEN_DISPATCH_HIGH_PERMITS", &c.High.Permits)
	envInt("WARDEN_DISPATCH_NORMAL_PERMITS", &c.Normal.Permits)
	envInt("WARDEN_DISPATCH_LOW_PERMITS", &c.Low.Permits)
	envDuration("WARDEN_DISPATCH_DRAIN_TIMEOUT", &c.DrainTimeout)
}

func (c *DispatchConfig) ResolvePaths(_ string) {}

func (c *DispatchConfig) Validate() error {
	for name, class := range map[string]ClassConfig{"high": c.High, "normal": c.Normal, "low": c.Low} {
		if class.QueueCapacity < 1 {
			return fmt.Errorf("dispatch.%s.queue_capacity must be at least 1", name)
		}
		if class.Permits < 1 {
			return fmt.Errorf("dispatch.%s.permits must be at least 1", name)
		}
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("dispatch.failure_threshold must be at least 1")
	}
	if c.RetryDelay < 0 || c.DrainTimeout < 0 {
		return fmt.Errorf("dispatch durations cannot be negative")
	}
	if c.CriticalBlock < c.SlowBlock {
		return fmt.Errorf("dispatch.critical_block must not be below slow_block")
	}
	return nil
}
