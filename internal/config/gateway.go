package config

import (
	"fmt"
	"time"
)

// GatewayConfig selects the upstream event source.
type GatewayConfig struct {
	Transport    string                 `yaml:"transport"` // nats, websocket, memory
	NATS         GatewayNATSConfig      `yaml:"nats"`
	WebSocket    GatewayWebSocketConfig `yaml:"websocket"`
	MemoryBuffer int                    `yaml:"memory_buffer"`
}

// GatewayNATSConfig configures the JetStream relay consumer.
type GatewayNATSConfig struct {
	URL      string `yaml:"url"`
	Stream   string `yaml:"stream"`
	Consumer string `yaml:"consumer"`
	Buffer   int    `yaml:"buffer"`
}

// GatewayWebSocketConfig configures a direct gateway connection.
type GatewayWebSocketConfig struct {
	URL              string        `yaml:"url"`
	Token            string        `yaml:"token"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// DefaultGatewayConfig returns default gateway configuration
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Transport: "nats",
		NATS: GatewayNATSConfig{
			URL:      "nats://localhost:4222",
			Stream:   "GATEWAY",
			Consumer: "warden",
			Buffer:   64,
		},
		WebSocket: GatewayWebSocketConfig{
			HandshakeTimeout: 10 * time.Second,
		},
		MemoryBuffer: 64,
	}
}

func (c *GatewayConfig) ApplyDefaults() {
	d := DefaultGatewayConfig()
	if c.Transport == "" {
		c.Transport = d.Transport
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = d.NATS.Stream
	}
	if c.NATS.Consumer == "" {
		c.NATS.Consumer = d.NATS.Consumer
	}
	if c.NATS.Buffer == 0 {
		c.NATS.Buffer = d.NATS.Buffer
	}
	if c.WebSocket.HandshakeTimeout == 0 {
		c.WebSocket.HandshakeTimeout = d.WebSocket.HandshakeTimeout
	}
	if c.MemoryBuffer == 0 {
		c.MemoryBuffer = d.MemoryBuffer
	}
}

func (c *GatewayConfig) ApplyEnvOverrides() {
	envString("WARDEN_GATEWAY_TRANSPORT", &c.Transport)
	envString("WARDEN_NATS_URL", &c.NATS.URL)
	envString("WARDEN_GATEWAY_URL", &c.WebSocket.URL)
	envString("WARDEN_GATEWAY_TOKEN", &c.WebSocket.Token)
}

func (c *GatewayConfig) ResolvePaths(_ string) {}

func (c *GatewayConfig) Validate() error {
	switch c.Transport {
	case "nats":
		if c.NATS.URL == "" {
			return fmt.Errorf("gateway.nats.url is required for the nats transport")
		}
	case "websocket":
		if c.WebSocket.URL == "" {
			return fmt.Errorf("gateway.websocket.url is required for the websocket transport")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid gateway transport: %s (must be nats, websocket, or memory)", c.Transport)
	}
	return nil
}
