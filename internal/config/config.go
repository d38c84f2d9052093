// Package config loads daemon configuration from a YAML file layered with
// environment variables. Environment variables take precedence over the
// file; command-line flags are applied by the caller on top of both.
package config

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/holdclick/internal/emulate"
	"github.com/sweeney/holdclick/internal/property"
)

// ErrUnknownDevice is returned when looking up a device that is not configured.
var ErrUnknownDevice = errors.New("unknown device")

// Defaults.
const (
	DefaultPath        = "/etc/holdclick/config.yaml"
	DefaultBroker      = "tcp://localhost:1883"
	DefaultTopicPrefix = "holdclick"
	DefaultHTTPAddr    = ":8080"
	DefaultHeartbeat   = 15 * time.Minute
	DefaultGPIOChip    = "gpiochip0"
)

// Environment variables.
const (
	EnvConfig    = "HOLDCLICK_CONFIG"
	EnvBroker    = "HOLDCLICK_BROKER"
	EnvHTTPAddr  = "HOLDCLICK_HTTP_ADDR"
	EnvHeartbeat = "HOLDCLICK_HEARTBEAT"
)

// Device option names.
const (
	OptEmulate   = "EmulateThirdButton"
	OptTimeout   = "EmulateThirdButtonTimeout"
	OptButton    = "EmulateThirdButtonButton"
	OptThreshold = "EmulateThirdButtonMoveThreshold"
)

// Input sources.
const (
	SourceGPIO      = "gpio"
	SourceWebsocket = "websocket"
)

// Config is the full daemon configuration.
type Config struct {
	MQTT      MQTTConfig     `yaml:"mqtt"`
	HTTP      HTTPConfig     `yaml:"http"`
	Heartbeat time.Duration  `yaml:"heartbeat"`
	Devices   []DeviceConfig `yaml:"devices"`
}

// MQTTConfig configures the event sink.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// HTTPConfig configures the status and control server. An empty Addr
// disables it. AllowedOrigins lists browser origins, besides the server's
// own host, that may open websocket input.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// DeviceConfig describes one input device.
type DeviceConfig struct {
	Name    string      `yaml:"name"`
	Source  string      `yaml:"source"`
	GPIO    *GPIOConfig `yaml:"gpio,omitempty"`
	Options Options     `yaml:"options,omitempty"`
}

// GPIOConfig selects the line a GPIO button is wired to.
type GPIOConfig struct {
	Chip      string        `yaml:"chip"`
	Line      int           `yaml:"line"`
	ActiveLow bool          `yaml:"active_low"`
	Debounce  time.Duration `yaml:"debounce"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		MQTT:      MQTTConfig{Broker: DefaultBroker, TopicPrefix: DefaultTopicPrefix},
		HTTP:      HTTPConfig{Addr: DefaultHTTPAddr},
		Heartbeat: DefaultHeartbeat,
	}
}

// Path returns the config file path, honouring HOLDCLICK_CONFIG.
func Path() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		log.Printf("config: %s not found, using defaults", path)
	default:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBroker); v != "" {
		c.MQTT.Broker = v
	}
	if v, ok := os.LookupEnv(EnvHTTPAddr); ok {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(EnvHeartbeat); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHeartbeat, err)
		}
		c.Heartbeat = d
	}
	return nil
}

// Validate checks device names, sources and emulation options.
func (c *Config) Validate() error {
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat: negative interval %v", c.Heartbeat)
	}
	seen := make(map[string]bool)
	for i := range c.Devices {
		d := &c.Devices[i]
		if d.Name == "" {
			return fmt.Errorf("device %d: missing name", i)
		}
		if strings.ContainsAny(d.Name, "/+#") {
			return fmt.Errorf("device %q: name must not contain '/', '+' or '#'", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("device %q: duplicate name", d.Name)
		}
		seen[d.Name] = true

		switch d.Source {
		case SourceGPIO:
			if d.GPIO == nil {
				return fmt.Errorf("device %q: gpio source needs a gpio section", d.Name)
			}
			if d.GPIO.Chip == "" {
				d.GPIO.Chip = DefaultGPIOChip
			}
			if d.GPIO.Line < 0 {
				return fmt.Errorf("device %q: negative gpio line %d", d.Name, d.GPIO.Line)
			}
		case SourceWebsocket:
		default:
			return fmt.Errorf("device %q: unknown source %q", d.Name, d.Source)
		}

		if _, err := d.Emulation(); err != nil {
			return fmt.Errorf("device %q: %w", d.Name, err)
		}
	}
	return nil
}

// Device returns the configuration of the named device.
func (c *Config) Device(name string) (DeviceConfig, error) {
	for _, d := range c.Devices {
		if d.Name == name {
			return d, nil
		}
	}
	return DeviceConfig{}, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
}

// Emulation builds the device's emulation settings from its options.
// Timeout and threshold must fit the 32-bit properties they are published as.
func (d DeviceConfig) Emulation() (emulate.Config, error) {
	cfg := emulate.DefaultConfig()
	cfg.Enabled = d.Options.Bool(OptEmulate, cfg.Enabled)

	ms := d.Options.Int(OptTimeout, int(cfg.Timeout/time.Millisecond))
	if ms < 0 || ms > math.MaxInt32 {
		return cfg, fmt.Errorf("%w: %s %d out of range 0..%d", property.ErrBadValue, OptTimeout, ms, math.MaxInt32)
	}
	cfg.Timeout = time.Duration(ms) * time.Millisecond

	b := d.Options.Int(OptButton, int(cfg.Button))
	if b < 1 || b > 255 {
		return cfg, fmt.Errorf("%w: %s %d", property.ErrBadValue, OptButton, b)
	}
	cfg.Button = emulate.Button(b)

	t := d.Options.Int(OptThreshold, cfg.Threshold)
	if t < 0 || t > math.MaxInt32 {
		return cfg, fmt.Errorf("%w: %s %d out of range 0..%d", property.ErrBadValue, OptThreshold, t, math.MaxInt32)
	}
	cfg.Threshold = t
	return cfg, nil
}

// Options holds driver-style string options.
type Options map[string]string

// Bool returns option name as a boolean. Unset or malformed values yield def.
func (o Options) Bool(name string, def bool) bool {
	v, ok := o[name]
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "on", "true", "yes":
		return true
	case "0", "off", "false", "no":
		return false
	}
	log.Printf("config: option %s: invalid boolean %q, using %v", name, v, def)
	return def
}

// Int returns option name as an integer. Unset or malformed values yield def.
func (o Options) Int(name string, def int) int {
	v, ok := o[name]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		log.Printf("config: option %s: invalid integer %q, using %d", name, v, def)
		return def
	}
	return n
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}
