// Package config handles Parley configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/parley/config.yaml, /etc/parley/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "parley", "config.yaml"))
	}

	paths = append(paths, "/etc/parley/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Duration wraps time.Duration so YAML values can be written as "25s" or "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Config holds all Parley configuration.
type Config struct {
	Listen   ListenConfig  `yaml:"listen"`
	Chat     ChatConfig    `yaml:"chat"`
	Session  SessionConfig `yaml:"session"`
	Poll     PollConfig    `yaml:"poll"`
	Noise    NoiseConfig   `yaml:"noise"`
	LogLevel string        `yaml:"log_level"`

	// LogFormat selects the slog handler: "text" (default) or "json".
	LogFormat string `yaml:"log_format"`
}

// ListenConfig defines the HTTP listener for the REST façade, the
// streamable-HTTP MCP endpoint, and the hosted chat widget.
type ListenConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`

	// PublicURL is the externally reachable base URL reported to callers
	// of the live-agent surface (widget links, websocket origin). Falls
	// back to http://<address>:<port> when empty.
	PublicURL string `yaml:"public_url"`
}

// ChatConfig defines the remote live-chat service connection.
type ChatConfig struct {
	// Endpoint is the base URL of the remote messaging service.
	Endpoint string `yaml:"endpoint"`

	// OrgID identifies the tenant on the remote service.
	OrgID string `yaml:"org_id"`

	// DeploymentID is the embedded-service deployment developer name.
	DeploymentID string `yaml:"deployment_id"`

	// Platform is reported during token issuance. When "Web" (the
	// default), no device identifier is ever transmitted; the remote
	// service rejects Web token requests that carry one.
	Platform string `yaml:"platform"`

	// DeviceID is an optional caller-device identifier, transmitted only
	// for non-Web platforms.
	DeviceID string `yaml:"device_id"`
}

// SessionConfig defines the session store backing and lifetime.
type SessionConfig struct {
	// Store selects the backing: "memory" (default) or "sqlite".
	Store string `yaml:"store"`

	// DBPath is the sqlite database path (store: sqlite only).
	DBPath string `yaml:"db_path"`

	// TTL is how long an untouched session survives before eviction.
	TTL Duration `yaml:"ttl"`
}

// PollConfig tunes the response-readiness engine.
type PollConfig struct {
	// Deadline is the wall-clock bound on one polling listing call.
	Deadline Duration `yaml:"deadline"`

	// Interval is the fixed delay between listing attempts.
	Interval Duration `yaml:"interval"`
}

// NoiseConfig overrides the built-in noise-detection tables. Empty
// slices keep the defaults; see the classify package for the built-ins.
type NoiseConfig struct {
	Phrases          []string `yaml:"phrases"`
	SenderSubstrings []string `yaml:"sender_substrings"`
	MessageReasons   []string `yaml:"message_reasons"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file (e.g. ${PARLEY_ORG_ID}) are expanded before parsing so
// secrets can stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all tunables at their defaults.
// Chat connection fields have no defaults and must be supplied.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Address: "127.0.0.1", Port: 8787},
		Chat:   ChatConfig{Platform: "Web"},
		Session: SessionConfig{
			Store: "memory",
			TTL:   Duration{24 * time.Hour},
		},
		Poll: PollConfig{
			Deadline: Duration{25 * time.Second},
			Interval: Duration{500 * time.Millisecond},
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate checks that required fields are present and enumerated
// fields hold known values. A failure here is fatal at startup.
func (c *Config) Validate() error {
	if c.Chat.Endpoint == "" {
		return fmt.Errorf("chat.endpoint is required")
	}
	if c.Chat.OrgID == "" {
		return fmt.Errorf("chat.org_id is required")
	}
	if c.Chat.DeploymentID == "" {
		return fmt.Errorf("chat.deployment_id is required")
	}
	switch c.Session.Store {
	case "memory":
	case "sqlite":
		if c.Session.DBPath == "" {
			return fmt.Errorf("session.db_path is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown session.store %q (valid: memory, sqlite)", c.Session.Store)
	}
	if c.Poll.Deadline.Duration <= 0 {
		return fmt.Errorf("poll.deadline must be positive")
	}
	if c.Poll.Interval.Duration <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	return nil
}

// BaseURL returns the externally visible base URL for the listener.
func (l ListenConfig) BaseURL() string {
	if l.PublicURL != "" {
		return l.PublicURL
	}
	return fmt.Sprintf("http://%s:%d", l.Address, l.Port)
}
