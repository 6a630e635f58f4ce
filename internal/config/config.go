package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.bico/config.toml.
type Config struct {
	DefaultProfile string    `toml:"default_profile"`
	Server         Server    `toml:"server"`
	Chat           Chat      `toml:"chat"`
	Reconnect      Reconnect `toml:"reconnect"`
	Toast          Toast     `toml:"toast"`
}

// Server holds the marketplace endpoints.
type Server struct {
	// ChannelURL is the websocket push-channel endpoint, e.g. wss://host/channel.
	ChannelURL string `toml:"channel_url"`
	// APIURL is the REST base used for the fallback message pull.
	APIURL string `toml:"api_url"`
	// UserID is the marketplace account id messages are sent as.
	UserID string `toml:"user_id"`
	// Scope is the conversation joined right after connecting. Empty
	// skips the initial join; conversations can still be joined later
	// through ctl.join commands.
	Scope string `toml:"scope"`
}

// Chat tunes conversation hydration and send acknowledgment.
type Chat struct {
	FallbackTimeoutMS int `toml:"fallback_timeout_ms"`
	AckTimeoutMS      int `toml:"ack_timeout_ms"`
	EchoMatchWindowMS int `toml:"echo_match_window_ms"`
}

// Reconnect tunes the push-channel retry policy.
type Reconnect struct {
	MaxAttempts int `toml:"max_attempts"`
}

// Toast tunes the ephemeral notification queue.
type Toast struct {
	Capacity   int `toml:"capacity"`
	DurationMS int `toml:"duration_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Chat: Chat{
			FallbackTimeoutMS: 800,
			AckTimeoutMS:      5000,
			EchoMatchWindowMS: 10000,
		},
		Reconnect: Reconnect{MaxAttempts: 8},
		Toast:     Toast{Capacity: 3, DurationMS: 4000},
	}
}

// FallbackTimeout returns the hydration fallback timeout as a duration.
func (c *Config) FallbackTimeout() time.Duration {
	return time.Duration(c.Chat.FallbackTimeoutMS) * time.Millisecond
}

// AckTimeout returns the send acknowledgment timeout as a duration.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Chat.AckTimeoutMS) * time.Millisecond
}

// EchoMatchWindow returns the optimistic echo matching window as a duration.
func (c *Config) EchoMatchWindow() time.Duration {
	return time.Duration(c.Chat.EchoMatchWindowMS) * time.Millisecond
}

// ToastDuration returns the toast visible lifetime as a duration.
func (c *Config) ToastDuration() time.Duration {
	return time.Duration(c.Toast.DurationMS) * time.Millisecond
}

// Load reads config from the given path, filling zero values with defaults.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.DefaultProfile == "" {
		c.DefaultProfile = d.DefaultProfile
	}
	if c.Chat.FallbackTimeoutMS <= 0 {
		c.Chat.FallbackTimeoutMS = d.Chat.FallbackTimeoutMS
	}
	if c.Chat.AckTimeoutMS <= 0 {
		c.Chat.AckTimeoutMS = d.Chat.AckTimeoutMS
	}
	if c.Chat.EchoMatchWindowMS <= 0 {
		c.Chat.EchoMatchWindowMS = d.Chat.EchoMatchWindowMS
	}
	if c.Reconnect.MaxAttempts <= 0 {
		c.Reconnect.MaxAttempts = d.Reconnect.MaxAttempts
	}
	if c.Toast.Capacity <= 0 {
		c.Toast.Capacity = d.Toast.Capacity
	}
	if c.Toast.DurationMS <= 0 {
		c.Toast.DurationMS = d.Toast.DurationMS
	}
}
