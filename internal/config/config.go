// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads vescstat settings from defaults, an optional YAML
// file, VESCSTAT_* environment variables and command line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. VESCSTAT_SERIAL_PORT
const EnvPrefix = "VESCSTAT"

type SerialConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
	Baud int    `mapstructure:"baud" yaml:"baud"`
}

type WebSocketConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	Username    string `mapstructure:"username" yaml:"username"`
	NoSSLVerify bool   `mapstructure:"noSSLVerify" yaml:"noSSLVerify"`
}

type ProtocolConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PeerID  int           `mapstructure:"peerID" yaml:"peerID"`
}

type PollConfig struct {
	Rate float64 `mapstructure:"rate" yaml:"rate"` // requests per second
}

type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type RecordConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type Config struct {
	Serial    SerialConfig    `mapstructure:"serial" yaml:"serial"`
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
	Protocol  ProtocolConfig  `mapstructure:"protocol" yaml:"protocol"`
	Poll      PollConfig      `mapstructure:"poll" yaml:"poll"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Record    RecordConfig    `mapstructure:"record" yaml:"record"`
}

// flagKeys maps command line flag names to config keys. Flags that a
// command does not define are skipped.
var flagKeys = map[string]string{
	"port":          "serial.port",
	"baud":          "serial.baud",
	"url":           "websocket.url",
	"username":      "websocket.username",
	"no-ssl-verify": "websocket.noSSLVerify",
	"timeout":       "protocol.timeout",
	"peer":          "protocol.peerID",
	"rate":          "poll.rate",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"log-file":      "logging.file.filename",
	"metrics-addr":  "metrics.addr",
	"output":        "record.path",
}

// Load reads the configuration. path may be empty, in which case
// vescstat.yaml is looked up in the working directory and
// $HOME/.config/vescstat; a missing file is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/vescstat")
		v.SetConfigName("vescstat")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 115200)

	v.SetDefault("websocket.url", "")
	v.SetDefault("websocket.username", "admin")
	v.SetDefault("websocket.noSSLVerify", false)

	v.SetDefault("protocol.timeout", "100ms")
	v.SetDefault("protocol.peerID", -1)

	v.SetDefault("poll.rate", 10.0)

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 20)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 14)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("record.path", "vescstat.cbor")
}

// Validate checks values that would otherwise fail later in confusing ways
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Protocol.Timeout <= 0 {
		return fmt.Errorf("protocol.timeout must be positive, got %v", c.Protocol.Timeout)
	}
	if c.Protocol.PeerID < -1 || c.Protocol.PeerID > 255 {
		return fmt.Errorf("protocol.peerID must be -1 (none) or 0-255, got %d", c.Protocol.PeerID)
	}
	if c.Poll.Rate <= 0 {
		return fmt.Errorf("poll.rate must be positive, got %v", c.Poll.Rate)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}

// HasPeer reports whether a CAN peer id is configured
func (p ProtocolConfig) HasPeer() bool {
	return p.PeerID >= 0
}

// Peer returns the configured CAN peer id
func (p ProtocolConfig) Peer() uint8 {
	return uint8(p.PeerID)
}

// ConnectionTarget returns a description of where the tool connects
func (c *Config) ConnectionTarget() (string, error) {
	switch {
	case c.Serial.Port != "" && c.WebSocket.URL != "":
		return "", errors.New("cannot use both serial.port and websocket.url")
	case c.Serial.Port != "":
		return fmt.Sprintf("serial %s @ %d baud", c.Serial.Port, c.Serial.Baud), nil
	case c.WebSocket.URL != "":
		return fmt.Sprintf("websocket %s", c.WebSocket.URL), nil
	default:
		return "", errors.New("either serial.port (--port) or websocket.url (--url) must be set")
	}
}
