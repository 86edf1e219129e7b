// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads vidsync settings from defaults, a YAML file and
// VIDSYNC_* environment variables, in that order of increasing priority.
package config

import "time"

// AppConfig is the resolved configuration.
type AppConfig struct {
	Version   string          `yaml:"-"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Polling   PollingConfig   `yaml:"polling"`
	Store     StoreConfig     `yaml:"store"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// GatewayConfig describes the job backend.
type GatewayConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is requests per second; zero disables the limiter.
	RateLimit float64 `yaml:"rateLimit"`
	Burst     int     `yaml:"burst"`

	// TokenFile wins over Token and is watched for rotation.
	TokenFile string `yaml:"tokenFile"`
	Token     string `yaml:"token"`

	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// PollingConfig mirrors poll.Policy.
type PollingConfig struct {
	BaseInterval time.Duration `yaml:"baseInterval"`
	MaxInterval  time.Duration `yaml:"maxInterval"`
	Jitter       time.Duration `yaml:"jitter"`
	WarnAfter    int           `yaml:"warnAfter"`
}

// StoreConfig selects the snapshot history backend.
type StoreConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	RedisAddr string `yaml:"redisAddr"`
}

// Target is the backend-specific location passed to store.Open.
func (s StoreConfig) Target() string {
	if s.Backend == "redis" {
		return s.RedisAddr
	}
	return s.Path
}

// APIConfig configures the local HTTP API started by serve.
type APIConfig struct {
	Listen       string        `yaml:"listen"`
	RequestLimit int           `yaml:"requestLimit"`
	Window       time.Duration `yaml:"window"`
}

// TelemetryConfig configures OTLP tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
}
