// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/vidsync/internal/poll"
	"github.com/ManuGH/vidsync/internal/store"
	"github.com/ManuGH/vidsync/internal/telemetry"
)

// Environment keys. All of them are read on every Load.
const (
	EnvBaseURL          = "VIDSYNC_BASE_URL"
	EnvGatewayTimeout   = "VIDSYNC_GATEWAY_TIMEOUT"
	EnvRateLimit        = "VIDSYNC_RATE_LIMIT"
	EnvRateBurst        = "VIDSYNC_RATE_BURST"
	EnvToken            = "VIDSYNC_TOKEN"
	EnvTokenFile        = "VIDSYNC_TOKEN_FILE"
	EnvBreakerThreshold = "VIDSYNC_BREAKER_THRESHOLD"
	EnvBreakerReset     = "VIDSYNC_BREAKER_RESET"
	EnvPollBase         = "VIDSYNC_POLL_BASE"
	EnvPollMax          = "VIDSYNC_POLL_MAX"
	EnvPollJitter       = "VIDSYNC_POLL_JITTER"
	EnvPollWarnAfter    = "VIDSYNC_POLL_WARN_AFTER"
	EnvStoreBackend     = "VIDSYNC_STORE_BACKEND"
	EnvStorePath        = "VIDSYNC_STORE_PATH"
	EnvRedisAddr        = "VIDSYNC_REDIS_ADDR"
	EnvListen           = "VIDSYNC_LISTEN"
	EnvAPIRequestLimit  = "VIDSYNC_API_RATE_LIMIT"
	EnvAPIWindow        = "VIDSYNC_API_RATE_WINDOW"
	EnvTelemetry        = "VIDSYNC_TELEMETRY_ENABLED"
	EnvOTLPExporter     = "VIDSYNC_OTLP_EXPORTER"
	EnvOTLPEndpoint     = "VIDSYNC_OTLP_ENDPOINT"
	EnvTraceSampling    = "VIDSYNC_TRACE_SAMPLING"
	EnvLogLevel         = "VIDSYNC_LOG_LEVEL"
)

// Loader resolves an AppConfig with precedence ENV > file > defaults.
type Loader struct {
	configPath string
	version    string

	// ConsumedEnvKeys records every key the last Load looked at.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader returns a loader. configPath may be empty.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	p := poll.DefaultPolicy()
	return AppConfig{
		Gateway: GatewayConfig{
			Timeout:          10 * time.Second,
			RateLimit:        10,
			Burst:            5,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Polling: PollingConfig{
			BaseInterval: p.BaseInterval,
			MaxInterval:  p.MaxInterval,
			Jitter:       p.Jitter,
			WarnAfter:    p.WarnAfter,
		},
		Store: StoreConfig{
			Backend: store.BackendMemory,
		},
		API: APIConfig{
			Listen:       "127.0.0.1:8089",
			RequestLimit: 30,
			Window:       time.Minute,
		},
		Telemetry: TelemetryConfig{
			Exporter:     telemetry.ExporterGRPC,
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load parses the file strictly, overlays the environment and validates.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}
	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes over the defaults so absent keys keep their values.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- the config path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	g := &cfg.Gateway
	g.BaseURL = l.envString(EnvBaseURL, g.BaseURL)
	g.Timeout = l.envDuration(EnvGatewayTimeout, g.Timeout)
	g.RateLimit = l.envFloat(EnvRateLimit, g.RateLimit)
	g.Burst = l.envInt(EnvRateBurst, g.Burst)
	g.Token = l.envString(EnvToken, g.Token)
	g.TokenFile = l.envString(EnvTokenFile, g.TokenFile)
	g.BreakerThreshold = l.envInt(EnvBreakerThreshold, g.BreakerThreshold)
	g.BreakerReset = l.envDuration(EnvBreakerReset, g.BreakerReset)

	p := &cfg.Polling
	p.BaseInterval = l.envDuration(EnvPollBase, p.BaseInterval)
	p.MaxInterval = l.envDuration(EnvPollMax, p.MaxInterval)
	p.Jitter = l.envDuration(EnvPollJitter, p.Jitter)
	p.WarnAfter = l.envInt(EnvPollWarnAfter, p.WarnAfter)

	s := &cfg.Store
	s.Backend = l.envString(EnvStoreBackend, s.Backend)
	s.Path = l.envString(EnvStorePath, s.Path)
	s.RedisAddr = l.envString(EnvRedisAddr, s.RedisAddr)

	a := &cfg.API
	a.Listen = l.envString(EnvListen, a.Listen)
	a.RequestLimit = l.envInt(EnvAPIRequestLimit, a.RequestLimit)
	a.Window = l.envDuration(EnvAPIWindow, a.Window)

	t := &cfg.Telemetry
	t.Enabled = l.envBool(EnvTelemetry, t.Enabled)
	t.Exporter = l.envString(EnvOTLPExporter, t.Exporter)
	t.Endpoint = l.envString(EnvOTLPEndpoint, t.Endpoint)
	t.SamplingRate = l.envFloat(EnvTraceSampling, t.SamplingRate)

	cfg.Log.Level = l.envString(EnvLogLevel, cfg.Log.Level)
}

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

// Policy converts the polling section.
func (c AppConfig) Policy() poll.Policy {
	return poll.Policy{
		BaseInterval: c.Polling.BaseInterval,
		MaxInterval:  c.Polling.MaxInterval,
		Jitter:       c.Polling.Jitter,
		WarnAfter:    c.Polling.WarnAfter,
	}
}
