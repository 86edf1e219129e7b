// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"github.com/rs/zerolog"

	"github.com/ManuGH/vidsync/internal/store"
	"github.com/ManuGH/vidsync/internal/telemetry"
	"github.com/ManuGH/vidsync/internal/validate"
)

// Validate checks cross-field rules. All failures are reported together.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.URL("Gateway.BaseURL", cfg.Gateway.BaseURL, []string{"http", "https"})
	v.PositiveDuration("Gateway.Timeout", cfg.Gateway.Timeout)
	if cfg.Gateway.RateLimit < 0 {
		v.AddError("Gateway.RateLimit", "rate limit cannot be negative", cfg.Gateway.RateLimit)
	}
	if cfg.Gateway.RateLimit > 0 {
		v.Positive("Gateway.Burst", cfg.Gateway.Burst)
	}
	v.Range("Gateway.BreakerThreshold", cfg.Gateway.BreakerThreshold, 0, 1000)
	if cfg.Gateway.BreakerThreshold > 0 {
		v.PositiveDuration("Gateway.BreakerReset", cfg.Gateway.BreakerReset)
	}

	v.PositiveDuration("Polling.BaseInterval", cfg.Polling.BaseInterval)
	v.PositiveDuration("Polling.MaxInterval", cfg.Polling.MaxInterval)
	if cfg.Polling.MaxInterval < cfg.Polling.BaseInterval {
		v.AddError("Polling.MaxInterval", "max interval must not be below base interval", cfg.Polling.MaxInterval)
	}
	v.NonNegativeDuration("Polling.Jitter", cfg.Polling.Jitter)
	if cfg.Polling.WarnAfter < 1 {
		v.AddError("Polling.WarnAfter", "warn threshold must be at least 1", cfg.Polling.WarnAfter)
	}

	v.OneOf("Store.Backend", cfg.Store.Backend,
		[]string{store.BackendMemory, store.BackendSqlite, store.BackendBadger, store.BackendRedis})
	switch cfg.Store.Backend {
	case store.BackendSqlite, store.BackendBadger:
		v.NotEmpty("Store.Path", cfg.Store.Path)
	case store.BackendRedis:
		v.NotEmpty("Store.RedisAddr", cfg.Store.RedisAddr)
	}

	v.ListenAddr("API.Listen", cfg.API.Listen)
	if cfg.API.RequestLimit < 0 {
		v.AddError("API.RequestLimit", "request limit cannot be negative", cfg.API.RequestLimit)
	}
	if cfg.API.RequestLimit > 0 {
		v.PositiveDuration("API.Window", cfg.API.Window)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{telemetry.ExporterGRPC, telemetry.ExporterHTTP})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		v.AddError("Log.Level", "unknown log level", cfg.Log.Level)
	}

	return v.Err()
}
