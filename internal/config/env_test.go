// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("VIDSYNC_T_STR", "value")
	t.Setenv("VIDSYNC_T_EMPTY", "")
	t.Setenv("VIDSYNC_T_INT", " 42 ")
	t.Setenv("VIDSYNC_T_BADINT", "forty")
	t.Setenv("VIDSYNC_T_DUR", "750ms")
	t.Setenv("VIDSYNC_T_BOOL", "Yes")
	t.Setenv("VIDSYNC_T_BADBOOL", "maybe")
	t.Setenv("VIDSYNC_T_FLOAT", "0.25")

	assert.Equal(t, "value", ParseString("VIDSYNC_T_STR", "def"))
	assert.Equal(t, "def", ParseString("VIDSYNC_T_EMPTY", "def"))
	assert.Equal(t, "def", ParseString("VIDSYNC_T_UNSET", "def"))
	assert.Equal(t, 42, ParseInt("VIDSYNC_T_INT", 1))
	assert.Equal(t, 1, ParseInt("VIDSYNC_T_BADINT", 1))
	assert.Equal(t, 750*time.Millisecond, ParseDuration("VIDSYNC_T_DUR", time.Second))
	assert.Equal(t, time.Second, ParseDuration("VIDSYNC_T_STR", time.Second))
	assert.True(t, ParseBool("VIDSYNC_T_BOOL", false))
	assert.True(t, ParseBool("VIDSYNC_T_BADBOOL", true))
	assert.InDelta(t, 0.25, ParseFloat("VIDSYNC_T_FLOAT", 1), 1e-9)
	assert.InDelta(t, 1.0, ParseFloat("VIDSYNC_T_STR", 1), 1e-9)
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, isSensitive(EnvToken))
	assert.True(t, isSensitive(EnvTokenFile))
	assert.True(t, isSensitive("REDIS_PASSWORD"))
	assert.False(t, isSensitive(EnvBaseURL))
}
