// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vidsync/internal/resilience"
	"github.com/ManuGH/vidsync/internal/store"
)

type mockChecker struct {
	name   string
	status Status
	sawDL  bool
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	_, m.sawDL = ctx.Deadline()
	return CheckResult{Status: m.status}
}

type failingStore struct{ store.Store }

func (failingStore) History(context.Context, string, int) ([]store.Record, error) {
	return nil, errors.New("connection refused")
}

type breakerState resilience.State

func (b breakerState) BreakerState() resilience.State { return resilience.State(b) }

func TestReady_NoCheckers(t *testing.T) {
	resp := NewManager().Ready(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)
}

func TestReady_Aggregation(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []Status
		wantReady bool
		want      Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded stays ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins over degraded", []Status{StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
		{"degraded after unhealthy", []Status{StatusDegraded, StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager()
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.statuses))
		})
	}
}

func TestReady_ChecksGetDeadline(t *testing.T) {
	m := NewManager()
	c := &mockChecker{name: "x", status: StatusHealthy}
	m.RegisterChecker(c)
	m.Ready(context.Background())
	assert.True(t, c.sawDL)
}

func TestNames(t *testing.T) {
	m := NewManager()
	m.RegisterChecker(&mockChecker{name: "store"})
	m.RegisterChecker(&mockChecker{name: "gateway"})
	assert.Equal(t, []string{"gateway", "store"}, m.Names())
}

func TestServeReady(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	m := NewManager()
	m.now = func() time.Time { return fixed }
	m.RegisterChecker(&mockChecker{name: "store", status: StatusHealthy})

	w := httptest.NewRecorder()
	m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Ready)
	assert.True(t, resp.Timestamp.Equal(fixed))

	m.RegisterChecker(&mockChecker{name: "token", status: StatusUnhealthy})
	w = httptest.NewRecorder()
	m.ServeReady(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestFileChecker(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(full, []byte("t0ken"), 0o600))
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))

	tests := []struct {
		name string
		path string
		want Status
	}{
		{"not configured", "", StatusHealthy},
		{"present", full, StatusHealthy},
		{"missing", filepath.Join(dir, "nope"), StatusUnhealthy},
		{"directory", dir, StatusUnhealthy},
		{"empty", empty, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewFileChecker("token_file", tt.path)
			assert.Equal(t, "token_file", c.Name())
			assert.Equal(t, tt.want, c.Check(context.Background()).Status)
		})
	}
}

func TestStoreChecker(t *testing.T) {
	ok := NewStoreChecker(store.NewMemoryStore(10))
	assert.Equal(t, "store", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	res := NewStoreChecker(failingStore{}).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Contains(t, res.Error, "connection refused")
}

func TestBreakerChecker(t *testing.T) {
	assert.Equal(t, StatusHealthy, NewBreakerChecker("gateway", breakerState(resilience.StateClosed)).Check(context.Background()).Status)

	res := NewBreakerChecker("gateway", breakerState(resilience.StateOpen)).Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "circuit open", res.Message)
	assert.Equal(t, StatusDegraded, NewBreakerChecker("gateway", breakerState(resilience.StateHalfOpen)).Check(context.Background()).Status)
}
