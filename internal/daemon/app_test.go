// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vidsync/internal/config"
	"github.com/ManuGH/vidsync/internal/engine"
	"github.com/ManuGH/vidsync/internal/gateway"
	"github.com/ManuGH/vidsync/internal/gateway/gatewaytest"
	"github.com/ManuGH/vidsync/internal/health"
	"github.com/ManuGH/vidsync/internal/model"
	"github.com/ManuGH/vidsync/internal/poll/polltest"
	"github.com/ManuGH/vidsync/internal/store"
)

func testConfig() config.AppConfig {
	cfg := config.Defaults()
	cfg.Version = "test"
	cfg.Gateway.BaseURL = "http://127.0.0.1:1"
	return cfg
}

func quietEngines() Option {
	return WithEngineOptions(
		engine.WithClock(polltest.NewManualClock()),
		engine.WithLogger(zerolog.Nop()),
	)
}

func TestNew_BuildsHTTPGatewayWithTokenFile(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("secret\n"), 0o600))

	cfg := testConfig()
	cfg.Gateway.TokenFile = tokenFile

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	assert.IsType(t, &gateway.HTTPClient{}, a.Gateway())
	assert.IsType(t, &store.MemoryStore{}, a.Store())
	require.NotNil(t, a.creds)
	tok, err := a.creds.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "secret", tok)
	assert.NoError(t, a.ReloadCredentials())

	assert.Equal(t, []string{"gateway", "store", "token_file"}, a.Readiness().Names())
	ready := a.Readiness().Ready(context.Background())
	assert.True(t, ready.Ready)
	assert.Equal(t, health.StatusHealthy, ready.Status)

	require.NoError(t, os.Remove(tokenFile))
	assert.False(t, a.Readiness().Ready(context.Background()).Ready)
}

func TestReadiness_FakeGatewayHasNoBreaker(t *testing.T) {
	a, err := New(context.Background(), testConfig(), WithGateway(gatewaytest.New()), quietEngines())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	assert.Equal(t, []string{"store"}, a.Readiness().Names())
}

func TestNew_Failures(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.TokenFile = filepath.Join(t.TempDir(), "missing")
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "load token file")

	cfg = testConfig()
	cfg.Store.Backend = "mongo"
	_, err = New(context.Background(), cfg, WithGateway(gatewaytest.New()))
	assert.ErrorIs(t, err, store.ErrUnknownBackend)
}

func TestOpenSession_RecordsHistory(t *testing.T) {
	gw := gatewaytest.New()
	gw.Job(model.JobFields{ID: "job-1", Status: model.StatusCompleted, ProgressPct: 100}, nil)

	a, err := New(context.Background(), testConfig(), WithGateway(gw), quietEngines())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	e, err := a.OpenSession(context.Background(), "job-1")
	require.NoError(t, err)
	defer e.Close()
	assert.Equal(t, a.Config().Policy(), e.Policy())

	require.Eventually(t, func() bool {
		recs, err := a.Store().History(context.Background(), "job-1", 0)
		return err == nil && len(recs) == 1
	}, time.Second, 10*time.Millisecond)

	gw.Job(model.JobFields{}, gateway.Classify(gateway.OpFetchJob, nil, http.StatusNotFound, ""))
	_, err = a.OpenSession(context.Background(), "job-2")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestServeListener_LifecycleAndRoutes(t *testing.T) {
	gw := gatewaytest.New()
	a, err := New(context.Background(), testConfig(), WithGateway(gw), quietEngines())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ServeListener(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	req, err := http.NewRequest(http.MethodPut, base+"/api/sessions/job-9", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var st struct {
		Phase string `json:"phase"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", st.Phase)
	assert.Equal(t, []string{"job-9"}, a.Registry().JobIDs())

	resp, err = http.Get(base + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Empty(t, a.Registry().JobIDs(), "sessions are closed on shutdown")
}
