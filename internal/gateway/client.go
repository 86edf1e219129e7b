// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/vidsync/internal/log"
	"github.com/ManuGH/vidsync/internal/metrics"
	"github.com/ManuGH/vidsync/internal/model"
	"github.com/ManuGH/vidsync/internal/platform/httpx"
	"github.com/ManuGH/vidsync/internal/resilience"
)

const (
	maxResponseBytes = 8 << 20
	maxErrorBody     = 512
	maxFlagNoteRunes = 500

	// sharedReadTimeout bounds a collapsed read that no caller can cancel
	// when Options.Timeout is unset.
	sharedReadTimeout = 30 * time.Second
)

// Operation names used in errors, logs and metrics.
const (
	OpFetchJob      = "fetch_job"
	OpFetchSegments = "fetch_segments"
	OpFetchPeople   = "fetch_people"
	OpPause         = "pause"
	OpResume        = "resume"
	OpSetFlag       = "set_flag"
	OpDelete        = "delete"
)

// Options configures an HTTPClient.
type Options struct {
	BaseURL     string
	Credentials CredentialSource
	Timeout     time.Duration

	// RateLimit caps outbound requests per second across all sessions
	// sharing the client. Zero disables limiting.
	RateLimit rate.Limit
	Burst     int

	// BreakerThreshold consecutive transport failures open the breaker for
	// BreakerReset. Zero disables the breaker.
	BreakerThreshold int
	BreakerReset     time.Duration

	// HTTPClient overrides the default traced client.
	HTTPClient *http.Client
}

// HTTPClient implements Gateway over the backend's JSON REST API.
type HTTPClient struct {
	base    string
	creds   CredentialSource
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	timeout time.Duration
	logger  zerolog.Logger
}

var _ Gateway = (*HTTPClient)(nil)

// NewHTTPClient validates opts and builds a client.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway base URL %q: %w", opts.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported gateway base URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("gateway base URL %q is missing host", opts.BaseURL)
	}
	if opts.Credentials == nil {
		return nil, errors.New("gateway: credentials are required")
	}

	c := &HTTPClient{
		base:    base,
		creds:   opts.Credentials,
		http:    opts.HTTPClient,
		timeout: opts.Timeout,
		logger:  xglog.WithComponent("gateway").With().Str(xglog.FieldBaseURL, u.Redacted()).Logger(),
	}
	if c.http == nil {
		c.http = httpx.NewClient(opts.Timeout)
	}
	if c.timeout <= 0 {
		c.timeout = sharedReadTimeout
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(opts.RateLimit, burst)
	}
	if opts.BreakerThreshold > 0 {
		c.breaker = resilience.NewCircuitBreaker("gateway", opts.BreakerThreshold, opts.BreakerReset,
			resilience.WithFailurePredicate(IsTransient),
			resilience.WithStateChange(func(from, to resilience.State) {
				ev := c.logger.Info()
				if to == resilience.StateOpen {
					ev = c.logger.Warn()
				}
				ev.Str(xglog.FieldEvent, "gateway.breaker").
					Str(xglog.FieldOldState, string(from)).
					Str(xglog.FieldNewState, string(to)).
					Msg("circuit breaker state changed")
			}))
	}
	return c, nil
}

// BreakerState reports the circuit breaker state, or StateClosed when the
// breaker is disabled.
func (c *HTTPClient) BreakerState() resilience.State {
	if c.breaker == nil {
		return resilience.StateClosed
	}
	return c.breaker.State()
}

func jobPath(jobID string, suffix string) string {
	return "/api/jobs/" + url.PathEscape(jobID) + suffix
}

// FetchJob implements Gateway.
func (c *HTTPClient) FetchJob(ctx context.Context, jobID string) (model.JobFields, error) {
	var out model.JobFields
	if err := c.get(ctx, OpFetchJob, jobID, jobPath(jobID, ""), &out); err != nil {
		return model.JobFields{}, err
	}
	return out, nil
}

// FetchSegments implements Gateway.
func (c *HTTPClient) FetchSegments(ctx context.Context, jobID string) ([]model.Segment, error) {
	var out struct {
		Segments []model.Segment `json:"segments"`
	}
	if err := c.get(ctx, OpFetchSegments, jobID, jobPath(jobID, "/segments"), &out); err != nil {
		return nil, err
	}
	return out.Segments, nil
}

// FetchDerivedMetadata implements Gateway. The result is returned in
// backend order; callers apply model.SortPeople.
func (c *HTTPClient) FetchDerivedMetadata(ctx context.Context, jobID string) ([]model.Person, error) {
	var out struct {
		People []model.Person `json:"people"`
	}
	if err := c.get(ctx, OpFetchPeople, jobID, jobPath(jobID, "/people"), &out); err != nil {
		return nil, err
	}
	return out.People, nil
}

// Pause implements Gateway.
func (c *HTTPClient) Pause(ctx context.Context, jobID string) (model.JobFields, error) {
	return c.mutate(ctx, OpPause, jobID, http.MethodPost, jobPath(jobID, "/pause"), nil)
}

// Resume implements Gateway.
func (c *HTTPClient) Resume(ctx context.Context, jobID string) (model.JobFields, error) {
	return c.mutate(ctx, OpResume, jobID, http.MethodPost, jobPath(jobID, "/resume"), nil)
}

// SetFlag implements Gateway.
func (c *HTTPClient) SetFlag(ctx context.Context, jobID string, flagged bool, note string) (model.JobFields, error) {
	note = strings.TrimSpace(note)
	if n := utf8.RuneCountInString(note); n > maxFlagNoteRunes {
		return model.JobFields{}, NewValidationError(OpSetFlag,
			fmt.Sprintf("flag note is %d characters, limit is %d", n, maxFlagNoteRunes))
	}
	payload := map[string]any{"flagged": flagged, "note": note}
	return c.mutate(ctx, OpSetFlag, jobID, http.MethodPost, jobPath(jobID, "/flag"), payload)
}

// Delete implements Gateway. A 204 yields zero JobFields.
func (c *HTTPClient) Delete(ctx context.Context, jobID string) (model.JobFields, error) {
	return c.mutate(ctx, OpDelete, jobID, http.MethodDelete, jobPath(jobID, ""), nil)
}

// get collapses identical concurrent reads (same path and token) into one
// request. The shared request is detached from every caller's
// cancellation and bounded by the client timeout; each caller stops
// waiting when its own ctx ends.
func (c *HTTPClient) get(ctx context.Context, op, jobID, path string, out any) error {
	if strings.TrimSpace(jobID) == "" {
		return NewValidationError(op, "job id is empty")
	}
	token, err := c.token(ctx, op)
	if err != nil {
		return err
	}

	ch := c.group.DoChan(path+"\x00"+token, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.roundTrip(sctx, op, http.MethodGet, path, nil, token)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Classify(op, ctx.Err(), 0, "")
	case res = <-ch:
	}
	if res.Shared {
		metrics.IncGatewayShared(op)
	}
	if res.Err != nil {
		return res.Err
	}
	if err := json.Unmarshal(res.Val.([]byte), out); err != nil {
		return &Error{Kind: KindHTTP, Sentinel: ErrBadResponse, Op: op, Status: http.StatusOK, Err: err}
	}
	return nil
}

func (c *HTTPClient) mutate(ctx context.Context, op, jobID, method, path string, payload any) (model.JobFields, error) {
	if strings.TrimSpace(jobID) == "" {
		return model.JobFields{}, NewValidationError(op, "job id is empty")
	}
	token, err := c.token(ctx, op)
	if err != nil {
		return model.JobFields{}, err
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return model.JobFields{}, NewValidationError(op, err.Error())
		}
	}

	data, err := c.roundTrip(ctx, op, method, path, body, token)
	if err != nil {
		return model.JobFields{}, err
	}
	var out model.JobFields
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return model.JobFields{}, &Error{Kind: KindHTTP, Sentinel: ErrBadResponse, Op: op, Status: http.StatusOK, Err: err}
	}
	return out, nil
}

func (c *HTTPClient) token(ctx context.Context, op string) (string, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return "", &Error{Kind: KindSessionExpired, Sentinel: ErrSessionExpired, Op: op, Err: err}
	}
	if token == "" {
		return "", &Error{Kind: KindSessionExpired, Sentinel: ErrSessionExpired, Op: op}
	}
	return token, nil
}

func (c *HTTPClient) roundTrip(ctx context.Context, op, method, path string, payload []byte, token string) ([]byte, error) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := xglog.WithContext(ctx, c.logger).With().
		Str(xglog.FieldOp, op).
		Str(xglog.FieldRequestID, requestID).
		Logger()

	var out []byte
	exec := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return Classify(op, err, 0, "")
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
		if err != nil {
			return NewValidationError(op, err.Error())
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		res, err := c.http.Do(req)
		if err != nil {
			return Classify(op, err, 0, "")
		}
		defer func() { _ = res.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
		if err != nil {
			return Classify(op, err, 0, "")
		}
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return Classify(op, nil, res.StatusCode, errorSnippet(data))
		}
		out = data
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(exec)
	} else {
		err = exec()
	}

	var ge *Error
	if err != nil && !errors.As(err, &ge) {
		ge = Classify(op, err, 0, "")
		err = ge
	}

	elapsed := time.Since(start)
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
		logger.Debug().
			Err(err).
			Str(xglog.FieldEvent, "gateway.request_failed").
			Int(xglog.FieldHTTPStatus, StatusOf(err)).
			Dur("elapsed", elapsed).
			Msg("gateway request failed")
	} else {
		logger.Debug().
			Str(xglog.FieldEvent, "gateway.request_ok").
			Dur("elapsed", elapsed).
			Msg("gateway request completed")
	}
	metrics.RecordGatewayRequest(op, result, elapsed)
	return out, err
}

// errorSnippet extracts a short human-readable reason from an error body.
func errorSnippet(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		for _, s := range []string{payload.Detail, payload.Message, payload.Error} {
			if s != "" {
				return truncate(s, maxErrorBody)
			}
		}
	}
	return truncate(strings.TrimSpace(string(data)), maxErrorBody)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
