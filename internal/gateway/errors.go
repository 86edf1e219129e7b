// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/ManuGH/vidsync/internal/resilience"
)

// Kind classifies a gateway failure.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindHTTP           Kind = "http"
	KindValidation     Kind = "validation"
	KindAuth           Kind = "auth"
	KindSessionExpired Kind = "session_expired"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNetwork        = errors.New("gateway: backend unreachable or transport failure")
	ErrTimeout        = errors.New("gateway: request timed out")
	ErrCircuitOpen    = errors.New("gateway: backend marked unavailable")
	ErrHTTP           = errors.New("gateway: backend returned an error status")
	ErrNotFound       = errors.New("gateway: job not found")
	ErrConflict       = errors.New("gateway: operation conflicts with job state")
	ErrBadResponse    = errors.New("gateway: invalid response format or malformed data")
	ErrValidation     = errors.New("gateway: invalid input")
	ErrAuth           = errors.New("gateway: access forbidden")
	ErrSessionExpired = errors.New("gateway: credential missing or expired")
)

// Error wraps a sentinel with operation context.
type Error struct {
	Kind     Kind
	Sentinel error
	Op       string
	Status   int
	Body     string
	Err      error // nested lower-level error (e.g. net.Error)
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway: %s: %v", e.Op, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Sentinel
}

// KindOf returns the failure kind of err, or "" if err is not a gateway error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Status
	}
	return 0
}

// IsTransient reports whether err is worth retrying later: transport
// failures and 5xx/429 responses.
func IsTransient(err error) bool {
	var ge *Error
	if !errors.As(err, &ge) {
		return false
	}
	switch ge.Kind {
	case KindNetwork:
		return true
	case KindHTTP:
		return ge.Status >= 500 || ge.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// NewValidationError reports malformed local input without any network call.
func NewValidationError(op, detail string) *Error {
	return &Error{Kind: KindValidation, Sentinel: ErrValidation, Op: op, Body: detail}
}

// Classify maps a transport error or a non-2xx status to an *Error.
// Exactly one of err and status is expected to be set.
func Classify(op string, err error, status int, body string) *Error {
	if err != nil {
		sentinel := ErrNetwork
		switch {
		case errors.Is(err, resilience.ErrCircuitOpen):
			sentinel = ErrCircuitOpen
		case isTimeout(err):
			sentinel = ErrTimeout
		}
		return &Error{Kind: KindNetwork, Sentinel: sentinel, Op: op, Err: err}
	}

	e := &Error{Op: op, Status: status, Body: body}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind, e.Sentinel = KindSessionExpired, ErrSessionExpired
	case status == http.StatusForbidden:
		e.Kind, e.Sentinel = KindAuth, ErrAuth
	case status == http.StatusNotFound:
		e.Kind, e.Sentinel = KindHTTP, ErrNotFound
	case status == http.StatusConflict:
		e.Kind, e.Sentinel = KindHTTP, ErrConflict
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		e.Kind, e.Sentinel = KindHTTP, ErrBadResponse
	default:
		e.Kind, e.Sentinel = KindHTTP, ErrHTTP
	}
	return e
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
