// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/vidsync/internal/engine"
	"github.com/ManuGH/vidsync/internal/gateway"
)

type errorResponse struct {
	Error string            `json:"error"`
	State *engine.SyncState `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status. state is attached when the session
// exists so clients can render the message the engine produced.
func writeError(w http.ResponseWriter, err error, state *engine.SyncState) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error(), State: state})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrEmptyJobID):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrActionInFlight), errors.Is(err, engine.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, engine.ErrJobDeleted):
		return http.StatusGone
	case errors.Is(err, engine.ErrSessionClosed):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	var ge *gateway.Error
	if errors.As(err, &ge) {
		switch {
		case ge.Kind == gateway.KindValidation:
			return http.StatusUnprocessableEntity
		case errors.Is(err, gateway.ErrNotFound):
			return http.StatusNotFound
		case errors.Is(err, gateway.ErrConflict):
			return http.StatusConflict
		case ge.Kind == gateway.KindSessionExpired, ge.Kind == gateway.KindAuth:
			return http.StatusUnauthorized
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
