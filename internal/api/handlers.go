// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/vidsync/internal/engine"
	xglog "github.com/ManuGH/vidsync/internal/log"
)

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Sessions int    `json:"sessions"`
}

type sessionsResponse struct {
	Sessions []engine.SyncState `json:"sessions"`
}

type refreshResponse struct {
	Ran   bool             `json:"ran"`
	State engine.SyncState `json:"state"`
}

type flagRequest struct {
	Flagged *bool  `json:"flagged"`
	Note    string `json:"note"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Version:  s.cfg.Version,
		Sessions: len(s.reg.JobIDs()),
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	resp := sessionsResponse{Sessions: []engine.SyncState{}}
	for _, id := range s.reg.JobIDs() {
		if e, ok := s.reg.Get(id); ok {
			resp.Sessions = append(resp.Sessions, e.State())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// session resolves {jobID} or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	e, ok := s.reg.Get(chi.URLParam(r, "jobID"))
	if !ok {
		writeNotFound(w)
		return nil, false
	}
	return e, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.session(w, r); ok {
		writeJSON(w, http.StatusOK, e.State())
	}
}

// handleOpen creates or reuses a session. A failed load leaves the session
// registered in the failed phase; PUT again retries it.
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	ctx := xglog.ContextWithJobID(r.Context(), jobID)

	e, err := s.reg.Open(ctx, jobID)
	if err != nil {
		var st *engine.SyncState
		if e != nil {
			cur := e.State()
			st = &cur
		}
		writeError(w, err, st)
		return
	}
	writeJSON(w, http.StatusOK, e.State())
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if !s.reg.Close(chi.URLParam(r, "jobID")) {
		writeNotFound(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh answers 202 when another fetch already holds the slot.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	e, ok := s.session(w, r)
	if !ok {
		return
	}
	ran, err := e.Refresh(r.Context())
	st := e.State()
	if err != nil {
		writeError(w, err, &st)
		return
	}
	code := http.StatusOK
	if !ran {
		code = http.StatusAccepted
	}
	writeJSON(w, code, refreshResponse{Ran: ran, State: st})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	e, ok := s.session(w, r)
	if !ok {
		return
	}
	kind, valid := engine.ParseActionKind(chi.URLParam(r, "kind"))
	if !valid {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown action %q", chi.URLParam(r, "kind"))})
		return
	}

	var err error
	if kind == engine.ActionFlag {
		var req flagRequest
		if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil && !errors.Is(decErr, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		flagged := req.Flagged == nil || *req.Flagged
		err = e.SetFlag(r.Context(), flagged, req.Note)
	} else {
		err = e.Do(r.Context(), kind)
	}

	st := e.State()
	if err != nil {
		writeError(w, err, &st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClearMessage(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.session(w, r); ok {
		e.ClearMessage()
		writeJSON(w, http.StatusOK, e.State())
	}
}

// handleEvents streams every state change as server-sent events until the
// client leaves or the session closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	e, ok := s.session(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	updates, cancel := e.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case st, open := <-updates:
			if !open {
				_, _ = io.WriteString(w, "event: closed\ndata: {}\n\n")
				_ = rc.Flush()
				return
			}
			data, err := json.Marshal(st)
			if err != nil {
				s.logger.Error().Err(err).Msg("encode state event")
				return
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
