// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engine

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vidsync/internal/model"
)

func TestSyncState_MarshalJSON(t *testing.T) {
	failed := SyncState{Phase: PhaseFailed, JobID: "job-1", Err: errors.New("backend down")}
	data, err := json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":"failed","job_id":"job-1","is_polling":false,"job_deleted":false,"error":"backend down"}`, string(data))

	ready := SyncState{
		Phase:     PhaseReady,
		JobID:     "job-1",
		IsPolling: true,
		Snapshot:  model.NewSnapshot(model.JobFields{ID: "job-1", Status: model.StatusQueued}, nil, nil, time.Unix(0, 0).UTC()),
		Message:   &ActionMessage{Action: ActionPause, Text: "Job paused"},
	}
	data, err = json.Marshal(ready)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "ready", decoded["phase"])
	assert.Equal(t, true, decoded["is_polling"])
	assert.NotContains(t, decoded, "error")
	assert.Equal(t, "Job paused", decoded["message"].(map[string]any)["text"])
	assert.Equal(t, "queued", decoded["snapshot"].(map[string]any)["job"].(map[string]any)["status"])
}

func TestParseActionKind(t *testing.T) {
	for _, s := range []string{"pause", "resume", "flag", "delete"} {
		k, ok := ParseActionKind(s)
		assert.True(t, ok)
		assert.Equal(t, ActionKind(s), k)
	}
	_, ok := ParseActionKind("Pause")
	assert.False(t, ok)
}
