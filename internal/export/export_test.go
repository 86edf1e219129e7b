// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/vidsync/internal/model"
)

func ptr[T any](v T) *T { return &v }

func completed() *model.Snapshot {
	return model.NewSnapshot(
		model.JobFields{
			ID:          "job-1",
			Title:       "Keynote",
			Status:      model.StatusCompleted,
			ProgressPct: 100,
			Summary:     ptr("A talk about sync engines."),
		},
		[]model.Segment{
			{ID: "s2", OrderNo: 2, StartMs: 65_000, EndMs: 3_725_000, Transcript: ptr("second part")},
			{ID: "s1", OrderNo: 1, StartMs: 0, EndMs: 65_000, Transcript: ptr("hello"), Summary: ptr("Intro")},
		},
		[]model.Person{{Name: "Ada", Confidence: ptr(0.93)}, {Name: "Unknown"}},
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor("out.JSON"))
	assert.Equal(t, FormatText, FormatFor("out.txt"))
	assert.Equal(t, FormatText, FormatFor("out"))
}

func TestWriteSnapshot_Text(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keynote.txt")
	require.NoError(t, WriteSnapshot(context.Background(), path, completed()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := `Keynote
Status: completed (100%)

Summary
A talk about sync engines.

People
- Ada (93%)
- Unknown

Segments
[00:00 - 01:05] Intro
hello
[01:05 - 1:02:05]
second part
`
	assert.Equal(t, want, string(data))
}

func TestWriteSnapshot_JSONReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keynote.json")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o600))
	require.NoError(t, WriteSnapshot(context.Background(), path, completed()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "job-1", snap.Job.ID)
	require.Len(t, snap.Segments, 2)
	assert.Equal(t, "s1", snap.Segments[0].ID)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestWriteSnapshot_Errors(t *testing.T) {
	assert.Error(t, WriteSnapshot(context.Background(), filepath.Join(t.TempDir(), "x.json"), nil))
	assert.Error(t, WriteSnapshot(context.Background(), filepath.Join(t.TempDir(), "missing", "x.json"), completed()))
}
