// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package export writes a job snapshot to disk.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	xglog "github.com/ManuGH/vidsync/internal/log"
	"github.com/ManuGH/vidsync/internal/model"
)

// Format selects the file layout.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// FormatFor picks the format from the file extension: ".json" is JSON,
// anything else is plain text.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatText
}

// WriteSnapshot atomically replaces path with snap. Readers never observe a
// partially written file.
func WriteSnapshot(ctx context.Context, path string, snap *model.Snapshot) error {
	if snap == nil {
		return errors.New("export: nil snapshot")
	}
	logger := xglog.FromContext(ctx)

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return fmt.Errorf("create pending export file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending export file")
		}
	}()

	w := bufio.NewWriter(pending)
	switch FormatFor(path) {
	case FormatJSON:
		err = writeJSON(w, snap)
	default:
		err = writeText(w, snap)
	}
	if err != nil {
		return fmt.Errorf("write export data: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush export data: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace export file: %w", err)
	}
	logger.Info().
		Str(xglog.FieldJobID, snap.JobID()).
		Str(xglog.FieldPath, path).
		Str(xglog.FieldEvent, "export.written").
		Msg("snapshot exported")
	return nil
}

func writeJSON(w io.Writer, snap *model.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func writeText(w io.Writer, snap *model.Snapshot) error {
	job := snap.Job
	var b strings.Builder

	title := job.Title
	if title == "" {
		title = job.ID
	}
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "Status: %s (%.0f%%)\n", job.Status, job.ProgressPct)
	if job.SourceURL != "" {
		fmt.Fprintf(&b, "Source: %s\n", job.SourceURL)
	}
	if job.ErrorMessage != "" {
		fmt.Fprintf(&b, "Error: %s\n", job.ErrorMessage)
	}

	if job.Summary != nil && *job.Summary != "" {
		fmt.Fprintf(&b, "\nSummary\n%s\n", *job.Summary)
	}

	if len(snap.People) > 0 {
		b.WriteString("\nPeople\n")
		for _, p := range snap.People {
			if p.Confidence != nil {
				fmt.Fprintf(&b, "- %s (%.0f%%)\n", p.Name, *p.Confidence*100)
			} else {
				fmt.Fprintf(&b, "- %s\n", p.Name)
			}
		}
	}

	if len(snap.Segments) > 0 {
		b.WriteString("\nSegments\n")
		for _, s := range snap.Segments {
			fmt.Fprintf(&b, "[%s - %s]", clock(s.StartMs), clock(s.EndMs))
			if s.Summary != nil && *s.Summary != "" {
				fmt.Fprintf(&b, " %s", *s.Summary)
			}
			b.WriteString("\n")
			if s.Transcript != nil && *s.Transcript != "" {
				fmt.Fprintf(&b, "%s\n", *s.Transcript)
			}
		}
	} else if job.Transcript != nil && *job.Transcript != "" {
		fmt.Fprintf(&b, "\nTranscript\n%s\n", *job.Transcript)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// clock renders milliseconds as h:mm:ss or mm:ss.
func clock(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
