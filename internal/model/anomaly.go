// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "fmt"

// AnomalyKind names an unexpected transition between two snapshots.
type AnomalyKind string

const (
	AnomalyProgressRegressed AnomalyKind = "progress_regressed"
	AnomalySegmentsShrank    AnomalyKind = "segments_shrank"
	AnomalySegmentCleared    AnomalyKind = "segment_content_cleared"
	AnomalySegmentInverted   AnomalyKind = "segment_end_before_start"
	AnomalyStatusLeftFinal   AnomalyKind = "status_left_terminal"
)

// Anomaly describes data from the backend that violates an expected
// invariant. Anomalies are diagnostics only; the data is still applied.
type Anomaly struct {
	Kind   AnomalyKind
	Detail string
}

func (a Anomaly) String() string {
	return string(a.Kind) + ": " + a.Detail
}

// Compare reports anomalies observed when next replaces prev. prev may be nil.
func Compare(prev, next *Snapshot) []Anomaly {
	var out []Anomaly
	if next == nil {
		return nil
	}
	for _, seg := range next.Segments {
		if seg.EndMs < seg.StartMs {
			out = append(out, Anomaly{
				Kind:   AnomalySegmentInverted,
				Detail: fmt.Sprintf("segment %s: end %dms < start %dms", seg.ID, seg.EndMs, seg.StartMs),
			})
		}
	}
	if prev == nil {
		return out
	}

	if prev.Job.Status == StatusProcessing && next.Job.Status == StatusProcessing &&
		next.Job.ProgressPct < prev.Job.ProgressPct {
		out = append(out, Anomaly{
			Kind:   AnomalyProgressRegressed,
			Detail: fmt.Sprintf("progress %.1f -> %.1f", prev.Job.ProgressPct, next.Job.ProgressPct),
		})
	}
	if prev.Job.Status.IsTerminal() && !next.Job.Status.IsTerminal() {
		out = append(out, Anomaly{
			Kind:   AnomalyStatusLeftFinal,
			Detail: fmt.Sprintf("status %s -> %s", prev.Job.Status, next.Job.Status),
		})
	}
	if len(next.Segments) < len(prev.Segments) {
		out = append(out, Anomaly{
			Kind:   AnomalySegmentsShrank,
			Detail: fmt.Sprintf("segments %d -> %d", len(prev.Segments), len(next.Segments)),
		})
	}

	byID := make(map[string]Segment, len(prev.Segments))
	for _, seg := range prev.Segments {
		byID[seg.ID] = seg
	}
	for _, seg := range next.Segments {
		old, ok := byID[seg.ID]
		if !ok {
			continue
		}
		if (old.Transcript != nil && seg.Transcript == nil) || (old.Summary != nil && seg.Summary == nil) {
			out = append(out, Anomaly{
				Kind:   AnomalySegmentCleared,
				Detail: fmt.Sprintf("segment %s lost content", seg.ID),
			})
		}
	}
	return out
}
