// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func kinds(in []Anomaly) []AnomalyKind {
	out := make([]AnomalyKind, 0, len(in))
	for _, a := range in {
		out = append(out, a.Kind)
	}
	return out
}

func TestCompare_CleanProgression(t *testing.T) {
	prev := NewSnapshot(JobFields{ID: "j", Status: StatusProcessing, ProgressPct: 10},
		[]Segment{{ID: "s1", OrderNo: 1, StartMs: 0, EndMs: 1000}}, nil, time.Now())
	next := NewSnapshot(JobFields{ID: "j", Status: StatusProcessing, ProgressPct: 20},
		[]Segment{
			{ID: "s1", OrderNo: 1, StartMs: 0, EndMs: 1000, Transcript: ptr("hi")},
			{ID: "s2", OrderNo: 2, StartMs: 1000, EndMs: 2000},
		}, nil, time.Now())

	assert.Empty(t, Compare(prev, next))
}

func TestCompare_ReportsAnomalies(t *testing.T) {
	prev := NewSnapshot(JobFields{ID: "j", Status: StatusProcessing, ProgressPct: 50},
		[]Segment{
			{ID: "s1", OrderNo: 1, Transcript: ptr("hello")},
			{ID: "s2", OrderNo: 2},
		}, nil, time.Now())
	next := NewSnapshot(JobFields{ID: "j", Status: StatusProcessing, ProgressPct: 40},
		[]Segment{{ID: "s1", OrderNo: 1, StartMs: 10, EndMs: 5}}, nil, time.Now())

	got := kinds(Compare(prev, next))
	assert.ElementsMatch(t, []AnomalyKind{
		AnomalySegmentInverted,
		AnomalyProgressRegressed,
		AnomalySegmentsShrank,
		AnomalySegmentCleared,
	}, got)
}

func TestCompare_TerminalExit(t *testing.T) {
	prev := NewSnapshot(JobFields{ID: "j", Status: StatusCompleted}, nil, nil, time.Now())
	next := NewSnapshot(JobFields{ID: "j", Status: StatusProcessing}, nil, nil, time.Now())
	assert.Equal(t, []AnomalyKind{AnomalyStatusLeftFinal}, kinds(Compare(prev, next)))
	assert.Nil(t, Compare(prev, nil))
}
