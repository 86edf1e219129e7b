// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestStatus_IsTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusQueued:     false,
		StatusProcessing: false,
		StatusPaused:     false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
		Status("weird"):  false,
	}
	for status, want := range cases {
		assert.Equal(t, want, status.IsTerminal(), "status %q", status)
	}
	assert.False(t, Status("weird").Known())
}

func TestNewSnapshot_OrdersSegmentsAndCopiesInput(t *testing.T) {
	segs := []Segment{
		{ID: "c", OrderNo: 3},
		{ID: "a", OrderNo: 1},
		{ID: "b", OrderNo: 2},
	}
	snap := NewSnapshot(JobFields{ID: "job-1"}, segs, nil, time.Unix(0, 0))

	got := make([]string, 0, len(snap.Segments))
	for _, s := range snap.Segments {
		got = append(got, s.ID)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Fatalf("segment order mismatch (-want +got):\n%s", diff)
	}

	// input slice untouched
	assert.Equal(t, "c", segs[0].ID)
	require.NotNil(t, snap.People)
	assert.Empty(t, snap.People)
}

func TestSnapshot_WithJobKeepsLists(t *testing.T) {
	snap := NewSnapshot(JobFields{ID: "job-1", Status: StatusProcessing},
		[]Segment{{ID: "s1", OrderNo: 1}}, []Person{{Name: "Ada"}}, time.Unix(1, 0))

	next := snap.WithJob(JobFields{ID: "job-1", Status: StatusPaused}, time.Unix(2, 0))
	assert.NotSame(t, snap, next)
	assert.Equal(t, StatusProcessing, snap.Status())
	assert.Equal(t, StatusPaused, next.Status())
	assert.Len(t, next.Segments, 1)
	assert.Len(t, next.People, 1)
}

func TestSortPeople(t *testing.T) {
	people := []Person{
		{Name: "zed", Confidence: ptr(0.5)},
		{Name: "nobody"},
		{Name: "Bob", Confidence: ptr(0.9)},
		{Name: "alice", Confidence: ptr(0.9)},
		{Name: "anon"},
	}
	SortPeople(people)

	got := make([]string, 0, len(people))
	for _, p := range people {
		got = append(got, p.Name)
	}
	want := []string{"alice", "Bob", "zed", "anon", "nobody"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("people order mismatch (-want +got):\n%s", diff)
	}
}

func TestSegmentDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Segment{StartMs: 500, EndMs: 2000}.Duration())
	assert.Zero(t, Segment{StartMs: 2000, EndMs: 500}.Duration())
}
