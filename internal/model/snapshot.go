// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"slices"
	"time"
)

// Snapshot is an immutable point-in-time view of one job: its fields, its
// segment list and its derived people. A Snapshot is never modified after
// NewSnapshot returns; merges build a new one. Callers must not mutate the
// slices they read from it.
type Snapshot struct {
	Job       JobFields `json:"job"`
	Segments  []Segment `json:"segments"`
	People    []Person  `json:"people"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewSnapshot copies the inputs, orders segments by OrderNo and people by
// SortPeople, and stamps the result with fetchedAt.
func NewSnapshot(job JobFields, segments []Segment, people []Person, fetchedAt time.Time) *Snapshot {
	segs := slices.Clone(segments)
	if segs == nil {
		segs = []Segment{}
	}
	slices.SortStableFunc(segs, func(a, b Segment) int {
		return a.OrderNo - b.OrderNo
	})

	ppl := slices.Clone(people)
	if ppl == nil {
		ppl = []Person{}
	}
	SortPeople(ppl)

	return &Snapshot{
		Job:       job,
		Segments:  segs,
		People:    ppl,
		FetchedAt: fetchedAt,
	}
}

// JobID returns the identity of the snapshot's job.
func (s *Snapshot) JobID() string {
	if s == nil {
		return ""
	}
	return s.Job.ID
}

// Status returns the job status, or "" for a nil snapshot.
func (s *Snapshot) Status() Status {
	if s == nil {
		return ""
	}
	return s.Job.Status
}

// IsTerminal reports whether the snapshot's status is terminal.
func (s *Snapshot) IsTerminal() bool {
	return s != nil && s.Job.Status.IsTerminal()
}

// WithJob returns a new snapshot carrying job while keeping the segment and
// people lists of s.
func (s *Snapshot) WithJob(job JobFields, fetchedAt time.Time) *Snapshot {
	if s == nil {
		return NewSnapshot(job, nil, nil, fetchedAt)
	}
	return &Snapshot{
		Job:       job,
		Segments:  s.Segments,
		People:    s.People,
		FetchedAt: fetchedAt,
	}
}
