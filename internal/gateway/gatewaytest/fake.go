// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gatewaytest provides a programmable in-memory Gateway.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/ManuGH/vidsync/internal/gateway"
	"github.com/ManuGH/vidsync/internal/model"
)

// Operation names reported by Calls.
const (
	OpFetchJob      = gateway.OpFetchJob
	OpFetchSegments = gateway.OpFetchSegments
	OpFetchPeople   = gateway.OpFetchPeople
	OpPause         = gateway.OpPause
	OpResume        = gateway.OpResume
	OpSetFlag       = gateway.OpSetFlag
	OpDelete        = gateway.OpDelete
)

type (
	JobFunc      func(ctx context.Context, jobID string) (model.JobFields, error)
	SegmentsFunc func(ctx context.Context, jobID string) ([]model.Segment, error)
	PeopleFunc   func(ctx context.Context, jobID string) ([]model.Person, error)
	FlagFunc     func(ctx context.Context, jobID string, flagged bool, note string) (model.JobFields, error)
)

// Fake implements gateway.Gateway. Unset handlers return a processing job
// with the requested id, empty lists, and echo the id for mutations.
type Fake struct {
	mu       sync.Mutex
	job      JobFunc
	segments SegmentsFunc
	people   PeopleFunc
	pause    JobFunc
	resume   JobFunc
	flag     FlagFunc
	del      JobFunc
	calls    map[string]int
}

var _ gateway.Gateway = (*Fake)(nil)

// New returns a Fake with default handlers.
func New() *Fake {
	return &Fake{calls: make(map[string]int)}
}

// OnFetchJob replaces the handler.
func (f *Fake) OnFetchJob(fn JobFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job = fn
}

// OnFetchSegments replaces the handler.
func (f *Fake) OnFetchSegments(fn SegmentsFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = fn
}

// OnFetchPeople replaces the handler.
func (f *Fake) OnFetchPeople(fn PeopleFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.people = fn
}

// OnPause replaces the handler.
func (f *Fake) OnPause(fn JobFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pause = fn
}

// OnResume replaces the handler.
func (f *Fake) OnResume(fn JobFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resume = fn
}

// OnSetFlag replaces the handler.
func (f *Fake) OnSetFlag(fn FlagFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flag = fn
}

// OnDelete replaces the handler.
func (f *Fake) OnDelete(fn JobFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.del = fn
}

// Job makes FetchJob return a fixed result.
func (f *Fake) Job(fields model.JobFields, err error) {
	f.OnFetchJob(func(context.Context, string) (model.JobFields, error) { return fields, err })
}

// Segments makes FetchSegments return a fixed result.
func (f *Fake) Segments(segs []model.Segment, err error) {
	f.OnFetchSegments(func(context.Context, string) ([]model.Segment, error) { return segs, err })
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func defaultJob(jobID string) model.JobFields {
	return model.JobFields{ID: jobID, Status: model.StatusProcessing}
}

// FetchJob implements gateway.Gateway.
func (f *Fake) FetchJob(ctx context.Context, jobID string) (model.JobFields, error) {
	f.mu.Lock()
	fn := f.job
	f.calls[OpFetchJob]++
	f.mu.Unlock()
	if fn == nil {
		return defaultJob(jobID), nil
	}
	return fn(ctx, jobID)
}

// FetchSegments implements gateway.Gateway.
func (f *Fake) FetchSegments(ctx context.Context, jobID string) ([]model.Segment, error) {
	f.mu.Lock()
	fn := f.segments
	f.calls[OpFetchSegments]++
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, jobID)
}

// FetchDerivedMetadata implements gateway.Gateway.
func (f *Fake) FetchDerivedMetadata(ctx context.Context, jobID string) ([]model.Person, error) {
	f.mu.Lock()
	fn := f.people
	f.calls[OpFetchPeople]++
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, jobID)
}

func (f *Fake) mutate(ctx context.Context, op string, fn JobFunc, jobID string) (model.JobFields, error) {
	f.record(op)
	if fn == nil {
		return defaultJob(jobID), nil
	}
	return fn(ctx, jobID)
}

// Pause implements gateway.Gateway.
func (f *Fake) Pause(ctx context.Context, jobID string) (model.JobFields, error) {
	f.mu.Lock()
	fn := f.pause
	f.mu.Unlock()
	return f.mutate(ctx, OpPause, fn, jobID)
}

// Resume implements gateway.Gateway.
func (f *Fake) Resume(ctx context.Context, jobID string) (model.JobFields, error) {
	f.mu.Lock()
	fn := f.resume
	f.mu.Unlock()
	return f.mutate(ctx, OpResume, fn, jobID)
}

// SetFlag implements gateway.Gateway.
func (f *Fake) SetFlag(ctx context.Context, jobID string, flagged bool, note string) (model.JobFields, error) {
	f.mu.Lock()
	fn := f.flag
	f.calls[OpSetFlag]++
	f.mu.Unlock()
	if fn == nil {
		job := defaultJob(jobID)
		job.IsFlagged = flagged
		job.FlagNote = note
		return job, nil
	}
	return fn(ctx, jobID, flagged, note)
}

// Delete implements gateway.Gateway.
func (f *Fake) Delete(ctx context.Context, jobID string) (model.JobFields, error) {
	f.mu.Lock()
	fn := f.del
	f.mu.Unlock()
	return f.mutate(ctx, OpDelete, fn, jobID)
}
