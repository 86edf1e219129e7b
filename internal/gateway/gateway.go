// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gateway is the client's view of the job backend: reads of job
// state and the mutations a user may submit. Every failure is returned as
// an *Error carrying a Kind.
package gateway

import (
	"context"

	"github.com/ManuGH/vidsync/internal/model"
)

// Gateway fetches and mutates one job on the backend.
type Gateway interface {
	FetchJob(ctx context.Context, jobID string) (model.JobFields, error)
	FetchSegments(ctx context.Context, jobID string) ([]model.Segment, error)
	FetchDerivedMetadata(ctx context.Context, jobID string) ([]model.Person, error)

	Pause(ctx context.Context, jobID string) (model.JobFields, error)
	Resume(ctx context.Context, jobID string) (model.JobFields, error)
	SetFlag(ctx context.Context, jobID string, flagged bool, note string) (model.JobFields, error)
	Delete(ctx context.Context, jobID string) (model.JobFields, error)
}

// CredentialSource yields the bearer token for the current user. Token
// refresh is the source's concern; an empty token means the session has
// expired.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredentials is a fixed token.
type StaticCredentials string

// Token implements CredentialSource.
func (s StaticCredentials) Token(context.Context) (string, error) {
	return string(s), nil
}
