// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CheckMode selects the integrity pragma.
type CheckMode string

const (
	QuickCheck CheckMode = "quick_check"
	FullCheck  CheckMode = "integrity_check"
)

// Verify runs the pragma for mode against a read-only handle on path. A
// healthy database yields no problems.
func Verify(ctx context.Context, path string, mode CheckMode) ([]string, error) {
	if mode != QuickCheck && mode != FullCheck {
		return nil, fmt.Errorf("sqlite: unknown check mode %q", mode)
	}
	db, err := Open(ctx, path, ReadOnly(), WithMaxConns(1), WithBusyTimeout(2*time.Second))
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, "PRAGMA "+string(mode))
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", mode, err)
	}
	defer func() { _ = rows.Close() }()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("sqlite: %s row: %w", mode, err)
		}
		if !strings.EqualFold(line, "ok") {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", mode, err)
	}
	return problems, nil
}
