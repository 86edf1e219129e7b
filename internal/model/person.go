// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"slices"
	"strings"
)

// Person is derived metadata: an entity recognised in the job's media.
type Person struct {
	Name       string   `json:"name"`
	Confidence *float64 `json:"confidence,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
	Role       string   `json:"role,omitempty"`
}

// SortPeople orders in place by confidence descending, name ascending
// (case-insensitive) on ties, with a nil confidence sorting last.
func SortPeople(people []Person) {
	slices.SortStableFunc(people, comparePeople)
}

func comparePeople(a, b Person) int {
	switch {
	case a.Confidence == nil && b.Confidence != nil:
		return 1
	case a.Confidence != nil && b.Confidence == nil:
		return -1
	case a.Confidence != nil && b.Confidence != nil:
		if *a.Confidence > *b.Confidence {
			return -1
		}
		if *a.Confidence < *b.Confidence {
			return 1
		}
	}
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}
