// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore keeps history under keys "hist:<job>:<unix-nanos>:<seq>".
// Fixed-width numbers make lexical key order match append order.
type BadgerStore struct {
	db  *badger.DB
	seq atomic.Uint64
}

// OpenBadgerStore opens or creates a badger directory at path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("history store: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func historyPrefix(jobID string) []byte {
	return []byte("hist:" + url.QueryEscape(jobID) + ":")
}

// Append implements Store.
func (s *BadgerStore) Append(_ context.Context, rec Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("history store: encode: %w", err)
	}
	key := fmt.Appendf(historyPrefix(rec.JobID), "%020d:%010d", rec.ObservedAt.UnixNano(), s.seq.Add(1))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

// History implements Store.
func (s *BadgerStore) History(_ context.Context, jobID string, limit int) ([]Record, error) {
	prefix := historyPrefix(jobID)
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("history store: read badger: %w", err)
	}
	return out, nil
}

// Close implements Store.
func (s *BadgerStore) Close() error { return s.db.Close() }
