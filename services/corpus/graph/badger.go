// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	kv "github.com/AleutianAI/nautilus/services/corpus/storage/badger"
)

// Key layout, with sep = 0x00:
//
//	g/<graph>/spo/<s> sep <p> sep <o>
//	g/<graph>/pos/<p> sep <o> sep <s>
//
// Values are empty. Identities never contain 0x00.
const sep = "\x00"

// Badger is a TripleStore on an embedded BadgerDB. Several named graphs
// can share one database.
//
// Thread Safety: Safe for concurrent use.
type Badger struct {
	db    *kv.DB
	graph string

	mu     sync.RWMutex
	closed bool
}

// NewBadger creates a store for graph over an opened database. The store
// owns db: Close and Destroy close it.
func NewBadger(db *kv.DB, graph string) *Badger {
	return &Badger{db: db, graph: graph}
}

// OpenBadger opens the database described by cfg and returns the store
// for graph.
func OpenBadger(cfg kv.Config, graph string) (*Badger, error) {
	db, err := kv.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open badger graph: %w", err)
	}
	return NewBadger(db, graph), nil
}

func (b *Badger) prefix() []byte {
	return []byte("g/" + b.graph + "/")
}

func (b *Badger) spoKey(s, p, o string) []byte {
	return []byte("g/" + b.graph + "/spo/" + s + sep + p + sep + o)
}

func (b *Badger) posKey(p, o, s string) []byte {
	return []byte("g/" + b.graph + "/pos/" + p + sep + o + sep + s)
}

func (b *Badger) check() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Add implements TripleStore.
func (b *Badger) Add(ctx context.Context, triples ...Triple) error {
	if err := b.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, t := range triples {
		if err := wb.Set(b.spoKey(t.Subject, t.Predicate, t.Object), nil); err != nil {
			return fmt.Errorf("write triple: %w", err)
		}
		if err := wb.Set(b.posKey(t.Predicate, t.Object, t.Subject), nil); err != nil {
			return fmt.Errorf("write triple: %w", err)
		}
	}
	return wb.Flush()
}

// scan returns the key suffixes after prefix.
func scan(txn *badgerdb.Txn, prefix []byte) []string {
	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []string
	for it.Rewind(); it.Valid(); it.Next() {
		out = append(out, string(bytes.TrimPrefix(it.Item().Key(), prefix)))
	}
	return out
}

// Objects implements TripleStore.
func (b *Badger) Objects(ctx context.Context, subject, predicate string) ([]string, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	var out []string
	err := b.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		out = scan(txn, b.spoKey(subject, predicate, ""))
		return nil
	})
	return out, err
}

// Subjects implements TripleStore.
func (b *Badger) Subjects(ctx context.Context, predicate, object string) ([]string, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	var out []string
	err := b.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		out = scan(txn, b.posKey(predicate, object, ""))
		return nil
	})
	return out, err
}

// Describe implements TripleStore.
func (b *Badger) Describe(ctx context.Context, subject string) ([]Triple, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	var out []Triple
	err := b.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		for _, rest := range scan(txn, []byte("g/"+b.graph+"/spo/"+subject+sep)) {
			p, o, ok := bytes.Cut([]byte(rest), []byte(sep))
			if !ok {
				return fmt.Errorf("malformed triple key for %s", subject)
			}
			out = append(out, Triple{Subject: subject, Predicate: string(p), Object: string(o)})
		}
		return nil
	})
	return out, err
}

// RemoveSubject implements TripleStore.
func (b *Badger) RemoveSubject(ctx context.Context, subject string) error {
	triples, err := b.Describe(ctx, subject)
	if err != nil {
		return err
	}
	keys := make([][]byte, 0, 2*len(triples))
	for _, t := range triples {
		keys = append(keys, b.spoKey(t.Subject, t.Predicate, t.Object), b.posKey(t.Predicate, t.Object, t.Subject))
	}
	return b.db.DeleteKeys(ctx, keys)
}

// Closure implements TripleStore as a breadth-first walk over the POS
// index inside one read transaction.
func (b *Badger) Closure(ctx context.Context, predicate, object string) ([]string, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	err := b.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		queue := []string{object}
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			cur := queue[0]
			queue = queue[1:]
			for _, s := range scan(txn, b.posKey(predicate, cur, "")) {
				if _, ok := seen[s]; ok {
					continue
				}
				seen[s] = struct{}{}
				queue = append(queue, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sortedKeys(seen), nil
}

// Reaches implements TripleStore.
func (b *Badger) Reaches(ctx context.Context, subject, predicate, object string) (bool, error) {
	if err := b.check(); err != nil {
		return false, err
	}
	found := false
	err := b.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		seen := map[string]struct{}{subject: {}}
		queue := []string{subject}
		for len(queue) > 0 && !found {
			cur := queue[0]
			queue = queue[1:]
			for _, o := range scan(txn, b.spoKey(cur, predicate, "")) {
				if o == object {
					found = true
					break
				}
				if _, ok := seen[o]; !ok {
					seen[o] = struct{}{}
					queue = append(queue, o)
				}
			}
		}
		return nil
	})
	return found, err
}

// Clear implements TripleStore.
func (b *Badger) Clear(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	keys, err := b.db.Keys(ctx, b.prefix())
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return b.db.DeleteKeys(ctx, keys)
}

// Destroy implements TripleStore.
func (b *Badger) Destroy() error {
	var dropErr error
	if b.check() == nil {
		if err := b.Clear(context.Background()); err != nil {
			dropErr = fmt.Errorf("drop graph %s: %w", b.graph, err)
		}
	}
	return errors.Join(dropErr, b.Close())
}

// Close implements TripleStore.
func (b *Badger) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.db.Close()
}
