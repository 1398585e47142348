// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	kv "github.com/AleutianAI/nautilus/services/corpus/storage/badger"
)

// =============================================================================
// BadgerDB
// =============================================================================

// Badger is a file-backed Backend on BadgerDB. Expiry uses Badger's native
// entry TTL.
type Badger struct {
	db *kv.DB
}

// NewBadger wraps an opened database. The backend owns db from here on.
func NewBadger(db *kv.DB) *Badger {
	return &Badger{db: db}
}

// OpenBadger opens a Badger backend at cfg.Path.
func OpenBadger(cfg kv.Config) (*Badger, error) {
	db, err := kv.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return NewBadger(db), nil
}

// Get implements Backend.
func (b *Badger) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var out []byte
	err := b.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Set implements Backend.
func (b *Badger) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		e := badgerdb.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// DeletePrefix implements Backend.
func (b *Badger) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := b.db.Keys(ctx, []byte(prefix))
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := b.db.DeleteKeys(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Clear implements Backend.
func (b *Badger) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.DropAll()
}

// Close implements Backend.
func (b *Badger) Close() error {
	return b.db.Close()
}

// =============================================================================
// LevelDB
// =============================================================================

// LevelDB is a file-backed Backend on goleveldb.
//
// Description:
//
//	LevelDB has no TTL, so each value is stored behind an 8-byte
//	big-endian expiry (Unix nanoseconds, 0 = never). Expired values are
//	deleted on the read that finds them.
type LevelDB struct {
	db  *leveldb.DB
	now func() time.Time
}

// OpenLevelDB opens or creates a LevelDB backend at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	if path == "" {
		return nil, errors.New("leveldb cache requires a path")
	}
	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", path, err)
	}
	db, err := leveldb.OpenFile(path, &opt.Options{
		Compression: opt.NoCompression,
		Filter:      filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb cache: %w", err)
	}
	return &LevelDB{db: db, now: time.Now}, nil
}

const expiryHeader = 8

// Get implements Backend.
func (l *LevelDB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	raw, err := l.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(raw) < expiryHeader {
		return nil, false, fmt.Errorf("corrupt cache entry %q", key)
	}
	if exp := int64(binary.BigEndian.Uint64(raw[:expiryHeader])); exp != 0 && l.now().UnixNano() >= exp {
		if err := l.db.Delete([]byte(key), nil); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return raw[expiryHeader:], true, nil
}

// Set implements Backend.
func (l *LevelDB) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, expiryHeader+len(value))
	if ttl > 0 {
		binary.BigEndian.PutUint64(buf, uint64(l.now().Add(ttl).UnixNano()))
	}
	copy(buf[expiryHeader:], value)
	return l.db.Put([]byte(key), buf, nil)
}

// DeletePrefix implements Backend.
func (l *LevelDB) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return l.deleteRange(ctx, util.BytesPrefix([]byte(prefix)))
}

// Clear implements Backend.
func (l *LevelDB) Clear(ctx context.Context) error {
	_, err := l.deleteRange(ctx, nil)
	return err
}

func (l *LevelDB) deleteRange(ctx context.Context, r *util.Range) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	batch := &leveldb.Batch{}
	iter := l.db.NewIterator(r, nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, err
	}
	if batch.Len() == 0 {
		return 0, nil
	}
	if err := l.db.Write(batch, nil); err != nil {
		return 0, err
	}
	return batch.Len(), nil
}

// Close implements Backend.
func (l *LevelDB) Close() error {
	if err := l.db.Close(); err != nil && !errors.Is(err, leveldb.ErrClosed) {
		return err
	}
	return nil
}
