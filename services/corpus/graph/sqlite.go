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
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS triples (
	graph TEXT NOT NULL,
	s     TEXT NOT NULL,
	p     TEXT NOT NULL,
	o     TEXT NOT NULL,
	PRIMARY KEY (graph, s, p, o)
);
CREATE INDEX IF NOT EXISTS triples_pos ON triples (graph, p, o, s);
`

// SQLite is a TripleStore in a SQLite database. Several named graphs can
// share one database file.
//
// Thread Safety: Safe for concurrent use.
type SQLite struct {
	db    *sql.DB
	graph string

	closeOnce sync.Once
	closeErr  error
	mu        sync.RWMutex
	closed    bool
}

// OpenSQLite opens or creates the graph named graph in the database at
// dsn. A dsn of "" or ":memory:" opens a private in-memory database.
//
// Outputs:
//
//	*SQLite - The store. Call Close or Destroy when done.
//	error - Non-nil if the database cannot be opened or migrated.
func OpenSQLite(ctx context.Context, dsn, graph string) (*SQLite, error) {
	inMemory := dsn == "" || dsn == ":memory:"
	if inMemory {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite graph: %w", err)
	}
	if inMemory {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create triples table: %w", err)
	}
	return &SQLite{db: db, graph: graph}, nil
}

func (s *SQLite) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Add implements TripleStore.
func (s *SQLite) Add(ctx context.Context, triples ...Triple) error {
	if err := s.check(); err != nil {
		return err
	}
	if len(triples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO triples (graph, s, p, o) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range triples {
		if _, err := stmt.ExecContext(ctx, s.graph, t.Subject, t.Predicate, t.Object); err != nil {
			return fmt.Errorf("insert triple: %w", err)
		}
	}
	return tx.Commit()
}

// Objects implements TripleStore.
func (s *SQLite) Objects(ctx context.Context, subject, predicate string) ([]string, error) {
	return s.column(ctx,
		`SELECT o FROM triples WHERE graph = ? AND s = ? AND p = ? ORDER BY o`,
		s.graph, subject, predicate)
}

// Subjects implements TripleStore.
func (s *SQLite) Subjects(ctx context.Context, predicate, object string) ([]string, error) {
	return s.column(ctx,
		`SELECT s FROM triples WHERE graph = ? AND p = ? AND o = ? ORDER BY s`,
		s.graph, predicate, object)
}

// Describe implements TripleStore.
func (s *SQLite) Describe(ctx context.Context, subject string) ([]Triple, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT p, o FROM triples WHERE graph = ? AND s = ?`, s.graph, subject)
	if err != nil {
		return nil, fmt.Errorf("describe %s: %w", subject, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Triple
	for rows.Next() {
		t := Triple{Subject: subject}
		if err := rows.Scan(&t.Predicate, &t.Object); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RemoveSubject implements TripleStore.
func (s *SQLite) RemoveSubject(ctx context.Context, subject string) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM triples WHERE graph = ? AND s = ?`, s.graph, subject)
	return err
}

// Closure implements TripleStore with a recursive query.
func (s *SQLite) Closure(ctx context.Context, predicate, object string) ([]string, error) {
	return s.column(ctx, `
WITH RECURSIVE below(id) AS (
	SELECT s FROM triples WHERE graph = ?1 AND p = ?2 AND o = ?3
	UNION
	SELECT t.s FROM triples t JOIN below b ON t.o = b.id
	WHERE t.graph = ?1 AND t.p = ?2
)
SELECT id FROM below ORDER BY id`, s.graph, predicate, object)
}

// Reaches implements TripleStore with a recursive query.
func (s *SQLite) Reaches(ctx context.Context, subject, predicate, object string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.QueryRowContext(ctx, `
WITH RECURSIVE above(id) AS (
	SELECT o FROM triples WHERE graph = ?1 AND s = ?2 AND p = ?3
	UNION
	SELECT t.o FROM triples t JOIN above a ON t.s = a.id
	WHERE t.graph = ?1 AND t.p = ?3
)
SELECT EXISTS (SELECT 1 FROM above WHERE id = ?4)`, s.graph, subject, predicate, object).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("reaches %s → %s: %w", subject, object, err)
	}
	return found, nil
}

// Clear implements TripleStore.
func (s *SQLite) Clear(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM triples WHERE graph = ?`, s.graph)
	return err
}

// Destroy implements TripleStore.
func (s *SQLite) Destroy() error {
	var dropErr error
	if s.check() == nil {
		_, dropErr = s.db.Exec(`DELETE FROM triples WHERE graph = ?`, s.graph)
		if dropErr != nil {
			dropErr = fmt.Errorf("drop graph %s: %w", s.graph, dropErr)
		}
	}
	return errors.Join(dropErr, s.Close())
}

// Close implements TripleStore.
func (s *SQLite) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Graph returns the graph name.
func (s *SQLite) Graph() string {
	return s.graph
}

func (s *SQLite) column(ctx context.Context, query string, args ...any) ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", firstLine(query), err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func firstLine(q string) string {
	q = strings.TrimSpace(q)
	if i := strings.IndexByte(q, '\n'); i >= 0 {
		return q[:i]
	}
	return q
}
