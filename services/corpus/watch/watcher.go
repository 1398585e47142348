// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-ingests a corpus when its source files change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of a file change.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Change is one file system change under a source root.
type Change struct {
	Path string
	Op   Op
	Time time.Time
}

// Handler receives a debounced batch of changes, at most one change per
// path.
type Handler func(changes []Change)

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the watcher waits for quiet before handing a
	// batch over. Default: 500ms
	Debounce time.Duration

	// Ignore lists base-name globs of files and directories to skip.
	// Default: hidden entries and editor swap files.
	Ignore []string

	// BufferSize bounds the pending change queue. Default: 1000
	BufferSize int
}

// DefaultOptions returns the watcher defaults.
func DefaultOptions() Options {
	return Options{
		Debounce:   500 * time.Millisecond,
		Ignore:     []string{".*", "*.swp", "*.tmp", "*~"},
		BufferSize: 1000,
	}
}

// Watcher watches corpus roots for changes to XML files.
//
// # Description
//
// Every directory below each root is watched; directories created later
// are added as they appear. Only .xml files (descriptors and texts) and
// removed directories produce changes. Changes are collected until the
// debounce window passes without new ones, then handed to the handler
// as one batch.
//
// # Thread Safety
//
// Start and Stop are safe to call from any goroutine. The handler runs
// on a single goroutine.
type Watcher struct {
	roots   []string
	watcher *fsnotify.Watcher
	handler Handler
	opts    Options
	logger  *slog.Logger

	changes  chan Change
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// New creates a Watcher over roots. A nil logger uses slog.Default.
func New(roots []string, handler Handler, opts Options, logger *slog.Logger) (*Watcher, error) {
	defaults := DefaultOptions()
	if opts.Debounce <= 0 {
		opts.Debounce = defaults.Debounce
	}
	if opts.Ignore == nil {
		opts.Ignore = defaults.Ignore
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaults.BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		roots:   append([]string(nil), roots...),
		watcher: fw,
		handler: handler,
		opts:    opts,
		logger:  logger,
		changes: make(chan Change, opts.BufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start adds every root recursively and begins delivering changes. It
// returns once the watches are in place. Cancelling ctx stops the
// watcher like Stop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			w.mu.Lock()
			w.watching = false
			w.mu.Unlock()
			w.Stop()
			return err
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.processEvents(ctx)
	}()
	go func() {
		defer wg.Done()
		w.debounceLoop(ctx)
	}()
	go func() {
		wg.Wait()
		close(w.stopped)
	}()

	w.logger.Info("watching corpus sources", slog.Int("roots", len(w.roots)))
	return nil
}

// Stop stops watching and waits for a running handler to return. Safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()

		w.mu.Lock()
		started := w.watching
		w.watching = false
		w.mu.Unlock()
		if started {
			<-w.stopped
		}
	})
}

// Watching reports whether the watcher is active.
func (w *Watcher) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.opts.Ignore {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// relevant reports whether a change to path can alter the corpus.
func relevant(path string, op fsnotify.Op) bool {
	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return true
	}
	// A removed or renamed directory takes its descriptors with it.
	return op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename)
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.ignored(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("cannot watch new directory",
							slog.String("path", event.Name),
							slog.String("error", err.Error()))
					}
					// Files copied in with the directory may predate the watch.
					w.enqueue(Change{Path: event.Name, Op: OpCreate, Time: time.Now()})
					continue
				}
			}
			if !relevant(event.Name, event.Op) {
				continue
			}
			w.enqueue(Change{Path: event.Name, Op: convertOp(event.Op), Time: time.Now()})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) enqueue(c Change) {
	select {
	case w.changes <- c:
	default:
		w.logger.Warn("change queue full, dropping event", slog.String("path", c.Path))
	}
}

func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 && w.handler != nil {
			w.handler(dedupe(batch))
		}
		batch = batch[:0]
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case c := <-w.changes:
			batch = append(batch, c)
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// dedupe keeps the latest change per path, in first-seen order.
func dedupe(changes []Change) []Change {
	seen := make(map[string]int)
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			out[i] = c
			continue
		}
		seen[c.Path] = len(out)
		out = append(out, c)
	}
	return out
}
