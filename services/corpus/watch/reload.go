// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/nautilus/services/corpus/ingest"
)

// Parser re-ingests a corpus. *resolver.Resolver satisfies it.
type Parser interface {
	Sources() []string
	Parse(ctx context.Context) (*ingest.Report, error)
}

// Reload returns a Handler that re-parses p after every batch. Parse
// drops the cache and the store before ingesting, so removed texts
// disappear too. A zero timeout means no deadline. onDone, when non-nil,
// receives the outcome of each re-parse.
func Reload(p Parser, timeout time.Duration, logger *slog.Logger, onDone func(*ingest.Report, error)) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(changes []Change) {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		logger.Info("corpus sources changed, re-parsing",
			slog.Int("changes", len(changes)),
			slog.String("first", changes[0].Path))

		report, err := p.Parse(ctx)
		if err != nil {
			logger.Error("re-parse failed", slog.String("error", err.Error()))
		} else {
			logger.Info("re-parse complete",
				slog.Int("groups", report.Groups),
				slog.Int("texts", report.Texts),
				slog.Int("invalid", len(report.Invalid)),
				slog.Duration("took", report.Duration))
		}
		if onDone != nil {
			onDone(report, err)
		}
	}
}

// Resolver watches the sources of p and re-parses it on change. Stop the
// returned watcher to end it.
func Resolver(ctx context.Context, p Parser, opts Options, logger *slog.Logger, onDone func(*ingest.Report, error)) (*Watcher, error) {
	w, err := New(p.Sources(), Reload(p, 0, logger, onDone), opts, logger)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
