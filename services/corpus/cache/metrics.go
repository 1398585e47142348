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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("nautilus.cache")
	meter  = otel.Meter("nautilus.cache")
)

var (
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	cacheErrors     metric.Int64Counter
	computeDuration metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"nautilus_cache_hits_total",
			metric.WithDescription("Cached results served without recomputation"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"nautilus_cache_misses_total",
			metric.WithDescription("Lookups that had to compute their result"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheErrors, err = meter.Int64Counter(
			"nautilus_cache_backend_errors_total",
			metric.WithDescription("Backend or codec failures, by stage"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		computeDuration, err = meter.Float64Histogram(
			"nautilus_cache_compute_duration_seconds",
			metric.WithDescription("Time spent computing missed results"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordHit(ctx context.Context, op string) {
	if initMetrics() != nil {
		return
	}
	cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

func recordMiss(ctx context.Context, op string, elapsed time.Duration) {
	if initMetrics() != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", op))
	cacheMisses.Add(ctx, 1, attrs)
	computeDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func recordBackendError(ctx context.Context, stage string) {
	if initMetrics() != nil {
		return
	}
	cacheErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
