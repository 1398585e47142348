// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("nautilus.ingest")

// Phase labels.
const (
	phaseGroups   = "groups"
	phaseWorks    = "works"
	phaseTexts    = "texts"
	phaseFinalize = "finalize"
)

var (
	// ingestItems counts processed items by phase and outcome
	ingestItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nautilus_ingest_items_total",
		Help: "Descriptors and texts processed by ingestion, by phase and status",
	}, []string{"phase", "status"})

	// ingestDuration tracks wall time per phase
	ingestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nautilus_ingest_duration_seconds",
		Help:    "Ingestion phase duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
	}, []string{"phase"})

	// ingestPruned counts collections removed as empty branches
	ingestPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nautilus_ingest_pruned_total",
		Help: "Collections removed because they had no readable descendants",
	})
)
