package telemetry

import (
	"context"

	"codeberg.org/mutker/blowerctl/internal/metrics"
)

// Collector records published metrics snapshots for later analysis.
type Collector interface {
	Record(ctx context.Context, snapshot *metrics.Snapshot) error
	Close() error
}

// Repository is the storage backend behind a Collector.
type Repository interface {
	Record(snapshot *metrics.Snapshot) error
	Close() error
}
