package storage

import (
	"context"

	"github.com/IshaanNene/pricewatch/internal/types"
)

// Store is the append-only history of observations and reviews.
// Implementations must be safe for concurrent use.
type Store interface {
	// AppendObservation durably records one observation.
	AppendObservation(ctx context.Context, obs types.Observation) error

	// AppendReview durably records one review text.
	AppendReview(ctx context.Context, rev types.ReviewRecord) error

	// ObservationsFor returns every observation of product in append order.
	ObservationsFor(ctx context.Context, product string) ([]types.Observation, error)

	// ReviewsFor returns every review of product in append order.
	ReviewsFor(ctx context.Context, product string) ([]types.ReviewRecord, error)

	// SeriesFor returns the daily discount series of product.
	SeriesFor(ctx context.Context, product string) (types.TimeSeries, error)

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// Mirror receives a copy of every appended record. Mirrors are secondary:
// their failures never fail an append.
type Mirror interface {
	MirrorObservation(ctx context.Context, obs types.Observation) error
	MirrorReview(ctx context.Context, rev types.ReviewRecord) error
	Close() error
	Name() string
}
