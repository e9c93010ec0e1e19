package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/IshaanNene/pricewatch/internal/types"
)

// MirroredStore decorates a primary Store with secondary mirrors. The
// primary decides whether an append succeeded; mirror failures are logged.
type MirroredStore struct {
	primary Store
	mirrors []Mirror
	logger  *slog.Logger
}

// NewMirroredStore creates a store that copies every append to mirrors.
func NewMirroredStore(primary Store, mirrors []Mirror, logger *slog.Logger) *MirroredStore {
	return &MirroredStore{
		primary: primary,
		mirrors: mirrors,
		logger:  logger.With("component", "mirrored_store"),
	}
}

func (s *MirroredStore) Name() string { return "mirrored:" + s.primary.Name() }

func (s *MirroredStore) AppendObservation(ctx context.Context, obs types.Observation) error {
	if err := s.primary.AppendObservation(ctx, obs); err != nil {
		return err
	}
	for _, m := range s.mirrors {
		if err := m.MirrorObservation(ctx, obs); err != nil {
			s.logger.Warn("mirror append failed", "mirror", m.Name(), "product", obs.Product, "error", err)
		}
	}
	return nil
}

func (s *MirroredStore) AppendReview(ctx context.Context, rev types.ReviewRecord) error {
	if err := s.primary.AppendReview(ctx, rev); err != nil {
		return err
	}
	for _, m := range s.mirrors {
		if err := m.MirrorReview(ctx, rev); err != nil {
			s.logger.Warn("mirror append failed", "mirror", m.Name(), "product", rev.Product, "error", err)
		}
	}
	return nil
}

func (s *MirroredStore) ObservationsFor(ctx context.Context, product string) ([]types.Observation, error) {
	return s.primary.ObservationsFor(ctx, product)
}

func (s *MirroredStore) ReviewsFor(ctx context.Context, product string) ([]types.ReviewRecord, error) {
	return s.primary.ReviewsFor(ctx, product)
}

func (s *MirroredStore) SeriesFor(ctx context.Context, product string) (types.TimeSeries, error) {
	return s.primary.SeriesFor(ctx, product)
}

func (s *MirroredStore) Close() error {
	errs := []error{s.primary.Close()}
	for _, m := range s.mirrors {
		if err := m.Close(); err != nil {
			s.logger.Warn("mirror close failed", "mirror", m.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
