package store

import (
	"context"
	"time"

	"comexexport/internal/model"
)

// Store caches enumerated filter values between runs.
type Store interface {
	SaveFilterEntries(ctx context.Context, dimension, language string, entries []model.FilterEntry) error
	// ListFilterEntries returns cached entries fetched within maxAge, in their
	// original order. A non-positive maxAge disables the age check.
	ListFilterEntries(ctx context.Context, dimension, language string, maxAge time.Duration) ([]model.FilterEntry, error)
	Close() error
}

type NopStore struct{}

func (s *NopStore) SaveFilterEntries(ctx context.Context, dimension, language string, entries []model.FilterEntry) error {
	_ = ctx
	_ = dimension
	_ = language
	_ = entries
	return nil
}

func (s *NopStore) ListFilterEntries(ctx context.Context, dimension, language string, maxAge time.Duration) ([]model.FilterEntry, error) {
	_ = ctx
	_ = dimension
	_ = language
	_ = maxAge
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}
