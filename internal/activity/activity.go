// Package activity tracks prediction volume.
package activity

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultWindow is the counter window used when none is configured.
const DefaultWindow = 24 * time.Hour

// Service records predictions in windowed cache counters and counts
// persisted predictions.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	window time.Duration
}

// NewService creates a new activity service. Either dependency may be nil.
func NewService(repo domain.Repository, cache domain.Cache, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		window: window,
	}
}

// Window returns the counter window.
func (s *Service) Window() time.Duration {
	return s.window
}

func counterKey(d domain.ScoringDomain) string {
	if d == "" {
		return "activity:all"
	}
	return "activity:" + string(d)
}

func snapshotKey(d domain.ScoringDomain) string {
	return counterKey(d) + ":last"
}

// Record counts one prediction for d and for the all-domains total.
func (s *Service) Record(ctx context.Context, d domain.ScoringDomain) error {
	if s.cache == nil {
		return nil
	}

	for _, key := range []domain.ScoringDomain{d, ""} {
		n, err := s.cache.IncrementCounter(ctx, counterKey(key), s.window)
		if err != nil {
			return fmt.Errorf("failed to increment activity counter: %w", err)
		}
		if err := s.cache.Set(ctx, snapshotKey(key), []byte(strconv.FormatInt(n, 10)), s.window); err != nil {
			return fmt.Errorf("failed to store activity snapshot: %w", err)
		}
	}
	return nil
}

// Count returns how many predictions for d (all domains when empty) were
// created within window. The repository is authoritative; the cache counter
// answers when no repository is configured or it fails.
func (s *Service) Count(ctx context.Context, d domain.ScoringDomain, window time.Duration) (int64, error) {
	if window <= 0 {
		window = s.window
	}

	if s.repo != nil {
		count, err := s.repo.CountPredictions(ctx, d, time.Now().Add(-window))
		if err == nil {
			return count, nil
		}
		if s.cache == nil {
			return 0, fmt.Errorf("failed to count predictions: %w", err)
		}
		slog.Warn("prediction count unavailable, using cache counter",
			"domain", d,
			"error", err,
		)
	}

	return s.cachedCount(ctx, d)
}

func (s *Service) cachedCount(ctx context.Context, d domain.ScoringDomain) (int64, error) {
	if s.cache == nil {
		return 0, fmt.Errorf("no data source available")
	}

	data, err := s.cache.Get(ctx, snapshotKey(d))
	if err != nil {
		return 0, fmt.Errorf("failed to read activity counter: %w", err)
	}
	if data == nil {
		return 0, nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed activity counter: %w", err)
	}
	return n, nil
}
