// Package dashboard serves the analytics datasets behind the dashboard
// charts: static catalogs and generated time series.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
)

// ErrUnknownDataset is returned for a dataset name that does not exist.
var ErrUnknownDataset = errors.New("unknown dataset")

// DefaultSeriesTTL is how long a generated series stays stable.
const DefaultSeriesTTL = 5 * time.Minute

// Dataset names.
const (
	DatasetStats                 = "stats"
	DatasetTopContent            = "top-content"
	DatasetGenrePopularity       = "genre-popularity"
	DatasetContentRatings        = "content-ratings"
	DatasetContentPredictions    = "content-predictions"
	DatasetModelPerformance      = "model-performance"
	DatasetModelComparison       = "model-comparison"
	DatasetFeatureGroups         = "feature-groups"
	DatasetDataQuality           = "data-quality"
	DatasetViewingTrends         = "viewing-trends"
	DatasetRevenueData           = "revenue-data"
	DatasetChurnPredictions      = "churn-predictions"
	DatasetSeasonalTrends        = "seasonal-trends"
	DatasetUserEngagement        = "user-engagement"
	DatasetViewershipPredictions = "viewership-predictions"
	DatasetRevenueForecasting    = "revenue-forecasting"
)

// Counter reports recent prediction volume.
type Counter interface {
	Count(ctx context.Context, d domain.ScoringDomain, window time.Duration) (int64, error)
}

// Service resolves datasets by name.
type Service struct {
	cache    domain.Cache
	source   noise.Source
	ttl      time.Duration
	activity Counter
	now      func() time.Time

	static    map[string]func() any
	generated map[string]func(context.Context) (any, error)
}

// NewService creates a dashboard service. cache and activity may be nil;
// without a cache every request generates a fresh series.
func NewService(c domain.Cache, src noise.Source, ttl time.Duration, activity Counter) *Service {
	if ttl <= 0 {
		ttl = DefaultSeriesTTL
	}
	if src == nil {
		src = noise.Zero
	}
	s := &Service{
		cache:    c,
		source:   src,
		ttl:      ttl,
		activity: activity,
		now:      time.Now,
	}

	s.static = map[string]func() any{
		DatasetTopContent:         func() any { return topContent() },
		DatasetGenrePopularity:    func() any { return genrePopularity() },
		DatasetContentRatings:     func() any { return contentRatings() },
		DatasetContentPredictions: func() any { return contentPredictions() },
		DatasetModelPerformance:   func() any { return modelPerformance() },
		DatasetModelComparison:    func() any { return modelComparison() },
		DatasetFeatureGroups:      func() any { return featureGroups() },
		DatasetDataQuality:        func() any { return dataQuality() },
	}
	s.generated = map[string]func(context.Context) (any, error){
		DatasetViewingTrends:         series(s, DatasetViewingTrends, viewingTrends),
		DatasetRevenueData:           series(s, DatasetRevenueData, revenueData),
		DatasetChurnPredictions:      series(s, DatasetChurnPredictions, churnPredictions),
		DatasetSeasonalTrends:        series(s, DatasetSeasonalTrends, seasonalTrends),
		DatasetUserEngagement:        series(s, DatasetUserEngagement, userEngagement),
		DatasetViewershipPredictions: series(s, DatasetViewershipPredictions, viewershipPredictions),
		DatasetRevenueForecasting:    series(s, DatasetRevenueForecasting, revenueForecasting),
	}
	return s
}

// Names lists every dataset in display order.
func (s *Service) Names() []string {
	return []string{
		DatasetStats,
		DatasetTopContent,
		DatasetGenrePopularity,
		DatasetContentRatings,
		DatasetContentPredictions,
		DatasetModelPerformance,
		DatasetModelComparison,
		DatasetFeatureGroups,
		DatasetDataQuality,
		DatasetViewingTrends,
		DatasetRevenueData,
		DatasetChurnPredictions,
		DatasetSeasonalTrends,
		DatasetUserEngagement,
		DatasetViewershipPredictions,
		DatasetRevenueForecasting,
	}
}

// Dataset returns the named dataset.
func (s *Service) Dataset(ctx context.Context, name string) (any, error) {
	if name == DatasetStats {
		return s.Stats(ctx), nil
	}
	if build, ok := s.static[name]; ok {
		return build(), nil
	}
	if load, ok := s.generated[name]; ok {
		return load(ctx)
	}
	return nil, ErrUnknownDataset
}

// Stats returns the headline counters with the live prediction count.
func (s *Service) Stats(ctx context.Context) Stats {
	stats := baseStats()
	if s.activity == nil {
		return stats
	}
	n, err := s.activity.Count(ctx, "", 24*time.Hour)
	if err != nil {
		slog.Warn("failed to count recent predictions", "error", err)
		return stats
	}
	stats.PredictionsLast24h = n
	return stats
}

// Overview returns every dataset keyed by name.
func (s *Service) Overview(ctx context.Context) (map[string]any, error) {
	out := make(map[string]any, len(s.Names()))
	for _, name := range s.Names() {
		data, err := s.Dataset(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = data
	}
	return out, nil
}

func seriesKey(name string) string {
	return "dashboard:series:" + name
}

// series wraps a generator so its output is cached for the service TTL.
// A failing cache degrades to a freshly generated series.
func series[T any](s *Service, name string, gen func(noise.Source, time.Time) T) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		var out T
		err := cache.FetchJSON(ctx, s.cache, seriesKey(name), s.ttl, &out, func(context.Context) (any, error) {
			return gen(s.source, s.now()), nil
		})
		if err != nil {
			slog.Warn("dashboard cache unavailable, generating series",
				"dataset", name,
				"error", err,
			)
			return gen(s.source, s.now()), nil
		}
		return out, nil
	}
}
