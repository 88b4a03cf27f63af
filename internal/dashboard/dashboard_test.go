package dashboard

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
)

type fixedCounter struct {
	n   int64
	err error
}

func (c fixedCounter) Count(ctx context.Context, d domain.ScoringDomain, window time.Duration) (int64, error) {
	return c.n, c.err
}

type brokenCache struct {
	domain.Cache
}

func (brokenCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func fixedNow() time.Time {
	return time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
}

func TestDatasetNames(t *testing.T) {
	svc := NewService(nil, noise.Zero, 0, nil)
	ctx := context.Background()

	names := svc.Names()
	if len(names) != 16 {
		t.Fatalf("expected 16 datasets, got %d", len(names))
	}
	for _, name := range names {
		data, err := svc.Dataset(ctx, name)
		if err != nil {
			t.Errorf("Dataset(%q) failed: %v", name, err)
		}
		if data == nil {
			t.Errorf("Dataset(%q) returned nil", name)
		}
	}

	if _, err := svc.Dataset(ctx, "box-office"); !errors.Is(err, ErrUnknownDataset) {
		t.Errorf("expected ErrUnknownDataset, got %v", err)
	}

	overview, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if len(overview) != len(names) {
		t.Errorf("overview has %d datasets, want %d", len(overview), len(names))
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()

	t.Run("enriched with activity", func(t *testing.T) {
		svc := NewService(nil, noise.Zero, 0, fixedCounter{n: 42})
		stats := svc.Stats(ctx)
		if stats.PredictionsLast24h != 42 {
			t.Errorf("expected 42 recent predictions, got %d", stats.PredictionsLast24h)
		}
		if stats.TotalUsers != 247500000 || stats.AvgRating != 4.2 {
			t.Errorf("unexpected base stats: %+v", stats)
		}
	})

	t.Run("activity failure", func(t *testing.T) {
		svc := NewService(nil, noise.Zero, 0, fixedCounter{err: errors.New("down")})
		if got := svc.Stats(ctx).PredictionsLast24h; got != 0 {
			t.Errorf("expected 0 on failure, got %d", got)
		}
	})
}

func TestStaticCatalogs(t *testing.T) {
	svc := NewService(nil, noise.Zero, 0, nil)
	ctx := context.Background()

	data, _ := svc.Dataset(ctx, DatasetTopContent)
	titles := data.([]Title)
	if len(titles) != 10 || titles[0].Title != "Stranger Things 4" {
		t.Errorf("unexpected top content: %+v", titles)
	}

	data, _ = svc.Dataset(ctx, DatasetContentRatings)
	total := 0
	for _, r := range data.([]ContentRating) {
		total += r.Percentage
	}
	if total != 100 {
		t.Errorf("rating percentages sum to %d", total)
	}

	// Catalogs are built per call, so callers cannot corrupt them.
	titles[0].Title = "changed"
	data, _ = svc.Dataset(ctx, DatasetTopContent)
	if data.([]Title)[0].Title != "Stranger Things 4" {
		t.Error("catalog mutated by caller")
	}
}

func TestGeneratedSeries(t *testing.T) {
	now := fixedNow()

	t.Run("viewing trends", func(t *testing.T) {
		points := viewingTrends(noise.Fixed(0.5), now)
		if len(points) != 30 {
			t.Fatalf("expected 30 days, got %d", len(points))
		}
		if points[29].Date != "Oct 18" || points[0].Date != "Sep 19" {
			t.Errorf("unexpected date range %s..%s", points[0].Date, points[29].Date)
		}
		if points[0].Views != 175 || points[0].Hours != 95 {
			t.Errorf("unexpected values: %+v", points[0])
		}
	})

	t.Run("churn risk levels", func(t *testing.T) {
		points := churnPredictions(noise.Zero, now)
		tests := []struct {
			month     int
			churn     float64
			predicted float64
			risk      string
		}{
			{0, 2.5, 2.8, "Low"},
			{2, 3.2, 3.5, "Medium"},
			{3, 3.3, 3.6, "High"},
			{9, 1.7, 2.0, "Low"},
		}
		for _, tt := range tests {
			p := points[tt.month]
			if p.ChurnRate != tt.churn || p.PredictedChurn != tt.predicted || p.RiskLevel != tt.risk {
				t.Errorf("%s: got %+v, want churn=%v predicted=%v risk=%s",
					p.Month, p, tt.churn, tt.predicted, tt.risk)
			}
		}
	})

	t.Run("user engagement", func(t *testing.T) {
		hours := userEngagement(noise.Zero, now)
		if len(hours) != 24 {
			t.Fatalf("expected 24 hours, got %d", len(hours))
		}
		if hours[0].Hour != "00:00" || hours[23].Hour != "23:00" {
			t.Errorf("unexpected hour labels %s..%s", hours[0].Hour, hours[23].Hour)
		}
		if hours[0].ActiveUsers != 400 || hours[12].ActiveUsers != 1200 {
			t.Errorf("unexpected active users: %d, %d", hours[0].ActiveUsers, hours[12].ActiveUsers)
		}
		for _, h := range hours {
			if h.ActiveUsers < 200 {
				t.Errorf("%s below floor: %d", h.Hour, h.ActiveUsers)
			}
			if h.NewSignups != 10 {
				t.Errorf("%s signups = %d, want 10", h.Hour, h.NewSignups)
			}
		}
	})

	t.Run("viewership predictions", func(t *testing.T) {
		days := viewershipPredictions(noise.Zero, now)
		if len(days) != 61 {
			t.Fatalf("expected 61 days, got %d", len(days))
		}
		if days[0].Type != "historical" || days[0].Predicted != nil || *days[0].Actual != 150 {
			t.Errorf("unexpected first day: %+v", days[0])
		}
		today := days[30]
		if today.Date != "Today" || *today.Confidence != 95 || today.Actual == nil || today.Predicted == nil {
			t.Errorf("unexpected today marker: %+v", today)
		}
		if days[31].Date != "Oct 19" || *days[31].Confidence != 93 || days[31].Actual != nil {
			t.Errorf("unexpected first forecast: %+v", days[31])
		}
		if *days[60].Confidence != 60 {
			t.Errorf("confidence should floor at 60, got %d", *days[60].Confidence)
		}
	})

	t.Run("revenue forecasting", func(t *testing.T) {
		quarters := revenueForecasting(noise.Zero, now)
		if len(quarters) != 12 {
			t.Fatalf("expected 12 quarters, got %d", len(quarters))
		}
		if quarters[0].Quarter != "Q1 2025" || quarters[7].Quarter != "Q4 2026" || quarters[11].Quarter != "Q4 2027" {
			t.Errorf("unexpected quarter labels: %s, %s, %s",
				quarters[0].Quarter, quarters[7].Quarter, quarters[11].Quarter)
		}
		if quarters[0].ActualRevenue == nil || *quarters[0].ActualRevenue != 7.5 || quarters[0].Confidence != nil {
			t.Errorf("unexpected first quarter: %+v", quarters[0])
		}
		forecast := quarters[8]
		if forecast.ActualRevenue != nil || *forecast.PredictedRevenue != 10.1 || *forecast.Confidence != 93 {
			t.Errorf("unexpected first forecast: %+v", forecast)
		}
		if *quarters[11].Confidence != 87 {
			t.Errorf("expected last confidence 87, got %d", *quarters[11].Confidence)
		}
		if quarters[0].Subscribers != 240 || quarters[11].Subscribers != 328 {
			t.Errorf("unexpected subscribers: %d, %d", quarters[0].Subscribers, quarters[11].Subscribers)
		}
	})
}

func TestSeriesCaching(t *testing.T) {
	ctx := context.Background()

	t.Run("stable within ttl", func(t *testing.T) {
		svc := NewService(cache.NewLRUCache(100), noise.NewSequence(0, 0.9), time.Minute, nil)
		first, err := svc.Dataset(ctx, DatasetViewingTrends)
		if err != nil {
			t.Fatalf("Dataset failed: %v", err)
		}
		second, _ := svc.Dataset(ctx, DatasetViewingTrends)
		if !reflect.DeepEqual(first, second) {
			t.Error("cached series changed between calls")
		}
	})

	t.Run("regenerated without cache", func(t *testing.T) {
		svc := NewService(nil, noise.NewSequence(0, 0.9), time.Minute, nil)
		first, _ := svc.Dataset(ctx, DatasetViewingTrends)
		second, _ := svc.Dataset(ctx, DatasetViewingTrends)
		if first.([]ViewingTrend)[0].Views == second.([]ViewingTrend)[0].Views {
			t.Error("expected a fresh series without a cache")
		}
	})

	t.Run("cache failure degrades", func(t *testing.T) {
		svc := NewService(brokenCache{}, noise.Zero, time.Minute, nil)
		data, err := svc.Dataset(ctx, DatasetRevenueData)
		if err != nil {
			t.Fatalf("expected fallback, got %v", err)
		}
		months := data.([]RevenueMonth)
		if len(months) != 12 || months[11].Revenue != 8050 || months[11].Subscribers != 262 {
			t.Errorf("unexpected revenue data: %+v", months[11])
		}
	})
}
