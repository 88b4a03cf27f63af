package predict

import (
	"context"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/trend"
)

// ViewershipPrediction is the response for a viewership prediction.
type ViewershipPrediction struct {
	Meta
	PredictedViews int64        `json:"predictedViews"`
	Tier           string       `json:"tier"`
	Confidence     int          `json:"confidence"`
	Factors        []Impact     `json:"factors"`
	Trend          []DailyViews `json:"trend"`
}

// Impact is a factor's percentage effect on predicted views.
type Impact struct {
	Factor string  `json:"factor"`
	Impact float64 `json:"impact"`
}

// DailyViews is the projected audience, in millions, on a day after release.
type DailyViews struct {
	Day   int     `json:"day"`
	Views float64 `json:"views"`
}

// Viewership predicts the audience of a release.
func (s *Service) Viewership(ctx context.Context, req domain.ScoringRequest) (*ViewershipPrediction, error) {
	started := time.Now()

	res, err := s.engine.Evaluate(ctx, domain.DomainViewership, req)
	if err != nil {
		return nil, err
	}

	views := res.Score
	out := &ViewershipPrediction{
		Meta:           newMeta(res),
		PredictedViews: int64(views),
		Tier:           res.Label,
		Confidence:     int(math.Floor(85 + s.source.Float64()*10)),
		Factors:        make([]Impact, len(res.Factors)),
		Trend:          ViewershipTrend(views),
	}
	for i, f := range res.Factors {
		out.Factors[i] = Impact{Factor: f.Name, Impact: f.Value}
	}

	s.complete(ctx, out.Meta, views, req, out, started)
	return out, nil
}

// ViewershipTrend projects daily views, in millions rounded to 0.1, over
// the first week: views·(0.3 + 0.7e^(−0.3d)).
func ViewershipTrend(views float64) []DailyViews {
	millions := views / 1_000_000
	points := trend.Decay(trend.DecayParams{
		Points: 7,
		Start:  1,
		Base:   0.7 * millions,
		Floor:  0.3 * millions,
		Rate:   0.3,
	}, nil)

	out := make([]DailyViews, len(points))
	for i, p := range points {
		out[i] = DailyViews{Day: p.Index, Views: trend.Round(p.Value, 1)}
	}
	return out
}
