// Package predict assembles domain predictions from rule-table scores.
// It persists every prediction, publishes it on the event bus and feeds
// the activity counters.
package predict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/activity"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// ErrNoHistory is returned by history lookups when no repository is configured.
var ErrNoHistory = errors.New("prediction history is not available")

// Recorder observes completed predictions.
type Recorder interface {
	ObservePrediction(d domain.ScoringDomain, label string)
}

// Service produces predictions for every scoring domain.
type Service struct {
	engine   *rules.Engine
	source   noise.Source
	repo     domain.Repository
	bus      domain.EventBus
	activity *activity.Service
	metrics  Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithRepository persists predictions.
func WithRepository(repo domain.Repository) Option {
	return func(s *Service) { s.repo = repo }
}

// WithBus publishes completed predictions.
func WithBus(bus domain.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithActivity records prediction volume.
func WithActivity(a *activity.Service) Option {
	return func(s *Service) { s.activity = a }
}

// WithRecorder reports predictions to a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// NewService creates a prediction service. source supplies the draws that
// are not part of a rule table, such as viewership confidence; it should be
// the engine's source so a seed reproduces whole responses.
func NewService(engine *rules.Engine, source noise.Source, opts ...Option) *Service {
	if source == nil {
		source = noise.Zero
	}
	s := &Service{
		engine: engine,
		source: source,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Meta is carried by every prediction response.
type Meta struct {
	ID            string                `json:"id"`
	Domain        domain.ScoringDomain  `json:"domain"`
	TableVersion  string                `json:"tableVersion"`
	Label         string                `json:"label"`
	Contributions []domain.Contribution `json:"contributions"`
	Defaulted     []string              `json:"defaulted,omitempty"`
	Warnings      []string              `json:"warnings,omitempty"`
	CreatedAt     time.Time             `json:"createdAt"`
}

func newMeta(res *domain.ScoreResult) Meta {
	return Meta{
		ID:            uuid.New().String(),
		Domain:        res.Domain,
		TableVersion:  res.TableVersion,
		Label:         res.Label,
		Contributions: res.Contributions,
		Defaulted:     res.Defaulted,
		Warnings:      res.Warnings,
		CreatedAt:     time.Now().UTC(),
	}
}

// Factor is a named score or impact shown next to a prediction.
type Factor struct {
	Factor string  `json:"factor"`
	Score  float64 `json:"score"`
}

func factorsOf(res *domain.ScoreResult) []Factor {
	out := make([]Factor, len(res.Factors))
	for i, f := range res.Factors {
		out[i] = Factor{Factor: f.Name, Score: f.Value}
	}
	return out
}

type sourceKey struct{}

// WithSource tags predictions made with ctx as coming from source
// (domain.SourceAPI when unset).
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return domain.SourceAPI
}

// Predict dispatches to the prediction for d.
func (s *Service) Predict(ctx context.Context, d domain.ScoringDomain, req domain.ScoringRequest) (any, error) {
	switch d {
	case domain.DomainChurn:
		return s.Churn(ctx, req)
	case domain.DomainContentSuccess:
		return s.ContentSuccess(ctx, req)
	case domain.DomainViewership:
		return s.Viewership(ctx, req)
	case domain.DomainRevenue:
		return s.Revenue(ctx, req)
	default:
		return nil, fmt.Errorf("%w: %s", rules.ErrUnknownDomain, d)
	}
}

// PredictionEvent is the payload published on TopicPredictionCompleted.
type PredictionEvent struct {
	ID     string               `json:"id"`
	Domain domain.ScoringDomain `json:"domain"`
	Score  float64              `json:"score"`
	Label  string               `json:"label"`
	Source string               `json:"source"`
}

// complete persists, publishes and counts a prediction. Failures are
// logged; the caller still gets its answer.
func (s *Service) complete(ctx context.Context, meta Meta, score float64, req domain.ScoringRequest, out any, started time.Time) {
	source := sourceFrom(ctx)

	if s.repo != nil {
		output, err := json.Marshal(out)
		if err != nil {
			slog.Error("failed to encode prediction", "id", meta.ID, "error", err)
		} else {
			p := &domain.Prediction{
				ID:        meta.ID,
				Domain:    meta.Domain,
				Score:     score,
				Label:     meta.Label,
				Input:     req,
				Output:    output,
				Source:    source,
				ProcessMs: time.Since(started).Milliseconds(),
				CreatedAt: meta.CreatedAt,
			}
			if err := s.repo.SavePrediction(ctx, p); err != nil {
				slog.Error("failed to save prediction", "id", meta.ID, "domain", meta.Domain, "error", err)
			}
		}
	}

	if s.bus != nil {
		payload, _ := json.Marshal(PredictionEvent{
			ID:     meta.ID,
			Domain: meta.Domain,
			Score:  score,
			Label:  meta.Label,
			Source: source,
		})
		if err := s.bus.Publish(ctx, domain.TopicPredictionCompleted, payload); err != nil {
			slog.Warn("failed to publish prediction", "id", meta.ID, "error", err)
		}
	}

	if s.activity != nil {
		if err := s.activity.Record(ctx, meta.Domain); err != nil {
			slog.Warn("failed to record activity", "domain", meta.Domain, "error", err)
		}
	}

	if s.metrics != nil {
		s.metrics.ObservePrediction(meta.Domain, meta.Label)
	}

	if len(meta.Defaulted) > 0 {
		slog.Debug("prediction used defaulted fields",
			"id", meta.ID,
			"domain", meta.Domain,
			"fields", meta.Defaulted,
		)
	}
}

// Get returns a stored prediction.
func (s *Service) Get(ctx context.Context, id string) (*domain.Prediction, error) {
	if s.repo == nil {
		return nil, ErrNoHistory
	}
	return s.repo.GetPrediction(ctx, id)
}

// History lists stored predictions, newest first.
func (s *Service) History(ctx context.Context, filter domain.PredictionFilter) ([]*domain.Prediction, error) {
	if s.repo == nil {
		return nil, ErrNoHistory
	}
	if filter.Domain != "" && !filter.Domain.Valid() {
		return nil, fmt.Errorf("%w: %s", rules.ErrUnknownDomain, filter.Domain)
	}
	return s.repo.ListPredictions(ctx, filter)
}
