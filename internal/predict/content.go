package predict

import (
	"context"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ContentPrediction is the response for a content success prediction.
type ContentPrediction struct {
	Meta
	SuccessScore             int          `json:"successScore"`
	SuccessLevel             string       `json:"successLevel"`
	PredictedRating          float64      `json:"predictedRating"`
	PredictedViews           float64      `json:"predictedViews"`
	RevenueProjection        float64      `json:"revenueProjection"`
	SuccessFactors           []Factor     `json:"successFactors"`
	MarketingRecommendations []string     `json:"marketingRecommendations"`
	CompetitorAnalysis       []Competitor `json:"competitorAnalysis"`
}

// Competitor is a comparable title and its similarity percentage.
type Competitor struct {
	Competitor string `json:"competitor"`
	Similarity int    `json:"similarity"`
}

var marketingRecommendations = []string{
	"Focus on social media engagement campaigns",
	"Partner with influencers in target demographic",
	"Leverage cast popularity for promotional events",
	"Create behind-the-scenes content for buzz",
	"Target genre-specific communities and forums",
}

var competitorAnalysis = []Competitor{
	{Competitor: "Similar Genre Hit", Similarity: 78},
	{Competitor: "Same Director's Last Film", Similarity: 65},
	{Competitor: "Cast's Previous Work", Similarity: 72},
}

// ContentSuccess predicts how well a title will perform.
func (s *Service) ContentSuccess(ctx context.Context, req domain.ScoringRequest) (*ContentPrediction, error) {
	started := time.Now()

	res, err := s.engine.Evaluate(ctx, domain.DomainContentSuccess, req)
	if err != nil {
		return nil, err
	}

	score := res.Score
	ratio := score / 100

	out := &ContentPrediction{
		Meta:                     newMeta(res),
		SuccessScore:             int(score),
		SuccessLevel:             res.Label,
		PredictedRating:          2.5 + ratio*2.5,
		PredictedViews:           ratio*300_000_000 + 50_000_000,
		RevenueProjection:        res.Number("budget") * (1 + ratio*3),
		SuccessFactors:           factorsOf(res),
		MarketingRecommendations: append([]string(nil), marketingRecommendations...),
		CompetitorAnalysis:       append([]Competitor(nil), competitorAnalysis...),
	}

	s.complete(ctx, out.Meta, score, req, out, started)
	return out, nil
}
