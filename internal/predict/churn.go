package predict

import (
	"context"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ChurnPrediction is the response for a churn prediction.
type ChurnPrediction struct {
	Meta
	ChurnProbability int      `json:"churnProbability"`
	RiskLevel        string   `json:"riskLevel"`
	RiskFactors      []Factor `json:"riskFactors"`
	Recommendations  []string `json:"recommendations"`
}

var churnRecommendations = []string{
	"Offer personalized content recommendations",
	"Provide customer support outreach",
	"Consider retention discount offer",
	"Improve content discovery experience",
	"Send engagement re-activation campaigns",
}

// Churn predicts the probability that a subscriber cancels.
func (s *Service) Churn(ctx context.Context, req domain.ScoringRequest) (*ChurnPrediction, error) {
	started := time.Now()

	res, err := s.engine.Evaluate(ctx, domain.DomainChurn, req)
	if err != nil {
		return nil, err
	}

	out := &ChurnPrediction{
		Meta:             newMeta(res),
		ChurnProbability: int(res.Score),
		RiskLevel:        res.Label,
		RiskFactors:      factorsOf(res),
		Recommendations:  append([]string(nil), churnRecommendations...),
	}

	s.complete(ctx, out.Meta, res.Score, req, out, started)
	return out, nil
}
