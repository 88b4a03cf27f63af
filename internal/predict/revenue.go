package predict

import (
	"context"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/trend"
	"github.com/shopspring/decimal"
)

// RevenuePrediction is the response for a revenue projection. Money
// amounts are in currency units except the breakdown, which is in millions.
type RevenuePrediction struct {
	Meta
	MonthlyRevenue   float64             `json:"monthlyRevenue"`
	AnnualRevenue    float64             `json:"annualRevenue"`
	MonthlyCosts     float64             `json:"monthlyCosts"`
	MonthlyProfit    float64             `json:"monthlyProfit"`
	ProfitMargin     float64             `json:"profitMargin"`
	BreakEvenPoint   int64               `json:"breakEvenPoint"`
	Outlook          string              `json:"outlook"`
	RevenueBreakdown []BreakdownLine     `json:"revenueBreakdown"`
	Projections      []MonthlyProjection `json:"projections"`
}

// BreakdownLine is one signed component of monthly profit, in millions.
type BreakdownLine struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// MonthlyProjection is the projected revenue of one month.
type MonthlyProjection struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
}

// OutlookBands label the profit margin, in percent.
var OutlookBands = []domain.Band{
	{Above: 20, Label: "Strong"},
	{Above: 0, Label: "Positive"},
}

// OutlookDefault labels margins at or below zero.
const OutlookDefault = "Negative"

var (
	million      = decimal.NewFromInt(1_000_000)
	maxBreakEven = decimal.NewFromInt(math.MaxInt64)
)

// Revenue projects monthly revenue, costs and profitability.
func (s *Service) Revenue(ctx context.Context, req domain.ScoringRequest) (*RevenuePrediction, error) {
	started := time.Now()

	res, err := s.engine.Evaluate(ctx, domain.DomainRevenue, req)
	if err != nil {
		return nil, err
	}

	monthly := s.exactScore(res)
	subscribers := decimal.NewFromFloat(res.Number("subscriberBase")).Mul(million)
	churn := decimal.NewFromFloat(res.Number("churnRate")).Div(decimal.NewFromInt(100))
	acquisition := subscribers.Mul(churn).Mul(decimal.NewFromFloat(res.Number("acquisitionCost")))
	content := decimal.NewFromFloat(res.Number("contentBudget")).Mul(million)
	marketing := decimal.NewFromFloat(res.Number("marketingSpend")).Mul(million)

	costs := content.Add(marketing).Add(acquisition)
	profit := monthly.Sub(costs)

	margin := decimal.Zero
	if !monthly.IsZero() {
		margin = profit.Div(monthly).Mul(decimal.NewFromInt(100))
	}

	meta := newMeta(res)

	var breakEven int64
	if !monthly.IsZero() && !subscribers.IsZero() {
		exact := costs.Mul(subscribers).Div(monthly).Ceil()
		if exact.GreaterThan(maxBreakEven) {
			breakEven = math.MaxInt64
			meta.Warnings = append(meta.Warnings, "breakEvenPoint exceeds the representable range, capped")
		} else {
			breakEven = exact.IntPart()
		}
	}
	out := &RevenuePrediction{
		Meta:           meta,
		MonthlyRevenue: monthly.InexactFloat64(),
		AnnualRevenue:  monthly.Mul(decimal.NewFromInt(12)).InexactFloat64(),
		MonthlyCosts:   costs.InexactFloat64(),
		MonthlyProfit:  profit.InexactFloat64(),
		ProfitMargin:   margin.InexactFloat64(),
		BreakEvenPoint: breakEven,
		RevenueBreakdown: []BreakdownLine{
			{Category: "Subscriptions", Amount: monthly.Div(million).InexactFloat64()},
			{Category: "Content Costs", Amount: content.Neg().Div(million).InexactFloat64()},
			{Category: "Marketing", Amount: marketing.Neg().Div(million).InexactFloat64()},
			{Category: "Acquisition", Amount: acquisition.Neg().Div(million).InexactFloat64()},
		},
		Projections: RevenueProjections(monthly.InexactFloat64()),
	}
	out.Outlook = rules.MatchBand(out.ProfitMargin, OutlookBands, OutlookDefault)
	out.Meta.Label = out.Outlook

	s.complete(ctx, out.Meta, out.MonthlyRevenue, req, out, started)
	return out, nil
}

// exactScore recombines the table's contributions in decimal arithmetic so
// money amounts carry no binary rounding. It mirrors the engine's floor and
// clamp but uses the perturbation the engine drew.
func (s *Service) exactScore(res *domain.ScoreResult) decimal.Decimal {
	table, ok := s.engine.GetTable(res.Domain)
	if !ok {
		return decimal.NewFromFloat(res.Score)
	}

	acc := decimal.NewFromFloat(table.Base)
	combine := func(v float64) {
		d := decimal.NewFromFloat(v)
		if table.Combine == domain.CombineProduct {
			acc = acc.Mul(d)
		} else {
			acc = acc.Add(d)
		}
	}
	for _, c := range res.Contributions {
		combine(c.Value)
	}
	combine(res.Perturbation)

	if table.Floor {
		acc = acc.Floor()
	}
	if table.Clamp.Min != nil {
		acc = decimal.Max(acc, decimal.NewFromFloat(*table.Clamp.Min))
	}
	if table.Clamp.Max != nil {
		acc = decimal.Min(acc, decimal.NewFromFloat(*table.Clamp.Max))
	}
	return acc
}

// RevenueProjections projects twelve months of revenue with 2% monthly
// growth and a ±10% seasonal swing.
func RevenueProjections(monthly float64) []MonthlyProjection {
	points := trend.Seasonal(trend.Params{
		Points:    12,
		Base:      monthly,
		Growth:    0.02,
		Amplitude: 0.1,
		Period:    12,
	}, nil)

	out := make([]MonthlyProjection, len(points))
	for i, p := range points {
		out[i] = MonthlyProjection{Month: trend.MonthNames[i], Revenue: p.Value}
	}
	return out
}
