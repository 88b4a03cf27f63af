package dashboard

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/trend"
)

const dayLayout = "Jan 2"

type ViewingTrend struct {
	Date  string `json:"date"`
	Views int    `json:"views"`
	Hours int    `json:"hours"`
}

type RevenueMonth struct {
	Month       string  `json:"month"`
	Revenue     int     `json:"revenue"`
	Subscribers int     `json:"subscribers"`
	ChurnRate   float64 `json:"churnRate"`
}

type ChurnMonth struct {
	Month          string  `json:"month"`
	ChurnRate      float64 `json:"churnRate"`
	PredictedChurn float64 `json:"predictedChurn"`
	RiskLevel      string  `json:"riskLevel"`
}

type SeasonalMonth struct {
	Month           string `json:"month"`
	ViewingIndex    int    `json:"viewingIndex"`
	SignupIndex     int    `json:"signupIndex"`
	EngagementIndex int    `json:"engagementIndex"`
}

type EngagementHour struct {
	Hour        string `json:"hour"`
	ActiveUsers int    `json:"activeUsers"`
	NewSignups  int    `json:"newSignups"`
}

// ViewershipDay is either a historical observation or a forecast.
type ViewershipDay struct {
	Date       string `json:"date"`
	Actual     *int   `json:"actual"`
	Predicted  *int   `json:"predicted"`
	Confidence *int   `json:"confidence"`
	Type       string `json:"type"`
}

// RevenueQuarter holds actual revenue for past quarters and a prediction
// with confidence for future ones. Revenue is in billions.
type RevenueQuarter struct {
	Quarter          string   `json:"quarter"`
	ActualRevenue    *float64 `json:"actualRevenue"`
	PredictedRevenue *float64 `json:"predictedRevenue"`
	Subscribers      int      `json:"subscribers"`
	Confidence       *int     `json:"confidence"`
}

var churnRiskBands = []domain.Band{
	{Above: 3.5, Label: "High"},
	{Above: 2.8, Label: "Medium"},
}

func ptr[T any](v T) *T {
	return &v
}

func floor(v float64) int {
	return int(math.Floor(v))
}

func viewingTrends(src noise.Source, now time.Time) []ViewingTrend {
	const days = 30
	views := trend.Seasonal(trend.Params{Points: days, Base: 150, Jitter: 50}, src)
	hours := trend.Seasonal(trend.Params{Points: days, Base: 80, Jitter: 30}, src)

	out := make([]ViewingTrend, days)
	for i := range out {
		out[i] = ViewingTrend{
			Date:  now.AddDate(0, 0, i-days+1).Format(dayLayout),
			Views: floor(views[i].Value),
			Hours: floor(hours[i].Value),
		}
	}
	return out
}

func revenueData(src noise.Source, _ time.Time) []RevenueMonth {
	revenue := trend.Seasonal(trend.Params{Points: 12, Base: 7500, Slope: 50, Jitter: 1000}, src)
	subscribers := trend.Seasonal(trend.Params{Points: 12, Base: 240, Slope: 2, Jitter: 20}, src)
	churn := trend.Seasonal(trend.Params{Points: 12, Base: 2.5, Jitter: 1.5}, src)

	out := make([]RevenueMonth, 12)
	for i, month := range trend.MonthNames {
		out[i] = RevenueMonth{
			Month:       month,
			Revenue:     floor(revenue[i].Value),
			Subscribers: floor(subscribers[i].Value),
			ChurnRate:   trend.Round(churn[i].Value, 2),
		}
	}
	return out
}

func churnPredictions(src noise.Source, _ time.Time) []ChurnMonth {
	base := trend.Seasonal(trend.Params{Points: 12, Base: 2.5, Swing: 0.8, Period: 12}, nil)
	predicted := trend.Seasonal(trend.Params{Points: 12, Base: 2.8, Swing: 0.8, Period: 12, Jitter: 0.4}, src)

	out := make([]ChurnMonth, 12)
	for i, month := range trend.MonthNames {
		p := predicted[i].Value
		out[i] = ChurnMonth{
			Month:          month,
			ChurnRate:      trend.Round(base[i].Value, 1),
			PredictedChurn: trend.Round(p, 1),
			RiskLevel:      rules.MatchBand(p, churnRiskBands, "Low"),
		}
	}
	return out
}

func seasonalTrends(src noise.Source, _ time.Time) []SeasonalMonth {
	viewing := trend.Seasonal(trend.Params{Points: 12, Base: 100, Swing: 25, Period: 12, Jitter: 10}, src)
	signup := trend.Seasonal(trend.Params{Points: 12, Base: 100, Swing: 30, Period: 12, Phase: 1, Jitter: 10}, src)
	engagement := trend.Seasonal(trend.Params{Points: 12, Base: 100, Swing: 20, Period: 12, Phase: -1, Jitter: 10}, src)

	out := make([]SeasonalMonth, 12)
	for i, month := range trend.MonthNames {
		out[i] = SeasonalMonth{
			Month:           month,
			ViewingIndex:    floor(viewing[i].Value),
			SignupIndex:     floor(signup[i].Value),
			EngagementIndex: floor(engagement[i].Value),
		}
	}
	return out
}

func userEngagement(src noise.Source, _ time.Time) []EngagementHour {
	active := trend.Seasonal(trend.Params{Points: 24, Base: 800, Swing: 400, Period: 24, Phase: -6, Jitter: 100}, src)
	signups := trend.Seasonal(trend.Params{Points: 24, Base: 10, Jitter: 50}, src)

	out := make([]EngagementHour, 24)
	for i := range out {
		out[i] = EngagementHour{
			Hour:        fmt.Sprintf("%02d:00", i),
			ActiveUsers: max(200, floor(active[i].Value)),
			NewSignups:  floor(signups[i].Value),
		}
	}
	return out
}

func viewershipPredictions(src noise.Source, now time.Time) []ViewershipDay {
	const horizon = 30
	history := trend.Seasonal(trend.Params{Points: horizon, Base: 150, Jitter: 50}, src)
	forecast := trend.Seasonal(trend.Params{Points: horizon, Start: 1, Base: 170, Swing: 20, Period: horizon, Jitter: 20}, src)

	out := make([]ViewershipDay, 0, 2*horizon+1)
	for i, p := range history {
		out = append(out, ViewershipDay{
			Date:   now.AddDate(0, 0, i-horizon).Format(dayLayout),
			Actual: ptr(floor(p.Value)),
			Type:   "historical",
		})
	}

	today := trend.Seasonal(trend.Params{Points: 2, Base: 150, Jitter: 50}, src)
	out = append(out, ViewershipDay{
		Date:       "Today",
		Actual:     ptr(floor(today[0].Value)),
		Predicted:  ptr(floor(today[1].Value)),
		Confidence: ptr(95),
		Type:       "forecast",
	})

	for _, p := range forecast {
		out = append(out, ViewershipDay{
			Date:       now.AddDate(0, 0, p.Index).Format(dayLayout),
			Predicted:  ptr(floor(p.Value)),
			Confidence: ptr(floor(math.Max(60, 95-1.2*float64(p.Index)))),
			Type:       "forecast",
		})
	}
	return out
}

// revenueForecasting covers eight quarters up to and including the current
// one, then four forecast quarters.
func revenueForecasting(src noise.Source, now time.Time) []RevenueQuarter {
	const quarters, historical = 12, 8
	revenue := trend.Seasonal(trend.Params{Points: quarters, Base: 7.5, Slope: 0.3, Swing: 0.5, Period: 8}, nil)
	subscribers := trend.Seasonal(trend.Params{Points: quarters, Base: 240, Slope: 8, Jitter: 5}, src)

	current := now.Year()*4 + (int(now.Month())-1)/3
	first := current - (historical - 1)

	out := make([]RevenueQuarter, quarters)
	for i := range out {
		q := first + i
		row := RevenueQuarter{
			Quarter:     fmt.Sprintf("Q%d %d", q%4+1, q/4),
			Subscribers: floor(subscribers[i].Value),
		}
		if i < historical {
			row.ActualRevenue = ptr(trend.Round(revenue[i].Value, 1))
		} else {
			row.PredictedRevenue = ptr(trend.Round(revenue[i].Value+0.2, 1))
			row.Confidence = ptr(95 - (i-historical+1)*2)
		}
		out[i] = row
	}
	return out
}
