package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// BuiltinVersion is the version stamped on the built-in tables.
const BuiltinVersion = "1.0.0"

// Rule IDs referenced outside the tables.
const (
	RuleRevenueRegion      = "region"
	RuleRevenueSeasonality = "seasonality"
)

// BuiltinTables returns the default table for every scoring domain.
// They are used when the repository holds no tables yet.
func BuiltinTables() []*domain.RuleTable {
	return []*domain.RuleTable{
		ChurnTable(),
		ContentSuccessTable(),
		ViewershipTable(),
		RevenueTable(),
	}
}

// BuiltinTable returns the default table for d, or nil.
func BuiltinTable(d domain.ScoringDomain) *domain.RuleTable {
	for _, t := range BuiltinTables() {
		if t.Domain == d {
			return t
		}
	}
	return nil
}

func threshold(id, expr string, adjustment float64, description string) domain.Rule {
	return domain.Rule{ID: id, Kind: domain.RuleThreshold, Expression: expr, Adjustment: adjustment, Description: description}
}

func term(id, expr, description string) domain.Rule {
	return domain.Rule{ID: id, Kind: domain.RuleTerm, Expression: expr, Description: description}
}

func category(id, field string, values map[string]float64, description string) domain.Rule {
	return domain.Rule{ID: id, Kind: domain.RuleCategory, Field: field, Values: values, Description: description}
}

// ChurnTable scores the likelihood that a subscriber cancels, 0-100.
func ChurnTable() *domain.RuleTable {
	return &domain.RuleTable{
		Domain:      domain.DomainChurn,
		Version:     BuiltinVersion,
		Description: "Subscriber churn probability",
		Fields: []domain.FieldSpec{
			{Name: "subscriptionMonths", Type: domain.FieldInt},
			{Name: "monthlyUsage", Type: domain.FieldFloat},
			{Name: "avgSessionDuration", Type: domain.FieldFloat},
			{Name: "supportTickets", Type: domain.FieldInt},
			{Name: "paymentFailures", Type: domain.FieldInt},
			{Name: "contentRating", Type: domain.FieldFloat},
			{Name: "ageGroup", Type: domain.FieldEnum},
			{Name: "subscriptionTier", Type: domain.FieldEnum},
		},
		Combine: domain.CombineSum,
		Rules: []domain.Rule{
			threshold("tenure-new", "subscriptionMonths < 3.0", 30, "Subscribed under 3 months"),
			threshold("tenure-early", "subscriptionMonths >= 3.0 && subscriptionMonths < 12.0", 15, "Subscribed under a year"),
			threshold("tenure-loyal", "subscriptionMonths > 24.0", -10, "Subscribed over 2 years"),
			threshold("usage-minimal", "monthlyUsage < 10.0", 25, "Under 10 hours per month"),
			threshold("usage-light", "monthlyUsage >= 10.0 && monthlyUsage < 30.0", 10, "Under 30 hours per month"),
			threshold("usage-heavy", "monthlyUsage > 60.0", -15, "Over 60 hours per month"),
			threshold("session-short", "avgSessionDuration < 30.0", 20, "Sessions under 30 minutes"),
			threshold("session-long", "avgSessionDuration > 90.0", -10, "Sessions over 90 minutes"),
			term("support-tickets", "supportTickets * 8.0", "8 points per support ticket"),
			term("payment-failures", "paymentFailures * 15.0", "15 points per failed payment"),
			threshold("rating-low", "contentRating < 3.0", 20, "Content rated under 3"),
			threshold("rating-high", "contentRating > 4.0", -10, "Content rated over 4"),
			category("age-group", "ageGroup", map[string]float64{
				"18-25": 5,
				"26-35": -5,
				"36-45": -10,
				"46-55": -5,
				"56+":   10,
			}, "Age group"),
			category("subscription-tier", "subscriptionTier", map[string]float64{
				"basic":    10,
				"standard": 0,
				"premium":  -15,
			}, "Subscription tier"),
		},
		Perturbation: domain.Perturbation{Min: 0, Max: 10},
		Floor:        true,
		Clamp:        domain.Clamp{Min: domain.Float(0), Max: domain.Float(100)},
		Bands: []domain.Band{
			{Above: 70, Label: "High"},
			{Above: 40, Label: "Medium"},
		},
		DefaultLabel: "Low",
		Factors: []domain.FactorSpec{
			{Name: "Usage Frequency", Expression: "monthlyUsage < 20.0 ? 80.0 : (monthlyUsage < 40.0 ? 40.0 : 20.0)"},
			{Name: "Support Issues", Expression: "supportTickets * 20.0"},
			{Name: "Payment Problems", Expression: "paymentFailures * 25.0"},
			{Name: "Content Satisfaction", Expression: "contentRating < 3.0 ? 70.0 : (contentRating < 4.0 ? 30.0 : 10.0)"},
			{Name: "Subscription Length", Expression: "subscriptionMonths < 6.0 ? 60.0 : (subscriptionMonths < 12.0 ? 30.0 : 15.0)"},
		},
		Enabled: true,
	}
}

// ContentSuccessTable scores the expected success of a title, 0-100.
func ContentSuccessTable() *domain.RuleTable {
	return &domain.RuleTable{
		Domain:      domain.DomainContentSuccess,
		Version:     BuiltinVersion,
		Description: "Content success score",
		Fields: []domain.FieldSpec{
			{Name: "budget", Type: domain.FieldFloat},
			{Name: "castPopularity", Type: domain.FieldFloat},
			{Name: "directorExperience", Type: domain.FieldFloat},
			{Name: "marketingBudget", Type: domain.FieldFloat},
			{Name: "genre", Type: domain.FieldEnum},
			{Name: "productionStudio", Type: domain.FieldEnum},
		},
		Combine: domain.CombineSum,
		Base:    50,
		Rules: []domain.Rule{
			threshold("budget-tentpole", "budget > 200.0", 15, "Budget over $200M"),
			threshold("budget-major", "budget > 100.0 && budget <= 200.0", 10, "Budget over $100M"),
			threshold("budget-low", "budget < 20.0", -10, "Budget under $20M"),
			term("cast-popularity", "(castPopularity - 5.0) * 4.0", "4 points per popularity point above 5"),
			threshold("director-veteran", "directorExperience > 15.0", 10, "Over 15 years directing"),
			threshold("director-experienced", "directorExperience > 10.0 && directorExperience <= 15.0", 5, "Over 10 years directing"),
			threshold("director-new", "directorExperience < 3.0", -5, "Under 3 years directing"),
			category("genre", "genre", map[string]float64{
				"action":      10,
				"comedy":      5,
				"drama":       8,
				"horror":      -2,
				"romance":     3,
				"sci-fi":      12,
				"thriller":    7,
				"documentary": -5,
			}, "Genre"),
			category("studio", "productionStudio", map[string]float64{
				"netflix-originals": 15,
				"major-studio":      10,
				"independent":       -5,
				"international":     0,
			}, "Production studio"),
			term("marketing-ratio", "budget > 0.0 ? marketingBudget / budget * 20.0 : 0.0", "Marketing spend relative to budget"),
		},
		Perturbation: domain.Perturbation{Min: -5, Max: 5},
		Floor:        true,
		Clamp:        domain.Clamp{Min: domain.Float(0), Max: domain.Float(100)},
		Bands: []domain.Band{
			{Above: 70, Label: "High"},
			{Above: 40, Label: "Medium"},
		},
		DefaultLabel: "Low",
		Factors: []domain.FactorSpec{
			{Name: "Cast Appeal", Expression: "castPopularity * 10.0", Floor: true},
			{Name: "Director Track Record", Expression: "directorExperience * 5.0", Floor: true, Max: domain.Float(100)},
			{Name: "Genre Popularity", Rules: []string{"genre"}, Offset: 20, Scale: 3, Min: domain.Float(0)},
			{Name: "Production Value", Expression: "budget / 200.0 * 80.0", Floor: true, Max: domain.Float(100)},
			{Name: "Marketing Reach", Expression: "marketingBudget / 100.0 * 70.0", Floor: true, Max: domain.Float(100)},
		},
		Enabled: true,
	}
}

// ViewershipTable projects first-month views for a release.
func ViewershipTable() *domain.RuleTable {
	return &domain.RuleTable{
		Domain:      domain.DomainViewership,
		Version:     BuiltinVersion,
		Description: "Projected views",
		Fields: []domain.FieldSpec{
			{Name: "contentType", Type: domain.FieldEnum},
			{Name: "genre", Type: domain.FieldEnum},
			{Name: "releaseHour", Type: domain.FieldInt},
			{Name: "marketingBudget", Type: domain.FieldFloat},
			{Name: "leadActorPopularity", Type: domain.FieldFloat},
		},
		Combine: domain.CombineProduct,
		Base:    50_000_000,
		Rules: []domain.Rule{
			category("content-type", "contentType", map[string]float64{
				"movie":       1.2,
				"series":      1.5,
				"documentary": 0.7,
				"special":     0.9,
			}, "Content type"),
			category("genre", "genre", map[string]float64{
				"action":   1.3,
				"comedy":   1.1,
				"drama":    1.0,
				"horror":   0.9,
				"romance":  1.1,
				"sci-fi":   1.2,
				"thriller": 1.1,
			}, "Genre"),
			threshold("hour-prime", "releaseHour >= 19.0 && releaseHour <= 22.0", 1.15, "Prime time release"),
			threshold("hour-daytime", "releaseHour >= 12.0 && releaseHour <= 18.0", 1.05, "Afternoon release"),
			threshold("hour-off-peak", "releaseHour < 12.0 || releaseHour > 22.0", 0.9, "Off-peak release"),
			term("marketing", "1.0 + marketingBudget / 100.0 * 0.3", "Marketing budget uplift"),
			term("star-power", "1.0 + leadActorPopularity / 10.0 * 0.2", "Lead actor uplift"),
		},
		Perturbation: domain.Perturbation{Min: 0.8, Max: 1.2},
		Floor:        true,
		Clamp:        domain.Clamp{Min: domain.Float(0)},
		Bands: []domain.Band{
			{Above: 150_000_000, Label: "Blockbuster"},
			{Above: 75_000_000, Label: "Strong"},
		},
		DefaultLabel: "Moderate",
		Factors: []domain.FactorSpec{
			{Name: "Content Type", Rules: []string{"content-type"}, Offset: -1, Scale: 100, Round: true},
			{Name: "Genre Appeal", Rules: []string{"genre"}, Offset: -1, Scale: 100, Round: true},
			{Name: "Release Timing", Expression: "releaseHour >= 19.0 && releaseHour <= 22.0 ? 15.0 : (releaseHour >= 12.0 && releaseHour <= 18.0 ? 5.0 : -10.0)"},
			{Name: "Marketing Budget", Expression: "marketingBudget / 100.0 * 30.0", Floor: true},
			{Name: "Star Power", Expression: "leadActorPopularity / 10.0 * 20.0", Floor: true},
		},
		Enabled: true,
	}
}

// RevenueTable computes gross monthly subscription revenue. Costs and
// projections are derived from it in decimal arithmetic by the caller.
func RevenueTable() *domain.RuleTable {
	return &domain.RuleTable{
		Domain:      domain.DomainRevenue,
		Version:     BuiltinVersion,
		Description: "Monthly subscription revenue",
		Fields: []domain.FieldSpec{
			{Name: "subscriberBase", Type: domain.FieldFloat}, // millions
			{Name: "avgSubscriptionPrice", Type: domain.FieldFloat},
			{Name: "churnRate", Type: domain.FieldFloat}, // percent
			{Name: "acquisitionCost", Type: domain.FieldFloat},
			{Name: "contentBudget", Type: domain.FieldFloat},  // millions
			{Name: "marketingSpend", Type: domain.FieldFloat}, // millions
			{Name: "region", Type: domain.FieldEnum},
			{Name: "seasonality", Type: domain.FieldEnum},
		},
		Combine: domain.CombineProduct,
		Base:    1,
		Rules: []domain.Rule{
			term("gross-subscriptions", "subscriberBase * 1000000.0 * avgSubscriptionPrice", "Subscribers times price"),
			category(RuleRevenueRegion, "region", map[string]float64{
				"north-america": 1.2,
				"europe":        1.0,
				"asia-pacific":  0.8,
				"latin-america": 0.6,
				"global":        1.1,
			}, "Regional pricing power"),
			category(RuleRevenueSeasonality, "seasonality", map[string]float64{
				"high":   1.3,
				"medium": 1.0,
				"low":    0.8,
			}, "Seasonal demand"),
		},
		Enabled: true,
	}
}
