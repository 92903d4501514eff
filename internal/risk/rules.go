// Package risk implements the rule-based fraud scoring engine.
package risk

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/shopspring/decimal"
)

// AmountTier awards Points to any amount strictly greater than Above.
type AmountTier struct {
	Above  decimal.Decimal
	Points int
}

// RulesConfig holds the static tables the rules are evaluated against.
type RulesConfig struct {
	HighRiskLocations  []string
	AmountTiers        []AmountTier
	LocationRiskPoints int
}

// DefaultRulesConfig returns the production rule tables.
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		HighRiskLocations:  []string{"Dubai", "Tokyo", "London"},
		LocationRiskPoints: 30,
		AmountTiers: []AmountTier{
			{Above: decimal.NewFromInt(3000), Points: 40},
			{Above: decimal.NewFromInt(1000), Points: 20},
		},
	}
}

// Rules computes the location and amount contributions to a fraud score.
// A Rules value is immutable after construction and safe for concurrent use.
type Rules struct {
	highRisk       map[string]struct{}
	tiers          []AmountTier // sorted by Above, highest first
	locationPoints int
}

// NewRules validates cfg and builds a Rules value from it.
func NewRules(cfg RulesConfig) (*Rules, error) {
	if cfg.LocationRiskPoints < 0 {
		return nil, fmt.Errorf("%w: location risk points must not be negative", common.ErrInvalidConfig)
	}

	highRisk := make(map[string]struct{}, len(cfg.HighRiskLocations))
	for _, loc := range cfg.HighRiskLocations {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			return nil, fmt.Errorf("%w: empty high-risk location", common.ErrInvalidConfig)
		}
		highRisk[loc] = struct{}{}
	}

	tiers := slices.Clone(cfg.AmountTiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Above.GreaterThan(tiers[j].Above)
	})
	for i, tier := range tiers {
		if tier.Above.IsNegative() {
			return nil, fmt.Errorf("%w: amount tier threshold %s is negative", common.ErrInvalidConfig, tier.Above)
		}
		if tier.Points < 0 {
			return nil, fmt.Errorf("%w: amount tier above %s has negative points", common.ErrInvalidConfig, tier.Above)
		}
		if i > 0 && tier.Above.Equal(tiers[i-1].Above) {
			return nil, fmt.Errorf("%w: duplicate amount tier %s", common.ErrInvalidConfig, tier.Above)
		}
		// A larger amount must never score lower than a smaller one.
		if i > 0 && tier.Points > tiers[i-1].Points {
			return nil, fmt.Errorf("%w: amount tier above %s awards more points than the tier above %s",
				common.ErrInvalidConfig, tier.Above, tiers[i-1].Above)
		}
	}

	return &Rules{
		highRisk:       highRisk,
		tiers:          tiers,
		locationPoints: cfg.LocationRiskPoints,
	}, nil
}

// DefaultRules returns rules built from DefaultRulesConfig.
func DefaultRules() *Rules {
	rules, err := NewRules(DefaultRulesConfig())
	if err != nil {
		panic(fmt.Sprintf("default rules are invalid: %v", err))
	}
	return rules
}

// LocationRisk scores where a transaction happened. Locations the user trusts
// while travel mode is on score zero even when they are high risk.
func (r *Rules) LocationRisk(location string, travel model.TravelSettings) int {
	location = strings.TrimSpace(location)
	if travel.TravelModeEnabled && travel.Trusts(location) {
		return 0
	}
	if _, ok := r.highRisk[location]; ok {
		return r.locationPoints
	}
	return 0
}

// AmountRisk scores the transaction amount. Comparisons are strict, so an
// amount equal to a tier threshold falls into the tier below.
func (r *Rules) AmountRisk(amount decimal.Decimal) int {
	for _, tier := range r.tiers {
		if amount.GreaterThan(tier.Above) {
			return tier.Points
		}
	}
	return 0
}

// Factors evaluates both rules for txn.
func (r *Rules) Factors(txn model.Transaction, travel model.TravelSettings) model.RiskFactors {
	return model.RiskFactors{
		LocationRisk: r.LocationRisk(txn.Location, travel),
		AmountRisk:   r.AmountRisk(txn.Amount),
	}
}

// IsHighRisk reports whether location is in the high-risk set.
func (r *Rules) IsHighRisk(location string) bool {
	_, ok := r.highRisk[strings.TrimSpace(location)]
	return ok
}
