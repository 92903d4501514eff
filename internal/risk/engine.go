package risk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
)

// DefaultThreshold is the production score above which a transaction is flagged.
const DefaultThreshold = 50.0

// CombinePolicy decides how the rule decision and a classifier prediction
// are merged into the final flag.
type CombinePolicy string

// Combination policies.
const (
	// PolicyOr flags when either the rules or the classifier say fraud.
	PolicyOr CombinePolicy = "or"
	// PolicyAnd flags only when both agree. An abstaining classifier leaves
	// the rule decision in place.
	PolicyAnd CombinePolicy = "and"
	// PolicyRulesOnly ignores the classifier.
	PolicyRulesOnly CombinePolicy = "rules_only"
)

// ParseCombinePolicy converts a configured policy name.
func ParseCombinePolicy(s string) (CombinePolicy, error) {
	switch CombinePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyOr, "":
		return PolicyOr, nil
	case PolicyAnd:
		return PolicyAnd, nil
	case PolicyRulesOnly:
		return PolicyRulesOnly, nil
	default:
		return "", fmt.Errorf("%w: unknown combine policy %q", common.ErrInvalidConfig, s)
	}
}

// Classifier is an optional model that predicts fraud for a transaction.
// Errors are never surfaced from the engine: they count as an abstention.
type Classifier interface {
	Classify(ctx context.Context, txn model.Transaction) (bool, error)
}

// Config holds configuration options for the scoring engine.
type Config struct {
	Policy    CombinePolicy
	Rules     RulesConfig
	Threshold float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Rules:     DefaultRulesConfig(),
		Threshold: DefaultThreshold,
		Policy:    PolicyOr,
	}
}

// Engine scores transactions and decides whether they should be flagged.
type Engine struct {
	rules      *Rules
	classifier Classifier
	policy     CombinePolicy
	threshold  float64
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClassifier attaches an optional fraud classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// New creates a new scoring engine with the given configuration.
func New(cfg Config, opts ...Option) (*Engine, error) {
	rules, err := NewRules(cfg.Rules)
	if err != nil {
		return nil, err
	}

	policy := cfg.Policy
	if policy == "" {
		policy = PolicyOr
	}
	if _, err := ParseCombinePolicy(string(policy)); err != nil {
		return nil, err
	}

	e := &Engine{
		rules:     rules,
		policy:    policy,
		threshold: cfg.Threshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Threshold returns the production flagging threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Rules returns the rule set the engine scores with.
func (e *Engine) Rules() *Rules {
	return e.rules
}

// Score computes the fraud score of txn.
func (e *Engine) Score(txn model.Transaction, travel model.TravelSettings) (model.FraudScore, model.RiskFactors, error) {
	if err := txn.Validate(); err != nil {
		return 0, model.RiskFactors{}, err
	}

	factors := e.rules.Factors(txn, travel)
	return Combine(txn.BaseRiskIndicator, factors), factors, nil
}

// Combine sums the base risk (scaled to points) and the rule factors.
func Combine(baseRisk float64, factors model.RiskFactors) model.FraudScore {
	return model.FraudScore(baseRisk*100 + float64(factors.AmountRisk) + float64(factors.LocationRisk))
}

// Decide reports whether score exceeds threshold. Equality never flags.
func Decide(score model.FraudScore, threshold float64) bool {
	return float64(score) > threshold
}

// Assess scores txn, applies the production threshold and folds in the
// classifier according to the engine's policy.
func (e *Engine) Assess(ctx context.Context, txn model.Transaction, travel model.TravelSettings) (*model.Assessment, error) {
	score, factors, err := e.Score(txn, travel)
	if err != nil {
		return nil, err
	}

	assessment := &model.Assessment{
		TransactionID: txn.ID,
		Factors:       factors,
		Score:         score,
		Threshold:     e.threshold,
		RuleFlagged:   Decide(score, e.threshold),
		Classifier:    model.VerdictNotConfigured,
	}

	if e.classifier != nil && e.policy != PolicyRulesOnly {
		assessment.Classifier = e.classify(ctx, txn)
	}
	assessment.Flagged = e.combine(assessment.RuleFlagged, assessment.Classifier)

	return assessment, nil
}

func (e *Engine) classify(ctx context.Context, txn model.Transaction) (verdict model.ClassifierVerdict) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Classifier panicked, treating as abstention",
				"transaction_id", txn.ID,
				"panic", r)
			verdict = model.VerdictAbstained
		}
	}()

	fraud, err := e.classifier.Classify(ctx, txn)
	if err != nil {
		slog.Warn("Classifier abstained",
			"transaction_id", txn.ID,
			"error", err)
		return model.VerdictAbstained
	}
	if fraud {
		return model.VerdictFraud
	}
	return model.VerdictLegitimate
}

func (e *Engine) combine(ruleFlagged bool, verdict model.ClassifierVerdict) bool {
	switch verdict {
	case model.VerdictFraud:
		if e.policy == PolicyAnd {
			return ruleFlagged
		}
		return true
	case model.VerdictLegitimate:
		if e.policy == PolicyAnd {
			return false
		}
		return ruleFlagged
	default:
		return ruleFlagged
	}
}
