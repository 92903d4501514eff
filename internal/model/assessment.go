package model

// FraudScore is the weighted sum of base, amount and location risk.
type FraudScore float64

// RiskFactors holds the rule contributions for a single transaction.
type RiskFactors struct {
	LocationRisk int
	AmountRisk   int
}

// ClassifierVerdict records what the optional model said about a transaction.
type ClassifierVerdict string

// Classifier verdicts.
const (
	VerdictNotConfigured ClassifierVerdict = "not_configured"
	VerdictFraud         ClassifierVerdict = "fraud"
	VerdictLegitimate    ClassifierVerdict = "legitimate"
	VerdictAbstained     ClassifierVerdict = "abstained"
)

// Assessment is the outcome of scoring one transaction.
type Assessment struct {
	TransactionID string
	Classifier    ClassifierVerdict
	Factors       RiskFactors
	Score         FraudScore
	Threshold     float64
	RuleFlagged   bool
	Flagged       bool
}
