package model

import "time"

// ConfusionMatrix counts rule decisions against ground truth.
type ConfusionMatrix struct {
	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int
}

// Record adds one decision to the matrix.
func (m *ConfusionMatrix) Record(flagged, actual bool) {
	switch {
	case flagged && actual:
		m.TruePositives++
	case flagged && !actual:
		m.FalsePositives++
	case !flagged && !actual:
		m.TrueNegatives++
	default:
		m.FalseNegatives++
	}
}

// Total is the number of recorded decisions.
func (m ConfusionMatrix) Total() int {
	return m.TruePositives + m.FalsePositives + m.TrueNegatives + m.FalseNegatives
}

// EvaluationMetrics is the stored result of one accuracy run.
// Accuracy, Precision, Recall and F1Score are percentages.
type EvaluationMetrics struct {
	Timestamp time.Time
	TestID    string
	Algorithm string
	ConfusionMatrix
	Threshold float64
	Accuracy  float64
	Precision float64
	Recall    float64
	F1Score   float64
}
