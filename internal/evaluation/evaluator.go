// Package evaluation measures how well the rule engine separates labeled
// fraud from legitimate transactions.
package evaluation

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/risk"
	"github.com/google/uuid"
)

// AlgorithmRuleBased names the algorithm recorded with every result.
const AlgorithmRuleBased = "rule_based"

// DefaultThreshold is the evaluation threshold. It is deliberately separate
// from the production flagging threshold.
const DefaultThreshold = 0.0

// ItemError reports a transaction that was skipped during evaluation.
type ItemError struct {
	Err           error
	TransactionID string
	Index         int
}

func (e ItemError) Error() string {
	return fmt.Sprintf("transaction %d (%s): %v", e.Index, e.TransactionID, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// Scorer is the part of the engine the evaluator needs.
type Scorer interface {
	Score(txn model.Transaction, travel model.TravelSettings) (model.FraudScore, model.RiskFactors, error)
}

// Evaluator scores labeled transactions and accumulates a confusion matrix.
type Evaluator struct {
	scorer    Scorer
	now       func() time.Time
	newID     func() string
	threshold float64
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// WithIDSource overrides how test IDs are generated.
func WithIDSource(newID func() string) Option {
	return func(e *Evaluator) {
		e.newID = newID
	}
}

// New creates an evaluator comparing scores against threshold.
func New(scorer Scorer, threshold float64, opts ...Option) *Evaluator {
	e := &Evaluator{
		scorer:    scorer,
		threshold: threshold,
		now:       time.Now,
		newID: func() string {
			return "test_" + uuid.NewString()[:8]
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores every transaction in seq with default travel settings.
// Unlabeled or invalid transactions are skipped and reported; they never
// abort the run. Cancellation stops the run and returns the metrics so far.
func (e *Evaluator) Evaluate(ctx context.Context, seq iter.Seq[model.Transaction]) (*model.EvaluationMetrics, []ItemError) {
	var (
		matrix  model.ConfusionMatrix
		skipped []ItemError
		index   int
	)

	for txn := range seq {
		if err := ctx.Err(); err != nil {
			skipped = append(skipped, ItemError{Index: index, TransactionID: txn.ID, Err: err})
			break
		}

		actual, ok := txn.Label()
		if !ok {
			skipped = append(skipped, ItemError{
				Index:         index,
				TransactionID: txn.ID,
				Err:           fmt.Errorf("%w: transaction has no ground truth", common.ErrMissingLabel),
			})
			index++
			continue
		}

		score, _, err := e.scorer.Score(txn, model.TravelSettings{})
		if err != nil {
			skipped = append(skipped, ItemError{Index: index, TransactionID: txn.ID, Err: err})
			index++
			continue
		}

		matrix.Record(risk.Decide(score, e.threshold), actual)
		index++
	}

	metrics := Derive(matrix)
	metrics.TestID = e.newID()
	metrics.Algorithm = AlgorithmRuleBased
	metrics.Timestamp = e.now().UTC()
	metrics.Threshold = e.threshold

	slog.Debug("Evaluation complete",
		"test_id", metrics.TestID,
		"total", matrix.Total(),
		"skipped", len(skipped),
		"accuracy", metrics.Accuracy)

	return metrics, skipped
}

// Derive computes percentage metrics from a confusion matrix. Any metric
// whose denominator is zero is reported as zero.
func Derive(m model.ConfusionMatrix) *model.EvaluationMetrics {
	accuracy := ratio(m.TruePositives+m.TrueNegatives, m.Total())
	precision := ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
	recall := ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)

	var f1 float64
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return &model.EvaluationMetrics{
		ConfusionMatrix: m,
		Accuracy:        accuracy * 100,
		Precision:       precision * 100,
		Recall:          recall * 100,
		F1Score:         f1 * 100,
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
