// Package processor is the fraud handler: it loads a queued transaction,
// scores it and acts on the decision.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/service"
	"golang.org/x/sync/errgroup"
)

// Outcome summarizes what happened to one transaction.
type Outcome string

// Processing outcomes.
const (
	OutcomeFlagged  Outcome = "flagged"
	OutcomeClear    Outcome = "clear"
	OutcomeNotFound Outcome = "not_found"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeError    Outcome = "error"
)

// Result is the per-transaction report. Err is set when the transaction
// could not be assessed; StatusErr, ProfileErr and AlertErr record side
// effects that failed after a fraud decision was made.
type Result struct {
	Assessment    *model.Assessment
	Err           error
	StatusErr     error
	ProfileErr    error
	AlertErr      error
	TransactionID string
	Outcome       Outcome
}

// Assessor scores a transaction. *risk.Engine implements it.
type Assessor interface {
	Assess(ctx context.Context, txn model.Transaction, travel model.TravelSettings) (*model.Assessment, error)
}

// Recorder receives processing events. *observability.Metrics implements it.
type Recorder interface {
	RecordProcessed(outcome string, score model.FraudScore, flagged bool, elapsed time.Duration)
	RecordClassifier(verdict model.ClassifierVerdict)
	RecordAlert(err error)
	RecordStatusUpdate(err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordProcessed(string, model.FraudScore, bool, time.Duration) {}
func (nopRecorder) RecordClassifier(model.ClassifierVerdict)                      {}
func (nopRecorder) RecordAlert(error)                                             {}
func (nopRecorder) RecordStatusUpdate(error)                                      {}

// Options configures a Processor.
type Options struct {
	Recorder    Recorder
	StatusRetry common.RetryOptions
	Workers     int
}

// DefaultOptions returns options suitable for the queue consumer.
func DefaultOptions() Options {
	return Options{
		Workers:     4,
		StatusRetry: common.DefaultRetryOptions(),
	}
}

// Processor runs the fraud handler against its collaborators.
type Processor struct {
	txns     service.TransactionStore
	users    service.UserStore
	assessor Assessor
	notifier service.Notifier
	recorder Recorder
	opts     Options
}

// New creates a Processor.
func New(txns service.TransactionStore, users service.UserStore, assessor Assessor, notifier service.Notifier, opts Options) *Processor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Processor{
		txns:     txns,
		users:    users,
		assessor: assessor,
		notifier: notifier,
		recorder: opts.Recorder,
		opts:     opts,
	}
}

// Process handles one transaction ID. It never returns an error; failures
// are reported in the Result so one bad transaction cannot stop a batch.
func (p *Processor) Process(ctx context.Context, id string) Result {
	start := time.Now()
	result := p.process(ctx, id)

	var score model.FraudScore
	flagged := false
	if result.Assessment != nil {
		score = result.Assessment.Score
		flagged = result.Assessment.Flagged
	}
	p.recorder.RecordProcessed(string(result.Outcome), score, flagged, time.Since(start))

	attrs := []any{
		"transaction_id", id,
		"outcome", result.Outcome,
	}
	if result.Assessment != nil {
		attrs = append(attrs, "score", float64(result.Assessment.Score))
	}
	switch {
	case result.Err != nil:
		slog.Warn("Transaction not processed", append(attrs, "error", result.Err)...)
	case result.StatusErr != nil || result.AlertErr != nil:
		slog.Error("Fraud decision made but follow-up failed", append(attrs,
			"status_error", result.StatusErr,
			"alert_error", result.AlertErr)...)
	default:
		slog.Info("Transaction processed", attrs...)
	}

	return result
}

func (p *Processor) process(ctx context.Context, id string) Result {
	result := Result{TransactionID: id}

	txn, err := p.txns.GetTransaction(ctx, id)
	if err != nil {
		result.Err = err
		result.Outcome = OutcomeError
		if errors.Is(err, common.ErrNotFound) {
			result.Outcome = OutcomeNotFound
		}
		return result
	}

	travel, err := p.users.GetTravelSettings(ctx, txn.UserID)
	if err != nil {
		// Score without travel exemptions rather than drop the transaction.
		slog.Warn("Failed to load travel settings",
			"user_id", txn.UserID,
			"error", err)
		travel = model.TravelSettings{}
	}

	assessment, err := p.assessor.Assess(ctx, *txn, travel)
	if err != nil {
		result.Err = err
		result.Outcome = OutcomeError
		if errors.Is(err, common.ErrInvalidInput) {
			result.Outcome = OutcomeInvalid
		}
		return result
	}
	result.Assessment = assessment
	p.recorder.RecordClassifier(assessment.Classifier)

	if !assessment.Flagged {
		result.Outcome = OutcomeClear
		return result
	}
	result.Outcome = OutcomeFlagged

	result.StatusErr = common.WithRetry(ctx, func() error {
		return p.txns.SetStatus(ctx, id, model.StatusSentToUser)
	}, p.opts.StatusRetry)
	p.recorder.RecordStatusUpdate(result.StatusErr)

	// The user is alerted even when the status update failed.
	alert := model.Alert{
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		Amount:        txn.Amount,
		Score:         assessment.Score,
	}
	if user, err := p.users.GetUser(ctx, txn.UserID); err == nil {
		alert.Email = user.Email
		alert.Phone = user.Phone
	} else if !errors.Is(err, common.ErrNotFound) {
		result.ProfileErr = err
	}

	if err := p.notifier.SendAlert(ctx, alert); err != nil {
		result.AlertErr = fmt.Errorf("alert for transaction %s: %w", id, err)
	}
	p.recorder.RecordAlert(result.AlertErr)

	return result
}

// ProcessBatch handles ids concurrently with at most Options.Workers in
// flight. Results are returned in input order. IDs not started before ctx is
// canceled are reported with the context error.
func (p *Processor) ProcessBatch(ctx context.Context, ids []string) []Result {
	results := make([]Result, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i, id := range ids {
		if err := gctx.Err(); err != nil {
			results[i] = Result{TransactionID: id, Outcome: OutcomeError, Err: err}
			continue
		}
		g.Go(func() error {
			results[i] = p.Process(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Summary counts results by outcome.
type Summary struct {
	Total        int
	Flagged      int
	Clear        int
	Failed       int
	AlertsFailed int
}

// Summarize tallies a batch.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeFlagged:
			s.Flagged++
		case OutcomeClear:
			s.Clear++
		default:
			s.Failed++
		}
		if r.AlertErr != nil {
			s.AlertsFailed++
		}
	}
	return s
}
