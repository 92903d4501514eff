// Package observability provides Prometheus metrics for the fraud handler.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/phishnet/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "phishnet"

// Metrics holds the Prometheus collectors for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Handler metrics
	TransactionsProcessed *prometheus.CounterVec
	TransactionsFlagged   prometheus.Counter
	ProcessingLatency     prometheus.Histogram
	FraudScores           prometheus.Histogram

	// Collaborator metrics
	AlertsSent            prometheus.Counter
	AlertsFailed          prometheus.Counter
	StatusUpdatesFailed   prometheus.Counter
	ClassifierVerdicts    *prometheus.CounterVec
	ClassifierAbstentions prometheus.Counter

	// Evaluation metrics
	EvaluationAccuracy  prometheus.Gauge
	EvaluationPrecision prometheus.Gauge
	EvaluationRecall    prometheus.Gauge
	EvaluationRuns      prometheus.Counter
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TransactionsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "transactions_processed_total",
			Help:      "Total number of transactions processed by outcome",
		}, []string{"outcome"}),
		TransactionsFlagged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "transactions_flagged_total",
			Help:      "Total number of transactions flagged as fraud",
		}),
		ProcessingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "processing_latency_seconds",
			Help:      "Time to process one transaction in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		FraudScores: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "fraud_score",
			Help:      "Distribution of fraud scores",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 80, 100, 140, 170},
		}),

		AlertsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sent_total",
			Help:      "Total number of fraud alerts delivered",
		}),
		AlertsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "failed_total",
			Help:      "Total number of fraud alerts that could not be delivered",
		}),
		StatusUpdatesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "status_updates_failed_total",
			Help:      "Total number of failed transaction status updates",
		}),
		ClassifierVerdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "verdicts_total",
			Help:      "Total number of classifier verdicts by result",
		}, []string{"verdict"}),
		ClassifierAbstentions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "abstentions_total",
			Help:      "Total number of classifier calls that failed and were ignored",
		}),

		EvaluationAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "accuracy_percent",
			Help:      "Accuracy of the most recent evaluation run",
		}),
		EvaluationPrecision: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "precision_percent",
			Help:      "Precision of the most recent evaluation run",
		}),
		EvaluationRecall: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "recall_percent",
			Help:      "Recall of the most recent evaluation run",
		}),
		EvaluationRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "runs_total",
			Help:      "Total number of evaluation runs",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordProcessed records one handled transaction.
func (m *Metrics) RecordProcessed(outcome string, score model.FraudScore, flagged bool, elapsed time.Duration) {
	m.TransactionsProcessed.WithLabelValues(outcome).Inc()
	m.ProcessingLatency.Observe(elapsed.Seconds())
	if flagged {
		m.TransactionsFlagged.Inc()
	}
	if outcome == "flagged" || outcome == "clear" {
		m.FraudScores.Observe(float64(score))
	}
}

// RecordClassifier records the classifier's contribution to an assessment.
func (m *Metrics) RecordClassifier(verdict model.ClassifierVerdict) {
	if verdict == model.VerdictNotConfigured {
		return
	}
	m.ClassifierVerdicts.WithLabelValues(string(verdict)).Inc()
	if verdict == model.VerdictAbstained {
		m.ClassifierAbstentions.Inc()
	}
}

// RecordAlert records an alert delivery attempt.
func (m *Metrics) RecordAlert(err error) {
	if err != nil {
		m.AlertsFailed.Inc()
		return
	}
	m.AlertsSent.Inc()
}

// RecordStatusUpdate records a failed status update.
func (m *Metrics) RecordStatusUpdate(err error) {
	if err != nil {
		m.StatusUpdatesFailed.Inc()
	}
}

// RecordEvaluation publishes the headline numbers of an evaluation run.
func (m *Metrics) RecordEvaluation(metrics *model.EvaluationMetrics) {
	if metrics == nil {
		return
	}
	m.EvaluationRuns.Inc()
	m.EvaluationAccuracy.Set(metrics.Accuracy)
	m.EvaluationPrecision.Set(metrics.Precision)
	m.EvaluationRecall.Set(metrics.Recall)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
