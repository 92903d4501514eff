package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/phishnet/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordProcessed(t *testing.T) {
	m := NewMetrics("")

	m.RecordProcessed("flagged", 80, true, 10*time.Millisecond)
	m.RecordProcessed("clear", 10, false, time.Millisecond)
	m.RecordProcessed("clear", 0, false, time.Millisecond)
	m.RecordProcessed("not_found", 0, false, time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.TransactionsProcessed.WithLabelValues("flagged")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.TransactionsProcessed.WithLabelValues("clear")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TransactionsProcessed.WithLabelValues("not_found")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TransactionsFlagged), 0)

	// Scores are only observed for transactions that were actually scored.
	assert.Equal(t, uint64(3), sampleCount(t, m, "phishnet_handler_fraud_score"))
	assert.Equal(t, uint64(4), sampleCount(t, m, "phishnet_handler_processing_latency_seconds"))
}

func sampleCount(t *testing.T, m *Metrics, name string) uint64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			return mf.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	t.Fatalf("metric %s not registered", name)
	return 0
}

func TestRecordClassifier(t *testing.T) {
	m := NewMetrics("test")

	m.RecordClassifier(model.VerdictNotConfigured)
	m.RecordClassifier(model.VerdictFraud)
	m.RecordClassifier(model.VerdictAbstained)
	m.RecordClassifier(model.VerdictAbstained)

	assert.InDelta(t, 2, testutil.ToFloat64(m.ClassifierAbstentions), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ClassifierVerdicts.WithLabelValues("fraud")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.ClassifierVerdicts.WithLabelValues("not_configured")), 0)
}

func TestRecordAlertAndStatus(t *testing.T) {
	m := NewMetrics("")

	m.RecordAlert(nil)
	m.RecordAlert(errors.New("sns down"))
	m.RecordAlert(errors.New("sns down"))
	m.RecordStatusUpdate(nil)
	m.RecordStatusUpdate(errors.New("locked"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.AlertsSent), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.AlertsFailed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StatusUpdatesFailed), 0)
}

func TestRecordEvaluation(t *testing.T) {
	m := NewMetrics("")

	m.RecordEvaluation(nil)
	m.RecordEvaluation(&model.EvaluationMetrics{Accuracy: 92.5, Precision: 80, Recall: 100})

	assert.InDelta(t, 1, testutil.ToFloat64(m.EvaluationRuns), 0)
	assert.InDelta(t, 92.5, testutil.ToFloat64(m.EvaluationAccuracy), 0.001)
	assert.InDelta(t, 80, testutil.ToFloat64(m.EvaluationPrecision), 0.001)
	assert.InDelta(t, 100, testutil.ToFloat64(m.EvaluationRecall), 0.001)
}

func TestMetricsAreIndependent(t *testing.T) {
	a := NewMetrics("")
	b := NewMetrics("")

	a.RecordAlert(nil)
	assert.InDelta(t, 0, testutil.ToFloat64(b.AlertsSent), 0)
}

func TestHandler(t *testing.T) {
	m := NewMetrics("")
	m.RecordProcessed("flagged", 80, true, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `phishnet_handler_transactions_processed_total{outcome="flagged"} 1`)
	assert.Contains(t, body, "phishnet_handler_transactions_flagged_total 1")
}

func TestServe(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	m := NewMetrics("")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_BadAddress(t *testing.T) {
	err := NewMetrics("").Serve(context.Background(), "not-an-address")
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "Server closed"))
}
