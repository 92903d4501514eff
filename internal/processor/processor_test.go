package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/risk"
	"github.com/Veraticus/phishnet/internal/service"
	"github.com/Veraticus/phishnet/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) SendAlert(ctx context.Context, alert model.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

// failingStatusStore breaks SetStatus on an otherwise working store.
type failingStatusStore struct {
	service.TransactionStore
	calls atomic.Int32
}

func (s *failingStatusStore) SetStatus(context.Context, string, model.TransactionStatus) error {
	s.calls.Add(1)
	return errors.New("database is locked")
}

type brokenUserStore struct {
	service.UserStore
}

func (brokenUserStore) GetTravelSettings(context.Context, string) (model.TravelSettings, error) {
	return model.TravelSettings{}, errors.New("connection reset")
}

func (brokenUserStore) GetUser(context.Context, string) (*model.User, error) {
	return nil, errors.New("connection reset")
}

type recorded struct {
	mu         sync.Mutex
	outcomes   []string
	verdicts   []model.ClassifierVerdict
	alertErrs  []error
	statusErrs []error
}

func (r *recorded) RecordProcessed(outcome string, _ model.FraudScore, _ bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recorded) RecordClassifier(v model.ClassifierVerdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verdicts = append(r.verdicts, v)
}

func (r *recorded) RecordAlert(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alertErrs = append(r.alertErrs, err)
}

func (r *recorded) RecordStatusUpdate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusErrs = append(r.statusErrs, err)
}

func testOptions() Options {
	return Options{
		Workers: 4,
		StatusRetry: common.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
	}
}

func newEngine(t *testing.T) *risk.Engine {
	t.Helper()
	engine, err := risk.New(risk.DefaultConfig())
	require.NoError(t, err)
	return engine
}

func TestProcess_Flagged(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedUsers(testutil.NewUser("user_0001"))
	db.SeedTransactions(testutil.HighRisk("txn_high"))

	notifier := &mockNotifier{}
	notifier.On("SendAlert", mock.Anything, mock.MatchedBy(func(a model.Alert) bool {
		return a.TransactionID == "txn_high" &&
			a.UserID == "user_0001" &&
			a.Email == "user_0001@example.com" &&
			a.Phone == "+15555550100" &&
			a.Amount.String() == "3500" &&
			a.Score == 80
	})).Return(nil).Once()

	rec := &recorded{}
	opts := testOptions()
	opts.Recorder = rec
	p := New(db.Storage, db.Storage, newEngine(t), notifier, opts)

	result := p.Process(context.Background(), "txn_high")

	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeFlagged, result.Outcome)
	require.NotNil(t, result.Assessment)
	assert.InDelta(t, 80.0, float64(result.Assessment.Score), 0.0001)
	assert.NoError(t, result.StatusErr)
	assert.NoError(t, result.AlertErr)
	assert.NoError(t, result.ProfileErr)

	assert.Equal(t, model.StatusSentToUser, db.MustGetTransaction("txn_high").Status)
	notifier.AssertExpectations(t)

	assert.Equal(t, []string{"flagged"}, rec.outcomes)
	assert.Equal(t, []model.ClassifierVerdict{model.VerdictNotConfigured}, rec.verdicts)
	assert.Equal(t, []error{nil}, rec.alertErrs)
}

func TestProcess_Clear(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedTransactions(testutil.LowRisk("txn_low"))

	notifier := &mockNotifier{}
	p := New(db.Storage, db.Storage, newEngine(t), notifier, testOptions())

	result := p.Process(context.Background(), "txn_low")

	require.NoError(t, result.Err)
	assert.Equal(t, OutcomeClear, result.Outcome)
	assert.InDelta(t, 10.0, float64(result.Assessment.Score), 0.0001)
	assert.Equal(t, model.StatusPending, db.MustGetTransaction("txn_low").Status)
	notifier.AssertNotCalled(t, "SendAlert", mock.Anything, mock.Anything)
}

func TestProcess_TravelModeSuppressesLocationRisk(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedUsers(testutil.Traveling(testutil.NewUser("user_0001"), "Tokyo"))
	db.SeedTransactions(testutil.NewTransaction("txn_trip").WithAmount("1500").InLocation("Tokyo").Build())

	notifier := &mockNotifier{}
	p := New(db.Storage, db.Storage, newEngine(t), notifier, testOptions())

	result := p.Process(context.Background(), "txn_trip")

	assert.Equal(t, OutcomeClear, result.Outcome)
	assert.Equal(t, 0, result.Assessment.Factors.LocationRisk)
	assert.InDelta(t, 30.0, float64(result.Assessment.Score), 0.0001)
	notifier.AssertNotCalled(t, "SendAlert", mock.Anything, mock.Anything)
}

func TestProcess_NotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	notifier := &mockNotifier{}
	p := New(db.Storage, db.Storage, newEngine(t), notifier, testOptions())

	result := p.Process(context.Background(), "txn_missing")

	assert.Equal(t, OutcomeNotFound, result.Outcome)
	assert.ErrorIs(t, result.Err, common.ErrNotFound)
	assert.Nil(t, result.Assessment)
	notifier.AssertNotCalled(t, "SendAlert", mock.Anything, mock.Anything)
}

func TestProcess_StatusFailureStillAlerts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedTransactions(testutil.HighRisk("txn_high"))

	store := &failingStatusStore{TransactionStore: db.Storage}
	notifier := &mockNotifier{}
	notifier.On("SendAlert", mock.Anything, mock.Anything).Return(nil).Once()

	p := New(store, db.Storage, newEngine(t), notifier, testOptions())
	result := p.Process(context.Background(), "txn_high")

	assert.Equal(t, OutcomeFlagged, result.Outcome)
	require.Error(t, result.StatusErr)
	assert.ErrorIs(t, result.StatusErr, common.ErrMaxRetries)
	assert.Equal(t, int32(2), store.calls.Load())
	assert.NoError(t, result.AlertErr)
	notifier.AssertExpectations(t)
}

func TestProcess_AlertFailure(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedTransactions(testutil.HighRisk("txn_high"))

	notifier := &mockNotifier{}
	notifier.On("SendAlert", mock.Anything, mock.Anything).
		Return(fmt.Errorf("%w: sns throttled", common.ErrNotifyFailed))

	p := New(db.Storage, db.Storage, newEngine(t), notifier, testOptions())
	result := p.Process(context.Background(), "txn_high")

	assert.Equal(t, OutcomeFlagged, result.Outcome)
	assert.NoError(t, result.StatusErr)
	assert.ErrorIs(t, result.AlertErr, common.ErrNotifyFailed)
	assert.Equal(t, model.StatusSentToUser, db.MustGetTransaction("txn_high").Status)
}

func TestProcess_UnknownUserUsesChannelDefaults(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedTransactions(testutil.HighRisk("txn_high"))

	notifier := &mockNotifier{}
	notifier.On("SendAlert", mock.Anything, mock.MatchedBy(func(a model.Alert) bool {
		return a.Email == "" && a.Phone == ""
	})).Return(nil).Once()

	p := New(db.Storage, db.Storage, newEngine(t), notifier, testOptions())
	result := p.Process(context.Background(), "txn_high")

	assert.Equal(t, OutcomeFlagged, result.Outcome)
	assert.NoError(t, result.ProfileErr)
	notifier.AssertExpectations(t)
}

func TestProcess_UserStoreDown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedTransactions(testutil.HighRisk("txn_high"))

	notifier := &mockNotifier{}
	notifier.On("SendAlert", mock.Anything, mock.Anything).Return(nil).Once()

	p := New(db.Storage, brokenUserStore{}, newEngine(t), notifier, testOptions())
	result := p.Process(context.Background(), "txn_high")

	assert.Equal(t, OutcomeFlagged, result.Outcome, "scored without travel exemptions")
	assert.Error(t, result.ProfileErr)
	assert.NoError(t, result.AlertErr)
	notifier.AssertExpectations(t)
}

type invalidAssessor struct{}

func (invalidAssessor) Assess(context.Context, model.Transaction, model.TravelSettings) (*model.Assessment, error) {
	return nil, fmt.Errorf("%w: negative amount", common.ErrInvalidInput)
}

func TestProcess_InvalidTransaction(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedTransactions(testutil.LowRisk("txn_low"))

	p := New(db.Storage, db.Storage, invalidAssessor{}, &mockNotifier{}, testOptions())
	result := p.Process(context.Background(), "txn_low")

	assert.Equal(t, OutcomeInvalid, result.Outcome)
	assert.ErrorIs(t, result.Err, common.ErrInvalidInput)
}

func TestProcessBatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	db.SeedTransactions(
		testutil.HighRisk("txn_1"),
		testutil.LowRisk("txn_2"),
		testutil.HighRisk("txn_4"),
		testutil.LowRisk("txn_5"),
	)

	notifier := &mockNotifier{}
	notifier.On("SendAlert", mock.Anything, mock.Anything).Return(nil)

	p := New(db.Storage, db.Storage, newEngine(t), notifier, testOptions())
	ids := []string{"txn_1", "txn_2", "txn_3", "txn_4", "txn_5"}
	results := p.ProcessBatch(context.Background(), ids)

	require.Len(t, results, len(ids))
	for i, r := range results {
		assert.Equal(t, ids[i], r.TransactionID, "results keep input order")
	}
	assert.Equal(t, OutcomeFlagged, results[0].Outcome)
	assert.Equal(t, OutcomeClear, results[1].Outcome)
	assert.Equal(t, OutcomeNotFound, results[2].Outcome)
	assert.Equal(t, OutcomeFlagged, results[3].Outcome)
	assert.Equal(t, OutcomeClear, results[4].Outcome)
	notifier.AssertNumberOfCalls(t, "SendAlert", 2)

	summary := Summarize(results)
	assert.Equal(t, Summary{Total: 5, Flagged: 2, Clear: 2, Failed: 1}, summary)
}

func TestProcessBatch_Canceled(t *testing.T) {
	db := testutil.SetupTestDB(t)
	p := New(db.Storage, db.Storage, newEngine(t), &mockNotifier{}, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := p.ProcessBatch(ctx, []string{"a", "b"})
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, OutcomeError, r.Outcome)
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestProcessBatch_Empty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	p := New(db.Storage, db.Storage, newEngine(t), &mockNotifier{}, testOptions())

	assert.Empty(t, p.ProcessBatch(context.Background(), nil))
}
