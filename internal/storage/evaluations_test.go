package storage

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStorage_TestTransactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txns := createTestTransactions(3)
	txns[0] = txns[0].WithLabel(true)
	txns[1] = txns[1].WithLabel(false)
	txns[2] = txns[2].WithLabel(false)

	require.NoError(t, store.SaveTestTransactions(ctx, "test_0001", txns))

	got, err := store.GetTestTransactions(ctx, "test_0001")
	require.NoError(t, err)
	require.Len(t, got, 3)

	fraud, ok := got[0].Label()
	assert.True(t, ok)
	assert.True(t, fraud)
	fraud, ok = got[1].Label()
	assert.True(t, ok)
	assert.False(t, fraud)

	err = store.SaveTestTransactions(ctx, "test_0002", txns[:1])
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	unlabeled := createTestTransactions(1)
	unlabeled[0].ID = "txn_unlabeled"
	err = store.SaveTestTransactions(ctx, "test_0003", unlabeled)
	assert.ErrorIs(t, err, common.ErrMissingLabel)

	assert.NoError(t, store.SaveTestTransactions(ctx, "test_0004", nil))
}

func TestSQLiteStorage_Evaluations(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	older := &model.EvaluationMetrics{
		TestID:          "test_old",
		Algorithm:       "rule_based",
		Timestamp:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ConfusionMatrix: model.ConfusionMatrix{TruePositives: 10, TrueNegatives: 90},
		Accuracy:        100,
		Precision:       100,
		Recall:          100,
		F1Score:         100,
	}
	newer := &model.EvaluationMetrics{
		TestID:          "test_new",
		Algorithm:       "rule_based",
		Timestamp:       time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		ConfusionMatrix: model.ConfusionMatrix{TruePositives: 20, FalsePositives: 80},
		Threshold:       50,
		Accuracy:        20,
		Precision:       20,
		Recall:          100,
		F1Score:         33.3,
	}

	require.NoError(t, store.SaveEvaluation(ctx, older))
	require.NoError(t, store.SaveEvaluation(ctx, newer))
	assert.ErrorIs(t, store.SaveEvaluation(ctx, older), common.ErrDuplicateEntry)
	assert.ErrorIs(t, store.SaveEvaluation(ctx, nil), ErrNilParameter)

	all, err := store.ListEvaluations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "test_new", all[0].TestID)
	assert.Equal(t, newer.ConfusionMatrix, all[0].ConfusionMatrix)
	assert.InDelta(t, 50.0, all[0].Threshold, 1e-9)
	assert.InDelta(t, 33.3, all[0].F1Score, 1e-9)
	assert.True(t, newer.Timestamp.Equal(all[0].Timestamp))

	latest, err := store.ListEvaluations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "test_new", latest[0].TestID)
}
