package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

// Helper function to create test transactions.
func createTestTransactions(count int) []model.Transaction {
	txns := make([]model.Transaction, count)
	baseTime := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := range count {
		txns[i] = model.Transaction{
			ID:                fmt.Sprintf("txn_%010d", i+1),
			UserID:            "user_0001",
			Amount:            decimal.New(int64(i+1)*1050, -2),
			Timestamp:         baseTime.Add(time.Duration(i) * time.Hour),
			Merchant:          "Amazon",
			Category:          "Shopping",
			PaymentMethod:     "Credit Card",
			Location:          "New York",
			BaseRiskIndicator: 0.2,
			Status:            model.StatusPending,
		}
	}
	return txns
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestSQLiteStorage_SaveAndGetTransaction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := createTestTransactions(1)[0]
	txn.Amount = decimal.RequireFromString("3500.25")
	txn.Location = "Tokyo"
	require.NoError(t, store.SaveTransaction(ctx, txn))

	got, err := store.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)

	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, txn.UserID, got.UserID)
	assert.True(t, txn.Amount.Equal(got.Amount), "amount %s", got.Amount)
	assert.True(t, txn.Timestamp.Equal(got.Timestamp), "timestamp %s", got.Timestamp)
	assert.Equal(t, "Tokyo", got.Location)
	assert.Equal(t, "Credit Card", got.PaymentMethod)
	assert.InDelta(t, 0.2, got.BaseRiskIndicator, 1e-9)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestSQLiteStorage_SaveTransactionAppliesDefaults(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := model.Transaction{ID: "txn_bare", Amount: decimal.NewFromInt(10), Timestamp: time.Now()}
	require.NoError(t, store.SaveTransaction(ctx, txn))

	got, err := store.GetTransaction(ctx, "txn_bare")
	require.NoError(t, err)
	assert.Equal(t, model.UnknownValue, got.Location)
	assert.Equal(t, model.UnknownValue, got.UserID)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestSQLiteStorage_SaveTransactions(t *testing.T) {
	tests := []struct {
		name         string
		transactions []model.Transaction
		wantErr      error
	}{
		{
			name:         "save new transactions",
			transactions: createTestTransactions(3),
		},
		{
			name:         "nil slice",
			transactions: nil,
			wantErr:      ErrNilParameter,
		},
		{
			name:         "empty slice",
			transactions: []model.Transaction{},
			wantErr:      ErrEmptySlice,
		},
		{
			name: "invalid transaction",
			transactions: []model.Transaction{
				{ID: "txn_neg", Amount: decimal.NewFromInt(-1)},
			},
			wantErr: common.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, cleanup := createTestStorage(t)
			defer cleanup()
			ctx := context.Background()

			err := store.SaveTransactions(ctx, tt.transactions)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			txns, err := store.ListTransactions(ctx, service.TransactionFilter{})
			require.NoError(t, err)
			assert.Len(t, txns, len(tt.transactions))
		})
	}
}

func TestSQLiteStorage_SaveTransactionsUpserts(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txns := createTestTransactions(2)
	require.NoError(t, store.SaveTransactions(ctx, txns))

	txns[0].Merchant = "Airline"
	require.NoError(t, store.SaveTransactions(ctx, txns))

	got, err := store.GetTransaction(ctx, txns[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Airline", got.Merchant)

	all, err := store.ListTransactions(ctx, service.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStorage_GetTransactionNotFound(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	_, err := store.GetTransaction(context.Background(), "txn_missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = store.GetTransaction(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyString)
}

func TestSQLiteStorage_SetStatus(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txn := createTestTransactions(1)[0]
	require.NoError(t, store.SaveTransaction(ctx, txn))

	require.NoError(t, store.SetStatus(ctx, txn.ID, model.StatusSentToUser))
	got, err := store.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSentToUser, got.Status)

	assert.ErrorIs(t, store.SetStatus(ctx, "txn_missing", model.StatusSentToUser), common.ErrNotFound)
	assert.ErrorIs(t, store.SetStatus(ctx, txn.ID, "Exploded"), common.ErrInvalidInput)
}

func TestSQLiteStorage_ListTransactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	txns := createTestTransactions(5)
	require.NoError(t, store.SaveTransactions(ctx, txns))
	require.NoError(t, store.SetStatus(ctx, txns[1].ID, model.StatusSentToUser))
	require.NoError(t, store.SetStatus(ctx, txns[3].ID, model.StatusSentToUser))

	t.Run("newest first", func(t *testing.T) {
		all, err := store.ListTransactions(ctx, service.TransactionFilter{})
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, txns[4].ID, all[0].ID)
	})

	t.Run("by status", func(t *testing.T) {
		flagged := model.StatusSentToUser
		got, err := store.ListTransactions(ctx, service.TransactionFilter{Status: &flagged})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, txns[3].ID, got[0].ID)
		assert.Equal(t, txns[1].ID, got[1].ID)
	})

	t.Run("since", func(t *testing.T) {
		since := txns[2].Timestamp
		got, err := store.ListTransactions(ctx, service.TransactionFilter{Since: &since})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("paged", func(t *testing.T) {
		got, err := store.ListTransactions(ctx, service.TransactionFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, txns[2].ID, got[0].ID)
	})

	t.Run("count by status", func(t *testing.T) {
		summary, err := store.CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, service.StatusSummary{model.StatusPending: 3, model.StatusSentToUser: 2}, summary)
	})
}

func TestSQLiteStorage_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.SaveTransaction(ctx, createTestTransactions(1)[0]))
}
