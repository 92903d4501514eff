// Package testutil provides shared fixtures for phishnet tests: a migrated
// in-memory database and fluent builders for transactions and users.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// SetupTestDB creates a new in-memory test database. It automatically
// handles migrations and cleanup.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	db.SeedTransactions(testutil.NewTransaction("txn_1").InLocation("Tokyo").Build())
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		t:       t,
	}
}

// SeedTransactions stores txns or fails the test.
func (db *TestDB) SeedTransactions(txns ...model.Transaction) {
	db.t.Helper()
	if err := db.Storage.SaveTransactions(context.Background(), txns); err != nil {
		db.t.Fatalf("failed to seed transactions: %v", err)
	}
}

// SeedUsers stores users or fails the test.
func (db *TestDB) SeedUsers(users ...model.User) {
	db.t.Helper()
	for _, user := range users {
		if err := db.Storage.SaveUser(context.Background(), user); err != nil {
			db.t.Fatalf("failed to seed user %q: %v", user.ID, err)
		}
	}
}

// MustGetTransaction returns the stored transaction or fails the test.
func (db *TestDB) MustGetTransaction(id string) *model.Transaction {
	db.t.Helper()
	txn, err := db.Storage.GetTransaction(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to get transaction %q: %v", id, err)
	}
	return txn
}
