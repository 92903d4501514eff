// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/phishnet/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
type TransactionFilter struct {
	Status *model.TransactionStatus
	Since  *time.Time
	Limit  int
	Offset int
}

// TransactionStore is the lookup and status-update side of the transaction
// datastore.
type TransactionStore interface {
	// GetTransaction returns common.ErrNotFound when id is unknown.
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	SaveTransaction(ctx context.Context, txn model.Transaction) error
	// SetStatus returns common.ErrNotFound when id is unknown.
	SetStatus(ctx context.Context, id string, status model.TransactionStatus) error
}

// UserStore holds cardholder profiles.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	SaveUser(ctx context.Context, user model.User) error
	// GetTravelSettings returns zero settings and no error for unknown users.
	GetTravelSettings(ctx context.Context, userID string) (model.TravelSettings, error)
	SetTravelMode(ctx context.Context, userID string, enabled bool, trusted []string) error
}

// TransactionIndex lists and counts stored transactions in bulk.
type TransactionIndex interface {
	// ListTransactions returns matches newest first.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	SaveTransactions(ctx context.Context, txns []model.Transaction) error
	CountByStatus(ctx context.Context) (StatusSummary, error)
}

// MetricsStore persists evaluation runs and the synthetic data behind them.
type MetricsStore interface {
	SaveTestTransactions(ctx context.Context, testID string, txns []model.Transaction) error
	SaveEvaluation(ctx context.Context, metrics *model.EvaluationMetrics) error
	ListEvaluations(ctx context.Context, limit int) ([]model.EvaluationMetrics, error)
}

// Storage is the full persistence layer backed by the SQL database.
type Storage interface {
	TransactionStore
	TransactionIndex
	UserStore
	MetricsStore

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}

// Notifier delivers fraud alerts to a user.
type Notifier interface {
	SendAlert(ctx context.Context, alert model.Alert) error
}

// Publisher hands transaction IDs to the fraud handler.
type Publisher interface {
	Publish(ctx context.Context, transactionID string) error
	Close() error
}

// StatusSummary counts transactions by status.
type StatusSummary map[model.TransactionStatus]int
