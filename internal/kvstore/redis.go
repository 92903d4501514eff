// Package kvstore keeps transactions and user profiles in Redis, keyed by ID.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/service"
	"github.com/redis/go-redis/v9"
)

const (
	transactionPrefix = "txn:"
	userPrefix        = "user:"

	// maxWatchRetries bounds optimistic-lock retries on concurrent updates.
	maxWatchRetries = 5
)

// Config holds Redis connection settings.
type Config struct {
	Addrs    []string
	Password string
	DB       int
	// TTL expires stored records. Zero keeps them forever.
	TTL time.Duration
}

// NewClient connects to a single node or a cluster depending on how many
// addresses are configured.
func NewClient(cfg Config) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Store implements the transaction and user stores on Redis.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var (
	_ service.TransactionStore = (*Store)(nil)
	_ service.UserStore        = (*Store)(nil)
)

// New wraps an existing client.
func New(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func transactionKey(id string) string {
	return transactionPrefix + strings.TrimSpace(id)
}

func userKey(id string) string {
	return userPrefix + strings.TrimSpace(id)
}

// GetTransaction loads a transaction.
func (s *Store) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	var txn model.Transaction
	if err := s.get(ctx, transactionKey(id), &txn); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", id, err)
	}
	return &txn, nil
}

// SaveTransaction stores a transaction, replacing any previous value.
func (s *Store) SaveTransaction(ctx context.Context, txn model.Transaction) error {
	if err := txn.Validate(); err != nil {
		return err
	}
	txn = txn.Normalize()
	return s.set(ctx, transactionKey(txn.ID), txn, s.ttl)
}

// SetStatus updates a transaction's status under an optimistic lock.
func (s *Store) SetStatus(ctx context.Context, id string, status model.TransactionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown transaction status %q", common.ErrInvalidInput, status)
	}

	err := s.update(ctx, transactionKey(id), func(data []byte) (any, error) {
		var txn model.Transaction
		if err := json.Unmarshal(data, &txn); err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		txn.Status = status
		return txn, nil
	})
	if err != nil {
		return fmt.Errorf("transaction %s: %w", id, err)
	}

	slog.Debug("Transaction status updated", "transaction_id", id, "status", status)
	return nil
}

// GetUser loads a user profile.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.get(ctx, userKey(id), &user); err != nil {
		return nil, fmt.Errorf("user %s: %w", id, err)
	}
	return &user, nil
}

// SaveUser stores a user profile. Profiles never expire.
func (s *Store) SaveUser(ctx context.Context, user model.User) error {
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("%w: missing user ID", common.ErrInvalidInput)
	}
	if user.Travel.TrustedLocations == nil {
		user.Travel.TrustedLocations = []string{}
	}
	return s.set(ctx, userKey(user.ID), user, 0)
}

// GetTravelSettings returns zero settings for unknown users.
func (s *Store) GetTravelSettings(ctx context.Context, userID string) (model.TravelSettings, error) {
	if strings.TrimSpace(userID) == "" || userID == model.UnknownValue {
		return model.TravelSettings{}, nil
	}

	user, err := s.GetUser(ctx, userID)
	if errors.Is(err, common.ErrNotFound) {
		return model.TravelSettings{}, nil
	}
	if err != nil {
		return model.TravelSettings{}, err
	}
	return user.Travel, nil
}

// SetTravelMode updates a user's travel settings under an optimistic lock.
func (s *Store) SetTravelMode(ctx context.Context, userID string, enabled bool, trusted []string) error {
	locations := make([]string, 0, len(trusted))
	for _, loc := range trusted {
		if loc = strings.TrimSpace(loc); loc != "" {
			locations = append(locations, loc)
		}
	}

	err := s.update(ctx, userKey(userID), func(data []byte) (any, error) {
		var user model.User
		if err := json.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		user.Travel = model.TravelSettings{TravelModeEnabled: enabled, TrustedLocations: locations}
		return user, nil
	})
	if err != nil {
		return fmt.Errorf("user %s: %w", userID, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, dest any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return common.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// update applies fn to the current value of key inside WATCH/MULTI so that a
// concurrent writer forces a retry instead of a lost update.
func (s *Store) update(ctx context.Context, key string, fn func([]byte) (any, error)) error {
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return common.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("redis get %s: %w", key, err)
		}

		updated, err := fn(data)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, redis.KeepTTL)
			return nil
		})
		return err
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis update %s: too much contention", key)
}
