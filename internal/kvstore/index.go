package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/service"
	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 500

var _ service.TransactionIndex = (*Store)(nil)

// SaveTransactions validates every transaction before writing any, then
// stores them in one pipeline.
func (s *Store) SaveTransactions(ctx context.Context, txns []model.Transaction) error {
	for _, txn := range txns {
		if err := txn.Validate(); err != nil {
			return fmt.Errorf("transaction %s: %w", txn.ID, err)
		}
	}
	if len(txns) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, txn := range txns {
			txn = txn.Normalize()
			data, err := json.Marshal(txn)
			if err != nil {
				return fmt.Errorf("failed to encode transaction %s: %w", txn.ID, err)
			}
			pipe.Set(ctx, transactionKey(txn.ID), data, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save transactions: %w", err)
	}
	return nil
}

// ListTransactions scans every stored transaction and applies the filter,
// newest first with ties broken by ID.
func (s *Store) ListTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	all, err := s.loadTransactions(ctx)
	if err != nil {
		return nil, err
	}

	matched := all[:0]
	for _, txn := range all {
		if filter.Status != nil && txn.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && txn.Timestamp.Before(*filter.Since) {
			continue
		}
		matched = append(matched, txn)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID < matched[j].ID
	})

	if filter.Limit > 0 {
		start := min(max(filter.Offset, 0), len(matched))
		end := min(start+filter.Limit, len(matched))
		matched = matched[start:end]
	}
	return matched, nil
}

// CountByStatus tallies stored transactions by status.
func (s *Store) CountByStatus(ctx context.Context) (service.StatusSummary, error) {
	all, err := s.loadTransactions(ctx)
	if err != nil {
		return nil, err
	}
	summary := make(service.StatusSummary)
	for _, txn := range all {
		summary[txn.Status]++
	}
	return summary, nil
}

func (s *Store) loadTransactions(ctx context.Context) ([]model.Transaction, error) {
	keys, err := s.scanKeys(ctx, transactionPrefix+"*")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.Get(ctx, key)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis load transactions: %w", err)
	}

	txns := make([]model.Transaction, 0, len(keys))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			// Expired between SCAN and GET.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", keys[i], err)
		}
		var txn model.Transaction
		if err := json.Unmarshal(data, &txn); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", keys[i], err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// scanKeys walks the keyspace with SCAN, visiting every master on a cluster.
func (s *Store) scanKeys(ctx context.Context, match string) ([]string, error) {
	var (
		mu   sync.Mutex
		keys []string
	)
	scan := func(ctx context.Context, client redis.Cmdable) error {
		iter := client.Scan(ctx, 0, match, scanBatch).Iterator()
		var found []string
		for iter.Next(ctx) {
			found = append(found, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		mu.Lock()
		keys = append(keys, found...)
		mu.Unlock()
		return nil
	}

	var err error
	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		err = cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return scan(ctx, node)
		})
	} else {
		err = scan(ctx, s.client)
	}
	if err != nil {
		return nil, fmt.Errorf("redis scan %s: %w", match, err)
	}
	return keys, nil
}
