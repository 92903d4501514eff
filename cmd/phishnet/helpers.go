package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/phishnet/internal/classifier"
	"github.com/Veraticus/phishnet/internal/config"
	"github.com/Veraticus/phishnet/internal/generator"
	"github.com/Veraticus/phishnet/internal/kvstore"
	"github.com/Veraticus/phishnet/internal/risk"
	"github.com/Veraticus/phishnet/internal/service"
	"github.com/Veraticus/phishnet/internal/storage"
	"github.com/spf13/viper"
)

// datastore is the transaction and user side of whichever backend is
// configured.
type datastore struct {
	service.TransactionStore
	service.TransactionIndex
	service.UserStore
	close func() error
}

func (d *datastore) Close() error {
	return d.close()
}

// initStorage opens the SQLite database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	cfg, err := config.LoadStorageConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initDatastore opens the configured transaction and user backend.
func initDatastore(ctx context.Context) (*datastore, error) {
	v := viper.GetViper()
	cfg, err := config.LoadStorageConfig(v)
	if err != nil {
		return nil, err
	}

	if cfg.Backend == config.BackendRedis {
		rcfg, err := config.LoadRedisConfig(v)
		if err != nil {
			return nil, err
		}
		store := kvstore.New(kvstore.NewClient(rcfg), rcfg.TTL)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		slog.Debug("Using redis datastore", "addrs", rcfg.Addrs)
		return &datastore{TransactionStore: store, TransactionIndex: store, UserStore: store, close: store.Close}, nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("Using sqlite datastore", "path", store.Path())
	return &datastore{TransactionStore: store, TransactionIndex: store, UserStore: store, close: store.Close}, nil
}

// newGenerator returns a deterministic generator when a seed was given,
// zero included, and a clock-seeded one otherwise.
func newGenerator(seed int64, seeded bool) (*generator.Generator, error) {
	if seeded {
		return generator.NewSeeded(seed), nil
	}
	return generator.New(generator.DefaultConfig(), nil)
}

// initEngine builds the scoring engine, attaching the classifier when an
// artifact is configured.
func initEngine() (*risk.Engine, error) {
	v := viper.GetViper()
	cfg, err := config.LoadScoringConfig(v)
	if err != nil {
		return nil, err
	}

	var opts []risk.Option
	if path := config.ClassifierPath(v); path != "" {
		c, err := classifier.Load(path)
		if err != nil {
			return nil, err
		}
		slog.Info("Loaded classifier", "path", path, "policy", cfg.Policy)
		opts = append(opts, risk.WithClassifier(c))
	}

	return risk.New(cfg, opts...)
}
