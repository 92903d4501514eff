package main

import (
	"fmt"
	"iter"
	"log/slog"
	"os"
	"slices"

	"github.com/Veraticus/phishnet/internal/cli"
	"github.com/Veraticus/phishnet/internal/config"
	"github.com/Veraticus/phishnet/internal/evaluation"
	"github.com/Veraticus/phishnet/internal/generator"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Measure scoring accuracy on labeled synthetic data",
		Long: `Generate labeled transactions, score each one, and report the
confusion matrix with accuracy, precision, recall and F1.

The generated transactions and the results are stored so runs can be
compared later with "phishnet evaluate history".

Examples:
  # Default run: 100 transactions, 20% fraud
  phishnet evaluate

  # Reproducible run against the production threshold
  phishnet evaluate --count 1000 --seed 42 --threshold 50`,
		Args: cobra.NoArgs,
		RunE: runEvaluate,
	}

	cmd.Flags().IntP("count", "n", 100, "Number of labeled transactions")
	cmd.Flags().Float64("fraud-rate", generator.DefaultFraudRate, "Fraction of transactions labeled fraud")
	cmd.Flags().Int64("seed", 0, "Random seed for a reproducible run (default seeds from the clock)")
	cmd.Flags().Float64("threshold", evaluation.DefaultThreshold, "Score above which a transaction counts as fraud")
	cmd.Flags().Bool("no-save", false, "Do not store the run")

	_ = viper.BindPFlag("evaluation.count", cmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("evaluation.fraud_rate", cmd.Flags().Lookup("fraud-rate"))
	_ = viper.BindPFlag("evaluation.seed", cmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("evaluation.threshold", cmd.Flags().Lookup("threshold"))

	cmd.AddCommand(evaluateHistoryCmd())

	return cmd
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	noSave, _ := cmd.Flags().GetBool("no-save")

	cfg, err := config.LoadEvaluationConfig(viper.GetViper())
	if err != nil {
		return err
	}

	engine, err := initEngine()
	if err != nil {
		return err
	}

	gen, err := newGenerator(cfg.Seed, cfg.Seeded)
	if err != nil {
		return err
	}

	seq, err := gen.Labeled(cfg.Count, cfg.FraudRate)
	if err != nil {
		return err
	}
	txns := slices.Collect(seq)

	slog.Info("Starting evaluation",
		"count", len(txns),
		"fraud_rate", cfg.FraudRate,
		"threshold", cfg.Threshold,
		"seed", cfg.Seed,
		"seeded", cfg.Seeded)

	bar := cli.NewProgressBar(os.Stderr, len(txns), "Evaluating")
	var progress iter.Seq[model.Transaction] = func(yield func(model.Transaction) bool) {
		for _, txn := range txns {
			_ = bar.Add(1)
			if !yield(txn) {
				return
			}
		}
	}

	metrics, skipped := evaluation.New(engine, cfg.Threshold).Evaluate(ctx, progress)
	for _, item := range skipped {
		slog.Warn("Skipped transaction", "index", item.Index, "transaction_id", item.TransactionID, "error", item.Err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !noSave {
		store, err := initStorage(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.SaveTestTransactions(ctx, metrics.TestID, txns); err != nil {
			return err
		}
		if err := store.SaveEvaluation(ctx, metrics); err != nil {
			return err
		}
		slog.Info("Evaluation stored", "test_id", metrics.TestID, "database", store.Path())
	}

	fmt.Println(cli.RenderEvaluation(metrics, len(skipped)))
	return nil
}

func evaluateHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored evaluation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListEvaluations(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Println(cli.RenderHistory(runs))
			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to show")
	return cmd
}
