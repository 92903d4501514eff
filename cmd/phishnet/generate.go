package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/phishnet/internal/cli"
	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/config"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/queue"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic transactions",
		Long: `Generate production-style synthetic transactions and store them.

With --publish, each stored transaction ID is also sent to the Kafka topic
that "phishnet process --from-queue" consumes.

Examples:
  # Store ten random transactions
  phishnet generate --count 10

  # Generate for a known user and hand them to the fraud handler
  phishnet generate --user user_1a2b3c4d --publish`,
		Args: cobra.NoArgs,
		RunE: runGenerate,
	}

	cmd.Flags().IntP("count", "n", 10, "Number of transactions to generate")
	cmd.Flags().String("user", "", "Attribute every transaction to this user ID")
	cmd.Flags().Bool("publish", false, "Publish transaction IDs to Kafka")
	cmd.Flags().Int64("seed", 0, "Random seed for reproducible output (default seeds from the clock)")

	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	count, _ := cmd.Flags().GetInt("count")
	userID, _ := cmd.Flags().GetString("user")
	publish, _ := cmd.Flags().GetBool("publish")
	seed, _ := cmd.Flags().GetInt64("seed")

	if count < 1 {
		return common.NewUserError("--count must be at least 1", nil)
	}

	gen, err := newGenerator(seed, cmd.Flags().Changed("seed"))
	if err != nil {
		return err
	}

	store, err := initDatastore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var producer *queue.Producer
	if publish {
		kcfg, err := config.LoadKafkaConfig(viper.GetViper())
		if err != nil {
			return err
		}
		if producer, err = queue.NewProducer(kcfg); err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
	}

	txns := make([]model.Transaction, 0, count)
	for range count {
		if err := ctx.Err(); err != nil {
			return err
		}

		var txn model.Transaction
		if userID != "" {
			txn = gen.ForUser(userID)
		} else {
			txn = gen.Transaction()
		}
		if err := store.SaveTransaction(ctx, txn); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
		if producer != nil {
			if err := producer.Publish(ctx, txn.ID); err != nil {
				return err
			}
		}
		txns = append(txns, txn)
	}

	slog.Info("Generated transactions", "count", len(txns), "published", publish)

	for _, txn := range txns {
		fmt.Printf("  %s  %-16s $%9s  %s\n", txn.ID, txn.Merchant, txn.Amount.StringFixed(2), txn.Location)
	}
	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Stored %d transactions", len(txns))))
	return nil
}
