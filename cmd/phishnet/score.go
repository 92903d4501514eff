package main

import (
	"fmt"

	"github.com/Veraticus/phishnet/internal/cli"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/spf13/cobra"
)

func scoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <transaction-id>",
		Short: "Explain the fraud score of a stored transaction",
		Long: `Score a transaction without changing its status or alerting anyone,
and show how each rule contributed.`,
		Args: cobra.ExactArgs(1),
		RunE: runScore,
	}
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	engine, err := initEngine()
	if err != nil {
		return err
	}

	store, err := initDatastore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	txn, err := store.GetTransaction(ctx, args[0])
	if err != nil {
		return err
	}
	travel, err := store.GetTravelSettings(ctx, txn.UserID)
	if err != nil {
		return err
	}

	assessment, err := engine.Assess(ctx, *txn, travel)
	if err != nil {
		return err
	}

	fmt.Println(cli.RenderAssessment(*txn, assessment))
	if travel.TravelModeEnabled && engine.Rules().IsHighRisk(txn.Location) && assessment.Factors.LocationRisk == 0 {
		fmt.Println(cli.FormatInfo("Location trusted: travel mode is on for " + txn.Location))
	}
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Count stored transactions by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initDatastore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			counts, err := store.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatTitle("Transactions"))
			for _, status := range []model.TransactionStatus{model.StatusPending, model.StatusSentToUser, model.StatusCleared} {
				fmt.Printf("  %-14s %d\n", status, counts[status])
			}
			return nil
		},
	}
}
