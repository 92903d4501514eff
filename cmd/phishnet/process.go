package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Veraticus/phishnet/internal/cli"
	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/config"
	"github.com/Veraticus/phishnet/internal/model"
	"github.com/Veraticus/phishnet/internal/notify"
	"github.com/Veraticus/phishnet/internal/observability"
	"github.com/Veraticus/phishnet/internal/processor"
	"github.com/Veraticus/phishnet/internal/queue"
	"github.com/Veraticus/phishnet/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process [transaction-ids...]",
		Short: "Run the fraud handler",
		Long: `Score transactions, mark the suspicious ones as sent to the user,
and alert the cardholder through the configured channels.

Transactions come from the arguments, from every pending transaction in the
database (--pending), or from the Kafka topic (--from-queue).

Examples:
  # Process two transactions
  phishnet process txn_0a1b2c3d4e txn_5f6a7b8c9d

  # Drain everything still pending
  phishnet process --pending

  # Run as a consumer and expose Prometheus metrics
  phishnet process --from-queue --metrics-addr :9090`,
		RunE: runProcess,
	}

	cmd.Flags().Bool("from-queue", false, "Consume transaction IDs from Kafka until interrupted")
	cmd.Flags().Bool("pending", false, "Process every pending transaction in the database")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().Int("workers", 0, "Concurrent transactions (default from processor.workers)")

	_ = viper.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics-addr"))

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	v := viper.GetViper()
	fromQueue, _ := cmd.Flags().GetBool("from-queue")
	pending, _ := cmd.Flags().GetBool("pending")
	workers, _ := cmd.Flags().GetInt("workers")

	sources := 0
	for _, set := range []bool{len(args) > 0, fromQueue, pending} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return common.NewUserError("choose exactly one source: transaction IDs, --pending or --from-queue", nil)
	}

	engine, err := initEngine()
	if err != nil {
		return err
	}

	ncfg, err := config.LoadNotifyConfig(v)
	if err != nil {
		return err
	}
	notifier, err := notify.Build(ctx, ncfg)
	if err != nil {
		return err
	}

	store, err := initDatastore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	metrics := observability.NewMetrics("")
	var serveWG sync.WaitGroup
	serveCtx, stopServe := context.WithCancel(ctx)
	defer func() {
		stopServe()
		serveWG.Wait()
	}()
	if addr := config.MetricsAddr(v); addr != "" {
		serveWG.Add(1)
		go func() {
			defer serveWG.Done()
			if err := metrics.Serve(serveCtx, addr); err != nil {
				slog.Error("Metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	if workers <= 0 {
		workers = config.ProcessorWorkers(v)
	}
	proc := processor.New(store, store, engine, notifier, processor.Options{
		Recorder:    metrics,
		StatusRetry: common.DefaultRetryOptions(),
		Workers:     workers,
	})

	if fromQueue {
		return consumeQueue(ctx, proc)
	}

	ids := args
	if pending {
		if ids, err = pendingIDs(ctx, store); err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println(cli.FormatInfo("No pending transactions"))
			return nil
		}
	}

	slog.Info("Processing transactions", "count", len(ids), "workers", workers)
	results := proc.ProcessBatch(ctx, ids)

	for _, r := range results {
		printResult(r)
	}
	fmt.Println(cli.RenderBatchSummary(processor.Summarize(results)))
	return nil
}

func consumeQueue(ctx context.Context, proc *processor.Processor) error {
	kcfg, err := config.LoadKafkaConfig(viper.GetViper())
	if err != nil {
		return err
	}
	consumer, err := queue.NewConsumer(kcfg)
	if err != nil {
		return err
	}
	defer func() { _ = consumer.Close() }()

	handler := cli.NewInterruptHandler(nil)
	ctx = handler.HandleInterrupts(ctx, "Offsets are committed. Run phishnet process --from-queue to continue.")
	defer handler.Stop()

	fmt.Println(cli.FormatTitle(fmt.Sprintf("Consuming %s (group %s)", kcfg.Topic, kcfg.GroupID)))

	err = consumer.Run(ctx, func(ctx context.Context, id string) {
		printResult(proc.Process(ctx, id))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func pendingIDs(ctx context.Context, store service.TransactionIndex) ([]string, error) {
	status := model.StatusPending
	txns, err := store.ListTransactions(ctx, service.TransactionFilter{Status: &status})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(txns))
	for _, txn := range txns {
		ids = append(ids, txn.ID)
	}
	return ids, nil
}

func printResult(r processor.Result) {
	switch r.Outcome {
	case processor.OutcomeFlagged:
		line := fmt.Sprintf("%s %s flagged (score %.0f)", cli.AlertIcon, r.TransactionID, float64(r.Assessment.Score))
		fmt.Println(cli.ErrorStyle.Render(line))
		if r.AlertErr != nil {
			fmt.Println(cli.FormatWarning("  alert not delivered: " + r.AlertErr.Error()))
		}
		if r.StatusErr != nil {
			fmt.Println(cli.FormatWarning("  status not updated: " + r.StatusErr.Error()))
		}
	case processor.OutcomeClear:
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("%s clear (score %.0f)", r.TransactionID, float64(r.Assessment.Score))))
	default:
		fmt.Println(cli.FormatError(fmt.Sprintf("%s %s: %v", r.TransactionID, r.Outcome, r.Err)))
	}
}
