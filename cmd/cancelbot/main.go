// cancelbot pulls one unresolved support conversation, classifies it with an
// LLM, optionally cancels the order in the fulfillment system, and writes a
// private note, tags and an audit record.
//
// Safe by default: dry_run=true in rules.yaml prevents real cancellations.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cancelbot/internal/audit"
	"cancelbot/internal/classify"
	"cancelbot/internal/config"
	"cancelbot/internal/engine"
	"cancelbot/internal/fulfill"
	"cancelbot/internal/logging"
	"cancelbot/internal/ticket"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
)

// Exit codes: 0 a ticket was processed (whatever the terminal state),
// 1 the run itself failed, 2 no unresolved ticket was found.
const (
	exitProcessed  = 0
	exitRunFailure = 1
	exitNoTicket   = 2
)

var rootCmd = &cobra.Command{
	Use:   "cancelbot",
	Short: "LLM-driven triage for order-cancellation support tickets",
	Long: `cancelbot fetches one unresolved support conversation, classifies the
customer's intent with an LLM, and takes exactly one action: note-and-tag for
non-cancellations or missing order ids, a simulated cancellation in dry-run
mode, or a real cancellation against the fulfillment API. Every run appends
one record to the audit database.

Exit codes: 0 ticket processed, 1 run failure, 2 no unresolved ticket.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process one unresolved conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := logging.Initialize(cfg.LogsDir, cfg.Debug || verbose); err != nil {
			return err
		}
		logging.Boot("run starting, dry_run=%v", cfg.DryRun)

		runID := uuid.NewString()
		logger.Info("starting run",
			zap.String("run_id", runID),
			zap.Bool("dry_run", cfg.DryRun),
			zap.String("provider", cfg.Classifier.Provider))

		store, err := audit.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		tickets := ticket.NewClient(&cfg.Reamaze, cfg.GetReamazeTimeout())
		classifier, err := classify.New(cfg)
		if err != nil {
			return err
		}

		// The fulfillment client is only needed for real cancellations; a
		// construction failure is deferred into the run as a setup failure
		// so the ticket is still noted and audited.
		var canceller engine.Canceller
		if !cfg.DryRun {
			adapter, err := fulfill.NewAdapter(&cfg.Fulfillment, cfg.GetFulfillmentTimeout())
			if err != nil {
				logger.Warn("fulfillment client unavailable", zap.Error(err))
			} else {
				canceller = adapter
			}
		}

		eng := engine.New(cfg, tickets, classifier, canceller, store, runID, cmd.OutOrStdout())
		run, err := eng.Run(context.Background())
		if err != nil {
			logger.Error("run failed", zap.String("run_id", runID), zap.Error(err))
			return err
		}
		if run == nil {
			logger.Info("no unresolved ticket", zap.String("run_id", runID))
			store.Close()
			exitAfterCleanup(exitNoTicket)
		}

		logger.Info("run finished",
			zap.String("run_id", runID),
			zap.String("convo", run.Ticket.Slug),
			zap.String("state", string(run.State)),
			zap.String("order_id", run.OrderID))
		fmt.Fprintf(cmd.OutOrStdout(), "done: %s (audit db: %s)\n", run.State, store.Path())
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		store, err := audit.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.Recent(historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no audit records")
			return nil
		}
		for _, rec := range records {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-24s  %-16s  %-18s  success=%-5v  %s\n",
				rec.CreatedAt.Format("2006-01-02 15:04:05"),
				rec.ConvoSlug, rec.Intent, rec.OrderID, rec.Success, rec.RunID)
		}
		return nil
	},
}

// exitAfterCleanup flushes loggers before a non-default exit code.
func exitAfterCleanup(code int) {
	if logger != nil {
		_ = logger.Sync()
	}
	logging.CloseAll()
	os.Exit(code)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "rules.yaml", "path to the rules file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitRunFailure)
	}
}
