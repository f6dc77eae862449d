package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/model"
)

var (
	batchHours    int
	batchLimit    int
	batchStatus   string
	batchReviewer string
	batchNotes    string
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Group unlinked emails into reviewable batches",
}

var batchesProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Sweep recent unlinked emails into sender batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		hours := batchHours
		if hours <= 0 {
			hours = cfg.Batch.Hours
		}
		limit := batchLimit
		if limit <= 0 {
			limit = cfg.Batch.Limit
		}
		result, err := env.batcher.ProcessBatches(ctx, hours, limit)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suggestion batches",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		batches, err := env.store.ListBatches(ctx, model.BatchStatus(batchStatus), batchLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tGROUP\tTIER\tCONF\tSTATUS\tPROJECT")
		for _, b := range batches {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
				b.ID, b.GroupKey, b.Tier, b.Confidence, b.Status, b.ProjectCode)
		}
		return w.Flush()
	},
}

var batchesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one batch with its members",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		batch, err := env.store.GetBatch(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(batch)
	},
}

var batchesApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a batch, creating its links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		decision, err := env.batcher.ApproveBatch(ctx, args[0], batchReviewer)
		if err != nil {
			return err
		}
		zap.L().Info("batch approved",
			zap.String("id", args[0]),
			zap.Int("links_created", decision.LinksCreated))
		return nil
	},
}

var batchesRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a batch without creating links",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.batcher.RejectBatch(ctx, args[0], batchReviewer, batchNotes); err != nil {
			return err
		}
		zap.L().Info("batch rejected", zap.String("id", args[0]))
		return nil
	},
}

func init() {
	batchesProcessCmd.Flags().IntVar(&batchHours, "hours", 0, "lookback window (default from config)")
	batchesProcessCmd.Flags().IntVar(&batchLimit, "limit", 0, "max emails per sweep (default from config)")
	batchesListCmd.Flags().StringVar(&batchStatus, "status", "", "filter by status")
	batchesListCmd.Flags().IntVar(&batchLimit, "limit", 50, "max rows")
	for _, c := range []*cobra.Command{batchesApproveCmd, batchesRejectCmd} {
		c.Flags().StringVar(&batchReviewer, "reviewer", "", "reviewer name")
	}
	batchesRejectCmd.Flags().StringVar(&batchNotes, "reason", "", "rejection reason")

	batchesCmd.AddCommand(batchesProcessCmd, batchesListCmd, batchesShowCmd, batchesApproveCmd, batchesRejectCmd)
	rootCmd.AddCommand(batchesCmd)
}
