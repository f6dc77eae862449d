package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/model"
)

var (
	sugStatus   string
	sugType     string
	sugProject  string
	sugLimit    int
	sugReviewer string
	sugNotes    string
	sugNoApply  bool
	sugDataJSON string
	sugOutPath  string
)

var suggestionsCmd = &cobra.Command{
	Use:   "suggestions",
	Short: "Review and apply change suggestions",
}

var suggestionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suggestions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.store.ListSuggestions(ctx, model.SuggestionFilter{
			Status:      model.SuggestionStatus(sugStatus),
			Type:        sugType,
			ProjectCode: sugProject,
			Limit:       sugLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tPRIORITY\tCONF\tSTATUS\tPROJECT\tTITLE")
		for _, s := range out {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
				s.ID, s.SuggestionType, s.Priority, s.Confidence, s.Status, s.ProjectCode, s.Title)
		}
		return w.Flush()
	},
}

var suggestionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one suggestion with its change history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sug, err := env.store.GetSuggestion(ctx, args[0])
		if err != nil {
			return err
		}
		changes, err := env.store.ListChanges(ctx, sug.ID)
		if err != nil {
			return err
		}

		payload := struct {
			*model.Suggestion
			Changes []model.ChangeAudit `json:"changes,omitempty"`
		}{sug, changes}
		return printJSON(payload)
	},
}

var suggestionsPreviewCmd = &cobra.Command{
	Use:   "preview <id>",
	Short: "Show what applying a suggestion would change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		preview, err := env.service.Preview(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(preview)
	},
}

var suggestionsApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a suggestion and apply its change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.service.Approve(ctx, args[0], sugReviewer, !sugNoApply)
		if err != nil {
			return err
		}
		zap.L().Info("suggestion approved",
			zap.String("id", args[0]),
			zap.Bool("applied", outcome.Applied),
			zap.String("message", outcome.Message))
		return nil
	},
}

var suggestionsRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.service.Reject(ctx, args[0], sugReviewer, sugNotes); err != nil {
			return err
		}
		zap.L().Info("suggestion rejected", zap.String("id", args[0]))
		return nil
	},
}

var suggestionsModifyCmd = &cobra.Command{
	Use:   "modify <id>",
	Short: "Apply a suggestion with corrected data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if sugDataJSON == "" {
			return eris.New("--data is required")
		}
		var corrected model.SuggestedData
		if err := json.Unmarshal([]byte(sugDataJSON), &corrected); err != nil {
			return eris.Wrap(err, "parse corrected data")
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		outcome, err := env.service.Modify(ctx, args[0], sugReviewer, corrected, !sugNoApply)
		if err != nil {
			return err
		}
		zap.L().Info("suggestion modified",
			zap.String("id", args[0]),
			zap.Bool("applied", outcome.Applied))
		return nil
	},
}

var suggestionsRollbackCmd = &cobra.Command{
	Use:   "rollback <id>",
	Short: "Reverse an applied suggestion exactly",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		ok, err := env.service.Rollback(ctx, args[0])
		if err != nil {
			return err
		}
		zap.L().Info("suggestion rolled back", zap.String("id", args[0]), zap.Bool("reversed", ok))
		return nil
	},
}

var suggestionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export suggestions to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.store.ListSuggestions(ctx, model.SuggestionFilter{
			Status:      model.SuggestionStatus(sugStatus),
			Type:        sugType,
			ProjectCode: sugProject,
			Limit:       sugLimit,
		})
		if err != nil {
			return err
		}

		if err := writeSuggestionsXLSX(sugOutPath, out); err != nil {
			return err
		}
		zap.L().Info("export complete", zap.Int("rows", len(out)), zap.String("path", sugOutPath))
		return nil
	},
}

func writeSuggestionsXLSX(path string, suggestions []model.Suggestion) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Suggestions")
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"ID", "Type", "Priority", "Confidence", "Status", "Project", "Title", "Reviewer", "Created"} {
		header.AddCell().Value = h
	}
	for _, s := range suggestions {
		row := sheet.AddRow()
		row.AddCell().Value = s.ID
		row.AddCell().Value = s.SuggestionType
		row.AddCell().Value = string(s.Priority)
		row.AddCell().Value = strconv.FormatFloat(s.Confidence, 'f', 2, 64)
		row.AddCell().Value = string(s.Status)
		row.AddCell().Value = s.ProjectCode
		row.AddCell().Value = s.Title
		row.AddCell().Value = s.ReviewedBy
		row.AddCell().Value = s.CreatedAt.Format("2006-01-02 15:04")
	}
	return eris.Wrapf(f.Save(path), "xlsx: save %s", path)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	for _, c := range []*cobra.Command{suggestionsListCmd, suggestionsExportCmd} {
		c.Flags().StringVar(&sugStatus, "status", "", "filter by status")
		c.Flags().StringVar(&sugType, "type", "", "filter by suggestion type")
		c.Flags().StringVar(&sugProject, "project", "", "filter by project code")
		c.Flags().IntVar(&sugLimit, "limit", 50, "max rows")
	}
	suggestionsExportCmd.Flags().StringVarP(&sugOutPath, "out", "o", "suggestions.xlsx", "output path")

	for _, c := range []*cobra.Command{suggestionsApproveCmd, suggestionsRejectCmd, suggestionsModifyCmd} {
		c.Flags().StringVar(&sugReviewer, "reviewer", "", "reviewer name")
	}
	suggestionsRejectCmd.Flags().StringVar(&sugNotes, "reason", "", "rejection reason")
	suggestionsApproveCmd.Flags().BoolVar(&sugNoApply, "no-apply", false, "approve without applying")
	suggestionsModifyCmd.Flags().BoolVar(&sugNoApply, "no-apply", false, "record the correction without applying")
	suggestionsModifyCmd.Flags().StringVar(&sugDataJSON, "data", "", "corrected suggested_data JSON (required)")

	suggestionsCmd.AddCommand(
		suggestionsListCmd,
		suggestionsShowCmd,
		suggestionsPreviewCmd,
		suggestionsApproveCmd,
		suggestionsRejectCmd,
		suggestionsModifyCmd,
		suggestionsRollbackCmd,
		suggestionsExportCmd,
	)
	rootCmd.AddCommand(suggestionsCmd)
}
