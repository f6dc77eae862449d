package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/atelier-north/studio-ops/internal/model"
)

var (
	patternType     string
	patternAll      bool
	patternEvidence int
	patternDays     int
	patternOutPath  string
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and maintain learned review patterns",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List learned patterns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		patterns, err := env.learner.GetLearnedPatterns(ctx, model.PatternType(patternType), !patternAll)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tCONF\tEVIDENCE\tACTIVE\tLAST VALIDATED")
		for _, p := range patterns {
			validated := "never"
			if p.LastValidatedAt != nil {
				validated = p.LastValidatedAt.Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%t\t%s\n",
				p.Name, p.Type, p.Confidence, p.EvidenceCount, p.Active, validated)
		}
		return w.Flush()
	},
}

var patternsMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine review feedback for new patterns",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		minEvidence := patternEvidence
		if minEvidence <= 0 {
			minEvidence = cfg.Engine.MinEvidence
		}
		result, err := env.learner.MineRules(ctx, minEvidence)
		if err != nil {
			return err
		}
		zap.L().Info("mining complete",
			zap.Int("created", result.RulesCreated),
			zap.Int("updated", result.RulesUpdated),
			zap.Strings("patterns", result.PatternNames))
		return nil
	},
}

var patternsDecayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Decay patterns that have not validated recently",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		days := patternDays
		if days <= 0 {
			days = cfg.Engine.DecayDays
		}
		n, err := env.learner.DecayPatterns(ctx, days)
		if err != nil {
			return err
		}
		zap.L().Info("decay complete", zap.Int("patterns_decayed", n), zap.Int("window_days", days))
		return nil
	},
}

var patternsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check suppression patterns against recent review outcomes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		days := patternDays
		if days <= 0 {
			days = cfg.Engine.ValidationDays
		}
		report, err := env.learner.ValidatePatterns(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tAPPROVED\tREJECTED\tJUSTIFIED")
		for _, r := range report {
			fmt.Fprintf(w, "%s\t%d\t%d\t%t\n", r.Name, r.Approved, r.Rejected, r.Justified)
		}
		return w.Flush()
	},
}

var patternsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export patterns as YAML for review or backup",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		patterns, err := env.learner.GetLearnedPatterns(ctx, model.PatternType(patternType), !patternAll)
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(map[string]any{"patterns": patterns})
		if err != nil {
			return eris.Wrap(err, "marshal patterns")
		}
		if patternOutPath == "" || patternOutPath == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(patternOutPath, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", patternOutPath)
		}
		zap.L().Info("export complete", zap.Int("patterns", len(patterns)), zap.String("path", patternOutPath))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{patternsListCmd, patternsExportCmd} {
		c.Flags().StringVar(&patternType, "type", "", "filter by pattern type")
		c.Flags().BoolVar(&patternAll, "all", false, "include inactive patterns")
	}
	patternsExportCmd.Flags().StringVarP(&patternOutPath, "out", "o", "-", "output path (default stdout)")
	patternsMineCmd.Flags().IntVar(&patternEvidence, "min-evidence", 0, "evidence threshold (default from config)")
	patternsDecayCmd.Flags().IntVar(&patternDays, "days", 0, "staleness window in days (default from config)")
	patternsValidateCmd.Flags().IntVar(&patternDays, "days", 0, "outcome window in days (default from config)")

	patternsCmd.AddCommand(patternsListCmd, patternsMineCmd, patternsDecayCmd, patternsValidateCmd, patternsExportCmd)
	rootCmd.AddCommand(patternsCmd)
}
