package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/db"
	"github.com/atelier-north/studio-ops/internal/model"
	"github.com/atelier-north/studio-ops/internal/store"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-import emails for batch grouping",
	Long:  "Reads an email JSON array and loads it into the store. Against Postgres the load runs as a single COPY-based upsert; against SQLite rows insert one at a time.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		emails, err := readEmails(importFile)
		if err != nil {
			return err
		}
		if len(emails) == 0 {
			zap.L().Info("nothing to import")
			return nil
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if pg, ok := env.store.(*store.PostgresStore); ok {
			rows := make([][]any, 0, len(emails))
			for _, e := range emails {
				rows = append(rows, []any{e.ID, e.Sender, e.Subject, e.Snippet, e.ReceivedAt})
			}
			n, err := db.BulkUpsert(ctx, pg.Pool(), db.UpsertConfig{
				Table:        "emails",
				Columns:      []string{"id", "sender", "subject", "snippet", "received_at"},
				ConflictKeys: []string{"id"},
			}, rows)
			if err != nil {
				return err
			}
			zap.L().Info("import complete", zap.Int64("emails", n))
			return nil
		}

		for i, e := range emails {
			if err := env.store.CreateEmail(ctx, &emails[i]); err != nil {
				return eris.Wrapf(err, "import email %s", e.ID)
			}
		}
		zap.L().Info("import complete", zap.Int("emails", len(emails)))
		return nil
	},
}

func readEmails(path string) ([]model.Email, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}

	var emails []model.Email
	if err := json.Unmarshal(data, &emails); err != nil {
		return nil, eris.Wrap(err, "parse email json")
	}
	for i := range emails {
		if emails[i].ID == "" {
			emails[i].ID = uuid.New().String()
		}
		if emails[i].Sender == "" {
			return nil, eris.Errorf("email %d: sender is required", i)
		}
		if emails[i].ReceivedAt.IsZero() {
			emails[i].ReceivedAt = time.Now().UTC()
		}
	}
	return emails, nil
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "emails.json", "email JSON array")
	rootCmd.AddCommand(importCmd)
}
