package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atelier-north/studio-ops/internal/model"
)

var (
	ingestFile     string
	ingestClassify bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Turn detection records into pending suggestions",
	Long:  "Reads detection JSON (one object or an array) from a file or stdin and creates pending suggestions. With --classify, entity extraction runs through Claude first using each record's raw text.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		detections, err := readDetections(ingestFile)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if ingestClassify {
			detector, err := newDetector()
			if err != nil {
				return err
			}
			for i := range detections {
				detections[i], err = detector.Detect(ctx, detections[i])
				if err != nil {
					return eris.Wrapf(err, "classify detection %d", i)
				}
			}
		}

		created := 0
		for _, d := range detections {
			suggestions, err := env.service.GenerateSuggestions(ctx, d)
			if err != nil {
				return err
			}
			created += len(suggestions)
		}

		zap.L().Info("ingest complete",
			zap.Int("detections", len(detections)),
			zap.Int("suggestions_created", created))
		return nil
	},
}

// readDetections accepts a single detection object or an array, from a
// file or stdin ("-").
func readDetections(path string) ([]model.Detection, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "open %s", path)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "read detections")
	}

	var many []model.Detection
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one model.Detection
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, eris.Wrap(err, "parse detection json")
	}
	return []model.Detection{one}, nil
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "-", "detection JSON file (default stdin)")
	ingestCmd.Flags().BoolVar(&ingestClassify, "classify", false, "extract entities with Claude before generating")
	rootCmd.AddCommand(ingestCmd)
}
