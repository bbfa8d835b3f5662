package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kpoilly/AIOps-Agent-Experiments/internal/evaluation"
)

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var (
		datasetPath string
		apiURL      string
		sampleSize  int
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate the news classifier on a random dataset sample",
		Long: `Load the labelled JSON-lines dataset (headline and category per line), draw
a random sample and post it to the classifier's /evaluate endpoint, which
scores the sample and updates its accuracy metric.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			cfg := evaluation.Config{
				DatasetPath: a.cfg.Evaluation.DatasetPath,
				APIURL:      a.cfg.Evaluation.APIURL,
				SampleSize:  a.cfg.Evaluation.SampleSize,
				Timeout:     evaluation.DefaultTimeout,
			}
			if datasetPath != "" {
				cfg.DatasetPath = datasetPath
			}
			if apiURL != "" {
				cfg.APIURL = apiURL
			}
			if sampleSize > 0 {
				cfg.SampleSize = sampleSize
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loading dataset %s (sample of %d)...\n", color.CyanString(cfg.DatasetPath), cfg.SampleSize)
			report, err := evaluation.Run(ctx, cfg, a.logger.Named("evaluation"))
			if err != nil {
				fmt.Fprintf(out, "%s Evaluation failed: %v\n", color.RedString("✗"), err)
				return err
			}

			fmt.Fprintf(out, "%s Evaluation completed: %d of %d items sent\n", color.GreenString("✓"), report.Sent, report.Loaded)
			fmt.Fprintf(out, "Accuracy: %.4f\n", report.Result.Accuracy)
			fmt.Fprintf(out, "Evaluated items: %d\n", report.Result.EvaluatedItems)
			return nil
		},
	}

	cmd.Flags().StringVar(&datasetPath, "dataset", "", "Override evaluation.dataset_path")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Override evaluation.api_url")
	cmd.Flags().IntVar(&sampleSize, "sample-size", 0, "Override evaluation.sample_size")
	return cmd
}
