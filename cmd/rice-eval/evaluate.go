package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/ranking"
	"github.com/ricesearch/rice-eval/internal/snapshot"
)

func rankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Score a ranked run against relevance judgments",
		Long: `Score a run file against a qrels file.

The qrels file holds one judged query per line: a query ID followed by
doc[:relevance] tokens (relevance defaults to 1). The run file holds a query
ID followed by document IDs in rank order. Lines starting with # are ignored.`,
		Example: `  rice-eval rank --gold qrels.txt --run run.txt
  rice-eval rank --gold qrels.txt --run run.txt --max-n 20 --measures "p@10,ndcg@20,map"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			goldPath, _ := cmd.Flags().GetString("gold")
			runPath, _ := cmd.Flags().GetString("run")
			maxN, _ := cmd.Flags().GetInt("max-n")
			measureList, _ := cmd.Flags().GetString("measures")

			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			qrels, err := readFile(goldPath, evaluation.ParseQrels)
			if err != nil {
				return err
			}
			run, err := readFile(runPath, evaluation.ParseRun)
			if err != nil {
				return err
			}

			opts := evaluation.RankOptions{MaxN: maxN}
			if measureList != "" {
				if opts.Measures, err = ranking.ParseMeasures(measureList); err != nil {
					return err
				}
			}

			runner, cleanup, err := newRunner(cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := runner.Rank(cmd.Context(), run, qrels, opts)
			if err != nil {
				return err
			}

			report, err := evaluation.NewRankingReport(outcome.RunID, outcome.Result, outcome.Measures)
			if err != nil {
				return err
			}
			if format == "json" {
				return evaluation.WriteJSON(cmd.OutOrStdout(), report)
			}
			return report.WriteTSV(cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("gold", "", "qrels file (required)")
	cmd.Flags().String("run", "", "run file (required)")
	cmd.Flags().Int("max-n", 0, "deepest rank scored (default: config max_n or the largest cutoff)")
	cmd.Flags().String("measures", "", "comma separated measures (default: config measures)")
	cmd.MarkFlagRequired("gold")
	cmd.MarkFlagRequired("run")

	return cmd
}

func setsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sets",
		Short: "Score predicted sets against gold sets",
		Long: `Score a test set file against a gold set file.

Each line holds a document key, a label (- for none) and the set's items.
A document may carry any number of sets.`,
		Example: `  rice-eval sets --gold gold.txt --test predicted.txt
  rice-eval sets --gold gold.txt --test predicted.txt --alpha 0.3 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			goldPath, _ := cmd.Flags().GetString("gold")
			testPath, _ := cmd.Flags().GetString("test")

			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			alpha := cfg.Eval.Alpha
			if cmd.Flags().Changed("alpha") {
				alpha, _ = cmd.Flags().GetFloat64("alpha")
			}
			if alpha < 0 || alpha > 1 {
				return fmt.Errorf("alpha must be between 0 and 1, got %g", alpha)
			}

			gold, err := readFile(goldPath, evaluation.ParseSets)
			if err != nil {
				return err
			}
			test, err := readFile(testPath, evaluation.ParseSets)
			if err != nil {
				return err
			}

			runner, cleanup, err := newRunner(cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			outcome, err := runner.Sets(cmd.Context(), gold, test)
			if err != nil {
				return err
			}

			report := evaluation.NewSetsReport(outcome.RunID, outcome.Stats, alpha)
			if format == "json" {
				return evaluation.WriteJSON(cmd.OutOrStdout(), report)
			}
			return report.WriteTSV(cmd.OutOrStdout())
		},
	}

	cmd.Flags().String("gold", "", "gold set file (required)")
	cmd.Flags().String("test", "", "predicted set file (required)")
	cmd.Flags().Float64("alpha", 0.5, "F-measure weight on precision (default: config alpha)")
	cmd.MarkFlagRequired("gold")
	cmd.MarkFlagRequired("test")

	return cmd
}

// newRunner wires a runner to the configured bus and snapshot store.
func newRunner(cfg *config.Config, log *logger.Logger) (*evaluation.Runner, func(), error) {
	b, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	store, err := snapshot.NewStore(cfg.Snapshot)
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	cleanup := func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("Bus close error")
		}
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("Snapshot store close error")
		}
	}

	runner, err := evaluation.NewRunner(cfg.Eval, b, store, log)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return runner, cleanup, nil
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	v, err := parse(f)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
