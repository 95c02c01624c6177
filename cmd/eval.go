package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptsense/promptsense/internal/eval"
	"github.com/promptsense/promptsense/internal/output"
	"github.com/promptsense/promptsense/internal/store"
)

var evalCmd = &cobra.Command{
	Use:   "eval <run>",
	Short: "Compute agreement metrics for a run",
	Long: `Compute agreement metrics for a run from its stored results.

Metrics are printed per task and persisted, replacing any earlier
evaluation of the same run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return evalRun(args[0])
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)
}

func evalRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	run, err := resolveRunArg(ctx, s, ref)
	if err != nil {
		return err
	}

	results, err := s.ListResults(ctx, store.ResultFilter{RunID: run.ID})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("run %s has no results to evaluate", run.Name)
	}

	summary := eval.Evaluate(run, results)
	rows := summary.Rows()

	if dryRun {
		ui.DryRunMsg("Would persist %d metric rows for run %s", len(rows), run.Name)
	} else {
		if err := s.ReplaceMetrics(ctx, run.ID, rows); err != nil {
			return fmt.Errorf("persist metrics: %w", err)
		}
	}

	printSummary(summary)

	if !dryRun {
		ui.Success("Persisted %d metric rows", len(rows))
	}
	return nil
}

// printSummary renders the evaluation tables per task.
func printSummary(summary *eval.Summary) {
	for _, ts := range summary.Tasks {
		fmt.Fprintf(ui.Out, "\n%s %s\n\n", output.Cyan("Task:"), ts.Task)

		pt := ui.Table([]string{"Provider", "Calls", "Errors", "Valid", "Consistency"})
		for _, ps := range ts.Providers {
			consistency := "n/a"
			if ps.ConsistencyOK {
				consistency = output.AgreementColor(ps.Consistency)
			}
			_ = pt.Append([]string{
				ps.Provider,
				fmt.Sprintf("%d", ps.Calls),
				fmt.Sprintf("%d", ps.Errors),
				fmt.Sprintf("%.1f%%", ps.ValidRate*100),
				consistency,
			})
		}
		_ = pt.Render()

		for _, ps := range ts.Providers {
			if len(ps.Styles) == 0 {
				continue
			}
			fmt.Fprintf(ui.Out, "\n  Styles (%s)\n", ps.Provider)
			st := ui.Table([]string{"Style", "Calls", "Valid", "Majority"})
			for _, ss := range ps.Styles {
				majority := "n/a"
				if ss.MajorityOK {
					majority = output.AgreementColor(ss.MajorityAgreement)
				}
				_ = st.Append([]string{
					ss.Style,
					fmt.Sprintf("%d", ss.Calls),
					fmt.Sprintf("%.1f%%", ss.ValidRate*100),
					majority,
				})
			}
			_ = st.Render()

			if len(ps.StylePairs) > 0 {
				fmt.Fprintf(ui.Out, "\n  Style agreement (%s)\n", ps.Provider)
				for _, pair := range ps.StylePairs {
					fmt.Fprintf(ui.Out, "    %-12s x %-12s %s  (n=%d)\n",
						pair.A, pair.B, output.AgreementColor(pair.Agreement), pair.Overlap)
				}
			}
		}

		if len(ts.ModelAgreements) > 0 {
			fmt.Fprintln(ui.Out, "\n  Model agreement")
			for _, pair := range ts.ModelAgreements {
				fmt.Fprintf(ui.Out, "    %-12s x %-12s %s  (n=%d)\n",
					pair.A, pair.B, output.AgreementColor(pair.Agreement), pair.Overlap)
			}
		}
	}
}
