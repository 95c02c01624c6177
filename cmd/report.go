package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptsense/promptsense/internal/eval"
	"github.com/promptsense/promptsense/internal/report"
	"github.com/promptsense/promptsense/internal/store"
)

var (
	reportFormat  string
	reportOut     string
	exportType    string
	exportFormat  string
	exportDataset string
	exportRun     string
)

var reportCmd = &cobra.Command{
	Use:   "report <run>",
	Short: "Render a run report as HTML, Markdown, or JSON",
	Long: `Render a run report.

html produces a self-contained page with consistency heatmaps and a
per-style radar chart; markdown and json write to stdout unless --out
is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reportRun(args[0])
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export reviews, results, or metrics",
	Long:  "Export raw rows as JSON, CSV, or Markdown for downstream analysis.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRunE()
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "markdown", "Output format: html, markdown, json")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Write to file instead of stdout (html defaults to <run>-report.html)")
	rootCmd.AddCommand(reportCmd)

	exportCmd.Flags().StringVar(&exportType, "type", "results", "Data type: reviews, results, metrics")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportDataset, "dataset", "", "Dataset for --type reviews")
	exportCmd.Flags().StringVar(&exportRun, "run", "", "Run for --type results or metrics")
	rootCmd.AddCommand(exportCmd)
}

func reportRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	run, err := resolveRunArg(ctx, s, ref)
	if err != nil {
		return err
	}
	dataset, err := s.GetDataset(ctx, run.DatasetID)
	if err != nil {
		return fmt.Errorf("dataset for run %s: %w", run.Name, err)
	}
	results, err := s.ListResults(ctx, store.ResultFilter{RunID: run.ID})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("run %s has no results to report on", run.Name)
	}

	data := &report.Data{
		Run:     run,
		Dataset: dataset,
		Summary: eval.Evaluate(run, results),
	}

	out := reportOut
	if out == "" && reportFormat == "html" {
		out = run.Name + "-report.html"
	}

	var w io.Writer = ui.Out
	if out != "" {
		if dryRun {
			ui.DryRunMsg("Would write %s report to %s", reportFormat, out)
			return nil
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	switch reportFormat {
	case "html":
		err = report.HTML(w, data)
	case "markdown", "md":
		err = report.Markdown(w, data)
	case "json":
		err = report.JSON(w, data)
	default:
		return fmt.Errorf("unknown format: %s (use: html, markdown, json)", reportFormat)
	}
	if err != nil {
		return err
	}

	if out != "" {
		ui.Success("Report written to %s", out)
	}
	return nil
}

func exportRunE() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch exportType {
	case "reviews":
		return exportReviews(ctx, s)
	case "results":
		return exportResults(ctx, s)
	case "metrics":
		return exportMetrics(ctx, s)
	default:
		return fmt.Errorf("unknown export type: %s (use: reviews, results, metrics)", exportType)
	}
}

func exportReviews(ctx context.Context, s store.Store) error {
	if exportDataset == "" {
		return fmt.Errorf("--dataset is required for --type reviews")
	}
	d, err := resolveDatasetArg(ctx, s, exportDataset)
	if err != nil {
		return err
	}
	reviews, err := s.ListReviews(ctx, d.ID, 0)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(reviews)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "SourceID", "Rating", "Date", "Text"})
		for _, r := range reviews {
			_ = w.Write([]string{r.ID, r.SourceID, fmt.Sprintf("%d", r.Rating), r.Date.Format("2006-01-02"), r.Text})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintf(ui.Out, "# Reviews: %s\n\n", d.Name)
		fmt.Fprintln(ui.Out, "| Rating | Date | Text |")
		fmt.Fprintln(ui.Out, "|--------|------|------|")
		for _, r := range reviews {
			fmt.Fprintf(ui.Out, "| %d | %s | %s |\n", r.Rating, r.Date.Format("2006-01-02"), r.Text)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportResults(ctx context.Context, s store.Store) error {
	if exportRun == "" {
		return fmt.Errorf("--run is required for --type results")
	}
	run, err := resolveRunArg(ctx, s, exportRun)
	if err != nil {
		return err
	}
	results, err := s.ListResults(ctx, store.ResultFilter{RunID: run.ID})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "ReviewID", "Task", "Style", "Provider", "Model", "Label", "LatencyMs", "Error"})
		for _, r := range results {
			_ = w.Write([]string{r.ID, r.ReviewID, string(r.Task), r.Style, r.Provider, r.Model, r.Label,
				fmt.Sprintf("%d", r.LatencyMs), r.Error})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintf(ui.Out, "# Results: %s\n\n", run.Name)
		fmt.Fprintln(ui.Out, "| Task | Style | Provider | Label | Error |")
		fmt.Fprintln(ui.Out, "|------|-------|----------|-------|-------|")
		for _, r := range results {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s | %s |\n", r.Task, r.Style, r.Provider, r.Label, r.Error)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}

func exportMetrics(ctx context.Context, s store.Store) error {
	if exportRun == "" {
		return fmt.Errorf("--run is required for --type metrics")
	}
	run, err := resolveRunArg(ctx, s, exportRun)
	if err != nil {
		return err
	}
	metrics, err := s.ListMetrics(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(metrics) == 0 {
		return fmt.Errorf("no metrics for run %s (run 'promptsense eval %s' first)", run.Name, run.Name)
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(metrics)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"Task", "Provider", "Name", "Style", "Other", "Value"})
		for _, m := range metrics {
			_ = w.Write([]string{string(m.Task), m.Provider, m.Name, m.Style, m.Other, fmt.Sprintf("%.4f", m.Value)})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintf(ui.Out, "# Metrics: %s\n\n", run.Name)
		fmt.Fprintln(ui.Out, "| Task | Provider | Metric | Style | Other | Value |")
		fmt.Fprintln(ui.Out, "|------|----------|--------|-------|-------|-------|")
		for _, m := range metrics {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s | %s | %.4f |\n", m.Task, m.Provider, m.Name, m.Style, m.Other, m.Value)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", exportFormat)
	}
}
