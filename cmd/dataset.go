package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptsense/promptsense/internal/dataset"
	"github.com/promptsense/promptsense/internal/models"
	"github.com/promptsense/promptsense/internal/output"
	"github.com/promptsense/promptsense/internal/quality"
	"github.com/promptsense/promptsense/internal/store"
)

var (
	datasetLoadName   string
	datasetLoadFormat string
	datasetLoadStrict bool
	datasetShowLimit  int
)

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Load and inspect review datasets",
	Long: `Load app store review files and inspect what survived validation.

Running bare 'promptsense dataset' is the same as 'promptsense dataset list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return datasetListRun()
	},
}

var datasetLoadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a CSV or JSON review file",
	Long: `Load a review file into the database.

CSV files need text, rating, and date columns (an id column is kept as
the source id). JSON files hold an array of objects with the same
fields. Rows with an empty text, a rating outside 1-5, an unparseable
date, or a duplicate text are skipped with a warning; --strict turns
any skip into a failure.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return datasetLoadRun(args[0])
	},
}

var datasetListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List loaded datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return datasetListRun()
	},
}

var datasetStatsCmd = &cobra.Command{
	Use:   "stats [name]",
	Short: "Show dataset statistics and quality score",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return datasetStatsRun(args[0])
		}
		return datasetStatsAllRun()
	},
}

var datasetShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show a sample of the dataset's reviews",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return datasetShowRun(args[0])
	},
}

var datasetDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a dataset and its reviews",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return datasetDeleteRun(args[0])
	},
}

func init() {
	datasetLoadCmd.Flags().StringVar(&datasetLoadName, "name", "", "Dataset name (default: file name without extension)")
	datasetLoadCmd.Flags().StringVar(&datasetLoadFormat, "format", "", "Source format: csv or json (default: inferred from extension)")
	datasetLoadCmd.Flags().BoolVar(&datasetLoadStrict, "strict", false, "Fail when any row is skipped")
	datasetShowCmd.Flags().IntVar(&datasetShowLimit, "limit", 10, "Number of reviews to show")

	datasetCmd.AddCommand(datasetLoadCmd)
	datasetCmd.AddCommand(datasetListCmd)
	datasetCmd.AddCommand(datasetStatsCmd)
	datasetCmd.AddCommand(datasetShowCmd)
	datasetCmd.AddCommand(datasetDeleteCmd)
	rootCmd.AddCommand(datasetCmd)
}

func datasetLoadRun(path string) error {
	loaded, err := dataset.Load(path, datasetLoadFormat)
	if err != nil {
		return err
	}

	for i, skip := range loaded.Skipped {
		if i == 5 {
			ui.Warning("... and %d more skipped rows", len(loaded.Skipped)-5)
			break
		}
		ui.Warning("Skipping row %d: %s", skip.Row, skip.Reason)
	}

	if datasetLoadStrict && len(loaded.Skipped) > 0 {
		return fmt.Errorf("%d rows failed validation (strict mode)", len(loaded.Skipped))
	}

	name := datasetLoadName
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if dryRun {
		ui.DryRunMsg("Would load %d reviews into dataset %s (%d skipped)", len(loaded.Reviews), name, len(loaded.Skipped))
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if _, err := s.GetDatasetByName(ctx, name); err == nil {
		return fmt.Errorf("dataset already exists: %s (delete it first or pick another --name)", name)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	d := &models.Dataset{
		Name:        name,
		SourcePath:  absPath,
		Format:      loaded.Format,
		ReviewCount: len(loaded.Reviews),
		Skipped:     len(loaded.Skipped),
		LoadedAt:    time.Now().UTC(),
	}
	if err := s.CreateDataset(ctx, d); err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}

	for _, r := range loaded.Reviews {
		r.DatasetID = d.ID
	}
	if err := s.InsertReviews(ctx, loaded.Reviews); err != nil {
		return fmt.Errorf("insert reviews: %w", err)
	}

	ui.Success("Loaded %s: %d reviews (%d skipped)", output.Cyan(name), len(loaded.Reviews), len(loaded.Skipped))
	return nil
}

func datasetListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	datasets, err := s.ListDatasets(context.Background())
	if err != nil {
		return err
	}

	if len(datasets) == 0 {
		ui.Info("No datasets loaded. Use 'promptsense dataset load <file>' to get started.")
		return nil
	}

	table := ui.Table([]string{"Name", "Format", "Reviews", "Skipped", "Loaded", "Source"})
	for _, d := range datasets {
		_ = table.Append([]string{
			output.Cyan(d.Name),
			d.Format,
			fmt.Sprintf("%d", d.ReviewCount),
			fmt.Sprintf("%d", d.Skipped),
			d.LoadedAt.Format("2006-01-02"),
			filepath.Base(d.SourcePath),
		})
	}
	_ = table.Render()
	return nil
}

func datasetStatsRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	d, err := resolveDatasetArg(ctx, s, name)
	if err != nil {
		return err
	}

	reviews, err := s.ListReviews(ctx, d.ID, 0)
	if err != nil {
		return err
	}

	st := dataset.Summarize(reviews)
	score := quality.NewScorer().Compute(st, d.Skipped)

	fmt.Fprintf(ui.Out, "%s\n\n", output.Cyan(d.Name))
	fmt.Fprintf(ui.Out, "  Reviews:     %d (%d skipped at load)\n", st.Count, d.Skipped)
	fmt.Fprintf(ui.Out, "  Mean rating: %.2f\n", st.MeanRating)
	if st.Count > 0 {
		fmt.Fprintf(ui.Out, "  Date range:  %s to %s\n", st.OldestDate.Format("2006-01-02"), st.NewestDate.Format("2006-01-02"))
	}
	fmt.Fprintf(ui.Out, "  Text length: mean %.0f, median %d\n", st.MeanLength, st.MedianLength)
	fmt.Fprintln(ui.Out)

	fmt.Fprintln(ui.Out, "  Ratings")
	for i, n := range st.RatingCounts {
		bar := ""
		if st.Count > 0 {
			bar = strings.Repeat("#", n*40/st.Count)
		}
		fmt.Fprintf(ui.Out, "    %d: %5d %s\n", i+1, n, bar)
	}
	fmt.Fprintln(ui.Out)

	fmt.Fprintf(ui.Out, "  Quality: %s/100\n", output.ScoreColor(score.Total))
	fmt.Fprintf(ui.Out, "    Volume        %2d/20\n", score.Volume)
	fmt.Fprintf(ui.Out, "    Validity      %2d/25\n", score.Validity)
	fmt.Fprintf(ui.Out, "    Balance       %2d/20\n", score.RatingBalance)
	fmt.Fprintf(ui.Out, "    Freshness     %2d/20\n", score.Freshness)
	fmt.Fprintf(ui.Out, "    Richness      %2d/15\n", score.TextRichness)
	return nil
}

func datasetStatsAllRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	datasets, err := s.ListDatasets(ctx)
	if err != nil {
		return err
	}
	if len(datasets) == 0 {
		ui.Info("No datasets loaded.")
		return nil
	}

	scorer := quality.NewScorer()
	table := ui.Table([]string{"Name", "Reviews", "Mean", "Newest", "Quality"})
	for _, d := range datasets {
		reviews, err := s.ListReviews(ctx, d.ID, 0)
		if err != nil {
			return err
		}
		st := dataset.Summarize(reviews)
		newest := "-"
		if st.Count > 0 {
			newest = st.NewestDate.Format("2006-01-02")
		}
		_ = table.Append([]string{
			output.Cyan(d.Name),
			fmt.Sprintf("%d", st.Count),
			fmt.Sprintf("%.2f", st.MeanRating),
			newest,
			output.ScoreColor(scorer.Compute(st, d.Skipped).Total),
		})
	}
	_ = table.Render()
	return nil
}

func datasetShowRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	d, err := resolveDatasetArg(ctx, s, name)
	if err != nil {
		return err
	}

	reviews, err := s.ListReviews(ctx, d.ID, datasetShowLimit)
	if err != nil {
		return err
	}

	table := ui.Table([]string{"Rating", "Date", "Text"})
	for _, r := range reviews {
		_ = table.Append([]string{
			fmt.Sprintf("%d", r.Rating),
			r.Date.Format("2006-01-02"),
			truncate(r.Text, 70),
		})
	}
	_ = table.Render()

	if d.ReviewCount > len(reviews) {
		ui.Info("Showing %d of %d reviews (use --limit to see more)", len(reviews), d.ReviewCount)
	}
	return nil
}

func datasetDeleteRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	d, err := resolveDatasetArg(ctx, s, name)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete dataset %s (%d reviews)", d.Name, d.ReviewCount)
		return nil
	}

	if err := s.DeleteDataset(ctx, d.ID); err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}

	ui.Success("Deleted dataset: %s", d.Name)
	return nil
}

// resolveDatasetArg finds a dataset by name first, then by ID.
func resolveDatasetArg(ctx context.Context, s store.Store, ref string) (*models.Dataset, error) {
	if d, err := s.GetDatasetByName(ctx, ref); err == nil {
		return d, nil
	}
	if d, err := s.GetDataset(ctx, ref); err == nil {
		return d, nil
	}
	return nil, fmt.Errorf("dataset not found: %s", ref)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
