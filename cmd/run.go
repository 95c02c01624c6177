package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/promptsense/promptsense/internal/models"
	"github.com/promptsense/promptsense/internal/output"
	"github.com/promptsense/promptsense/internal/provider"
	"github.com/promptsense/promptsense/internal/runner"
	"github.com/promptsense/promptsense/internal/store"
)

var (
	runDataset     string
	runTasks       []string
	runStyles      []string
	runProviders   []string
	runName        string
	runSample      int
	runConcurrency int
	runRateLimit   float64
	runListDataset string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start and inspect measurement runs",
	Long: `Start and inspect measurement runs.

A run classifies every sampled review under every (task, style,
provider) combination and stores each answer.

Running bare 'promptsense run' is the same as 'promptsense run list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListRun()
	},
}

var runStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new measurement run",
	Long: `Start a new measurement run over a dataset.

By default every task and every style is included, against the offline
heuristic provider. Use --providers to call real model APIs; --dry-run
previews the call count without calling anything.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStartRun(cmd.Context())
	},
}

var runListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListRun()
	},
}

var runShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one run's details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShowRun(args[0])
	},
}

var runDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a run, its results, and its artifact",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeleteRun(args[0])
	},
}

func init() {
	runStartCmd.Flags().StringVar(&runDataset, "dataset", "", "Dataset to run against (name or id)")
	runStartCmd.Flags().StringSliceVar(&runTasks, "tasks", nil, "Tasks to run (default: all)")
	runStartCmd.Flags().StringSliceVar(&runStyles, "styles", nil, "Prompt styles to use (default: all)")
	runStartCmd.Flags().StringSliceVar(&runProviders, "providers", []string{"heuristic"}, "Providers to call")
	runStartCmd.Flags().StringVar(&runName, "name", "", "Run name (default: <dataset>-<timestamp>)")
	runStartCmd.Flags().IntVar(&runSample, "sample", 0, "Random sample size, 0 = all reviews")
	runStartCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Max in-flight calls (default: run.concurrency)")
	runStartCmd.Flags().Float64Var(&runRateLimit, "rate", 0, "Calls per second per provider (default: run.rate_limit)")
	_ = runStartCmd.MarkFlagRequired("dataset")

	runListCmd.Flags().StringVar(&runListDataset, "dataset", "", "Only runs for this dataset")

	runCmd.AddCommand(runStartCmd)
	runCmd.AddCommand(runListCmd)
	runCmd.AddCommand(runShowCmd)
	runCmd.AddCommand(runDeleteCmd)
	rootCmd.AddCommand(runCmd)
}

func runStartRun(ctx context.Context) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	d, err := resolveDatasetArg(ctx, s, runDataset)
	if err != nil {
		return err
	}

	tasks, err := parseTasks(runTasks)
	if err != nil {
		return err
	}

	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	styles := runStyles
	if len(styles) == 0 {
		styles = cat.Names("")
	} else {
		for _, name := range styles {
			if _, ok := cat.Get(name); !ok {
				return fmt.Errorf("unknown style %q (valid: %s)", name, strings.Join(cat.Names(""), ", "))
			}
		}
	}

	clients := make([]provider.Client, 0, len(runProviders))
	for _, name := range runProviders {
		c, err := newProviderClient(name)
		if err != nil {
			return err
		}
		clients = append(clients, c)
	}

	reviews, err := s.ListReviews(ctx, d.ID, 0)
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		return fmt.Errorf("dataset %s has no reviews", d.Name)
	}

	sample := runSample
	if sample == 0 {
		sample = viper.GetInt("run.sample")
	}
	reviews = runner.Sample(reviews, sample)

	name := runName
	if name == "" {
		name = fmt.Sprintf("%s-%s", d.Name, time.Now().Format("20060102-150405"))
	}

	run := &models.Run{
		Name:      name,
		DatasetID: d.ID,
		Tasks:     tasks,
		Styles:    styles,
		Providers: runProviders,
		Status:    models.RunStatusPending,
	}

	concurrency := runConcurrency
	if concurrency == 0 {
		concurrency = viper.GetInt("run.concurrency")
	}
	rateLimit := runRateLimit
	if rateLimit == 0 {
		rateLimit = viper.GetFloat64("run.rate_limit")
	}

	r := runner.New(s, cat, clients, runner.Options{
		Concurrency: concurrency,
		RateLimit:   rateLimit,
		Timeout:     runTimeout(),
	})

	total, err := r.Total(run, reviews)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would make %d provider calls: %d reviews x tasks(%s) x styles(%s) x providers(%s)",
			total, len(reviews), joinTasks(tasks), strings.Join(styles, ","), strings.Join(runProviders, ","))
		return nil
	}

	runsDir := viper.GetString("runs_dir")
	if err := os.MkdirAll(runsDir, 0755); err != nil {
		return fmt.Errorf("create runs directory: %w", err)
	}

	if err := s.CreateRun(ctx, run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	run.ArtifactPath = filepath.Join(runsDir, run.ID+".json")

	ui.Info("Run %s: %d calls across %d reviews", output.Cyan(run.Name), total, len(reviews))

	progress := func(done, total int, res *models.Result) {
		if res.Error != "" {
			ui.VerboseLog("%s/%s/%s review %s: %s", res.Task, res.Style, res.Provider, res.ReviewID, res.Error)
		}
		fmt.Fprintf(ui.Out, "\r  %d/%d calls", done, total)
		if done == total {
			fmt.Fprintln(ui.Out)
		}
	}

	if err := r.Execute(ctx, run, d, reviews, progress); err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	if run.ErrorCount > 0 {
		ui.Warning("%d of %d calls failed", run.ErrorCount, run.ResultCount)
	}
	ui.Success("Run %s completed: %d results", output.Cyan(run.Name), run.ResultCount)
	ui.Info("Next: promptsense eval %s", run.Name)
	return nil
}

func parseTasks(names []string) ([]models.Task, error) {
	if len(names) == 0 {
		return models.AllTasks(), nil
	}
	tasks := make([]models.Task, len(names))
	for i, name := range names {
		t, err := models.ParseTask(name)
		if err != nil {
			return nil, err
		}
		tasks[i] = t
	}
	return tasks, nil
}

func runListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	datasetID := ""
	if runListDataset != "" {
		d, err := resolveDatasetArg(ctx, s, runListDataset)
		if err != nil {
			return err
		}
		datasetID = d.ID
	}

	runs, err := s.ListRuns(ctx, datasetID, 0)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		ui.Info("No runs yet. Use 'promptsense run start --dataset <name>' to start one.")
		return nil
	}

	datasets, err := s.ListDatasets(ctx)
	if err != nil {
		return err
	}
	names := map[string]string{}
	for _, d := range datasets {
		names[d.ID] = d.Name
	}

	table := ui.Table([]string{"Name", "Dataset", "Tasks", "Providers", "Status", "Results", "Errors", "Created"})
	for _, r := range runs {
		dsName := names[r.DatasetID]
		if dsName == "" {
			dsName = r.DatasetID
		}
		_ = table.Append([]string{
			output.Cyan(r.Name),
			dsName,
			joinTasks(r.Tasks),
			strings.Join(r.Providers, ","),
			output.StatusColor(string(r.Status)),
			fmt.Sprintf("%d", r.ResultCount),
			fmt.Sprintf("%d", r.ErrorCount),
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()
	return nil
}

func runShowRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	run, err := resolveRunArg(ctx, s, ref)
	if err != nil {
		return err
	}

	dsName := run.DatasetID
	if d, err := s.GetDataset(ctx, run.DatasetID); err == nil {
		dsName = d.Name
	}

	fmt.Fprintf(ui.Out, "%s\n\n", output.Cyan(run.Name))
	fmt.Fprintf(ui.Out, "  ID:        %s\n", run.ID)
	fmt.Fprintf(ui.Out, "  Dataset:   %s\n", dsName)
	fmt.Fprintf(ui.Out, "  Tasks:     %s\n", joinTasks(run.Tasks))
	fmt.Fprintf(ui.Out, "  Styles:    %s\n", strings.Join(run.Styles, ", "))
	fmt.Fprintf(ui.Out, "  Providers: %s\n", strings.Join(run.Providers, ", "))
	fmt.Fprintf(ui.Out, "  Status:    %s\n", output.StatusColor(string(run.Status)))
	if run.Error != "" {
		fmt.Fprintf(ui.Out, "  Error:     %s\n", output.Red(run.Error))
	}
	fmt.Fprintf(ui.Out, "  Sample:    %d reviews\n", run.SampleSize)
	fmt.Fprintf(ui.Out, "  Results:   %d (%d errors)\n", run.ResultCount, run.ErrorCount)
	if !run.StartedAt.IsZero() {
		fmt.Fprintf(ui.Out, "  Started:   %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if run.CompletedAt != nil {
		fmt.Fprintf(ui.Out, "  Completed: %s (%s)\n", run.CompletedAt.Format("2006-01-02 15:04:05"),
			run.CompletedAt.Sub(run.StartedAt).Round(time.Second))
	}
	if run.ArtifactPath != "" {
		fmt.Fprintf(ui.Out, "  Artifact:  %s\n", run.ArtifactPath)
	}
	return nil
}

func runDeleteRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	run, err := resolveRunArg(ctx, s, ref)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete run %s (%d results)", run.Name, run.ResultCount)
		return nil
	}

	if err := s.DeleteRun(ctx, run.ID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if run.ArtifactPath != "" {
		_ = os.Remove(run.ArtifactPath)
	}

	ui.Success("Deleted run: %s", run.Name)
	return nil
}

// resolveRunArg finds a run by name first, then by ID.
func resolveRunArg(ctx context.Context, s store.Store, ref string) (*models.Run, error) {
	if r, err := s.GetRunByName(ctx, ref); err == nil {
		return r, nil
	}
	if r, err := s.GetRun(ctx, ref); err == nil {
		return r, nil
	}
	return nil, fmt.Errorf("run not found: %s", ref)
}
