package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/promptsense/promptsense/internal/models"
	"github.com/promptsense/promptsense/internal/output"
	"github.com/promptsense/promptsense/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "promptsense",
	Short: "Measure how sensitive model classifications are to prompt wording",
	Long: `promptsense measures prompt sensitivity: it classifies the same app
store reviews with several differently-worded prompts across one or more
model providers, then reports how often the answers agree.

Load a dataset, start a run, and inspect the agreement metrics:

  promptsense dataset load reviews.csv --name myapp
  promptsense run start --dataset myapp --providers openai
  promptsense eval <run>
  promptsense report <run> --format html --out report.html`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/promptsense/config.yaml)")
}

func initConfig() {
	// A local .env is convenient for API keys during development.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "promptsense")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("PROMPTSENSE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	home, _ := os.UserHomeDir()
	defaultStateDir := filepath.Join(home, ".config", "promptsense")

	viper.SetDefault("state_dir", defaultStateDir)
	viper.SetDefault("db_path", filepath.Join(defaultStateDir, "promptsense.db"))
	viper.SetDefault("runs_dir", filepath.Join(defaultStateDir, "runs"))
	viper.SetDefault("run.concurrency", 4)
	viper.SetDefault("run.rate_limit", 2.0)
	viper.SetDefault("run.timeout", "60s")
	viper.SetDefault("run.sample", 0)
	viper.SetDefault("openai.api_key", "")
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4o-mini")
	viper.SetDefault("huggingface.api_key", "")
	viper.SetDefault("huggingface.base_url", "https://api-inference.huggingface.co")
	viper.SetDefault("huggingface.model", "mistralai/Mistral-7B-Instruct-v0.3")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("serve.port", 8080)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is initialized lazily, only when commands actually
	// need it. This allows config/version commands to run without a db.
}

// rootRun handles bare `promptsense`: show the overview dashboard when
// a database exists, otherwise help.
func rootRun(cmd *cobra.Command) error {
	if _, err := os.Stat(viper.GetString("db_path")); err != nil {
		return cmd.Help()
	}

	s, err := getStore()
	if err != nil {
		return cmd.Help()
	}

	return overviewRun(context.Background(), s)
}

// overviewRun prints the dataset and recent-run tables.
func overviewRun(ctx context.Context, s store.Store) error {
	datasets, err := s.ListDatasets(ctx)
	if err != nil {
		return err
	}

	if len(datasets) == 0 {
		ui.Info("No datasets loaded. Use 'promptsense dataset load <file>' to get started.")
		return nil
	}

	fmt.Fprintln(ui.Out, "Datasets")
	dt := ui.Table([]string{"Name", "Format", "Reviews", "Skipped", "Loaded"})
	names := map[string]string{}
	for _, d := range datasets {
		names[d.ID] = d.Name
		_ = dt.Append([]string{
			output.Cyan(d.Name),
			d.Format,
			fmt.Sprintf("%d", d.ReviewCount),
			fmt.Sprintf("%d", d.Skipped),
			d.LoadedAt.Format("2006-01-02"),
		})
	}
	_ = dt.Render()

	runs, err := s.ListRuns(ctx, "", 10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(ui.Out)
		ui.Info("No runs yet. Use 'promptsense run start --dataset <name>' to start one.")
		return nil
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, "Recent runs")
	rt := ui.Table([]string{"Name", "Dataset", "Tasks", "Status", "Results", "Errors", "Created"})
	for _, r := range runs {
		dsName := names[r.DatasetID]
		if dsName == "" {
			dsName = r.DatasetID
		}
		_ = rt.Append([]string{
			output.Cyan(r.Name),
			dsName,
			joinTasks(r.Tasks),
			output.StatusColor(string(r.Status)),
			fmt.Sprintf("%d", r.ResultCount),
			fmt.Sprintf("%d", r.ErrorCount),
			r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	_ = rt.Render()
	return nil
}

func joinTasks(tasks []models.Task) string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = string(t)
	}
	return strings.Join(out, ",")
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
