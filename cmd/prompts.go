package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptsense/promptsense/internal/catalog"
	"github.com/promptsense/promptsense/internal/models"
	"github.com/promptsense/promptsense/internal/output"
)

var (
	promptsListTask  string
	promptsShowTask  string
	promptsShowStyle string
	promptsShowRev   string
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect the prompt style catalog",
	Long: `Inspect the prompt styles used to probe sensitivity.

Custom styles can be added in <config dir>/styles.yaml: each entry has
a name, optional tasks, and system/user templates over {{.Text}},
{{.Rating}}, and {{.Date}}.

Running bare 'promptsense prompts' is the same as 'promptsense prompts list'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return promptsListRun()
	},
}

var promptsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List available prompt styles",
	RunE: func(cmd *cobra.Command, args []string) error {
		return promptsListRun()
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Render one style's prompt for a sample review",
	Long: `Render the exact system and user prompt a style produces.

By default a built-in sample review is used; --review renders a stored
review instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return promptsShowRun()
	},
}

func init() {
	promptsListCmd.Flags().StringVar(&promptsListTask, "task", "", "Only styles applicable to this task")
	promptsShowCmd.Flags().StringVar(&promptsShowTask, "task", "", "Task to render (sentiment, feature_request, bug_report)")
	promptsShowCmd.Flags().StringVar(&promptsShowStyle, "style", "", "Style to render")
	promptsShowCmd.Flags().StringVar(&promptsShowRev, "review", "", "Render a stored review by id instead of the sample")
	_ = promptsShowCmd.MarkFlagRequired("task")
	_ = promptsShowCmd.MarkFlagRequired("style")

	promptsCmd.AddCommand(promptsListCmd)
	promptsCmd.AddCommand(promptsShowCmd)
	rootCmd.AddCommand(promptsCmd)
}

// loadCatalog returns the built-in styles plus any custom ones from
// <config dir>/styles.yaml.
func loadCatalog() (*catalog.Catalog, error) {
	cat := catalog.Builtin()

	dir, err := configDirFunc()
	if err != nil {
		return cat, nil
	}
	path := filepath.Join(dir, "styles.yaml")
	if _, err := os.Stat(path); err != nil {
		return cat, nil
	}

	styles, err := catalog.LoadCustomStyles(path)
	if err != nil {
		return nil, err
	}
	if err := cat.Add(styles...); err != nil {
		return nil, err
	}
	ui.VerboseLog("Loaded %d custom styles from %s", len(styles), path)
	return cat, nil
}

func promptsListRun() error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	task := models.Task("")
	if promptsListTask != "" {
		task, err = models.ParseTask(promptsListTask)
		if err != nil {
			return err
		}
	}

	table := ui.Table([]string{"Style", "Tasks", "Description"})
	for _, s := range cat.Styles(task) {
		tasks := "all"
		if len(s.Tasks) > 0 {
			names := make([]string, len(s.Tasks))
			for i, t := range s.Tasks {
				names[i] = string(t)
			}
			tasks = strings.Join(names, ",")
		}
		_ = table.Append([]string{output.Cyan(s.Name), tasks, s.Description})
	}
	_ = table.Render()
	return nil
}

// sampleReview is rendered by 'prompts show' when no --review is given.
// The date is fixed so the output is reproducible.
var sampleReview = &models.Review{
	ID:     "sample",
	Text:   "Great app overall, but it crashes every time I export. Please add a PDF option.",
	Rating: 3,
	Date:   time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
}

func promptsShowRun() error {
	cat, err := loadCatalog()
	if err != nil {
		return err
	}

	task, err := models.ParseTask(promptsShowTask)
	if err != nil {
		return err
	}

	review := sampleReview
	if promptsShowRev != "" {
		s, err := getStore()
		if err != nil {
			return err
		}
		review, err = s.GetReview(context.Background(), promptsShowRev)
		if err != nil {
			return fmt.Errorf("review not found: %s", promptsShowRev)
		}
	}

	prompt, err := cat.Render(task, promptsShowStyle, review)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s  task=%s style=%s\n\n", output.Cyan("Prompt"), prompt.Task, prompt.Style)
	fmt.Fprintf(ui.Out, "%s\n%s\n\n", output.Yellow("System:"), prompt.System)
	fmt.Fprintf(ui.Out, "%s\n%s\n", output.Yellow("User:"), prompt.User)
	return nil
}
