package catalog

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/promptsense/promptsense/internal/models"
)

// customFile is the on-disk shape of a styles.yaml file.
type customFile struct {
	Styles []customStyle `yaml:"styles"`
}

type customStyle struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tasks       []string `yaml:"tasks"`
	System      string   `yaml:"system"`
	User        string   `yaml:"user"`
}

// templateContext is what custom style templates can reference.
type templateContext struct {
	Text     string
	Rating   int
	Date     string
	Question string
	Choices  string
	Labels   []string
}

// LoadCustomStyles parses user-defined styles from a YAML file. The system
// and user fields are Go text templates over the review and task:
// {{.Text}}, {{.Rating}}, {{.Date}}, {{.Question}}, {{.Choices}}, {{.Labels}}.
func LoadCustomStyles(path string) ([]*Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read styles file: %w", err)
	}

	var file customFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse styles file: %w", err)
	}

	var styles []*Style
	for _, cs := range file.Styles {
		if cs.Name == "" {
			return nil, fmt.Errorf("custom style missing name")
		}
		if cs.User == "" {
			return nil, fmt.Errorf("custom style %q missing user template", cs.Name)
		}

		var tasks []models.Task
		for _, ts := range cs.Tasks {
			task, err := models.ParseTask(ts)
			if err != nil {
				return nil, fmt.Errorf("custom style %q: %w", cs.Name, err)
			}
			tasks = append(tasks, task)
		}

		systemTmpl, err := template.New(cs.Name + ".system").Parse(cs.System)
		if err != nil {
			return nil, fmt.Errorf("custom style %q system template: %w", cs.Name, err)
		}
		userTmpl, err := template.New(cs.Name + ".user").Parse(cs.User)
		if err != nil {
			return nil, fmt.Errorf("custom style %q user template: %w", cs.Name, err)
		}

		styles = append(styles, &Style{
			Name:        cs.Name,
			Description: cs.Description,
			Tasks:       tasks,
			Render: func(task models.Task, review *models.Review) (string, string) {
				ctx := templateContext{
					Text:     review.Text,
					Rating:   review.Rating,
					Date:     review.Date.Format("2006-01-02"),
					Question: task.Question(),
					Choices:  choices(task),
					Labels:   task.Labels(),
				}
				return renderTemplate(systemTmpl, ctx), renderTemplate(userTmpl, ctx)
			},
		})
	}
	return styles, nil
}

// renderTemplate executes a pre-parsed template. Execution cannot fail for
// our fixed context type, but a broken template function call would; the
// error text becomes the output so it surfaces in previews instead of
// vanishing.
func renderTemplate(t *template.Template, ctx templateContext) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return fmt.Sprintf("<template error: %v>", err)
	}
	return buf.String()
}
