// Package catalog defines the prompt styles used to probe model
// sensitivity. Every style phrases the same classification task
// differently; rendering is deterministic so that repeated runs send
// byte-identical prompts.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/promptsense/promptsense/internal/models"
)

// Prompt is a fully rendered system/user pair for one provider call.
type Prompt struct {
	Task   models.Task
	Style  string
	System string
	User   string
}

// Style defines one way of phrasing a classification instruction.
type Style struct {
	Name        string
	Description string
	Tasks       []models.Task // empty = applies to every task
	Render      func(task models.Task, review *models.Review) (system, user string)
}

// AppliesTo reports whether the style can render the given task.
func (s *Style) AppliesTo(task models.Task) bool {
	if len(s.Tasks) == 0 {
		return true
	}
	for _, t := range s.Tasks {
		if t == task {
			return true
		}
	}
	return false
}

// Catalog holds the available styles, built-in plus any custom ones.
type Catalog struct {
	styles []*Style
	byName map[string]*Style
}

// Builtin returns a catalog with the built-in styles.
func Builtin() *Catalog {
	c := &Catalog{byName: map[string]*Style{}}
	for _, s := range builtinStyles {
		style := s
		c.styles = append(c.styles, &style)
		c.byName[style.Name] = &style
	}
	return c
}

// Add registers additional styles, rejecting duplicate names.
func (c *Catalog) Add(styles ...*Style) error {
	for _, s := range styles {
		if _, exists := c.byName[s.Name]; exists {
			return fmt.Errorf("style %q already defined", s.Name)
		}
		c.styles = append(c.styles, s)
		c.byName[s.Name] = s
	}
	return nil
}

// Styles returns the styles applicable to a task, in registration order.
// An empty task returns everything.
func (c *Catalog) Styles(task models.Task) []*Style {
	if task == "" {
		return c.styles
	}
	var out []*Style
	for _, s := range c.styles {
		if s.AppliesTo(task) {
			out = append(out, s)
		}
	}
	return out
}

// Names returns the style names applicable to a task.
func (c *Catalog) Names(task models.Task) []string {
	styles := c.Styles(task)
	names := make([]string, len(styles))
	for i, s := range styles {
		names[i] = s.Name
	}
	return names
}

// Get looks up a style by name.
func (c *Catalog) Get(name string) (*Style, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// Render produces the prompt for (task, style, review). Identical inputs
// always yield identical output.
func (c *Catalog) Render(task models.Task, styleName string, review *models.Review) (*Prompt, error) {
	s, ok := c.byName[styleName]
	if !ok {
		valid := c.Names("")
		sort.Strings(valid)
		return nil, fmt.Errorf("unknown style %q (valid: %s)", styleName, strings.Join(valid, ", "))
	}
	if !s.AppliesTo(task) {
		return nil, fmt.Errorf("style %q does not apply to task %s", styleName, task)
	}

	system, user := s.Render(task, review)
	return &Prompt{Task: task, Style: styleName, System: system, User: user}, nil
}

// choices phrases the canonical label set for inclusion in a prompt,
// e.g. "positive, negative, or neutral".
func choices(task models.Task) string {
	labels := task.Labels()
	if len(labels) == 2 {
		return labels[0] + " or " + labels[1]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + ", or " + labels[len(labels)-1]
}

// labelDefinitions spells out what each canonical label means.
func labelDefinitions(task models.Task) string {
	switch task {
	case models.TaskSentiment:
		return `- positive: the reviewer is satisfied with the app overall
- negative: the reviewer is dissatisfied or frustrated
- neutral: the review is mixed, purely factual, or expresses no clear opinion`
	case models.TaskFeatureRequest:
		return `- yes: the review asks for new functionality, an enhancement, or a change to how the app works
- no: the review contains no such request`
	case models.TaskBugReport:
		return `- yes: the review describes a defect, crash, error, or malfunction
- no: the review describes no defect`
	}
	return ""
}

type fewShotExample struct {
	text  string
	label string
}

var fewShotExamples = map[models.Task][]fewShotExample{
	models.TaskSentiment: {
		{"Absolutely love this app, I use it every single day!", "positive"},
		{"Constant crashes since the last update. Unusable.", "negative"},
		{"It works. Does what the description says.", "neutral"},
	},
	models.TaskFeatureRequest: {
		{"Would love an offline mode for my commute.", "yes"},
		{"Crashes whenever I open the settings page.", "no"},
	},
	models.TaskBugReport: {
		{"The app freezes on the login screen every time.", "yes"},
		{"Great app, really smooth experience so far.", "no"},
	},
}

var builtinStyles = []Style{
	{
		Name:        "direct",
		Description: "Bare instruction, single-word answer",
		Render: func(task models.Task, review *models.Review) (string, string) {
			system := "You classify app store reviews. Reply with a single word and nothing else."
			user := fmt.Sprintf("%s\n\nReview: %q\n\nAnswer with exactly one of: %s.",
				task.Question(), review.Text, choices(task))
			return system, user
		},
	},
	{
		Name:        "detailed",
		Description: "Full label definitions plus review metadata",
		Render: func(task models.Task, review *models.Review) (string, string) {
			system := fmt.Sprintf(`You classify app store reviews for a product analytics team.

Task: %s

Labels:
%s

Reply with exactly one label, lowercase, no punctuation, no explanation.`,
				task.Question(), labelDefinitions(task))

			var sb strings.Builder
			sb.WriteString("Review to classify:\n\n")
			fmt.Fprintf(&sb, "Rating: %d/5\n", review.Rating)
			fmt.Fprintf(&sb, "Date: %s\n", review.Date.Format("2006-01-02"))
			fmt.Fprintf(&sb, "Text: %s\n", review.Text)
			return system, sb.String()
		},
	},
	{
		Name:        "few_shot",
		Description: "Worked examples before the target review",
		Render: func(task models.Task, review *models.Review) (string, string) {
			system := "You classify app store reviews. Follow the pattern of the examples exactly: answer with one label only."

			var sb strings.Builder
			fmt.Fprintf(&sb, "%s Answer with one of: %s.\n\nExamples:\n\n", task.Question(), choices(task))
			for _, ex := range fewShotExamples[task] {
				fmt.Fprintf(&sb, "Review: %q\nAnswer: %s\n\n", ex.text, ex.label)
			}
			fmt.Fprintf(&sb, "Review: %q\nAnswer:", review.Text)
			return system, sb.String()
		},
	},
	{
		Name:        "persona",
		Description: "Expert-analyst framing",
		Render: func(task models.Task, review *models.Review) (string, string) {
			system := "You are a senior app store analyst who has triaged thousands of user reviews for mobile product teams. You are known for crisp, decisive judgments and never hedge."
			user := fmt.Sprintf("A product manager hands you this review and asks: %s\n\nReview: %q\n\nGive your verdict as a single word (%s).",
				task.Question(), review.Text, choices(task))
			return system, user
		},
	},
	{
		Name:        "cot",
		Description: "Step-by-step reasoning, answer on the last line",
		Render: func(task models.Task, review *models.Review) (string, string) {
			system := "You classify app store reviews. Reason carefully before committing to an answer."
			user := fmt.Sprintf(`%s

Review: %q

Think through the evidence in the review step by step. Then end your reply with a final line of exactly this form:

Answer: <label>

where <label> is one of: %s.`, task.Question(), review.Text, choices(task))
			return system, user
		},
	},
	{
		Name:        "json_strict",
		Description: "Mandatory JSON object output, no deviation",
		Render: func(task models.Task, review *models.Review) (string, string) {
			system := "Return ONLY valid JSON. No markdown. No code blocks. No backticks. No explanations."
			user := fmt.Sprintf(`TASK: %s

OUTPUT REQUIREMENT: a single JSON object of exactly this shape:

{"label": "string (must be: %s)"}

VALIDATION RULES:
1. No extra fields allowed
2. No null values allowed
3. The label value must be lowercase

REVIEW:
%s

OUTPUT (valid JSON only):`, task.Question(), strings.Join(task.Labels(), "|"), review.Text)
			return system, user
		},
	},
}
