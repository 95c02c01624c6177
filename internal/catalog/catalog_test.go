package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptsense/promptsense/internal/models"
)

func sampleReview() *models.Review {
	return &models.Review{
		ID:     "rev1",
		Text:   "Love the app but it crashes when I export. Please add PDF support.",
		Rating: 3,
		Date:   time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuiltin_CoversAllTasks(t *testing.T) {
	c := Builtin()
	for _, task := range models.AllTasks() {
		names := c.Names(task)
		assert.Len(t, names, 6, "every built-in style should apply to %s", task)
	}
}

func TestRender_Deterministic(t *testing.T) {
	c := Builtin()
	review := sampleReview()

	for _, task := range models.AllTasks() {
		for _, name := range c.Names(task) {
			t.Run(string(task)+"/"+name, func(t *testing.T) {
				first, err := c.Render(task, name, review)
				require.NoError(t, err)
				second, err := c.Render(task, name, review)
				require.NoError(t, err)

				assert.Equal(t, first.System, second.System)
				assert.Equal(t, first.User, second.User)
			})
		}
	}
}

func TestRender_StylesProduceDistinctPrompts(t *testing.T) {
	c := Builtin()
	review := sampleReview()

	seen := map[string]string{}
	for _, name := range c.Names(models.TaskSentiment) {
		p, err := c.Render(models.TaskSentiment, name, review)
		require.NoError(t, err)
		for prior, priorUser := range seen {
			assert.NotEqual(t, priorUser, p.User, "styles %s and %s rendered identical prompts", prior, name)
		}
		seen[name] = p.User
	}
}

func TestRender_IncludesReviewTextAndChoices(t *testing.T) {
	c := Builtin()
	review := sampleReview()

	for _, name := range c.Names(models.TaskSentiment) {
		p, err := c.Render(models.TaskSentiment, name, review)
		require.NoError(t, err)
		assert.Contains(t, p.User, review.Text, "style %s should embed the review text", name)
		assert.Contains(t, p.User, "positive", "style %s should name the labels", name)
	}
}

func TestRender_JSONStrictDemandsObject(t *testing.T) {
	c := Builtin()

	p, err := c.Render(models.TaskBugReport, "json_strict", sampleReview())
	require.NoError(t, err)
	assert.Contains(t, p.User, `{"label"`)
	assert.Contains(t, p.User, "yes|no")
	assert.Contains(t, p.System, "ONLY valid JSON")
}

func TestRender_DetailedIncludesMetadata(t *testing.T) {
	c := Builtin()

	p, err := c.Render(models.TaskSentiment, "detailed", sampleReview())
	require.NoError(t, err)
	assert.Contains(t, p.User, "Rating: 3/5")
	assert.Contains(t, p.User, "2026-04-02")
}

func TestRender_UnknownStyle(t *testing.T) {
	c := Builtin()

	_, err := c.Render(models.TaskSentiment, "sarcastic", sampleReview())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown style")
	assert.Contains(t, err.Error(), "direct")
}

func TestRender_StyleTaskRestriction(t *testing.T) {
	c := Builtin()
	restricted := &Style{
		Name:  "sentiment_only",
		Tasks: []models.Task{models.TaskSentiment},
		Render: func(task models.Task, review *models.Review) (string, string) {
			return "", review.Text
		},
	}
	require.NoError(t, c.Add(restricted))

	_, err := c.Render(models.TaskSentiment, "sentiment_only", sampleReview())
	assert.NoError(t, err)

	_, err = c.Render(models.TaskBugReport, "sentiment_only", sampleReview())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not apply")

	// Filtered out of the bug_report listing
	assert.NotContains(t, c.Names(models.TaskBugReport), "sentiment_only")
	assert.Contains(t, c.Names(models.TaskSentiment), "sentiment_only")
}

func TestAdd_RejectsDuplicateName(t *testing.T) {
	c := Builtin()
	err := c.Add(&Style{Name: "direct"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already defined")
}

func TestChoices(t *testing.T) {
	assert.Equal(t, "positive, negative, or neutral", choices(models.TaskSentiment))
	assert.Equal(t, "yes or no", choices(models.TaskBugReport))
}
