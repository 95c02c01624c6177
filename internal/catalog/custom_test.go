package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptsense/promptsense/internal/models"
)

func writeStylesFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "styles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadCustomStyles(t *testing.T) {
	path := writeStylesFile(t, `styles:
  - name: casual
    description: Informal phrasing
    system: You read app reviews for a living.
    user: |
      Quick one: {{.Question}}
      Someone wrote: "{{.Text}}" ({{.Rating}} stars, {{.Date}})
      Just say {{.Choices}}.
  - name: sentiment_haiku
    tasks: [sentiment]
    user: "Classify: {{.Text}}"
`)

	styles, err := LoadCustomStyles(path)
	require.NoError(t, err)
	require.Len(t, styles, 2)

	c := Builtin()
	require.NoError(t, c.Add(styles...))

	p, err := c.Render(models.TaskFeatureRequest, "casual", sampleReview())
	require.NoError(t, err)
	assert.Contains(t, p.System, "for a living")
	assert.Contains(t, p.User, sampleReview().Text)
	assert.Contains(t, p.User, "3 stars")
	assert.Contains(t, p.User, "2026-04-02")
	assert.Contains(t, p.User, "yes or no")

	// Task-restricted custom style
	_, err = c.Render(models.TaskBugReport, "sentiment_haiku", sampleReview())
	assert.Error(t, err)

	// Determinism holds for template styles too
	again, err := c.Render(models.TaskFeatureRequest, "casual", sampleReview())
	require.NoError(t, err)
	assert.Equal(t, p.User, again.User)
}

func TestLoadCustomStyles_MissingName(t *testing.T) {
	path := writeStylesFile(t, `styles:
  - user: "hello {{.Text}}"
`)

	_, err := LoadCustomStyles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name")
}

func TestLoadCustomStyles_MissingUser(t *testing.T) {
	path := writeStylesFile(t, `styles:
  - name: broken
    system: no user template here
`)

	_, err := LoadCustomStyles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing user template")
}

func TestLoadCustomStyles_BadTask(t *testing.T) {
	path := writeStylesFile(t, `styles:
  - name: broken
    tasks: [vibes]
    user: "{{.Text}}"
`)

	_, err := LoadCustomStyles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestLoadCustomStyles_BadTemplate(t *testing.T) {
	path := writeStylesFile(t, `styles:
  - name: broken
    user: "{{.Text"
`)

	_, err := LoadCustomStyles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user template")
}

func TestLoadCustomStyles_FileMissing(t *testing.T) {
	_, err := LoadCustomStyles(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
