package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/promptsense/promptsense/internal/models"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		task  models.Task
		raw   string
		label string
		ok    bool
	}{
		// Bare labels
		{"bare label", models.TaskSentiment, "positive", "positive", true},
		{"bare label upper", models.TaskSentiment, "Negative", "negative", true},
		{"bare label padded", models.TaskSentiment, "  neutral\n", "neutral", true},
		{"trailing period", models.TaskSentiment, "Positive.", "positive", true},
		{"quoted", models.TaskSentiment, `"negative"`, "negative", true},
		{"yes", models.TaskBugReport, "yes", "yes", true},
		{"no with period", models.TaskFeatureRequest, "No.", "no", true},

		// Aliases
		{"pos alias", models.TaskSentiment, "pos", "positive", true},
		{"neg alias", models.TaskSentiment, "neg", "negative", true},
		{"y alias", models.TaskBugReport, "y", "yes", true},
		{"n alias", models.TaskBugReport, "n", "no", true},
		{"true alias", models.TaskFeatureRequest, "true", "yes", true},
		{"false alias", models.TaskFeatureRequest, "false", "no", true},
		{"numeric yes", models.TaskBugReport, "1", "yes", true},
		{"numeric no", models.TaskBugReport, "0", "no", true},

		// JSON responses
		{"json object", models.TaskSentiment, `{"label": "positive"}`, "positive", true},
		{"json extra fields", models.TaskBugReport, `{"label": "no", "confidence": 0.9}`, "no", true},
		{"json mixed case", models.TaskSentiment, `{"label": "Neutral"}`, "neutral", true},

		// Fenced responses
		{"fenced json", models.TaskSentiment, "```json\n{\"label\": \"negative\"}\n```", "negative", true},
		{"fenced bare", models.TaskBugReport, "```\nyes\n```", "yes", true},

		// Chain-of-thought answers
		{"answer line", models.TaskSentiment, "The user praises the app.\nAnswer: positive", "positive", true},
		{"answer line lower", models.TaskBugReport, "reasoning here\nanswer: no", "no", true},
		{"answer overrides earlier labels", models.TaskSentiment, "Could read as negative at first.\nAnswer: neutral", "neutral", true},

		// Sentence-embedded labels
		{"embedded label", models.TaskSentiment, "The sentiment of this review is positive", "positive", true},
		{"embedded yes", models.TaskBugReport, "Yes, this review describes a bug.", "yes", true},
		{"repeated same label", models.TaskFeatureRequest, "no, no feature request here", "no", true},

		// Rejections
		{"empty", models.TaskSentiment, "", "", false},
		{"whitespace only", models.TaskSentiment, "   \n", "", false},
		{"no label at all", models.TaskSentiment, "I cannot classify this.", "", false},
		{"conflicting labels", models.TaskSentiment, "It could be positive or negative", "", false},
		{"wrong task vocabulary", models.TaskBugReport, "positive", "", false},
		{"json with other key salvaged by token scan", models.TaskSentiment, `{"sentiment": "positive"}`, "positive", true},

		// Near-miss tokens must not match
		{"substring not a token", models.TaskFeatureRequest, "notable improvements", "", false},
		{"positively is not positive", models.TaskSentiment, "positively dreadful prose", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label, ok := Normalize(tt.task, tt.raw)
			assert.Equal(t, tt.ok, ok, "raw: %q", tt.raw)
			assert.Equal(t, tt.label, label, "raw: %q", tt.raw)
		})
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "yes", stripFences("```\nyes\n```"))
	assert.Equal(t, `{"label": "no"}`, stripFences("```json\n{\"label\": \"no\"}\n```"))
	assert.Equal(t, "plain text", stripFences("plain text"))
}
