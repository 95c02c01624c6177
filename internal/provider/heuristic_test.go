package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptsense/promptsense/internal/models"
)

func TestClassifySentiment(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		// Negative phrases
		{"The app doesn't work after the update", "negative"},
		{"Sync is not working anymore", "negative"},
		{"Total waste of money", "negative"},
		{"Don't buy this, save yourself the trouble", "negative"},

		// Negative words
		{"Terrible experience all around", "negative"},
		{"Worst app I have ever used", "negative"},
		{"It crashes every time I open it", "negative"},
		{"Broken since the last release", "negative"},
		{"Very disappointed with this version", "negative"},

		// Positive phrases
		{"Works great on my tablet", "positive"},
		{"Super easy to use, highly recommend", "positive"},
		{"I love it so much", "positive"},

		// Positive words
		{"Great app for tracking workouts", "positive"},
		{"Excellent interface and fast", "positive"},
		{"Amazing support team", "positive"},
		{"Best note taking app around", "positive"},

		// Neutral (default)
		{"It is an app that tracks steps", "neutral"},
		{"Installed it yesterday", "neutral"},
		{"", "neutral"},

		// Case insensitivity
		{"TERRIBLE APP", "negative"},
		{"GREAT app", "positive"},

		// Negative takes precedence over positive
		{"I loved it until it started to crash", "negative"},
		{"Great idea but totally broken", "negative"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, classifySentiment(tt.text), "text: %q", tt.text)
	}
}

func TestClassifyFeatureRequest(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		// Request phrases
		{"It would be nice to have folders", "yes"},
		{"Would be great if it synced with my watch", "yes"},
		{"Please add a dark mode", "yes"},
		{"I wish it had offline support", "yes"},
		{"Wish there was a widget", "yes"},
		{"The app needs a search bar", "yes"},
		{"Would love to see landscape mode", "yes"},
		{"It lacks an export function", "yes"},
		{"A calendar view is missing", "yes"},

		// Request words
		{"Add support for CSV import please", "yes"},
		{"No option to change the font size", "yes"},
		{"Give us the ability to mute threads", "yes"},

		// Not a request (default)
		{"Great app, works perfectly", "no"},
		{"It crashed twice today", "no"},
		{"Just average, nothing special", "no"},
		{"", "no"},

		// Case insensitivity
		{"PLEASE ADD reminders", "yes"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, classifyFeatureRequest(tt.text), "text: %q", tt.text)
	}
}

func TestClassifyBugReport(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		// Bug phrases
		{"The camera doesn't work on my phone", "yes"},
		{"Login does not work since Tuesday", "yes"},
		{"App won't open after the update", "yes"},
		{"It wont load my playlists", "yes"},
		{"Keeps crashing on startup", "yes"},
		{"I only get a black screen", "yes"},

		// Bug words
		{"There is a crash when I rotate the screen", "yes"},
		{"Found a bug in the export flow", "yes"},
		{"The scrolling is a glitch fest", "yes"},
		{"It freezes during playback", "yes"},
		{"I get an error when saving", "yes"},
		{"Upload fails every time", "yes"},

		// Not a bug (default)
		{"Lovely design and smooth animations", "no"},
		{"Please add more themes", "no"},
		{"", "no"},

		// Case insensitivity
		{"KEEPS CRASHING constantly", "yes"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, classifyBugReport(tt.text), "text: %q", tt.text)
	}
}

func TestHeuristicClassify(t *testing.T) {
	c := NewHeuristic()
	assert.Equal(t, "heuristic", c.Name())
	assert.Equal(t, "keywords", c.Model())

	ctx := context.Background()

	label, err := c.Classify(ctx, Request{
		Task:       models.TaskSentiment,
		ReviewText: "Absolutely love this app",
	})
	require.NoError(t, err)
	assert.Equal(t, "positive", label)

	label, err = c.Classify(ctx, Request{
		Task:       models.TaskFeatureRequest,
		ReviewText: "Please add a widget",
	})
	require.NoError(t, err)
	assert.Equal(t, "yes", label)

	label, err = c.Classify(ctx, Request{
		Task:       models.TaskBugReport,
		ReviewText: "Crashes on launch",
	})
	require.NoError(t, err)
	assert.Equal(t, "yes", label)
}

func TestHeuristicClassify_UnsupportedTask(t *testing.T) {
	c := NewHeuristic()
	_, err := c.Classify(context.Background(), Request{Task: models.Task("spam")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported task")
}

func TestHeuristicClassify_CancelledContext(t *testing.T) {
	c := NewHeuristic()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Classify(ctx, Request{Task: models.TaskSentiment, ReviewText: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}
