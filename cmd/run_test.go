package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptsense/promptsense/internal/models"
)

func TestParseTasks(t *testing.T) {
	t.Run("empty means all", func(t *testing.T) {
		tasks, err := parseTasks(nil)
		require.NoError(t, err)
		assert.Equal(t, models.AllTasks(), tasks)
	})

	t.Run("named tasks", func(t *testing.T) {
		tasks, err := parseTasks([]string{"sentiment", "bug_report"})
		require.NoError(t, err)
		assert.Equal(t, []models.Task{models.TaskSentiment, models.TaskBugReport}, tasks)
	})

	t.Run("unknown task", func(t *testing.T) {
		_, err := parseTasks([]string{"sentiment", "emotion"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown task")
	})
}

func TestResolveRunArg(t *testing.T) {
	s, d := setupTestStore(t)
	ctx := context.Background()

	run := &models.Run{
		Name:      "baseline",
		DatasetID: d.ID,
		Tasks:     []models.Task{models.TaskSentiment},
		Styles:    []string{"direct"},
		Providers: []string{"heuristic"},
	}
	require.NoError(t, s.CreateRun(ctx, run))

	t.Run("by name", func(t *testing.T) {
		got, err := resolveRunArg(ctx, s, "baseline")
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
	})

	t.Run("by id", func(t *testing.T) {
		got, err := resolveRunArg(ctx, s, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "baseline", got.Name)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := resolveRunArg(ctx, s, "ghost")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run not found")
	})
}
