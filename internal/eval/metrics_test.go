package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptsense/promptsense/internal/models"
)

func res(task models.Task, prov, review, style, label, errMsg string) *models.Result {
	r := &models.Result{
		RunID:    "run-1",
		ReviewID: review,
		Task:     task,
		Style:    style,
		Provider: prov,
		Label:    label,
		Error:    errMsg,
	}
	if errMsg == "" && label != "" {
		r.RawResponse = label
	}
	return r
}

func evalRun(tasks []models.Task, providers []string, results []*models.Result) *Summary {
	run := &models.Run{ID: "run-1", Tasks: tasks, Providers: providers}
	return Evaluate(run, results)
}

func TestEvaluate_PerfectAgreement(t *testing.T) {
	var results []*models.Result
	for _, review := range []string{"r1", "r2"} {
		for _, style := range []string{"direct", "detailed", "persona"} {
			results = append(results, res(models.TaskSentiment, "anthropic", review, style, "positive", ""))
		}
	}

	s := evalRun([]models.Task{models.TaskSentiment}, []string{"anthropic"}, results)
	require.Len(t, s.Tasks, 1)
	require.Len(t, s.Tasks[0].Providers, 1)

	ps := s.Tasks[0].Providers[0]
	assert.Equal(t, "anthropic", ps.Provider)
	assert.Equal(t, 6, ps.Calls)
	assert.Zero(t, ps.Errors)
	require.True(t, ps.ConsistencyOK)
	assert.InDelta(t, 1.0, ps.Consistency, 1e-9)
	assert.InDelta(t, 1.0, ps.ValidRate, 1e-9)

	require.Len(t, ps.Styles, 3)
	for _, ss := range ps.Styles {
		assert.InDelta(t, 1.0, ss.ValidRate, 1e-9, "style %s", ss.Style)
		require.True(t, ss.MajorityOK, "style %s", ss.Style)
		assert.InDelta(t, 1.0, ss.MajorityAgreement, 1e-9, "style %s", ss.Style)
	}

	require.Len(t, ps.StylePairs, 3)
	for _, pair := range ps.StylePairs {
		assert.InDelta(t, 1.0, pair.Agreement, 1e-9, "%s vs %s", pair.A, pair.B)
		assert.Equal(t, 2, pair.Overlap)
	}

	require.Len(t, ps.LabelShares, 1)
	assert.Equal(t, "positive", ps.LabelShares[0].Label)
	assert.Equal(t, 6, ps.LabelShares[0].Count)
	assert.InDelta(t, 1.0, ps.LabelShares[0].Share, 1e-9)
}

func TestEvaluate_StyleDisagreement(t *testing.T) {
	results := []*models.Result{
		res(models.TaskSentiment, "openai", "r1", "direct", "positive", ""),
		res(models.TaskSentiment, "openai", "r1", "detailed", "positive", ""),
		res(models.TaskSentiment, "openai", "r1", "cot", "negative", ""),
		res(models.TaskSentiment, "openai", "r2", "direct", "positive", ""),
		res(models.TaskSentiment, "openai", "r2", "detailed", "positive", ""),
		res(models.TaskSentiment, "openai", "r2", "cot", "positive", ""),
	}

	s := evalRun([]models.Task{models.TaskSentiment}, []string{"openai"}, results)
	ps := s.Tasks[0].Providers[0]

	// r1 modal share 2/3, r2 modal share 1 -> mean 5/6
	require.True(t, ps.ConsistencyOK)
	assert.InDelta(t, 5.0/6.0, ps.Consistency, 1e-9)

	byStyle := map[string]StyleSummary{}
	for _, ss := range ps.Styles {
		byStyle[ss.Style] = ss
	}
	assert.InDelta(t, 1.0, byStyle["direct"].MajorityAgreement, 1e-9)
	assert.InDelta(t, 1.0, byStyle["detailed"].MajorityAgreement, 1e-9)
	assert.InDelta(t, 0.5, byStyle["cot"].MajorityAgreement, 1e-9)

	pairs := map[[2]string]float64{}
	for _, pair := range ps.StylePairs {
		pairs[[2]string{pair.A, pair.B}] = pair.Agreement
	}
	assert.InDelta(t, 0.5, pairs[[2]string{"cot", "detailed"}], 1e-9)
	assert.InDelta(t, 0.5, pairs[[2]string{"cot", "direct"}], 1e-9)
	assert.InDelta(t, 1.0, pairs[[2]string{"detailed", "direct"}], 1e-9)

	shares := map[string]LabelShare{}
	for _, ls := range ps.LabelShares {
		shares[ls.Label] = ls
	}
	assert.Equal(t, 5, shares["positive"].Count)
	assert.InDelta(t, 5.0/6.0, shares["positive"].Share, 1e-9)
	assert.Equal(t, 1, shares["negative"].Count)
	assert.InDelta(t, 1.0/6.0, shares["negative"].Share, 1e-9)
}

func TestEvaluate_SingleStyleHasNoConsistency(t *testing.T) {
	results := []*models.Result{
		res(models.TaskBugReport, "openai", "r1", "direct", "yes", ""),
		res(models.TaskBugReport, "openai", "r2", "direct", "no", ""),
	}

	s := evalRun([]models.Task{models.TaskBugReport}, []string{"openai"}, results)
	ps := s.Tasks[0].Providers[0]

	assert.False(t, ps.ConsistencyOK, "one style cannot measure consistency")
	assert.Empty(t, ps.StylePairs)
	require.Len(t, ps.Styles, 1)
	assert.False(t, ps.Styles[0].MajorityOK)
	assert.InDelta(t, 1.0, ps.ValidRate, 1e-9)

	for _, row := range s.Rows() {
		assert.NotEqual(t, models.MetricConsistency, row.Name)
		assert.NotEqual(t, models.MetricMajorityAgreement, row.Name)
	}
}

func TestEvaluate_ErrorsAndInvalidExcluded(t *testing.T) {
	results := []*models.Result{
		res(models.TaskBugReport, "openai", "r1", "direct", "yes", ""),
		res(models.TaskBugReport, "openai", "r1", "detailed", "", "rate limit exceeded (429)"),
		res(models.TaskBugReport, "openai", "r1", "cot", "", ""), // unreadable label
	}

	s := evalRun([]models.Task{models.TaskBugReport}, []string{"openai"}, results)
	ps := s.Tasks[0].Providers[0]

	assert.Equal(t, 3, ps.Calls)
	assert.Equal(t, 1, ps.Errors)
	assert.InDelta(t, 1.0/3.0, ps.ValidRate, 1e-9)
	assert.False(t, ps.ConsistencyOK, "a single valid label is not enough")

	byStyle := map[string]StyleSummary{}
	for _, ss := range ps.Styles {
		byStyle[ss.Style] = ss
	}
	assert.InDelta(t, 1.0, byStyle["direct"].ValidRate, 1e-9)
	assert.InDelta(t, 0.0, byStyle["detailed"].ValidRate, 1e-9)
	assert.InDelta(t, 0.0, byStyle["cot"].ValidRate, 1e-9)
	assert.Empty(t, ps.StylePairs, "no review has two valid labels")
}

func TestEvaluate_TiedLabels(t *testing.T) {
	results := []*models.Result{
		res(models.TaskFeatureRequest, "openai", "r1", "direct", "yes", ""),
		res(models.TaskFeatureRequest, "openai", "r1", "detailed", "no", ""),
	}

	s := evalRun([]models.Task{models.TaskFeatureRequest}, []string{"openai"}, results)
	ps := s.Tasks[0].Providers[0]

	require.True(t, ps.ConsistencyOK)
	assert.InDelta(t, 0.5, ps.Consistency, 1e-9)
	for _, ss := range ps.Styles {
		assert.False(t, ss.MajorityOK, "a tie has no majority")
	}
}

func TestEvaluate_ModelAgreement(t *testing.T) {
	var results []*models.Result
	for _, style := range []string{"direct", "detailed"} {
		for _, review := range []string{"r1", "r2"} {
			results = append(results, res(models.TaskBugReport, "anthropic", review, style, "yes", ""))
		}
	}
	results = append(results,
		res(models.TaskBugReport, "openai", "r1", "direct", "yes", ""),
		res(models.TaskBugReport, "openai", "r1", "detailed", "yes", ""),
		res(models.TaskBugReport, "openai", "r2", "direct", "yes", ""),
		res(models.TaskBugReport, "openai", "r2", "detailed", "no", ""),
	)

	s := evalRun([]models.Task{models.TaskBugReport}, []string{"anthropic", "openai"}, results)
	require.Len(t, s.Tasks, 1)

	pairs := s.Tasks[0].ModelAgreements
	require.Len(t, pairs, 1)
	assert.Equal(t, "anthropic", pairs[0].A)
	assert.Equal(t, "openai", pairs[0].B)
	assert.Equal(t, 4, pairs[0].Overlap)
	assert.InDelta(t, 0.75, pairs[0].Agreement, 1e-9)
}

func TestEvaluate_ModelAgreementSkipsMissingOverlap(t *testing.T) {
	results := []*models.Result{
		res(models.TaskSentiment, "anthropic", "r1", "direct", "positive", ""),
		res(models.TaskSentiment, "openai", "r2", "direct", "positive", ""),
	}

	s := evalRun([]models.Task{models.TaskSentiment}, []string{"anthropic", "openai"}, results)
	assert.Empty(t, s.Tasks[0].ModelAgreements, "no shared review means no comparison")
}

func TestEvaluate_MultipleTasks(t *testing.T) {
	results := []*models.Result{
		res(models.TaskSentiment, "openai", "r1", "direct", "positive", ""),
		res(models.TaskSentiment, "openai", "r1", "detailed", "positive", ""),
		res(models.TaskBugReport, "openai", "r1", "direct", "no", ""),
		res(models.TaskBugReport, "openai", "r1", "detailed", "no", ""),
	}

	s := evalRun([]models.Task{models.TaskSentiment, models.TaskBugReport}, []string{"openai"}, results)
	require.Len(t, s.Tasks, 2)
	assert.Equal(t, models.TaskSentiment, s.Tasks[0].Task)
	assert.Equal(t, models.TaskBugReport, s.Tasks[1].Task)
}

func TestSummaryRows(t *testing.T) {
	results := []*models.Result{
		res(models.TaskSentiment, "openai", "r1", "direct", "positive", ""),
		res(models.TaskSentiment, "openai", "r1", "detailed", "negative", ""),
		res(models.TaskSentiment, "anthropic", "r1", "direct", "positive", ""),
		res(models.TaskSentiment, "anthropic", "r1", "detailed", "positive", ""),
	}

	s := evalRun([]models.Task{models.TaskSentiment}, []string{"anthropic", "openai"}, results)
	rows := s.Rows()
	require.NotEmpty(t, rows)

	type rowKey struct {
		task     models.Task
		provider string
		name     string
		style    string
		other    string
	}
	seen := map[rowKey]float64{}
	for _, row := range rows {
		assert.Equal(t, "run-1", row.RunID)
		key := rowKey{row.Task, row.Provider, row.Name, row.Style, row.Other}
		_, dup := seen[key]
		assert.False(t, dup, "duplicate row %+v", key)
		seen[key] = row.Value
	}

	// anthropic agrees with itself across both styles
	v, ok := seen[rowKey{models.TaskSentiment, "anthropic", models.MetricConsistency, "", ""}]
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)

	// openai splits between the two styles
	v, ok = seen[rowKey{models.TaskSentiment, "openai", models.MetricConsistency, "", ""}]
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)

	v, ok = seen[rowKey{models.TaskSentiment, "openai", models.MetricStyleAgreement, "detailed", "direct"}]
	require.True(t, ok)
	assert.InDelta(t, 0.0, v, 1e-9)

	// anthropic vs openai: r1 direct matches, r1 detailed differs
	v, ok = seen[rowKey{models.TaskSentiment, "anthropic", models.MetricModelAgreement, "", "openai"}]
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)

	v, ok = seen[rowKey{models.TaskSentiment, "openai", models.MetricValidRate, "direct", ""}]
	require.True(t, ok)
	assert.InDelta(t, 1.0, v, 1e-9)

	v, ok = seen[rowKey{models.TaskSentiment, "openai", models.MetricLabelShare, "", "negative"}]
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)
}
