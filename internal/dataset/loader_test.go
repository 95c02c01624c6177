package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_CSV(t *testing.T) {
	path := writeFixture(t, "reviews.csv", `id,text,rating,date
r1,Love this app,5,2026-01-15
r2,Crashes every time I open it,1,2026-01-16
r3,Please add dark mode,4,2026-01-17
`)

	loaded, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "csv", loaded.Format)
	require.Len(t, loaded.Reviews, 3)
	assert.Empty(t, loaded.Skipped)

	assert.Equal(t, "r1", loaded.Reviews[0].SourceID)
	assert.Equal(t, "Love this app", loaded.Reviews[0].Text)
	assert.Equal(t, 5, loaded.Reviews[0].Rating)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), loaded.Reviews[0].Date)
}

func TestLoad_CSVHeaderAliases(t *testing.T) {
	path := writeFixture(t, "reviews.csv", `Review,Stars,Reviewed_At
Great app,5,2026-02-01
`)

	loaded, err := Load(path, "csv")
	require.NoError(t, err)
	require.Len(t, loaded.Reviews, 1)
	assert.Equal(t, "Great app", loaded.Reviews[0].Text)
	assert.Equal(t, 5, loaded.Reviews[0].Rating)
}

func TestLoad_CSVMissingColumns(t *testing.T) {
	path := writeFixture(t, "reviews.csv", `text,when
hello,2026-01-01
`)

	_, err := Load(path, "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
	assert.Contains(t, err.Error(), "rating")
}

func TestLoad_SkipsInvalidRows(t *testing.T) {
	path := writeFixture(t, "reviews.csv", `text,rating,date
Good app,5,2026-01-01
,3,2026-01-02
Out of range,7,2026-01-03
Bad date,4,someday
Good app,5,2026-01-05
Another fine review,2,2026-01-06
`)

	loaded, err := Load(path, "")
	require.NoError(t, err)
	require.Len(t, loaded.Reviews, 2)
	require.Len(t, loaded.Skipped, 4)

	reasons := map[int]string{}
	for _, sk := range loaded.Skipped {
		reasons[sk.Row] = sk.Reason
	}
	assert.Contains(t, reasons[2], "empty text")
	assert.Contains(t, reasons[3], "out of range")
	assert.Contains(t, reasons[4], "unparseable date")
	assert.Contains(t, reasons[5], "duplicate of row 1")
}

func TestLoad_DuplicateDetectionNormalizesWhitespace(t *testing.T) {
	path := writeFixture(t, "reviews.csv", `text,rating,date
Love   this App,5,2026-01-01
love this app,4,2026-01-02
`)

	loaded, err := Load(path, "")
	require.NoError(t, err)
	assert.Len(t, loaded.Reviews, 1)
	require.Len(t, loaded.Skipped, 1)
	assert.Contains(t, loaded.Skipped[0].Reason, "duplicate")
}

func TestLoad_JSON(t *testing.T) {
	path := writeFixture(t, "reviews.json", `[
		{"id": "a", "text": "Solid update", "rating": 4, "date": "2026-03-01T10:00:00Z"},
		{"id": "b", "text": "Sync is broken again", "rating": 2, "date": "2026-03-02"}
	]`)

	loaded, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "json", loaded.Format)
	require.Len(t, loaded.Reviews, 2)
	assert.Equal(t, "Solid update", loaded.Reviews[0].Text)
	assert.Equal(t, 2, loaded.Reviews[1].Rating)
}

func TestLoad_JSONMalformed(t *testing.T) {
	path := writeFixture(t, "reviews.json", `{"not": "an array"}`)

	_, err := Load(path, "")
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeFixture(t, "reviews.csv", "")

	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoad_HeaderOnly(t *testing.T) {
	path := writeFixture(t, "reviews.csv", "text,rating,date\n")

	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no reviews")
}

func TestLoad_UnknownExtension(t *testing.T) {
	path := writeFixture(t, "reviews.txt", "text,rating,date\nhi,5,2026-01-01\n")

	_, err := Load(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot infer format")

	// Explicit format overrides the extension
	loaded, err := Load(path, "csv")
	require.NoError(t, err)
	assert.Len(t, loaded.Reviews, 1)
}

func TestParseDate_Layouts(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-01-15", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"2026-01-15T08:30:00Z", time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)},
		{"2026-01-15 08:30:00", time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)},
		{"01/15/2026", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"Jan 15, 2026", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseDate(tc.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.want), "got %v", got)
		})
	}

	_, err := parseDate("next tuesday")
	assert.Error(t, err)
}
