package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/promptsense/promptsense/internal/models"
)

func TestSummarize(t *testing.T) {
	d := func(day int) time.Time { return time.Date(2026, 2, day, 0, 0, 0, 0, time.UTC) }
	reviews := []*models.Review{
		{Text: "12345", Rating: 5, Date: d(10)},
		{Text: "123456789", Rating: 1, Date: d(1)},
		{Text: "123", Rating: 5, Date: d(20)},
	}

	st := Summarize(reviews)
	assert.Equal(t, 3, st.Count)
	assert.Equal(t, [5]int{1, 0, 0, 0, 2}, st.RatingCounts)
	assert.InDelta(t, 11.0/3.0, st.MeanRating, 1e-9)
	assert.Equal(t, d(1), st.OldestDate)
	assert.Equal(t, d(20), st.NewestDate)
	assert.InDelta(t, 17.0/3.0, st.MeanLength, 1e-9)
	assert.Equal(t, 5, st.MedianLength)
}

func TestSummarize_Empty(t *testing.T) {
	st := Summarize(nil)
	assert.Equal(t, 0, st.Count)
	assert.True(t, st.OldestDate.IsZero())
}

func TestSummarize_EvenCountMedian(t *testing.T) {
	reviews := []*models.Review{
		{Text: "12", Rating: 3, Date: time.Now()},
		{Text: "123456", Rating: 3, Date: time.Now()},
	}
	st := Summarize(reviews)
	assert.Equal(t, 4, st.MedianLength)
}
