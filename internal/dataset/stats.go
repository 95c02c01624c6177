package dataset

import (
	"sort"
	"time"

	"github.com/promptsense/promptsense/internal/models"
)

// Stats summarizes a validated set of reviews.
type Stats struct {
	Count        int
	RatingCounts [5]int // index 0 holds 1-star count
	MeanRating   float64
	OldestDate   time.Time
	NewestDate   time.Time
	MeanLength   float64
	MedianLength int
}

// Summarize computes dataset statistics. Safe on an empty slice.
func Summarize(reviews []*models.Review) Stats {
	st := Stats{Count: len(reviews)}
	if len(reviews) == 0 {
		return st
	}

	lengths := make([]int, 0, len(reviews))
	ratingSum := 0
	lengthSum := 0
	st.OldestDate = reviews[0].Date
	st.NewestDate = reviews[0].Date

	for _, r := range reviews {
		if r.Rating >= 1 && r.Rating <= 5 {
			st.RatingCounts[r.Rating-1]++
		}
		ratingSum += r.Rating
		lengthSum += len(r.Text)
		lengths = append(lengths, len(r.Text))
		if r.Date.Before(st.OldestDate) {
			st.OldestDate = r.Date
		}
		if r.Date.After(st.NewestDate) {
			st.NewestDate = r.Date
		}
	}

	st.MeanRating = float64(ratingSum) / float64(len(reviews))
	st.MeanLength = float64(lengthSum) / float64(len(reviews))

	sort.Ints(lengths)
	st.MedianLength = lengths[len(lengths)/2]
	if len(lengths)%2 == 0 {
		st.MedianLength = (lengths[len(lengths)/2-1] + lengths[len(lengths)/2]) / 2
	}
	return st
}
