// Package quality scores how well a dataset supports sensitivity
// measurement. A tiny, stale, or lopsided dataset produces metrics that
// say more about the data than about the prompts.
package quality

import (
	"time"

	"github.com/promptsense/promptsense/internal/dataset"
)

// Score represents the computed quality of a dataset.
type Score struct {
	Total         int
	Volume        int // 0-20
	Validity      int // 0-25
	RatingBalance int // 0-20
	Freshness     int // 0-20
	TextRichness  int // 0-15
}

// Scorer computes quality scores for datasets.
type Scorer struct{}

// NewScorer returns a new quality Scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Compute scores a dataset (0-100) from its summary statistics and the
// number of rows skipped during load.
func (s *Scorer) Compute(st dataset.Stats, skipped int) *Score {
	q := &Score{}

	// Volume (20 pts) - more reviews = tighter estimates
	q.Volume = scoreVolume(st.Count, 20)

	// Validity (25 pts) - share of source rows that survived validation
	q.Validity = scoreValidity(st.Count, skipped, 25)

	// Rating balance (20 pts) - a single dominant rating skews labels
	q.RatingBalance = scoreBalance(st.RatingCounts, st.Count, 20)

	// Freshness (20 pts) - recent reviews reflect the current app
	q.Freshness = scoreFreshness(st.NewestDate, 20)

	// Text richness (15 pts) - one-word reviews give models nothing to work with
	q.TextRichness = scoreRichness(st.MeanLength, 15)

	q.Total = q.Volume + q.Validity + q.RatingBalance + q.Freshness + q.TextRichness
	return q
}

// scoreVolume converts review count to points.
func scoreVolume(count, maxPoints int) int {
	switch {
	case count >= 500:
		return maxPoints
	case count >= 200:
		return int(float64(maxPoints) * 0.85)
	case count >= 100:
		return int(float64(maxPoints) * 0.7)
	case count >= 50:
		return int(float64(maxPoints) * 0.5)
	case count >= 20:
		return int(float64(maxPoints) * 0.3)
	default:
		return int(float64(maxPoints) * 0.15)
	}
}

// scoreValidity rewards a low skip ratio.
func scoreValidity(valid, skipped, maxPoints int) int {
	total := valid + skipped
	if total == 0 {
		return 0
	}
	ratio := float64(skipped) / float64(total)
	return int(float64(maxPoints) * (1 - ratio))
}

// scoreBalance penalizes rating distributions dominated by one bucket.
func scoreBalance(counts [5]int, total, maxPoints int) int {
	if total == 0 {
		return 0
	}
	maxBucket := 0
	for _, c := range counts {
		if c > maxBucket {
			maxBucket = c
		}
	}
	share := float64(maxBucket) / float64(total)
	switch {
	case share <= 0.4:
		return maxPoints
	case share <= 0.6:
		return int(float64(maxPoints) * 0.75)
	case share <= 0.8:
		return int(float64(maxPoints) * 0.5)
	default:
		return int(float64(maxPoints) * 0.25)
	}
}

// scoreFreshness converts the newest review's age to points.
func scoreFreshness(newest time.Time, maxPoints int) int {
	if newest.IsZero() {
		return 0
	}
	days := int(time.Since(newest).Hours() / 24)
	switch {
	case days <= 30:
		return maxPoints
	case days <= 90:
		return int(float64(maxPoints) * 0.8)
	case days <= 180:
		return int(float64(maxPoints) * 0.6)
	case days <= 365:
		return int(float64(maxPoints) * 0.4)
	default:
		return int(float64(maxPoints) * 0.2)
	}
}

// scoreRichness rewards reviews long enough to classify.
func scoreRichness(meanLength float64, maxPoints int) int {
	switch {
	case meanLength >= 120:
		return maxPoints
	case meanLength >= 60:
		return int(float64(maxPoints) * 0.75)
	case meanLength >= 30:
		return int(float64(maxPoints) * 0.5)
	case meanLength >= 10:
		return int(float64(maxPoints) * 0.3)
	default:
		return int(float64(maxPoints) * 0.1)
	}
}
