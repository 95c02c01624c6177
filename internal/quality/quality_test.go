package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/promptsense/promptsense/internal/dataset"
)

func TestCompute_StrongDataset(t *testing.T) {
	s := NewScorer()

	st := dataset.Stats{
		Count:        600,
		RatingCounts: [5]int{120, 120, 120, 120, 120},
		NewestDate:   time.Now().Add(-5 * 24 * time.Hour),
		MeanLength:   140,
	}

	q := s.Compute(st, 4)

	assert.Equal(t, 20, q.Volume, "large dataset should get full volume points")
	assert.Equal(t, 20, q.RatingBalance, "even distribution should get full balance points")
	assert.Equal(t, 20, q.Freshness, "recent reviews should get full freshness points")
	assert.Equal(t, 15, q.TextRichness, "long reviews should get full richness points")
	assert.True(t, q.Total >= 90, "strong dataset should score 90+, got %d", q.Total)
}

func TestCompute_WeakDataset(t *testing.T) {
	s := NewScorer()

	st := dataset.Stats{
		Count:        12,
		RatingCounts: [5]int{11, 1, 0, 0, 0},
		NewestDate:   time.Now().Add(-500 * 24 * time.Hour),
		MeanLength:   8,
	}

	q := s.Compute(st, 10)

	assert.True(t, q.Volume < 5, "tiny dataset should get few volume points")
	assert.True(t, q.RatingBalance <= 5, "lopsided ratings should get few balance points")
	assert.True(t, q.Freshness <= 4, "stale reviews should get few freshness points")
	assert.True(t, q.Total < 40, "weak dataset should score below 40, got %d", q.Total)
}

func TestCompute_EmptyDataset(t *testing.T) {
	s := NewScorer()

	q := s.Compute(dataset.Stats{}, 0)
	assert.Equal(t, 0, q.Validity)
	assert.Equal(t, 0, q.RatingBalance)
	assert.Equal(t, 0, q.Freshness)
}

func TestScoreValidity(t *testing.T) {
	assert.Equal(t, 25, scoreValidity(100, 0, 25))
	assert.Equal(t, 22, scoreValidity(90, 10, 25))
	assert.Equal(t, 12, scoreValidity(50, 50, 25))
	assert.Equal(t, 0, scoreValidity(0, 0, 25))
}

func TestScoreBalance(t *testing.T) {
	assert.Equal(t, 20, scoreBalance([5]int{20, 20, 20, 20, 20}, 100, 20))
	assert.Equal(t, 15, scoreBalance([5]int{50, 20, 10, 10, 10}, 100, 20))
	assert.Equal(t, 10, scoreBalance([5]int{75, 10, 5, 5, 5}, 100, 20))
	assert.Equal(t, 5, scoreBalance([5]int{95, 5, 0, 0, 0}, 100, 20))
}

func TestScoreFreshness_Zero(t *testing.T) {
	assert.Equal(t, 0, scoreFreshness(time.Time{}, 20))
}
