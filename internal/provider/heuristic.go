package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptsense/promptsense/internal/models"
)

// Heuristic classifies reviews with keyword matching. It needs no API
// key or network, which makes it useful for dry runs and tests.
type Heuristic struct{}

// NewHeuristic creates the offline keyword classifier.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (c *Heuristic) Name() string  { return "heuristic" }
func (c *Heuristic) Model() string { return "keywords" }

// Classify answers from the review text directly, ignoring the rendered
// prompt. It always returns a canonical label for the task.
func (c *Heuristic) Classify(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch req.Task {
	case models.TaskSentiment:
		return classifySentiment(req.ReviewText), nil
	case models.TaskFeatureRequest:
		return classifyFeatureRequest(req.ReviewText), nil
	case models.TaskBugReport:
		return classifyBugReport(req.ReviewText), nil
	}
	return "", fmt.Errorf("unsupported task %q", req.Task)
}

// classifySentiment infers review sentiment from keyword heuristics.
// Negative keywords are checked before positive ones (a review like
// "loved it until it broke" reads negative). Defaults to "neutral".
func classifySentiment(text string) string {
	lower := strings.ToLower(text)

	// Multi-word phrases checked first, then single words with common variants.
	negativePhrases := []string{
		"doesn't work", "does not work", "not working", "stopped working",
		"waste of money", "waste of time", "don't buy", "do not buy",
		"don't download", "asking for a refund",
	}
	for _, kw := range negativePhrases {
		if strings.Contains(lower, kw) {
			return "negative"
		}
	}

	negativeWords := []string{
		"terrible", "awful", "horrible", "worst", "useless",
		"crash", "broken", "scam", "refund", "uninstall",
		"disappointed", "disappointing", "frustrating", "garbage",
	}
	for _, kw := range negativeWords {
		if strings.Contains(lower, kw) {
			return "negative"
		}
	}

	positivePhrases := []string{
		"works great", "easy to use", "highly recommend", "love it",
		"love this", "five stars", "5 stars",
	}
	for _, kw := range positivePhrases {
		if strings.Contains(lower, kw) {
			return "positive"
		}
	}

	positiveWords := []string{
		"great", "excellent", "awesome", "amazing", "perfect",
		"fantastic", "wonderful", "love", "best", "helpful",
	}
	for _, kw := range positiveWords {
		if strings.Contains(lower, kw) {
			return "positive"
		}
	}

	return "neutral"
}

// classifyFeatureRequest detects whether a review asks for new
// functionality. Defaults to "no".
func classifyFeatureRequest(text string) string {
	lower := strings.ToLower(text)

	requestPhrases := []string{
		"would be nice", "would be great", "would be awesome",
		"please add", "pls add", "wish it had", "wish there was",
		"wish you could", "should add", "should have", "needs a",
		"would love to see", "feature request", "hope they add",
		"if only it", "it lacks", "is missing",
	}
	for _, kw := range requestPhrases {
		if strings.Contains(lower, kw) {
			return "yes"
		}
	}

	requestWords := []string{
		"add support", "support for", "option to", "ability to",
	}
	for _, kw := range requestWords {
		if strings.Contains(lower, kw) {
			return "yes"
		}
	}

	return "no"
}

// classifyBugReport detects whether a review describes a malfunction.
// Defaults to "no".
func classifyBugReport(text string) string {
	lower := strings.ToLower(text)

	bugPhrases := []string{
		"doesn't work", "does not work", "not working", "stopped working",
		"won't open", "wont open", "won't load", "wont load",
		"keeps crashing", "keeps freezing", "black screen",
	}
	for _, kw := range bugPhrases {
		if strings.Contains(lower, kw) {
			return "yes"
		}
	}

	bugWords := []string{
		"crash", "bug", "glitch", "freez", "error",
		"broken", "fails", "laggy",
	}
	for _, kw := range bugWords {
		if strings.Contains(lower, kw) {
			return "yes"
		}
	}

	return "no"
}
