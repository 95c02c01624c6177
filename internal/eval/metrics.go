// Package eval turns raw run results into agreement metrics. The
// central question is how much a model's answer moves when only the
// prompt phrasing changes, and how much two models disagree on the
// same prompt.
package eval

import (
	"sort"
	"time"

	"github.com/promptsense/promptsense/internal/models"
)

// Summary holds every metric computed for one run.
type Summary struct {
	RunID string
	Tasks []TaskSummary
}

// TaskSummary groups the metrics of one classification task.
type TaskSummary struct {
	Task            models.Task
	Providers       []ProviderSummary
	ModelAgreements []PairAgreement
}

// ProviderSummary holds one provider's metrics for a task.
type ProviderSummary struct {
	Provider string
	Calls    int
	Errors   int

	// Consistency is the mean modal-label share across styles per
	// review. Only reviews with at least two valid labels count;
	// ConsistencyOK is false when no review qualifies.
	Consistency   float64
	ConsistencyOK bool

	// ValidRate is the share of calls that produced a usable label.
	ValidRate float64

	Styles      []StyleSummary
	StylePairs  []PairAgreement
	LabelShares []LabelShare
}

// StyleSummary holds per-style metrics within a provider.
type StyleSummary struct {
	Style     string
	Calls     int
	ValidRate float64

	// MajorityAgreement is how often this style matches the majority
	// label across styles for the same review. MajorityOK is false
	// when no review has an unambiguous majority.
	MajorityAgreement float64
	MajorityOK        bool
}

// PairAgreement is the agreement between two styles or two providers.
type PairAgreement struct {
	A         string
	B         string
	Agreement float64
	Overlap   int // inputs where both sides produced a valid label
}

// LabelShare is one label's share of a provider's valid answers.
type LabelShare struct {
	Label string
	Count int
	Share float64
}

// labelsByReview maps reviewID -> style -> valid label.
type labelsByReview map[string]map[string]string

// Evaluate computes the metrics for one run from its results. Results
// with a call error or an unreadable label never count as valid, but
// they stay in the call denominators.
func Evaluate(run *models.Run, results []*models.Result) *Summary {
	s := &Summary{RunID: run.ID}

	for _, task := range run.Tasks {
		ts := TaskSummary{Task: task}

		perProvider := map[string]labelsByReview{}
		for _, prov := range run.Providers {
			perProvider[prov] = labelsByReview{}
		}

		for _, prov := range run.Providers {
			var cell []*models.Result
			for _, res := range results {
				if res.Task == task && res.Provider == prov {
					cell = append(cell, res)
				}
			}
			if len(cell) == 0 {
				continue
			}
			ps, valid := evalProvider(prov, cell)
			perProvider[prov] = valid
			ts.Providers = append(ts.Providers, ps)
		}

		ts.ModelAgreements = modelAgreements(run.Providers, perProvider)

		if len(ts.Providers) > 0 {
			s.Tasks = append(s.Tasks, ts)
		}
	}

	return s
}

// evalProvider computes one provider's task metrics and returns the
// valid labels keyed by review and style.
func evalProvider(prov string, cell []*models.Result) (ProviderSummary, labelsByReview) {
	ps := ProviderSummary{Provider: prov, Calls: len(cell)}

	valid := labelsByReview{}
	styleCalls := map[string]int{}
	styleValid := map[string]int{}
	labelCounts := map[string]int{}
	totalValid := 0

	for _, res := range cell {
		styleCalls[res.Style]++
		if res.Error != "" {
			ps.Errors++
			continue
		}
		if res.Label == "" {
			continue
		}
		if valid[res.ReviewID] == nil {
			valid[res.ReviewID] = map[string]string{}
		}
		valid[res.ReviewID][res.Style] = res.Label
		styleValid[res.Style]++
		labelCounts[res.Label]++
		totalValid++
	}

	ps.ValidRate = float64(totalValid) / float64(ps.Calls)

	// Consistency: mean modal share over reviews with >=2 valid labels.
	var consistencySum float64
	consistencyN := 0
	majority := map[string]string{} // reviewID -> unambiguous majority label
	for reviewID, byStyle := range valid {
		labels := make([]string, 0, len(byStyle))
		for _, l := range byStyle {
			labels = append(labels, l)
		}
		if len(labels) < 2 {
			continue
		}
		top, count, tie := modal(labels)
		consistencySum += float64(count) / float64(len(labels))
		consistencyN++
		if !tie {
			majority[reviewID] = top
		}
	}
	if consistencyN > 0 {
		ps.Consistency = consistencySum / float64(consistencyN)
		ps.ConsistencyOK = true
	}

	// Per-style metrics, in sorted style order.
	styles := make([]string, 0, len(styleCalls))
	for style := range styleCalls {
		styles = append(styles, style)
	}
	sort.Strings(styles)

	for _, style := range styles {
		ss := StyleSummary{Style: style, Calls: styleCalls[style]}
		ss.ValidRate = float64(styleValid[style]) / float64(styleCalls[style])

		matches, n := 0, 0
		for reviewID, top := range majority {
			label, ok := valid[reviewID][style]
			if !ok {
				continue
			}
			n++
			if label == top {
				matches++
			}
		}
		if n > 0 {
			ss.MajorityAgreement = float64(matches) / float64(n)
			ss.MajorityOK = true
		}
		ps.Styles = append(ps.Styles, ss)
	}

	// Style x style agreement over reviews where both styles answered.
	for i := 0; i < len(styles); i++ {
		for j := i + 1; j < len(styles); j++ {
			matches, overlap := 0, 0
			for _, byStyle := range valid {
				a, okA := byStyle[styles[i]]
				b, okB := byStyle[styles[j]]
				if !okA || !okB {
					continue
				}
				overlap++
				if a == b {
					matches++
				}
			}
			if overlap == 0 {
				continue
			}
			ps.StylePairs = append(ps.StylePairs, PairAgreement{
				A:         styles[i],
				B:         styles[j],
				Agreement: float64(matches) / float64(overlap),
				Overlap:   overlap,
			})
		}
	}

	// Label distribution over valid answers.
	labels := make([]string, 0, len(labelCounts))
	for label := range labelCounts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		ps.LabelShares = append(ps.LabelShares, LabelShare{
			Label: label,
			Count: labelCounts[label],
			Share: float64(labelCounts[label]) / float64(totalValid),
		})
	}

	return ps, valid
}

// modelAgreements compares providers pairwise over every (review,
// style) cell both answered.
func modelAgreements(providers []string, perProvider map[string]labelsByReview) []PairAgreement {
	var out []PairAgreement
	for i := 0; i < len(providers); i++ {
		for j := i + 1; j < len(providers); j++ {
			a, b := perProvider[providers[i]], perProvider[providers[j]]
			matches, overlap := 0, 0
			for reviewID, byStyleA := range a {
				byStyleB, ok := b[reviewID]
				if !ok {
					continue
				}
				for style, labelA := range byStyleA {
					labelB, ok := byStyleB[style]
					if !ok {
						continue
					}
					overlap++
					if labelA == labelB {
						matches++
					}
				}
			}
			if overlap == 0 {
				continue
			}
			out = append(out, PairAgreement{
				A:         providers[i],
				B:         providers[j],
				Agreement: float64(matches) / float64(overlap),
				Overlap:   overlap,
			})
		}
	}
	return out
}

// modal returns the most frequent label, its count, and whether the
// top spot is tied. Ties resolve to the lexicographically smallest
// label so callers stay deterministic.
func modal(labels []string) (string, int, bool) {
	counts := map[string]int{}
	for _, l := range labels {
		counts[l]++
	}
	keys := make([]string, 0, len(counts))
	for l := range counts {
		keys = append(keys, l)
	}
	sort.Strings(keys)

	best, bestCount, tie := "", 0, false
	for _, l := range keys {
		switch {
		case counts[l] > bestCount:
			best, bestCount, tie = l, counts[l], false
		case counts[l] == bestCount:
			tie = true
		}
	}
	return best, bestCount, tie
}

// Rows flattens the summary into metric rows for persistence.
func (s *Summary) Rows() []*models.Metric {
	now := time.Now().UTC()
	var rows []*models.Metric
	add := func(m models.Metric) {
		m.RunID = s.RunID
		m.CreatedAt = now
		rows = append(rows, &m)
	}

	for _, ts := range s.Tasks {
		for _, ps := range ts.Providers {
			if ps.ConsistencyOK {
				add(models.Metric{Task: ts.Task, Provider: ps.Provider, Name: models.MetricConsistency, Value: ps.Consistency})
			}
			add(models.Metric{Task: ts.Task, Provider: ps.Provider, Name: models.MetricValidRate, Value: ps.ValidRate})

			for _, ss := range ps.Styles {
				add(models.Metric{Task: ts.Task, Provider: ps.Provider, Name: models.MetricValidRate, Style: ss.Style, Value: ss.ValidRate})
				if ss.MajorityOK {
					add(models.Metric{Task: ts.Task, Provider: ps.Provider, Name: models.MetricMajorityAgreement, Style: ss.Style, Value: ss.MajorityAgreement})
				}
			}
			for _, pair := range ps.StylePairs {
				add(models.Metric{Task: ts.Task, Provider: ps.Provider, Name: models.MetricStyleAgreement, Style: pair.A, Other: pair.B, Value: pair.Agreement})
			}
			for _, share := range ps.LabelShares {
				add(models.Metric{Task: ts.Task, Provider: ps.Provider, Name: models.MetricLabelShare, Other: share.Label, Value: share.Share})
			}
		}
		for _, pair := range ts.ModelAgreements {
			add(models.Metric{Task: ts.Task, Provider: pair.A, Other: pair.B, Name: models.MetricModelAgreement, Value: pair.Agreement})
		}
	}
	return rows
}
