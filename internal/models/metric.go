package models

import "time"

// Metric names persisted by the evaluator.
const (
	MetricConsistency       = "consistency"        // modal-label share across styles, averaged over reviews
	MetricMajorityAgreement = "majority_agreement" // share of reviews where a style matched the modal label
	MetricStyleAgreement    = "style_agreement"    // pairwise label match rate between two styles
	MetricModelAgreement    = "model_agreement"    // pairwise label match rate between two providers
	MetricValidRate         = "valid_rate"         // share of calls that produced a parseable label
	MetricLabelShare        = "label_share"        // share of valid responses carrying a given label
)

// Metric is one persisted scalar from a run evaluation. Style scopes the
// value to a single prompt style where applicable; Other carries the second
// member of pairwise metrics (a style, a provider, or a label name).
type Metric struct {
	ID        string
	RunID     string
	Task      Task
	Provider  string
	Name      string
	Style     string
	Other     string
	Value     float64
	CreatedAt time.Time
}
