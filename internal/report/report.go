// Package report renders run metrics as HTML, markdown, or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/promptsense/promptsense/internal/eval"
	"github.com/promptsense/promptsense/internal/models"
)

// Data bundles everything a report needs.
type Data struct {
	Run     *models.Run
	Dataset *models.Dataset
	Summary *eval.Summary
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// Markdown writes the report as a markdown document.
func Markdown(w io.Writer, data *Data) error {
	run := data.Run

	fmt.Fprintf(w, "# Prompt sensitivity report: %s\n", run.Name)
	fmt.Fprintln(w)
	if data.Dataset != nil {
		fmt.Fprintf(w, "- Dataset: %s (%d reviews loaded)\n", data.Dataset.Name, data.Dataset.ReviewCount)
	}
	fmt.Fprintf(w, "- Status: %s\n", run.Status)
	fmt.Fprintf(w, "- Sample: %d reviews\n", run.SampleSize)
	fmt.Fprintf(w, "- Calls: %d (%d failed)\n", run.ResultCount, run.ErrorCount)
	if !run.StartedAt.IsZero() {
		fmt.Fprintf(w, "- Started: %s\n", run.StartedAt.Format(time.RFC3339))
	}
	if run.CompletedAt != nil {
		fmt.Fprintf(w, "- Completed: %s\n", run.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	for _, ts := range data.Summary.Tasks {
		fmt.Fprintf(w, "## Task: %s\n", ts.Task)
		fmt.Fprintln(w)

		for _, ps := range ts.Providers {
			fmt.Fprintf(w, "### Provider: %s\n", ps.Provider)
			fmt.Fprintln(w)
			if ps.ConsistencyOK {
				fmt.Fprintf(w, "- Consistency across styles: %s\n", pct(ps.Consistency))
			} else {
				fmt.Fprintln(w, "- Consistency across styles: n/a (needs two valid answers per review)")
			}
			fmt.Fprintf(w, "- Valid answer rate: %s (%d calls, %d failed)\n", pct(ps.ValidRate), ps.Calls, ps.Errors)
			fmt.Fprintln(w)

			fmt.Fprintln(w, "| Style | Valid rate | Majority agreement |")
			fmt.Fprintln(w, "|-------|-----------:|-------------------:|")
			for _, ss := range ps.Styles {
				majority := "n/a"
				if ss.MajorityOK {
					majority = pct(ss.MajorityAgreement)
				}
				fmt.Fprintf(w, "| %s | %s | %s |\n", ss.Style, pct(ss.ValidRate), majority)
			}
			fmt.Fprintln(w)

			if len(ps.StylePairs) > 0 {
				fmt.Fprintln(w, "| Style A | Style B | Agreement | Shared reviews |")
				fmt.Fprintln(w, "|---------|---------|----------:|---------------:|")
				for _, pair := range ps.StylePairs {
					fmt.Fprintf(w, "| %s | %s | %s | %d |\n", pair.A, pair.B, pct(pair.Agreement), pair.Overlap)
				}
				fmt.Fprintln(w)
			}

			if len(ps.LabelShares) > 0 {
				fmt.Fprintln(w, "| Label | Count | Share |")
				fmt.Fprintln(w, "|-------|------:|------:|")
				for _, share := range ps.LabelShares {
					fmt.Fprintf(w, "| %s | %d | %s |\n", share.Label, share.Count, pct(share.Share))
				}
				fmt.Fprintln(w)
			}
		}

		if len(ts.ModelAgreements) > 0 {
			fmt.Fprintln(w, "### Model agreement")
			fmt.Fprintln(w)
			fmt.Fprintln(w, "| Provider A | Provider B | Agreement | Shared answers |")
			fmt.Fprintln(w, "|------------|------------|----------:|---------------:|")
			for _, pair := range ts.ModelAgreements {
				fmt.Fprintf(w, "| %s | %s | %s | %d |\n", pair.A, pair.B, pct(pair.Agreement), pair.Overlap)
			}
			fmt.Fprintln(w)
		}
	}

	return nil
}

type jsonReport struct {
	Run     jsonRun      `json:"run"`
	Dataset *jsonDataset `json:"dataset,omitempty"`
	Tasks   []jsonTask   `json:"tasks"`
}

type jsonRun struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	SampleSize  int        `json:"sample_size"`
	ResultCount int        `json:"result_count"`
	ErrorCount  int        `json:"error_count"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type jsonDataset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReviewCount int    `json:"review_count"`
}

type jsonTask struct {
	Task            string         `json:"task"`
	Providers       []jsonProvider `json:"providers"`
	ModelAgreements []jsonPair     `json:"model_agreements,omitempty"`
}

type jsonProvider struct {
	Provider    string           `json:"provider"`
	Calls       int              `json:"calls"`
	Errors      int              `json:"errors"`
	Consistency *float64         `json:"consistency,omitempty"`
	ValidRate   float64          `json:"valid_rate"`
	Styles      []jsonStyle      `json:"styles"`
	StylePairs  []jsonPair       `json:"style_pairs,omitempty"`
	LabelShares []jsonLabelShare `json:"label_shares,omitempty"`
}

type jsonStyle struct {
	Style             string   `json:"style"`
	Calls             int      `json:"calls"`
	ValidRate         float64  `json:"valid_rate"`
	MajorityAgreement *float64 `json:"majority_agreement,omitempty"`
}

type jsonPair struct {
	A         string  `json:"a"`
	B         string  `json:"b"`
	Agreement float64 `json:"agreement"`
	Overlap   int     `json:"overlap"`
}

type jsonLabelShare struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// JSON writes the report as an indented JSON document.
func JSON(w io.Writer, data *Data) error {
	run := data.Run
	doc := jsonReport{
		Run: jsonRun{
			ID:          run.ID,
			Name:        run.Name,
			Status:      string(run.Status),
			SampleSize:  run.SampleSize,
			ResultCount: run.ResultCount,
			ErrorCount:  run.ErrorCount,
			StartedAt:   run.StartedAt,
			CompletedAt: run.CompletedAt,
		},
		Tasks: []jsonTask{},
	}
	if data.Dataset != nil {
		doc.Dataset = &jsonDataset{ID: data.Dataset.ID, Name: data.Dataset.Name, ReviewCount: data.Dataset.ReviewCount}
	}

	for _, ts := range data.Summary.Tasks {
		jt := jsonTask{Task: string(ts.Task)}
		for _, ps := range ts.Providers {
			jp := jsonProvider{
				Provider:  ps.Provider,
				Calls:     ps.Calls,
				Errors:    ps.Errors,
				ValidRate: ps.ValidRate,
			}
			if ps.ConsistencyOK {
				v := ps.Consistency
				jp.Consistency = &v
			}
			for _, ss := range ps.Styles {
				js := jsonStyle{Style: ss.Style, Calls: ss.Calls, ValidRate: ss.ValidRate}
				if ss.MajorityOK {
					v := ss.MajorityAgreement
					js.MajorityAgreement = &v
				}
				jp.Styles = append(jp.Styles, js)
			}
			for _, pair := range ps.StylePairs {
				jp.StylePairs = append(jp.StylePairs, jsonPair(pair))
			}
			for _, share := range ps.LabelShares {
				jp.LabelShares = append(jp.LabelShares, jsonLabelShare(share))
			}
			jt.Providers = append(jt.Providers, jp)
		}
		for _, pair := range ts.ModelAgreements {
			jt.ModelAgreements = append(jt.ModelAgreements, jsonPair(pair))
		}
		doc.Tasks = append(doc.Tasks, jt)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
