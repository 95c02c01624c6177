package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/promptsense/promptsense/internal/models"
)

// Artifact is the JSON document written for each run so results stay
// inspectable without the database.
type Artifact struct {
	RunID       string           `json:"run_id"`
	Name        string           `json:"name"`
	Dataset     ArtifactDataset  `json:"dataset"`
	Tasks       []models.Task    `json:"tasks"`
	Styles      []string         `json:"styles"`
	Providers   []string         `json:"providers"`
	Status      string           `json:"status"`
	Error       string           `json:"error,omitempty"`
	SampleSize  int              `json:"sample_size"`
	ResultCount int              `json:"result_count"`
	ErrorCount  int              `json:"error_count"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Results     []ArtifactResult `json:"results"`
}

type ArtifactDataset struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ArtifactResult struct {
	ReviewID    string `json:"review_id"`
	Task        string `json:"task"`
	Style       string `json:"style"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Label       string `json:"label,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
	LatencyMs   int64  `json:"latency_ms"`
	Error       string `json:"error,omitempty"`
}

// WriteArtifact renders the run and its results to path as indented JSON.
func WriteArtifact(path string, run *models.Run, dataset *models.Dataset, results []*models.Result) error {
	art := Artifact{
		RunID:       run.ID,
		Name:        run.Name,
		Tasks:       run.Tasks,
		Styles:      run.Styles,
		Providers:   run.Providers,
		Status:      string(run.Status),
		Error:       run.Error,
		SampleSize:  run.SampleSize,
		ResultCount: run.ResultCount,
		ErrorCount:  run.ErrorCount,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		Results:     make([]ArtifactResult, 0, len(results)),
	}
	if dataset != nil {
		art.Dataset = ArtifactDataset{ID: dataset.ID, Name: dataset.Name}
	}
	for _, res := range results {
		art.Results = append(art.Results, ArtifactResult{
			ReviewID:    res.ReviewID,
			Task:        string(res.Task),
			Style:       res.Style,
			Provider:    res.Provider,
			Model:       res.Model,
			Label:       res.Label,
			RawResponse: res.RawResponse,
			LatencyMs:   res.LatencyMs,
			Error:       res.Error,
		})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// ReadArtifact loads a run artifact from disk.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	return &art, nil
}
