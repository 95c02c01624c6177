// Package provider wraps the model APIs that classify reviews. Each client
// takes a rendered prompt and returns the model's raw text; label
// extraction happens downstream so the raw response is preserved verbatim.
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/promptsense/promptsense/internal/models"
)

// Request carries everything a provider needs for one classification call.
type Request struct {
	Task       models.Task
	Style      string
	System     string
	User       string
	ReviewText string // unrendered review text, used by offline providers
}

// Client classifies reviews through one model API.
type Client interface {
	Name() string
	Model() string
	Classify(ctx context.Context, req Request) (string, error)
}

// Config holds per-provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Names lists the supported provider names.
func Names() []string {
	return []string{"anthropic", "heuristic", "huggingface", "openai"}
}

// New constructs a provider client by name.
func New(name string, cfg Config) (Client, error) {
	switch name {
	case "openai":
		return NewOpenAI(cfg)
	case "huggingface":
		return NewHuggingFace(cfg)
	case "anthropic":
		return NewAnthropic(cfg), nil
	case "heuristic":
		return NewHeuristic(), nil
	}
	return nil, fmt.Errorf("unknown provider %q (valid: anthropic, heuristic, huggingface, openai)", name)
}
