package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHFBaseURL = "https://api-inference.huggingface.co"
	defaultHFModel   = "mistralai/Mistral-7B-Instruct-v0.3"
)

// HuggingFace calls the serverless inference API for text generation
// models.
type HuggingFace struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewHuggingFace creates a HuggingFace client. The API token is required.
func NewHuggingFace(cfg Config) (*HuggingFace, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("huggingface: API token not configured (set HF_API_TOKEN or huggingface.api_key)")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHFBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultHFModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HuggingFace{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

func (c *HuggingFace) Name() string  { return "huggingface" }
func (c *HuggingFace) Model() string { return c.model }

type hfRequest struct {
	Inputs     string `json:"inputs"`
	Parameters struct {
		MaxNewTokens   int  `json:"max_new_tokens"`
		ReturnFullText bool `json:"return_full_text"`
		DoSample       bool `json:"do_sample"`
	} `json:"parameters"`
	Options struct {
		WaitForModel bool `json:"wait_for_model"`
	} `json:"options"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

type hfError struct {
	Error string `json:"error"`
}

// Classify sends the rendered prompt and returns the raw generation.
// The system and user parts are joined because the text-generation
// endpoint takes a single input string.
func (c *HuggingFace) Classify(ctx context.Context, req Request) (string, error) {
	input := req.User
	if req.System != "" {
		input = req.System + "\n\n" + req.User
	}

	reqBody := hfRequest{Inputs: input}
	reqBody.Parameters.MaxNewTokens = 256
	reqBody.Parameters.ReturnFullText = false
	reqBody.Parameters.DoSample = false
	reqBody.Options.WaitForModel = true

	// Retry for rate limits and for 503 while the model loads
	maxRetries := 3
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		url := c.baseURL + "/models/" + c.model
		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		case http.StatusServiceUnavailable:
			lastErr = fmt.Errorf("model loading (503)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var generations []hfGeneration
		if err := json.Unmarshal(body, &generations); err != nil {
			var apiErr hfError
			if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
				return "", fmt.Errorf("API error: %s", apiErr.Error)
			}
			return "", fmt.Errorf("parse response: %w", err)
		}
		if len(generations) == 0 {
			return "", fmt.Errorf("no generation returned")
		}

		text := generations[0].GeneratedText
		// Some models echo the prompt despite return_full_text=false.
		text = strings.TrimPrefix(text, input)
		return strings.TrimSpace(text), nil
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
