package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/promptsense/promptsense/internal/catalog"
	"github.com/promptsense/promptsense/internal/dataset"
	"github.com/promptsense/promptsense/internal/eval"
	"github.com/promptsense/promptsense/internal/models"
	"github.com/promptsense/promptsense/internal/store"
)

// Server wraps the promptsense data layer and exposes it as MCP tools.
type Server struct {
	store   store.Store
	catalog *catalog.Catalog
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, c *catalog.Catalog) *Server {
	return &Server{store: s, catalog: c}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("promptsense", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listDatasetsTool())
	srv.AddTool(s.datasetStatsTool())
	srv.AddTool(s.listRunsTool())
	srv.AddTool(s.runMetricsTool())
	srv.AddTool(s.runResultsTool())
	srv.AddTool(s.renderPromptTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// ps_list_datasets
func (s *Server) listDatasetsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ps_list_datasets",
		mcp.WithDescription("List all loaded review datasets. Returns a JSON array with id, name, format, review_count, skipped, and loaded_at."),
	)
	return tool, s.handleListDatasets
}

func (s *Server) handleListDatasets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	datasets, err := s.store.ListDatasets(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list datasets: %v", err)), nil
	}

	type datasetOut struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Format      string `json:"format"`
		ReviewCount int    `json:"review_count"`
		Skipped     int    `json:"skipped"`
		LoadedAt    string `json:"loaded_at"`
	}

	out := make([]datasetOut, len(datasets))
	for i, d := range datasets {
		out[i] = datasetOut{
			ID:          d.ID,
			Name:        d.Name,
			Format:      d.Format,
			ReviewCount: d.ReviewCount,
			Skipped:     d.Skipped,
			LoadedAt:    d.LoadedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal datasets: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ps_dataset_stats
func (s *Server) datasetStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ps_dataset_stats",
		mcp.WithDescription("Get statistics for one dataset: rating histogram, date range, and text length distribution. Resolves the dataset by name or ID."),
		mcp.WithString("dataset", mcp.Required(), mcp.Description("Dataset name or ID")),
	)
	return tool, s.handleDatasetStats
}

func (s *Server) handleDatasetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("dataset")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: dataset"), nil
	}

	d, err := s.resolveDataset(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("dataset not found: %s", name)), nil
	}

	reviews, err := s.store.ListReviews(ctx, d.ID, 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list reviews: %v", err)), nil
	}

	st := dataset.Summarize(reviews)

	ratings := map[string]int{}
	for i, n := range st.RatingCounts {
		ratings[strconv.Itoa(i+1)] = n
	}

	result := map[string]any{
		"dataset":       d.Name,
		"id":            d.ID,
		"review_count":  st.Count,
		"skipped":       d.Skipped,
		"mean_rating":   st.MeanRating,
		"rating_counts": ratings,
		"mean_length":   st.MeanLength,
		"median_length": st.MedianLength,
	}
	if st.Count > 0 {
		result["oldest"] = st.OldestDate.Format("2006-01-02")
		result["newest"] = st.NewestDate.Format("2006-01-02")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ps_list_runs
func (s *Server) listRunsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ps_list_runs",
		mcp.WithDescription("List measurement runs, newest first. Returns a JSON array with id, name, dataset_id, tasks, styles, providers, status, and result counts."),
		mcp.WithString("dataset", mcp.Description("Filter by dataset name or ID")),
		mcp.WithString("limit", mcp.Description("Maximum number of runs to return")),
	)
	return tool, s.handleListRuns
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	datasetID := ""
	if name := request.GetString("dataset", ""); name != "" {
		d, err := s.resolveDataset(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("dataset not found: %s", name)), nil
		}
		datasetID = d.ID
	}

	limit := 0
	if v := request.GetString("limit", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid limit: %s", v)), nil
		}
		limit = n
	}

	runs, err := s.store.ListRuns(ctx, datasetID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	type runOut struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		DatasetID   string   `json:"dataset_id"`
		Tasks       []string `json:"tasks"`
		Styles      []string `json:"styles"`
		Providers   []string `json:"providers"`
		Status      string   `json:"status"`
		SampleSize  int      `json:"sample_size"`
		ResultCount int      `json:"result_count"`
		ErrorCount  int      `json:"error_count"`
		CreatedAt   string   `json:"created_at"`
	}

	out := make([]runOut, len(runs))
	for i, r := range runs {
		tasks := make([]string, len(r.Tasks))
		for j, task := range r.Tasks {
			tasks[j] = string(task)
		}
		out[i] = runOut{
			ID:          r.ID,
			Name:        r.Name,
			DatasetID:   r.DatasetID,
			Tasks:       tasks,
			Styles:      r.Styles,
			Providers:   r.Providers,
			Status:      string(r.Status),
			SampleSize:  r.SampleSize,
			ResultCount: r.ResultCount,
			ErrorCount:  r.ErrorCount,
			CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ps_run_metrics
func (s *Server) runMetricsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ps_run_metrics",
		mcp.WithDescription("Get agreement metrics for a run: per-provider consistency across prompt styles, per-style majority agreement, style-pair agreement, label shares, and cross-provider agreement. Resolves the run by name or ID."),
		mcp.WithString("run", mcp.Required(), mcp.Description("Run name or ID")),
	)
	return tool, s.handleRunMetrics
}

func (s *Server) handleRunMetrics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("run")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: run"), nil
	}

	run, err := s.resolveRun(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", name)), nil
	}

	results, err := s.store.ListResults(ctx, store.ResultFilter{RunID: run.ID})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list results: %v", err)), nil
	}

	summary := eval.Evaluate(run, results)

	tasksOut := make([]map[string]any, 0, len(summary.Tasks))
	for _, task := range summary.Tasks {
		providers := make([]map[string]any, 0, len(task.Providers))
		for _, p := range task.Providers {
			provider := map[string]any{
				"provider":   p.Provider,
				"calls":      p.Calls,
				"errors":     p.Errors,
				"valid_rate": p.ValidRate,
			}
			if p.ConsistencyOK {
				provider["consistency"] = p.Consistency
			}

			styles := make([]map[string]any, 0, len(p.Styles))
			for _, st := range p.Styles {
				style := map[string]any{
					"style":      st.Style,
					"calls":      st.Calls,
					"valid_rate": st.ValidRate,
				}
				if st.MajorityOK {
					style["majority_agreement"] = st.MajorityAgreement
				}
				styles = append(styles, style)
			}
			provider["styles"] = styles

			provider["style_pairs"] = pairsOut(p.StylePairs)

			shares := make([]map[string]any, 0, len(p.LabelShares))
			for _, ls := range p.LabelShares {
				shares = append(shares, map[string]any{
					"label": ls.Label,
					"count": ls.Count,
					"share": ls.Share,
				})
			}
			provider["label_shares"] = shares

			providers = append(providers, provider)
		}

		tasksOut = append(tasksOut, map[string]any{
			"task":             string(task.Task),
			"providers":        providers,
			"model_agreements": pairsOut(task.ModelAgreements),
		})
	}

	result := map[string]any{
		"run_id": summary.RunID,
		"run":    run.Name,
		"status": string(run.Status),
		"tasks":  tasksOut,
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal metrics: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func pairsOut(pairs []eval.PairAgreement) []map[string]any {
	out := make([]map[string]any, 0, len(pairs))
	for _, pr := range pairs {
		out = append(out, map[string]any{
			"a":         pr.A,
			"b":         pr.B,
			"agreement": pr.Agreement,
			"overlap":   pr.Overlap,
		})
	}
	return out
}

// ps_run_results
func (s *Server) runResultsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ps_run_results",
		mcp.WithDescription("List individual classification results for a run, optionally filtered by task, style, or provider. Each result has review_id, task, style, provider, label, latency_ms, and error."),
		mcp.WithString("run", mcp.Required(), mcp.Description("Run name or ID")),
		mcp.WithString("task", mcp.Description("Task filter: sentiment, feature_request, bug_report")),
		mcp.WithString("style", mcp.Description("Prompt style filter")),
		mcp.WithString("provider", mcp.Description("Provider filter")),
		mcp.WithString("limit", mcp.Description("Maximum number of results to return")),
	)
	return tool, s.handleRunResults
}

func (s *Server) handleRunResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("run")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: run"), nil
	}

	run, err := s.resolveRun(ctx, name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run not found: %s", name)), nil
	}

	filter := store.ResultFilter{
		RunID:    run.ID,
		Style:    request.GetString("style", ""),
		Provider: request.GetString("provider", ""),
	}
	if v := request.GetString("task", ""); v != "" {
		task, err := models.ParseTask(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter.Task = task
	}

	limit := 0
	if v := request.GetString("limit", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid limit: %s", v)), nil
		}
		limit = n
	}

	results, err := s.store.ListResults(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list results: %v", err)), nil
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	type resultOut struct {
		ReviewID  string `json:"review_id"`
		Task      string `json:"task"`
		Style     string `json:"style"`
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		Label     string `json:"label,omitempty"`
		LatencyMs int64  `json:"latency_ms"`
		Error     string `json:"error,omitempty"`
	}

	out := make([]resultOut, len(results))
	for i, res := range results {
		out[i] = resultOut{
			ReviewID:  res.ReviewID,
			Task:      string(res.Task),
			Style:     res.Style,
			Provider:  res.Provider,
			Model:     res.Model,
			Label:     res.Label,
			LatencyMs: res.LatencyMs,
			Error:     res.Error,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ps_render_prompt
func (s *Server) renderPromptTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("ps_render_prompt",
		mcp.WithDescription("Render the exact system and user prompt one style produces for a review text. Useful for inspecting what a style actually sends."),
		mcp.WithString("task", mcp.Required(), mcp.Description("Task: sentiment, feature_request, bug_report")),
		mcp.WithString("style", mcp.Required(), mcp.Description("Prompt style name")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Review text to render into the prompt")),
		mcp.WithString("rating", mcp.Description("Star rating 1-5 (default 3); some styles include it")),
		mcp.WithString("date", mcp.Description("Review date as YYYY-MM-DD (default today)")),
	)
	return tool, s.handleRenderPrompt
}

func (s *Server) handleRenderPrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskStr, err := request.RequireString("task")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task"), nil
	}
	styleName, err := request.RequireString("style")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: style"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}

	task, err := models.ParseTask(taskStr)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rating := 3
	if v := request.GetString("rating", ""); v != "" {
		rating, err = strconv.Atoi(v)
		if err != nil || rating < 1 || rating > 5 {
			return mcp.NewToolResultError(fmt.Sprintf("invalid rating: %s (must be 1-5)", v)), nil
		}
	}

	date := time.Now().UTC()
	if v := request.GetString("date", ""); v != "" {
		date, err = time.Parse("2006-01-02", v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid date: %s (use YYYY-MM-DD)", v)), nil
		}
	}

	review := &models.Review{ID: "preview", Text: text, Rating: rating, Date: date}
	prompt, err := s.catalog.Render(task, styleName, review)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := map[string]any{
		"task":   string(prompt.Task),
		"style":  prompt.Style,
		"system": prompt.System,
		"user":   prompt.User,
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal prompt: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// resolveDataset tries to find a dataset by name first, then by ID.
func (s *Server) resolveDataset(ctx context.Context, name string) (*models.Dataset, error) {
	if d, err := s.store.GetDatasetByName(ctx, name); err == nil {
		return d, nil
	}
	if d, err := s.store.GetDataset(ctx, name); err == nil {
		return d, nil
	}
	return nil, fmt.Errorf("dataset not found: %s", name)
}

// resolveRun tries to find a run by name first, then by ID.
func (s *Server) resolveRun(ctx context.Context, name string) (*models.Run, error) {
	if r, err := s.store.GetRunByName(ctx, name); err == nil {
		return r, nil
	}
	if r, err := s.store.GetRun(ctx, name); err == nil {
		return r, nil
	}
	return nil, fmt.Errorf("run not found: %s", name)
}
