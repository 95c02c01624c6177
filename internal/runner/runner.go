// Package runner executes the call matrix of a run: every sampled
// review crossed with the run's tasks, prompt styles, and providers.
package runner

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/promptsense/promptsense/internal/catalog"
	"github.com/promptsense/promptsense/internal/eval"
	"github.com/promptsense/promptsense/internal/models"
	"github.com/promptsense/promptsense/internal/provider"
)

// flushEvery bounds how many results accumulate before a store write.
const flushEvery = 50

// Store is the subset of store.Store the runner needs.
type Store interface {
	AppendResults(ctx context.Context, results []*models.Result) error
	UpdateRun(ctx context.Context, run *models.Run) error
}

// Options bound the batch execution.
type Options struct {
	Concurrency int           // max in-flight provider calls
	RateLimit   float64       // per-provider calls per second, 0 disables
	Timeout     time.Duration // deadline for each provider call, 0 disables
}

// Progress is called after each completed call. Calls arrive from a
// single goroutine in completion order.
type Progress func(done, total int, res *models.Result)

// Runner fans one run's calls out across providers and streams the
// results to the store.
type Runner struct {
	store   Store
	catalog *catalog.Catalog
	clients []provider.Client
	opts    Options
}

// New creates a runner over the given providers.
func New(store Store, cat *catalog.Catalog, clients []provider.Client, opts Options) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Runner{store: store, catalog: cat, clients: clients, opts: opts}
}

type call struct {
	review *models.Review
	task   models.Task
	style  string
	client provider.Client
}

// buildCalls expands the run matrix. Styles that do not apply to a
// task are skipped for that task rather than failing the run.
func (r *Runner) buildCalls(run *models.Run, reviews []*models.Review) ([]call, error) {
	var calls []call
	for _, task := range run.Tasks {
		for _, styleName := range run.Styles {
			style, ok := r.catalog.Get(styleName)
			if !ok {
				return nil, fmt.Errorf("unknown style %q", styleName)
			}
			if !style.AppliesTo(task) {
				continue
			}
			for _, rev := range reviews {
				for _, client := range r.clients {
					calls = append(calls, call{review: rev, task: task, style: styleName, client: client})
				}
			}
		}
	}
	return calls, nil
}

// Total reports how many provider calls Execute will make for the run.
func (r *Runner) Total(run *models.Run, reviews []*models.Review) (int, error) {
	calls, err := r.buildCalls(run, reviews)
	if err != nil {
		return 0, err
	}
	return len(calls), nil
}

// Execute performs every call in the run matrix. Individual call
// failures are captured on their result rows; only context
// cancellation or store failures abort the batch. The run row is
// finalized either way, and the artifact is written when
// run.ArtifactPath is set.
func (r *Runner) Execute(ctx context.Context, run *models.Run, dataset *models.Dataset, reviews []*models.Review, progress Progress) error {
	calls, err := r.buildCalls(run, reviews)
	if err != nil {
		return err
	}
	if len(calls) == 0 {
		return fmt.Errorf("nothing to run: no selected style applies to the selected tasks")
	}

	run.Status = models.RunStatusRunning
	run.StartedAt = time.Now().UTC()
	run.SampleSize = len(reviews)
	if err := r.store.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	limiters := make(map[string]*rate.Limiter)
	if r.opts.RateLimit > 0 {
		for _, c := range r.clients {
			limiters[c.Name()] = rate.NewLimiter(rate.Limit(r.opts.RateLimit), 1)
		}
	}

	total := len(calls)
	resultsCh := make(chan *models.Result)

	// Single collector serializes store writes and progress callbacks.
	var collected []*models.Result
	persistErrCh := make(chan error, 1)
	go func() {
		var firstErr error
		batch := make([]*models.Result, 0, flushEvery)
		flush := func() {
			if len(batch) == 0 || firstErr != nil {
				return
			}
			if err := r.store.AppendResults(ctx, batch); err != nil {
				firstErr = fmt.Errorf("persist results: %w", err)
			}
			batch = batch[:0]
		}
		done := 0
		for res := range resultsCh {
			done++
			collected = append(collected, res)
			batch = append(batch, res)
			if len(batch) >= flushEvery {
				flush()
			}
			if progress != nil {
				progress(done, total, res)
			}
		}
		flush()
		persistErrCh <- firstErr
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for _, c := range calls {
		g.Go(func() error {
			res := r.execute(gctx, run, c, limiters[c.client.Name()])
			select {
			case resultsCh <- res:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	runErr := g.Wait()
	close(resultsCh)
	persistErr := <-persistErrCh

	// Finalize with a fresh context so a cancelled run is still recorded.
	finCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.ResultCount = len(collected)
	run.ErrorCount = countErrors(collected)
	switch {
	case runErr != nil:
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
	case persistErr != nil:
		run.Status = models.RunStatusFailed
		run.Error = persistErr.Error()
	default:
		run.Status = models.RunStatusCompleted
	}
	if err := r.store.UpdateRun(finCtx, run); err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}

	if runErr != nil {
		return runErr
	}
	if persistErr != nil {
		return persistErr
	}

	if run.ArtifactPath != "" {
		if err := WriteArtifact(run.ArtifactPath, run, dataset, collected); err != nil {
			return err
		}
	}
	return nil
}

// execute performs one provider call, capturing any failure on the
// result row.
func (r *Runner) execute(ctx context.Context, run *models.Run, c call, limiter *rate.Limiter) *models.Result {
	res := &models.Result{
		RunID:    run.ID,
		ReviewID: c.review.ID,
		Task:     c.task,
		Style:    c.style,
		Provider: c.client.Name(),
		Model:    c.client.Model(),
	}

	prompt, err := r.catalog.Render(c.task, c.style, c.review)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			res.Error = err.Error()
			return res
		}
	}

	callCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := c.client.Classify(callCtx, provider.Request{
		Task:       c.task,
		Style:      c.style,
		System:     prompt.System,
		User:       prompt.User,
		ReviewText: c.review.Text,
	})
	res.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.RawResponse = raw
	if label, ok := eval.Normalize(c.task, raw); ok {
		res.Label = label
	}
	return res
}

func countErrors(results []*models.Result) int {
	n := 0
	for _, res := range results {
		if res.Error != "" {
			n++
		}
	}
	return n
}

// Sample returns n reviews drawn without replacement, or the full
// slice when n is 0 or exceeds it.
func Sample(reviews []*models.Review, n int) []*models.Review {
	if n <= 0 || n >= len(reviews) {
		return reviews
	}
	out := make([]*models.Review, len(reviews))
	copy(out, reviews)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:n]
}
