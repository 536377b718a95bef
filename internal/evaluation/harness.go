// Package evaluation runs batches of prompt test cases against the completion
// API, scores each output against an expected answer and records the results.
package evaluation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/sdr/internal/completion"
	"github.com/kalambet/sdr/internal/metrics"
	"github.com/kalambet/sdr/internal/similarity"
	"github.com/kalambet/sdr/internal/storage"
)

const (
	maxTokens   = 1000
	temperature = 0.7
)

// Store is the persistence the harness records results in.
type Store interface {
	SaveEvaluations(evals []storage.Evaluation) ([]storage.Evaluation, error)
	ListEvaluations(testName string, offset, limit int) ([]storage.Evaluation, error)
	EvaluationSummary(limit int) (storage.EvaluationSummary, error)
	DeleteEvaluation(id int64) error
}

type Completer interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (completion.Result, error)
}

// Harness executes cases one at a time over a single completion client.
type Harness struct {
	store Store
	llm   Completer
	since func(time.Time) time.Duration
}

func NewHarness(store Store, llm Completer) *Harness {
	return &Harness{store: store, llm: llm, since: time.Since}
}

// Run executes cases in order. A failing case is recorded with an "ERROR:"
// output and score 0 and does not stop the batch. All records share one run
// id and are saved together once the batch is done.
func (h *Harness) Run(ctx context.Context, cases []Case) ([]storage.Evaluation, error) {
	runID := uuid.NewString()
	records := make([]storage.Evaluation, 0, len(cases))

	for _, c := range cases {
		records = append(records, h.runCase(ctx, runID, c))
	}

	saved, err := h.store.SaveEvaluations(records)
	if err != nil {
		return records, fmt.Errorf("saving evaluation run %s: %w", runID, err)
	}
	slog.Info("evaluation run complete", "run_id", runID, "cases", len(saved))
	return saved, nil
}

// RunDefaults runs the built-in case set.
func (h *Harness) RunDefaults(ctx context.Context) ([]storage.Evaluation, error) {
	cases, err := DefaultCases()
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, cases)
}

func (h *Harness) runCase(ctx context.Context, runID string, c Case) storage.Evaluation {
	rec := storage.Evaluation{
		RunID:          runID,
		TestName:       c.Name,
		PromptTemplate: c.PromptTemplate,
		TestInput:      c.Input,
	}
	if c.ExpectedOutput != "" {
		expected := c.ExpectedOutput
		rec.ExpectedOutput = &expected
	}

	start := time.Now()
	res, err := h.llm.Generate(ctx, c.Input, maxTokens, temperature)
	rec.ExecutionTimeMS = h.since(start).Milliseconds()

	if err != nil {
		slog.Error("evaluation case failed", "test", c.Name, "error", err)
		zero := 0.0
		rec.ActualOutput = "ERROR: " + err.Error()
		rec.Score = &zero
		metrics.EvaluationCases.WithLabelValues("error").Inc()
		return rec
	}

	rec.ActualOutput = res.Content
	if rec.ExpectedOutput == nil {
		metrics.EvaluationCases.WithLabelValues("unscored").Inc()
		return rec
	}

	score := similarity.Score(*rec.ExpectedOutput, res.Content)
	rec.Score = &score
	rec.Passed = similarity.Passed(score)
	if rec.Passed {
		metrics.EvaluationCases.WithLabelValues("passed").Inc()
	} else {
		metrics.EvaluationCases.WithLabelValues("failed").Inc()
	}
	slog.Info("evaluation case complete", "test", c.Name, "score", score, "passed", rec.Passed)
	return rec
}

// List returns recorded evaluations, newest first.
func (h *Harness) List(testName string, offset, limit int) ([]storage.Evaluation, error) {
	return h.store.ListEvaluations(testName, offset, limit)
}

// Summary aggregates the newest limit records, or all of them when limit <= 0.
func (h *Harness) Summary(limit int) (storage.EvaluationSummary, error) {
	return h.store.EvaluationSummary(limit)
}

func (h *Harness) Delete(id int64) error {
	if err := h.store.DeleteEvaluation(id); err != nil {
		return fmt.Errorf("evaluation %d: %w", id, err)
	}
	return nil
}
