// Package scoring turns completion output into lead scores and pipeline
// stage transitions.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalambet/sdr/internal/completion"
	"github.com/kalambet/sdr/internal/metrics"
	"github.com/kalambet/sdr/internal/prompt"
	"github.com/kalambet/sdr/internal/storage"
)

// ErrNoActiveCriteria is returned by Score when the selection of active
// criteria is empty.
var ErrNoActiveCriteria = errors.New("no active scoring criteria found")

const (
	qualifyMaxTokens   = 500
	qualifyTemperature = 0.3
	scoreMaxTokens     = 600
	scoreTemperature   = 0.2
)

// stageMapping is the closed set of stages a qualification may move a lead to.
var stageMapping = map[string]storage.PipelineStage{
	"new":       storage.StageNew,
	"qualified": storage.StageQualified,
	"contacted": storage.StageContacted,
}

// MapStage resolves a recommended stage. ok is false when the recommendation
// is not in the mapping table.
func MapStage(recommended string) (storage.PipelineStage, bool) {
	st, ok := stageMapping[strings.ToLower(strings.TrimSpace(recommended))]
	return st, ok
}

// LeadStore is the persistence the engine reads and writes.
type LeadStore interface {
	GetLead(id int64) (storage.Lead, error)
	ActiveCriteria(ids []int64) ([]storage.ScoringCriterion, error)
	UpdateLeadScoring(id int64, score *float64, stage *storage.PipelineStage) (storage.Lead, error)
}

// Completer produces a completion for a prompt.
type Completer interface {
	Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (completion.Result, error)
}

type Options struct {
	// LocalAggregate persists the locally computed weighted score instead
	// of the model-reported total.
	LocalAggregate bool
}

// Engine runs qualification and scoring passes against stored leads.
type Engine struct {
	store  LeadStore
	llm    Completer
	opts   Options
	tracer trace.Tracer
}

func NewEngine(store LeadStore, llm Completer, opts Options) *Engine {
	return &Engine{
		store:  store,
		llm:    llm,
		opts:   opts,
		tracer: otel.Tracer("github.com/kalambet/sdr/internal/scoring"),
	}
}

// ScoreResult is the outcome of a scoring pass.
type ScoreResult struct {
	LeadID          int64              `json:"lead_id"`
	TotalScore      float64            `json:"total_score"`
	CriteriaScores  map[string]float64 `json:"criteria_scores"`
	Recommendations []string           `json:"recommendations"`
	WeightedScore   *float64           `json:"weighted_score"`
	Fallback        bool               `json:"parse_fallback"`
}

// Qualify asks the model to qualify a lead and applies the recommended stage
// and score. A present score s is stored as s/10. Absent or unmapped values
// leave the lead's current state in place.
func (e *Engine) Qualify(ctx context.Context, leadID int64) (Qualification, error) {
	ctx, span := e.tracer.Start(ctx, "scoring.Qualify", trace.WithAttributes(attribute.Int64("lead.id", leadID)))
	defer span.End()

	lead, err := e.getLead(leadID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Qualification{}, err
	}

	res, err := e.llm.Generate(ctx, prompt.Qualification(prompt.Snapshot(lead)), qualifyMaxTokens, qualifyTemperature)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Qualification{}, fmt.Errorf("qualifying lead %d: %w", leadID, err)
	}

	q := ParseQualification(res.Content)

	var stage *storage.PipelineStage
	if q.RecommendedStage != nil {
		if st, ok := MapStage(*q.RecommendedStage); ok {
			stage = &st
		} else {
			slog.Info("ignoring unmapped recommended stage", "lead_id", leadID, "stage", *q.RecommendedStage)
		}
	}
	var score *float64
	if q.Score != nil {
		s := *q.Score / 10.0
		score = &s
	}

	if score != nil || stage != nil {
		if _, err := e.store.UpdateLeadScoring(leadID, score, stage); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return Qualification{}, fmt.Errorf("saving qualification for lead %d: %w", leadID, err)
		}
		metrics.LeadsScored.WithLabelValues("qualify").Inc()
	}

	span.SetAttributes(attribute.Bool("scoring.fallback", q.Fallback))
	slog.Info("lead qualified", "lead_id", leadID, "fallback", q.Fallback)
	return q, nil
}

// Score asks the model to score a lead against the active criteria, limited
// to criterionIDs when non-empty.
func (e *Engine) Score(ctx context.Context, leadID int64, criterionIDs []int64) (ScoreResult, error) {
	ctx, span := e.tracer.Start(ctx, "scoring.Score", trace.WithAttributes(attribute.Int64("lead.id", leadID)))
	defer span.End()

	lead, err := e.getLead(leadID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ScoreResult{}, err
	}

	criteria, err := e.store.ActiveCriteria(criterionIDs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ScoreResult{}, fmt.Errorf("loading criteria: %w", err)
	}
	if len(criteria) == 0 {
		span.SetStatus(codes.Error, ErrNoActiveCriteria.Error())
		return ScoreResult{}, ErrNoActiveCriteria
	}
	span.SetAttributes(attribute.Int("scoring.criteria", len(criteria)))

	res, err := e.llm.Generate(ctx, prompt.Scoring(prompt.Snapshot(lead), prompt.Criteria(criteria)), scoreMaxTokens, scoreTemperature)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ScoreResult{}, fmt.Errorf("scoring lead %d: %w", leadID, err)
	}

	names := make([]string, len(criteria))
	for i, c := range criteria {
		names[i] = c.Name
	}
	card := ParseScoreCard(res.Content, names)

	out := ScoreResult{
		LeadID:          leadID,
		CriteriaScores:  card.CriteriaScores,
		Recommendations: card.Recommendations,
		WeightedScore:   WeightedScore(criteria, card.CriteriaScores),
		Fallback:        card.Fallback,
	}
	if out.CriteriaScores == nil {
		out.CriteriaScores = map[string]float64{}
	}
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	if card.TotalScore != nil {
		out.TotalScore = *card.TotalScore
	}

	persist := card.TotalScore
	if e.opts.LocalAggregate && out.WeightedScore != nil {
		persist = out.WeightedScore
	}
	if persist != nil {
		if _, err := e.store.UpdateLeadScoring(leadID, persist, nil); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return ScoreResult{}, fmt.Errorf("saving score for lead %d: %w", leadID, err)
		}
		metrics.LeadsScored.WithLabelValues("score").Inc()
	}

	slog.Info("lead scored", "lead_id", leadID, "criteria", len(criteria), "fallback", card.Fallback)
	return out, nil
}

// WeightedScore computes sum(w*s)/sum(w) over the criteria the model scored.
// Names match case-insensitively. Nil when no criterion was scored.
func WeightedScore(criteria []storage.ScoringCriterion, scores map[string]float64) *float64 {
	if len(scores) == 0 {
		return nil
	}
	normalized := make(map[string]float64, len(scores))
	for name, s := range scores {
		normalized[strings.ToLower(strings.TrimSpace(name))] = s
	}

	var sum, weights float64
	for _, c := range criteria {
		s, ok := normalized[strings.ToLower(strings.TrimSpace(c.Name))]
		if !ok {
			continue
		}
		sum += c.Weight * s
		weights += c.Weight
	}
	if weights == 0 {
		return nil
	}
	v := sum / weights
	return &v
}

func (e *Engine) getLead(id int64) (storage.Lead, error) {
	lead, err := e.store.GetLead(id)
	if err != nil {
		return storage.Lead{}, fmt.Errorf("lead %d: %w", id, err)
	}
	return lead, nil
}
