package scoring

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kalambet/sdr/internal/completion"
	"github.com/kalambet/sdr/internal/storage"
)

type fakeLLM struct {
	content string
	err     error
	calls   int
	prompts []string
}

func (f *fakeLLM) Generate(_ context.Context, p string, _ int, _ float64) (completion.Result, error) {
	f.calls++
	f.prompts = append(f.prompts, p)
	if f.err != nil {
		return completion.Result{}, f.err
	}
	return completion.Result{Content: f.content, Model: "test-model"}, nil
}

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func strp(s string) *string { return &s }

func createLead(t *testing.T, s *storage.Store) storage.Lead {
	t.Helper()
	l, err := s.CreateLead(storage.Lead{
		FirstName:   "Ann",
		LastName:    "Lee",
		Email:       "ann@acme.io",
		CompanyName: "Acme",
		JobTitle:    strp("CTO"),
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	return l
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestQualify_AnnLee(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	llm := &fakeLLM{content: `{"qualification_score": 90, "qualification_reasons": ["decision maker"], "recommended_stage": "qualified", "next_actions": ["book demo"], "pain_points": ["manual outreach"]}`}

	if _, err := NewEngine(s, llm, Options{}).Qualify(context.Background(), lead.ID); err != nil {
		t.Fatalf("Qualify: %v", err)
	}

	got, _ := s.GetLead(lead.ID)
	if !approx(got.LeadScore, 9.0) {
		t.Errorf("LeadScore = %v, want 9.0", got.LeadScore)
	}
	if got.PipelineStage != storage.StageQualified {
		t.Errorf("Stage = %q, want qualified", got.PipelineStage)
	}
}

func TestQualify_AppliesScoreAndStage(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	llm := &fakeLLM{content: `{"qualification_score": 80, "qualification_reasons": ["large budget"], "recommended_stage": "Qualified", "next_actions": ["call"], "pain_points": ["scale"]}`}
	e := NewEngine(s, llm, Options{})

	q, err := e.Qualify(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("Qualify: %v", err)
	}
	if q.Fallback {
		t.Error("valid JSON should not use fallback")
	}
	if q.Score == nil || *q.Score != 80 {
		t.Errorf("Score = %v, want 80", q.Score)
	}

	got, _ := s.GetLead(lead.ID)
	if !approx(got.LeadScore, 8.0) {
		t.Errorf("LeadScore = %v, want 8.0", got.LeadScore)
	}
	if got.PipelineStage != storage.StageQualified {
		t.Errorf("Stage = %q, want qualified", got.PipelineStage)
	}
	if !strings.Contains(llm.prompts[0], "- Name: Ann Lee") {
		t.Error("prompt was not rendered from the stored lead")
	}
}

func TestQualify_FallbackOnProse(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	e := NewEngine(s, &fakeLLM{content: "This lead looks great!"}, Options{})

	q, err := e.Qualify(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("Qualify: %v", err)
	}
	if !q.Fallback {
		t.Error("expected fallback")
	}
	if *q.Score != 50 || *q.RecommendedStage != "new" {
		t.Errorf("fallback = %+v", q)
	}
	if len(q.Reasons) != 1 || q.Reasons[0] != "Analysis pending" {
		t.Errorf("Reasons = %v", q.Reasons)
	}

	got, _ := s.GetLead(lead.ID)
	if !approx(got.LeadScore, 5.0) {
		t.Errorf("LeadScore = %v, want 5.0", got.LeadScore)
	}
	if got.PipelineStage != storage.StageNew {
		t.Errorf("Stage = %q, want new", got.PipelineStage)
	}
}

func TestQualify_ZeroScoreIsApplied(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	if _, err := s.UpdateLeadScoring(lead.ID, ptr(7.0), nil); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(s, &fakeLLM{content: `{"qualification_score": 0}`}, Options{})

	if _, err := e.Qualify(context.Background(), lead.ID); err != nil {
		t.Fatalf("Qualify: %v", err)
	}
	got, _ := s.GetLead(lead.ID)
	if got.LeadScore != 0 {
		t.Errorf("LeadScore = %v, want 0", got.LeadScore)
	}
}

func TestQualify_UnmappedStageKeepsCurrent(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	stage := storage.StageProposalSent
	if _, err := s.UpdateLeadScoring(lead.ID, nil, &stage); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(s, &fakeLLM{content: `{"recommended_stage": "closed_won"}`}, Options{})

	if _, err := e.Qualify(context.Background(), lead.ID); err != nil {
		t.Fatalf("Qualify: %v", err)
	}
	got, _ := s.GetLead(lead.ID)
	if got.PipelineStage != storage.StageProposalSent {
		t.Errorf("Stage = %q, want proposal", got.PipelineStage)
	}
	if got.LeadScore != 0 {
		t.Errorf("LeadScore = %v, want 0", got.LeadScore)
	}
}

func TestQualify_LeadNotFound(t *testing.T) {
	s := openStore(t)
	llm := &fakeLLM{content: "{}"}
	e := NewEngine(s, llm, Options{})

	_, err := e.Qualify(context.Background(), 42)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if llm.calls != 0 {
		t.Error("completion should not be called for a missing lead")
	}
}

func TestQualify_CompletionFailureLeavesLead(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	e := NewEngine(s, &fakeLLM{err: &completion.Error{Kind: completion.KindStatus, StatusCode: 500}}, Options{})

	_, err := e.Qualify(context.Background(), lead.ID)
	if !errors.Is(err, completion.ErrCompletionFailed) {
		t.Fatalf("err = %v, want ErrCompletionFailed", err)
	}
	got, _ := s.GetLead(lead.ID)
	if got.LeadScore != 0 || got.PipelineStage != storage.StageNew {
		t.Errorf("lead mutated: %+v", got)
	}
}

func ptr(f float64) *float64 { return &f }

func seedCriteria(t *testing.T, s *storage.Store) []storage.ScoringCriterion {
	t.Helper()
	created, err := SeedDefaults(s)
	if err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	return created
}

func TestScore_PersistsModelTotal(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	seedCriteria(t, s)
	llm := &fakeLLM{content: `{"total_score": 7.4, "criteria_scores": {"Company Size": 8, "Job Title Authority": 10, "Industry Fit": 6, "Engagement Level": 4}, "recommendations": ["follow up"]}`}
	e := NewEngine(s, llm, Options{})

	res, err := e.Score(context.Background(), lead.ID, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.TotalScore != 7.4 {
		t.Errorf("TotalScore = %v, want 7.4", res.TotalScore)
	}
	// (3*8 + 2.5*10 + 2*6 + 1.5*4) / 9 = 67/9
	if res.WeightedScore == nil || !approx(*res.WeightedScore, 67.0/9.0) {
		t.Errorf("WeightedScore = %v, want %v", res.WeightedScore, 67.0/9.0)
	}
	got, _ := s.GetLead(lead.ID)
	if got.LeadScore != 7.4 {
		t.Errorf("LeadScore = %v, want 7.4", got.LeadScore)
	}
	if !strings.Contains(llm.prompts[0], "- Company Size (Weight: 3.0)") {
		t.Error("criteria missing from prompt")
	}
}

func TestScore_LocalAggregate(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	seedCriteria(t, s)
	llm := &fakeLLM{content: `{"total_score": 9.9, "criteria_scores": {"company size": 6, "Industry Fit": 3}}`}
	e := NewEngine(s, llm, Options{LocalAggregate: true})

	res, err := e.Score(context.Background(), lead.ID, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	// (3*6 + 2*3) / 5 = 4.8
	got, _ := s.GetLead(lead.ID)
	if !approx(got.LeadScore, 4.8) {
		t.Errorf("LeadScore = %v, want 4.8", got.LeadScore)
	}
	if res.TotalScore != 9.9 {
		t.Errorf("reported TotalScore = %v, want model value 9.9", res.TotalScore)
	}
}

func TestScore_FallbackMeanOfSelection(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	crit := seedCriteria(t, s)
	e := NewEngine(s, &fakeLLM{content: "not json"}, Options{})

	res, err := e.Score(context.Background(), lead.ID, []int64{crit[0].ID, crit[2].ID})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if !res.Fallback {
		t.Error("expected fallback")
	}
	if len(res.CriteriaScores) != 2 {
		t.Fatalf("CriteriaScores = %v, want 2 entries", res.CriteriaScores)
	}
	for name, v := range res.CriteriaScores {
		if v != 5.0 {
			t.Errorf("%s = %v, want 5.0", name, v)
		}
	}
	if res.TotalScore != 5.0 {
		t.Errorf("TotalScore = %v, want 5.0", res.TotalScore)
	}
	if len(res.Recommendations) != 1 || res.Recommendations[0] != "Manual review required" {
		t.Errorf("Recommendations = %v", res.Recommendations)
	}
}

func TestScore_NoActiveCriteria(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	llm := &fakeLLM{content: "{}"}
	e := NewEngine(s, llm, Options{})

	_, err := e.Score(context.Background(), lead.ID, nil)
	if !errors.Is(err, ErrNoActiveCriteria) {
		t.Fatalf("err = %v, want ErrNoActiveCriteria", err)
	}
	if llm.calls != 0 {
		t.Error("completion should not be called without criteria")
	}
	got, _ := s.GetLead(lead.ID)
	if got.LeadScore != 0 {
		t.Error("lead score should be untouched")
	}
}

func TestScore_InactiveSelectionIsEmpty(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	crit := seedCriteria(t, s)
	if err := s.DeactivateCriterion(crit[1].ID); err != nil {
		t.Fatal(err)
	}
	e := NewEngine(s, &fakeLLM{content: "{}"}, Options{})

	if _, err := e.Score(context.Background(), lead.ID, []int64{crit[1].ID}); !errors.Is(err, ErrNoActiveCriteria) {
		t.Fatalf("err = %v, want ErrNoActiveCriteria", err)
	}
}

func TestScore_AbsentTotalLeavesScore(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	seedCriteria(t, s)
	e := NewEngine(s, &fakeLLM{content: `{"criteria_scores": {}}`}, Options{})

	res, err := e.Score(context.Background(), lead.ID, nil)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.WeightedScore != nil {
		t.Errorf("WeightedScore = %v, want nil", *res.WeightedScore)
	}
	got, _ := s.GetLead(lead.ID)
	if got.LeadScore != 0 {
		t.Errorf("LeadScore = %v, want 0", got.LeadScore)
	}
}

func TestMapStage(t *testing.T) {
	tests := []struct {
		in   string
		want storage.PipelineStage
		ok   bool
	}{
		{"new", storage.StageNew, true},
		{" Qualified ", storage.StageQualified, true},
		{"CONTACTED", storage.StageContacted, true},
		{"proposal", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := MapStage(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("MapStage(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSeedDefaults_SkipsExisting(t *testing.T) {
	s := openStore(t)
	first := seedCriteria(t, s)
	if len(first) != 4 {
		t.Fatalf("first seed created %d, want 4", len(first))
	}
	second, err := SeedDefaults(s)
	if err != nil {
		t.Fatalf("SeedDefaults: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second seed created %d, want 0", len(second))
	}
	if first[0].Name != "Company Size" || first[0].Weight != 3.0 {
		t.Errorf("first criterion = %+v", first[0])
	}
}

// statusSpan records the status set on it.
type statusSpan struct {
	noop.Span
	code codes.Code
}

func (s *statusSpan) SetStatus(code codes.Code, _ string) { s.code = code }

type statusTracer struct {
	embedded.Tracer
	spans []*statusSpan
}

func (t *statusTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	sp := &statusSpan{}
	t.spans = append(t.spans, sp)
	return trace.ContextWithSpan(ctx, sp), sp
}

type failingCriteriaStore struct {
	*storage.Store
}

func (failingCriteriaStore) ActiveCriteria([]int64) ([]storage.ScoringCriterion, error) {
	return nil, errors.New("disk I/O error")
}

func TestScore_CriteriaLoadFailureMarksSpan(t *testing.T) {
	s := openStore(t)
	lead := createLead(t, s)
	llm := &fakeLLM{content: "{}"}
	e := NewEngine(failingCriteriaStore{s}, llm, Options{})
	tr := &statusTracer{}
	e.tracer = tr

	if _, err := e.Score(context.Background(), lead.ID, nil); err == nil {
		t.Fatal("expected error when criteria cannot be loaded")
	}
	if llm.calls != 0 {
		t.Error("completion should not be called when criteria fail to load")
	}
	if len(tr.spans) != 1 || tr.spans[0].code != codes.Error {
		t.Errorf("span status not set to error: %+v", tr.spans)
	}
}
