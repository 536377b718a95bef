package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kalambet/sdr/internal/completion"
	"github.com/kalambet/sdr/internal/evaluation"
	"github.com/kalambet/sdr/internal/outreach"
	"github.com/kalambet/sdr/internal/scoring"
	"github.com/kalambet/sdr/internal/search"
	"github.com/kalambet/sdr/internal/storage"
)

// stubCompleter returns the same content for every prompt, or err.
type stubCompleter struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
}

func (s *stubCompleter) Generate(_ context.Context, _ string, _ int, _ float64) (completion.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return completion.Result{}, s.err
	}
	return completion.Result{Content: s.content, Model: "test-model"}, nil
}

func newTestDeps(t *testing.T, llm *stubCompleter) Deps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return Deps{
		AppName:  "SDR",
		Store:    store,
		Scoring:  scoring.NewEngine(store, llm, scoring.Options{}),
		Outreach: outreach.NewGenerator(store, llm),
		Evals:    evaluation.NewHarness(store, llm),
		Search:   search.New(store, search.DefaultLimit),
	}
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", w.Body.String(), err)
	}
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	decodeJSON(t, w, &body)
	return body.Error.Message
}

func createTestLead(t *testing.T, h http.Handler, email string) storage.Lead {
	t.Helper()
	w := doRequest(t, h, http.MethodPost, "/api/leads/",
		fmt.Sprintf(`{"first_name":"Ann","last_name":"Lee","email":%q,"company_name":"Acme","job_title":"CTO"}`, email))
	if w.Code != http.StatusOK {
		t.Fatalf("create lead: status %d, body %s", w.Code, w.Body.String())
	}
	var l storage.Lead
	decodeJSON(t, w, &l)
	return l
}

func TestRootAndHealth(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))

	w := doRequest(t, h, http.MethodGet, "/", "")
	var root map[string]string
	decodeJSON(t, w, &root)
	if root["version"] != Version || root["health"] != "/health" {
		t.Errorf("root = %v", root)
	}

	w = doRequest(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var health map[string]string
	decodeJSON(t, w, &health)
	if health["status"] != "healthy" {
		t.Errorf("health = %v", health)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))
	w := doRequest(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
}

func TestLeadLifecycle(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))

	lead := createTestLead(t, h, "ann@acme.io")
	if lead.PipelineStage != storage.StageNew || lead.LeadScore != 0 {
		t.Errorf("new lead = %+v", lead)
	}

	w := doRequest(t, h, http.MethodPut, fmt.Sprintf("/api/leads/%d", lead.ID), `{"pipeline_stage":"contacted","industry":"fintech"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status %d: %s", w.Code, w.Body.String())
	}
	var updated storage.Lead
	decodeJSON(t, w, &updated)
	if updated.PipelineStage != storage.StageContacted || updated.Industry == nil || *updated.Industry != "fintech" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.FirstName != "Ann" {
		t.Errorf("first name changed to %q", updated.FirstName)
	}

	w = doRequest(t, h, http.MethodGet, "/api/leads/?stage=contacted", "")
	var listed []storage.Lead
	decodeJSON(t, w, &listed)
	if len(listed) != 1 {
		t.Errorf("list by stage = %d leads, want 1", len(listed))
	}

	w = doRequest(t, h, http.MethodDelete, fmt.Sprintf("/api/leads/%d", lead.ID), "")
	var msg messageResponse
	decodeJSON(t, w, &msg)
	if msg.Message != "Lead deleted successfully" {
		t.Errorf("delete message = %q", msg.Message)
	}

	w = doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/leads/%d", lead.ID), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted lead: status %d, want 404", w.Code)
	}
	if got := errorMessage(t, w); got != "lead not found" {
		t.Errorf("error message = %q", got)
	}
}

func TestCreateLead_Validation(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))

	cases := []struct {
		name string
		body string
	}{
		{"missing company", `{"first_name":"A","last_name":"B","email":"a@b.io"}`},
		{"bad email", `{"first_name":"A","last_name":"B","email":"nope","company_name":"C"}`},
		{"not json", `{first_name`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, h, http.MethodPost, "/api/leads/", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestCreateLead_DuplicateEmail(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))
	createTestLead(t, h, "dup@acme.io")

	w := doRequest(t, h, http.MethodPost, "/api/leads/",
		`{"first_name":"Bo","last_name":"Ng","email":"dup@acme.io","company_name":"Other"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestListLeads_InvalidStage(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))
	w := doRequest(t, h, http.MethodGet, "/api/leads/?stage=won", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetLead_IncludesActivity(t *testing.T) {
	llm := &stubCompleter{content: "Hello Ann"}
	h := NewRouter(newTestDeps(t, llm))
	lead := createTestLead(t, h, "ann@acme.io")

	w := doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/leads/%d/interactions", lead.ID),
		`{"interaction_type":"call","content":"intro call"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("add interaction: %d %s", w.Code, w.Body.String())
	}
	w = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/leads/%d/messages/generate", lead.ID),
		`{"message_type":"email"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("generate message: %d %s", w.Code, w.Body.String())
	}

	w = doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/leads/%d", lead.ID), "")
	var detail struct {
		ID           int64                 `json:"id"`
		Interactions []storage.Interaction `json:"interactions"`
		Messages     []storage.Message     `json:"messages"`
	}
	decodeJSON(t, w, &detail)
	if detail.ID != lead.ID || len(detail.Interactions) != 1 || len(detail.Messages) != 1 {
		t.Fatalf("detail = %+v", detail)
	}
	if detail.Messages[0].Content != "Hello Ann" {
		t.Errorf("message content = %q", detail.Messages[0].Content)
	}
}

func TestAddInteraction_InvalidType(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))
	lead := createTestLead(t, h, "ann@acme.io")

	w := doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/leads/%d/interactions", lead.ID),
		`{"interaction_type":"fax","content":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestListInteractions_MissingLead(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))
	w := doRequest(t, h, http.MethodGet, "/api/leads/99/interactions", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestQualifyLead(t *testing.T) {
	llm := &stubCompleter{content: `{"qualification_score": 70, "recommended_stage": "qualified"}`}
	h := NewRouter(newTestDeps(t, llm))
	lead := createTestLead(t, h, "ann@acme.io")

	w := doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/leads/%d/qualify", lead.ID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("qualify: %d %s", w.Code, w.Body.String())
	}
	var q scoring.Qualification
	decodeJSON(t, w, &q)
	if q.Score == nil || *q.Score != 70 || q.Fallback {
		t.Errorf("qualification = %+v", q)
	}

	w = doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/leads/%d", lead.ID), "")
	var got storage.Lead
	decodeJSON(t, w, &got)
	if got.LeadScore != 7 || got.PipelineStage != storage.StageQualified {
		t.Errorf("lead after qualify = score %v stage %s", got.LeadScore, got.PipelineStage)
	}
}

func TestQualifyLead_Errors(t *testing.T) {
	llm := &stubCompleter{err: &completion.Error{Kind: completion.KindNetwork}}
	h := NewRouter(newTestDeps(t, llm))

	w := doRequest(t, h, http.MethodPost, "/api/leads/42/qualify", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing lead: status %d, want 404", w.Code)
	}
	if llm.calls != 0 {
		t.Errorf("completion called %d times for a missing lead", llm.calls)
	}

	lead := createTestLead(t, h, "ann@acme.io")
	w = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/leads/%d/qualify", lead.ID), "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("completion failure: status %d, want 502", w.Code)
	}
	if got := errorMessage(t, w); got != "completion service error" {
		t.Errorf("error message = %q", got)
	}

	w = doRequest(t, h, http.MethodPost, "/api/leads/abc/qualify", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status %d, want 400", w.Code)
	}
}

func TestScoreLead(t *testing.T) {
	llm := &stubCompleter{content: `{"total_score": 6.5, "criteria_scores": {"Company Size": 8, "Industry Fit": 5}, "recommendations": ["follow up"]}`}
	h := NewRouter(newTestDeps(t, llm))
	lead := createTestLead(t, h, "ann@acme.io")

	w := doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/leads/%d/score", lead.ID), "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("no criteria: status %d, want 404", w.Code)
	}
	if got := errorMessage(t, w); got != "no active scoring criteria found" {
		t.Errorf("error message = %q", got)
	}

	w = doRequest(t, h, http.MethodPost, "/api/scoring/criteria/defaults", "")
	var seeded seedResponse
	decodeJSON(t, w, &seeded)
	if seeded.Message != "Created 4 default scoring criteria" || len(seeded.Criteria) != 4 {
		t.Fatalf("seed = %+v", seeded)
	}

	w = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/leads/%d/score", lead.ID), "")
	if w.Code != http.StatusOK {
		t.Fatalf("score: %d %s", w.Code, w.Body.String())
	}
	var res scoring.ScoreResult
	decodeJSON(t, w, &res)
	if res.LeadID != lead.ID || res.TotalScore != 6.5 || res.WeightedScore == nil {
		t.Errorf("score result = %+v", res)
	}

	ids := fmt.Sprintf(`{"criteria_ids":[%d]}`, seeded.Criteria[0].ID)
	w = doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/leads/%d/score", lead.ID), ids)
	if w.Code != http.StatusOK {
		t.Fatalf("score with ids: %d %s", w.Code, w.Body.String())
	}
}

func TestCriteriaEndpoints(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))

	w := doRequest(t, h, http.MethodPost, "/api/scoring/criteria/", `{"name":"Budget","criteria_rules":{"high":10}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var c storage.ScoringCriterion
	decodeJSON(t, w, &c)
	if c.Weight != 1.0 || !c.IsActive || c.Rules != `{"high":10}` {
		t.Errorf("created = %+v", c)
	}

	w = doRequest(t, h, http.MethodPost, "/api/scoring/criteria/", `{"name":"Bad","weight":0}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("zero weight: status %d, want 400", w.Code)
	}
	w = doRequest(t, h, http.MethodPost, "/api/scoring/criteria/", `{"name":"Bad","criteria_rules":[1,2]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("array rules: status %d, want 400", w.Code)
	}

	w = doRequest(t, h, http.MethodPut, fmt.Sprintf("/api/scoring/criteria/%d", c.ID), `{"name":"Budget","weight":2.5}`)
	decodeJSON(t, w, &c)
	if c.Weight != 2.5 || c.Rules != "{}" {
		t.Errorf("replaced = %+v", c)
	}

	w = doRequest(t, h, http.MethodDelete, fmt.Sprintf("/api/scoring/criteria/%d", c.ID), "")
	var msg messageResponse
	decodeJSON(t, w, &msg)
	if msg.Message != "Scoring criteria deactivated successfully" {
		t.Errorf("deactivate message = %q", msg.Message)
	}

	w = doRequest(t, h, http.MethodGet, "/api/scoring/criteria/", "")
	var active []storage.ScoringCriterion
	decodeJSON(t, w, &active)
	if len(active) != 0 {
		t.Errorf("active criteria = %d, want 0", len(active))
	}
	w = doRequest(t, h, http.MethodGet, "/api/scoring/criteria/?active_only=false", "")
	var all []storage.ScoringCriterion
	decodeJSON(t, w, &all)
	if len(all) != 1 {
		t.Errorf("all criteria = %d, want 1", len(all))
	}

	w = doRequest(t, h, http.MethodGet, "/api/scoring/criteria/999", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing criterion: status %d, want 404", w.Code)
	}
}

func TestSeedCriteria_Idempotent(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))
	doRequest(t, h, http.MethodPost, "/api/scoring/criteria/defaults", "")

	w := doRequest(t, h, http.MethodPost, "/api/scoring/criteria/defaults", "")
	var seeded seedResponse
	decodeJSON(t, w, &seeded)
	if seeded.Message != "Created 0 default scoring criteria" || seeded.Criteria == nil {
		t.Errorf("second seed = %+v", seeded)
	}
}

func TestEvaluationEndpoints(t *testing.T) {
	llm := &stubCompleter{content: "qualified lead with budget"}
	h := NewRouter(newTestDeps(t, llm))

	body := `{"test_cases":[
		{"test_name":"exact","prompt_template":"p","test_input":"in","expected_output":"qualified lead with budget"},
		{"test_name":"open","prompt_template":"p","test_input":"in"}
	]}`
	w := doRequest(t, h, http.MethodPost, "/api/evaluations/run", body)
	if w.Code != http.StatusOK {
		t.Fatalf("run: %d %s", w.Code, w.Body.String())
	}
	var results []storage.Evaluation
	decodeJSON(t, w, &results)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].Passed || results[0].Score == nil || *results[0].Score != 1.0 {
		t.Errorf("exact case = %+v", results[0])
	}
	if results[1].Passed || results[1].Score != nil {
		t.Errorf("open case = %+v", results[1])
	}
	if results[0].RunID == "" || results[0].RunID != results[1].RunID {
		t.Errorf("run ids = %q, %q", results[0].RunID, results[1].RunID)
	}

	w = doRequest(t, h, http.MethodGet, "/api/evaluations/?test_name=exa", "")
	var listed []storage.Evaluation
	decodeJSON(t, w, &listed)
	if len(listed) != 1 {
		t.Errorf("filtered list = %d, want 1", len(listed))
	}

	w = doRequest(t, h, http.MethodGet, "/api/evaluations/summary", "")
	var sum storage.EvaluationSummary
	decodeJSON(t, w, &sum)
	if sum.TotalTests != 2 || sum.PassedTests != 1 || sum.FailedTests != 1 {
		t.Errorf("summary = %+v", sum)
	}

	w = doRequest(t, h, http.MethodDelete, fmt.Sprintf("/api/evaluations/%d", results[0].ID), "")
	var msg messageResponse
	decodeJSON(t, w, &msg)
	if msg.Message != "Evaluation deleted successfully" {
		t.Errorf("delete message = %q", msg.Message)
	}
	w = doRequest(t, h, http.MethodDelete, fmt.Sprintf("/api/evaluations/%d", results[0].ID), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", w.Code)
	}
}

func TestRunEvaluations_Validation(t *testing.T) {
	llm := &stubCompleter{}
	h := NewRouter(newTestDeps(t, llm))

	for _, body := range []string{
		`{"test_cases":[]}`,
		`{"test_cases":[{"test_name":"x","prompt_template":"p"}]}`,
		`{"test_cases":[{"test_name":"x","prompt_template":"p","test_input":"  \n "}]}`,
		`{"test_cases":[{"test_name":"   ","prompt_template":"p","test_input":"hi"}]}`,
	} {
		w := doRequest(t, h, http.MethodPost, "/api/evaluations/run", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", body, w.Code)
		}
	}
	if llm.calls != 0 {
		t.Errorf("completion called %d times for invalid cases", llm.calls)
	}
}

func TestRunDefaultEvaluations(t *testing.T) {
	llm := &stubCompleter{content: "anything"}
	h := NewRouter(newTestDeps(t, llm))

	w := doRequest(t, h, http.MethodPost, "/api/evaluations/run-defaults", "")
	if w.Code != http.StatusOK {
		t.Fatalf("run-defaults: %d %s", w.Code, w.Body.String())
	}
	var results []storage.Evaluation
	decodeJSON(t, w, &results)
	if len(results) != 5 || llm.calls != 5 {
		t.Errorf("results = %d, calls = %d, want 5", len(results), llm.calls)
	}
}

func TestSearchEndpoints(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))
	lead := createTestLead(t, h, "ann@acme.io")
	doRequest(t, h, http.MethodPost, fmt.Sprintf("/api/leads/%d/interactions", lead.ID),
		`{"interaction_type":"note","content":"Acme wants a demo"}`)

	w := doRequest(t, h, http.MethodGet, "/api/search?query=acme", "")
	if w.Code != http.StatusOK {
		t.Fatalf("search: %d %s", w.Code, w.Body.String())
	}
	var results []search.Result
	decodeJSON(t, w, &results)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Type != search.KindLead || results[0].Title != "Ann Lee - Acme" {
		t.Errorf("first result = %+v", results[0])
	}
	if results[1].Title != "Interaction with Ann Lee" {
		t.Errorf("second result = %+v", results[1])
	}

	w = doRequest(t, h, http.MethodPost, "/api/search", `{"query":"ACME","limit":1}`)
	decodeJSON(t, w, &results)
	if len(results) != 1 {
		t.Errorf("limited results = %d, want 1", len(results))
	}

	w = doRequest(t, h, http.MethodGet, "/api/search?query=%20", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank query: status %d, want 400", w.Code)
	}
	if !strings.Contains(errorMessage(t, w), "query") {
		t.Errorf("blank query message = %q", w.Body.String())
	}
}

func TestPipelineStats(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))
	createTestLead(t, h, "a@acme.io")
	createTestLead(t, h, "b@acme.io")

	w := doRequest(t, h, http.MethodGet, "/api/leads/stats/pipeline", "")
	var stats map[string]int
	decodeJSON(t, w, &stats)
	if stats["new"] != 2 || stats["closed_won"] != 0 {
		t.Errorf("stats = %v", stats)
	}
	if len(stats) != len(storage.PipelineStages) {
		t.Errorf("stats has %d stages, want %d", len(stats), len(storage.PipelineStages))
	}
}

func TestUpdateLead_Validation(t *testing.T) {
	h := NewRouter(newTestDeps(t, &stubCompleter{}))
	lead := createTestLead(t, h, "ann@acme.io")
	path := fmt.Sprintf("/api/leads/%d", lead.ID)

	for _, body := range []string{
		`{"first_name":""}`,
		`{"email":"not-an-email"}`,
		`{"pipeline_stage":"won"}`,
		`{"lead_score":-1}`,
	} {
		w := doRequest(t, h, http.MethodPut, path, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", body, w.Code)
		}
	}

	w := doRequest(t, h, http.MethodPut, "/api/leads/999", `{"notes":"x"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing lead: status %d, want 404", w.Code)
	}
}
