package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/sdr/internal/evaluation"
	"github.com/kalambet/sdr/internal/storage"
)

type runEvaluationsRequest struct {
	TestCases []evaluation.Case `json:"test_cases" validate:"required,min=1,dive"`
}

func (req *runEvaluationsRequest) normalize() {
	for i := range req.TestCases {
		c := &req.TestCases[i]
		c.Name = strings.TrimSpace(c.Name)
		c.PromptTemplate = strings.TrimSpace(c.PromptTemplate)
		c.Input = strings.TrimSpace(c.Input)
		c.ExpectedOutput = strings.TrimSpace(c.ExpectedOutput)
	}
}

func handleRunEvaluations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runEvaluationsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		results, err := deps.Evals.Run(r.Context(), req.TestCases)
		if err != nil {
			writeServiceError(w, "evaluation", err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func handleRunDefaultEvaluations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := deps.Evals.RunDefaults(r.Context())
		if err != nil {
			writeServiceError(w, "evaluation", err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

func handleListEvaluations(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		evals, err := deps.Evals.List(
			r.URL.Query().Get("test_name"),
			parseIntParam(r, "skip", 0, 0),
			parseIntParam(r, "limit", 100, 1000),
		)
		if err != nil {
			writeServiceError(w, "evaluation", err)
			return
		}
		if evals == nil {
			evals = []storage.Evaluation{}
		}
		writeJSON(w, http.StatusOK, evals)
	}
}

func handleEvaluationSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := deps.Evals.Summary(parseIntParam(r, "limit", 0, 0))
		if err != nil {
			writeServiceError(w, "evaluation", err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func handleDeleteEvaluation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		if err := deps.Evals.Delete(id); err != nil {
			writeServiceError(w, "evaluation", err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Evaluation deleted successfully"})
	}
}
