// Package api exposes the lead, scoring, evaluation and search operations over
// HTTP (JSON under /api) and as MCP tools.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/sdr/internal/evaluation"
	"github.com/kalambet/sdr/internal/outreach"
	"github.com/kalambet/sdr/internal/scoring"
	"github.com/kalambet/sdr/internal/search"
	"github.com/kalambet/sdr/internal/storage"
)

// Version is reported by the info and health endpoints.
const Version = "1.0.0"

type Deps struct {
	AppName  string
	Store    *storage.Store
	Scoring  *scoring.Engine
	Outreach *outreach.Generator
	Evals    *evaluation.Harness
	Search   *search.Searcher
}

// NewRouter returns the HTTP handler for the whole service.
func NewRouter(deps Deps) http.Handler {
	if deps.AppName == "" {
		deps.AppName = "SDR"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", handleRoot(deps))
	r.Get("/health", handleHealth(deps))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/leads", func(r chi.Router) {
			r.Post("/", handleCreateLead(deps))
			r.Get("/", handleListLeads(deps))
			r.Get("/stats/pipeline", handlePipelineStats(deps))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handleGetLead(deps))
				r.Put("/", handleUpdateLead(deps))
				r.Delete("/", handleDeleteLead(deps))
				r.Post("/qualify", handleQualifyLead(deps))
				r.Post("/score", handleScoreLead(deps))
				r.Post("/interactions", handleAddInteraction(deps))
				r.Get("/interactions", handleListInteractions(deps))
				r.Post("/messages/generate", handleGenerateMessage(deps))
				r.Get("/messages", handleListMessages(deps))
			})
		})

		r.Route("/scoring/criteria", func(r chi.Router) {
			r.Post("/", handleCreateCriterion(deps))
			r.Get("/", handleListCriteria(deps))
			r.Post("/defaults", handleSeedCriteria(deps))
			r.Get("/{id}", handleGetCriterion(deps))
			r.Put("/{id}", handleReplaceCriterion(deps))
			r.Delete("/{id}", handleDeactivateCriterion(deps))
		})

		r.Route("/evaluations", func(r chi.Router) {
			r.Post("/run", handleRunEvaluations(deps))
			r.Post("/run-defaults", handleRunDefaultEvaluations(deps))
			r.Get("/", handleListEvaluations(deps))
			r.Get("/summary", handleEvaluationSummary(deps))
			r.Delete("/{id}", handleDeleteEvaluation(deps))
		})

		r.Get("/search", handleSearchQuery(deps))
		r.Post("/search", handleSearchBody(deps))
	})

	return r
}

func handleRoot(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": deps.AppName + " System API",
			"version": Version,
			"health":  "/health",
		})
	}
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":  "unhealthy",
				"app":     deps.AppName,
				"version": Version,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "healthy",
			"app":     deps.AppName,
			"version": Version,
		})
	}
}
