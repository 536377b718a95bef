package api

import (
	"net/http"

	"github.com/kalambet/sdr/internal/search"
)

type searchRequest struct {
	Query   string         `json:"query" validate:"required"`
	Filters map[string]any `json:"filters"`
	Limit   int            `json:"limit" validate:"omitempty,gte=1,lte=100"`
}

func handleSearchQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runSearch(w, r, deps, r.URL.Query().Get("query"), parseIntParam(r, "limit", 0, search.MaxLimit))
	}
}

// handleSearchBody accepts filters for compatibility; they are not applied.
func handleSearchBody(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if !decodeBody(w, r, &req) {
			return
		}
		runSearch(w, r, deps, req.Query, req.Limit)
	}
}

func runSearch(w http.ResponseWriter, r *http.Request, deps Deps, query string, limit int) {
	results, err := deps.Search.Search(r.Context(), query, limit)
	if err != nil {
		writeServiceError(w, "search", err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}
