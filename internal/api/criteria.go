package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kalambet/sdr/internal/scoring"
	"github.com/kalambet/sdr/internal/storage"
)

type criterionRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description *string         `json:"description"`
	Weight      *float64        `json:"weight" validate:"omitempty,gt=0"`
	Rules       json.RawMessage `json:"criteria_rules"`
}

// criterion converts the request, defaulting weight to 1.0 and rules to {}.
func (c criterionRequest) criterion() (storage.ScoringCriterion, error) {
	weight := 1.0
	if c.Weight != nil {
		weight = *c.Weight
	}
	rules := "{}"
	if len(c.Rules) > 0 && string(c.Rules) != "null" {
		var obj map[string]any
		if err := json.Unmarshal(c.Rules, &obj); err != nil {
			return storage.ScoringCriterion{}, fmt.Errorf("criteria_rules must be a JSON object")
		}
		rules = string(c.Rules)
	}
	return storage.ScoringCriterion{
		Name:        c.Name,
		Description: c.Description,
		Weight:      weight,
		Rules:       rules,
	}, nil
}

type seedResponse struct {
	Message  string                     `json:"message"`
	Criteria []storage.ScoringCriterion `json:"criteria"`
}

func handleCreateCriterion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req criterionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := req.criterion()
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		created, err := deps.Store.CreateCriterion(c)
		if err != nil {
			writeServiceError(w, "scoring criteria", err)
			return
		}
		writeJSON(w, http.StatusOK, created)
	}
}

func handleListCriteria(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		criteria, err := deps.Store.ListCriteria(
			parseBoolParam(r, "active_only", true),
			parseIntParam(r, "skip", 0, 0),
			parseIntParam(r, "limit", 100, 1000),
		)
		if err != nil {
			writeServiceError(w, "scoring criteria", err)
			return
		}
		if criteria == nil {
			criteria = []storage.ScoringCriterion{}
		}
		writeJSON(w, http.StatusOK, criteria)
	}
}

func handleGetCriterion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		c, err := deps.Store.GetCriterion(id)
		if err != nil {
			writeServiceError(w, "scoring criteria", err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func handleReplaceCriterion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		var req criterionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		c, err := req.criterion()
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		updated, err := deps.Store.ReplaceCriterion(id, c)
		if err != nil {
			writeServiceError(w, "scoring criteria", err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleDeactivateCriterion(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r, "id")
		if !ok {
			return
		}
		if err := deps.Store.DeactivateCriterion(id); err != nil {
			writeServiceError(w, "scoring criteria", err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Scoring criteria deactivated successfully"})
	}
}

func handleSeedCriteria(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		created, err := scoring.SeedDefaults(deps.Store)
		if err != nil {
			writeServiceError(w, "scoring criteria", err)
			return
		}
		if created == nil {
			created = []storage.ScoringCriterion{}
		}
		writeJSON(w, http.StatusOK, seedResponse{
			Message:  fmt.Sprintf("Created %d default scoring criteria", len(created)),
			Criteria: created,
		})
	}
}
