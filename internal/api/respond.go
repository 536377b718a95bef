package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kalambet/sdr/internal/completion"
	"github.com/kalambet/sdr/internal/scoring"
	"github.com/kalambet/sdr/internal/search"
	"github.com/kalambet/sdr/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

var validate = validator.New()

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeServiceError maps a domain error to its HTTP status. what names the
// missing resource in 404 responses.
func writeServiceError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%s not found", what)
	case errors.Is(err, scoring.ErrNoActiveCriteria):
		httpError(w, http.StatusNotFound, "not_found", "%s", scoring.ErrNoActiveCriteria.Error())
	case errors.Is(err, storage.ErrDuplicateEmail):
		httpError(w, http.StatusConflict, "conflict", "a lead with this email already exists")
	case errors.Is(err, search.ErrEmptyQuery):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
	case errors.Is(err, completion.ErrCompletionFailed):
		slog.Error("completion failure", "error", err)
		httpError(w, http.StatusBadGateway, "api_error", "completion service error")
	default:
		slog.Error("request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal server error")
	}
}

// decodeBody reads a JSON request body into v and validates it. It writes a
// 400 and returns false on failure.
// normalizer is implemented by request types that clean up fields before
// validation.
type normalizer interface {
	normalize()
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if n, ok := v.(normalizer); ok {
		n.normalize()
	}
	if err := validate.Struct(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// idParam parses a positive integer path parameter, writing a 400 on failure.
func idParam(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid %s", key)
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func parseBoolParam(r *http.Request, key string, defaultVal bool) bool {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return v
}

type messageResponse struct {
	Message string `json:"message"`
}
