package scoring

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/kalambet/sdr/internal/metrics"
)

// Qualification is the model's assessment of a lead. Score and
// RecommendedStage are nil when the model omitted them.
type Qualification struct {
	Score            *float64 `json:"qualification_score"`
	Reasons          []string `json:"qualification_reasons"`
	RecommendedStage *string  `json:"recommended_stage"`
	NextActions      []string `json:"next_actions"`
	PainPoints       []string `json:"pain_points"`
	Fallback         bool     `json:"parse_fallback"`
}

// ScoreCard is the model's per-criterion scoring of a lead.
type ScoreCard struct {
	TotalScore      *float64           `json:"total_score"`
	CriteriaScores  map[string]float64 `json:"criteria_scores"`
	Recommendations []string           `json:"recommendations"`
	Fallback        bool               `json:"parse_fallback"`
}

var errNotObject = errors.New("completion is not a JSON object")

// decodeObject requires text to be exactly one JSON object, ignoring
// surrounding whitespace.
func decodeObject(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return errNotObject
	}
	return json.Unmarshal([]byte(trimmed), v)
}

// QualificationFallback is substituted when a qualification completion
// cannot be decoded.
func QualificationFallback() Qualification {
	score := 50.0
	stage := "new"
	return Qualification{
		Score:            &score,
		Reasons:          []string{"Analysis pending"},
		RecommendedStage: &stage,
		NextActions:      []string{"Manual review required"},
		PainPoints:       []string{"To be determined"},
		Fallback:         true,
	}
}

// ParseQualification decodes a qualification completion. Anything that is not
// a single well-typed JSON object yields QualificationFallback.
func ParseQualification(text string) Qualification {
	var q Qualification
	if err := decodeObject(text, &q); err != nil {
		slog.Warn("unparseable qualification completion, using fallback", "error", err, "response", text)
		metrics.ParseFallbacks.WithLabelValues("qualification").Inc()
		return QualificationFallback()
	}
	q.Fallback = false
	return q
}

// ScoreCardFallback scores every criterion 5.0 with the unweighted mean as
// total. With no criteria the total is 0.
func ScoreCardFallback(criterionNames []string) ScoreCard {
	scores := make(map[string]float64, len(criterionNames))
	for _, name := range criterionNames {
		scores[name] = 5.0
	}
	var total float64
	if len(scores) > 0 {
		for _, s := range scores {
			total += s
		}
		total /= float64(len(scores))
	}
	return ScoreCard{
		TotalScore:      &total,
		CriteriaScores:  scores,
		Recommendations: []string{"Manual review required"},
		Fallback:        true,
	}
}

// ParseScoreCard decodes a scoring completion, falling back to
// ScoreCardFallback for the given criteria on any decode failure.
func ParseScoreCard(text string, criterionNames []string) ScoreCard {
	var sc ScoreCard
	if err := decodeObject(text, &sc); err != nil {
		slog.Warn("unparseable scoring completion, using fallback", "error", err, "response", text)
		metrics.ParseFallbacks.WithLabelValues("scoring").Inc()
		return ScoreCardFallback(criterionNames)
	}
	sc.Fallback = false
	return sc
}
