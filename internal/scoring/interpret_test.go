package scoring

import "testing"

func TestParseQualification_Strict(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		fallback bool
	}{
		{"object", `{"qualification_score": 70}`, false},
		{"padded object", "  \n{\"qualification_score\": 70}\n ", false},
		{"prose", "Looks good", true},
		{"fenced", "```json\n{\"qualification_score\": 70}\n```", true},
		{"array", `[1,2]`, true},
		{"trailing text", `{"qualification_score": 70} thanks`, true},
		{"wrong type", `{"qualification_score": "high"}`, true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ParseQualification(tt.text)
			if q.Fallback != tt.fallback {
				t.Errorf("Fallback = %v, want %v", q.Fallback, tt.fallback)
			}
		})
	}
}

func TestParseQualification_ModelCannotForceFallbackFlag(t *testing.T) {
	q := ParseQualification(`{"qualification_score": 10, "parse_fallback": true}`)
	if q.Fallback {
		t.Error("Fallback should reflect parsing, not model output")
	}
}

func TestParseQualification_MissingFieldsStayNil(t *testing.T) {
	q := ParseQualification(`{"qualification_reasons": ["x"]}`)
	if q.Score != nil || q.RecommendedStage != nil {
		t.Errorf("absent fields decoded as %+v", q)
	}
}

func TestScoreCardFallback_Empty(t *testing.T) {
	sc := ScoreCardFallback(nil)
	if sc.TotalScore == nil || *sc.TotalScore != 0 {
		t.Errorf("TotalScore = %v, want 0", sc.TotalScore)
	}
	if len(sc.CriteriaScores) != 0 {
		t.Errorf("CriteriaScores = %v", sc.CriteriaScores)
	}
}

func TestParseScoreCard(t *testing.T) {
	sc := ParseScoreCard(`{"total_score": 6.5, "criteria_scores": {"A": 6}, "recommendations": []}`, []string{"A"})
	if sc.Fallback || sc.TotalScore == nil || *sc.TotalScore != 6.5 || sc.CriteriaScores["A"] != 6 {
		t.Errorf("ParseScoreCard = %+v", sc)
	}

	fb := ParseScoreCard("nope", []string{"A", "B"})
	if !fb.Fallback || fb.CriteriaScores["B"] != 5.0 {
		t.Errorf("fallback = %+v", fb)
	}
}
