package similarity

import (
	"math"
	"testing"
)

func TestScore_Identical(t *testing.T) {
	for _, s := range []string{"Hi Sarah", "  total_score ", "ÄBC def"} {
		if got := Score(s, s); got != 1.0 {
			t.Errorf("Score(%q, %q) = %v, want 1", s, s, got)
		}
	}
}

func TestScore_CaseAndSpaceInsensitiveEquality(t *testing.T) {
	if got := Score("Hi Mike", "  hi MIKE\n"); got != 1.0 {
		t.Errorf("Score = %v, want 1", got)
	}
}

func TestScore_EmptyExpected(t *testing.T) {
	if got := Score("   ", "anything at all"); got != 0 {
		t.Errorf("Score = %v, want 0", got)
	}
}

func TestScore_BlankBothSides(t *testing.T) {
	for _, c := range [][2]string{{"", ""}, {"   ", ""}, {"   ", "  \n"}} {
		if got := Score(c[0], c[1]); got != 0 {
			t.Errorf("Score(%q, %q) = %v, want 0", c[0], c[1], got)
		}
	}
}

func TestScore_Partial(t *testing.T) {
	// 1 of 2 expected words, lengths 8 and 16: 0.8*0.5 + 0.2*0.5 = 0.5
	got := Score("Hi Sarah", "Hi there, friend")
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Score = %v, want 0.5", got)
	}
	if Passed(got) {
		t.Error("0.5 should not pass")
	}
}

func TestScore_FullOverlapLongAnswer(t *testing.T) {
	expected := "Hi Mike"
	actual := "Hi Mike - I noticed your work as a Product Manager at Google and wanted to connect."
	got := Score(expected, actual)
	if got < 0.8 || got > 1.0 {
		t.Errorf("Score = %v, want within [0.8, 1]", got)
	}
	if !Passed(got) {
		t.Error("full overlap should pass")
	}
}

func TestScore_Range(t *testing.T) {
	pairs := [][2]string{
		{"a b c", ""},
		{"x", "y"},
		{`{"qualification_score": 85}`, `{"qualification_score": 80, "recommended_stage": "qualified"}`},
		{"total_score", "total_score total_score total_score"},
	}
	for _, p := range pairs {
		got := Score(p[0], p[1])
		if got < 0 || got > 1 {
			t.Errorf("Score(%q, %q) = %v out of range", p[0], p[1], got)
		}
	}
}

func TestPassed_Threshold(t *testing.T) {
	if !Passed(0.70) || Passed(0.6999) {
		t.Error("threshold should be inclusive at 0.70")
	}
}
