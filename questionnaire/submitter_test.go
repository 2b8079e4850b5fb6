package questionnaire

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type stubScorer struct {
	calls  int
	got    AnswerSet
	result Result
	err    error
}

func (s *stubScorer) Analyze(_ context.Context, answers AnswerSet) (Result, error) {
	s.calls++
	s.got = answers
	return s.result, s.err
}

func threeAnswers() AnswerSet {
	return AnswerSet{
		CategoryMedication: {"yes"},
		CategoryNutrition:  {"yes"},
		CategorySleep:      {"yes"},
	}
}

func TestSubmitOnce(t *testing.T) {
	scorer := &stubScorer{result: Result{Scores: map[Category]float64{CategorySleep: 8}}}
	sub := NewSubmitter(scorer)

	res, err := sub.Submit(context.Background(), threeAnswers(), 3)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if scorer.calls != 1 {
		t.Fatalf("calls = %d", scorer.calls)
	}
	if res.Levels[CategorySleep] != LevelHigh {
		t.Errorf("derived level = %q", res.Levels[CategorySleep])
	}
	if res.Suggestions[CategorySleep] == "" {
		t.Error("expected fallback suggestion")
	}

	if _, err := sub.Submit(context.Background(), threeAnswers(), 3); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second Submit = %v", err)
	}
	if scorer.calls != 1 {
		t.Fatalf("scorer called again: %d", scorer.calls)
	}
}

func TestSubmitCountMismatch(t *testing.T) {
	scorer := &stubScorer{}
	sub := NewSubmitter(scorer)
	_, err := sub.Submit(context.Background(), threeAnswers(), 4)
	if !errors.Is(err, ErrAnswerCountMismatch) {
		t.Fatalf("err = %v", err)
	}
	if scorer.calls != 0 || sub.Submitted() {
		t.Fatal("scorer must not be called on mismatch")
	}
}

func TestSubmitScoringFailedNotRetried(t *testing.T) {
	cause := errors.New("connection refused")
	scorer := &stubScorer{err: cause}
	sub := NewSubmitter(scorer)

	_, err := sub.Submit(context.Background(), threeAnswers(), 3)
	if !errors.Is(err, ErrScoringFailed) || !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
	if _, err := sub.Submit(context.Background(), threeAnswers(), 3); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("retry = %v", err)
	}
	if scorer.calls != 1 {
		t.Fatalf("calls = %d", scorer.calls)
	}
}

func TestSubmitPassesCopy(t *testing.T) {
	scorer := &stubScorer{}
	answers := threeAnswers()
	NewSubmitter(scorer).Submit(context.Background(), answers, 3)
	scorer.got[CategorySleep][0] = "changed"
	if answers[CategorySleep][0] != "yes" {
		t.Fatal("scorer mutated caller's answers")
	}
}

func TestResultDecodesTrafficLights(t *testing.T) {
	raw := `{
		"scores": {"med": 2, "food": 5, "sleep": 9},
		"average": 5.3,
		"levels": {"med": "red", "food": "yellow", "sleep": "green"},
		"suggestions": {"med": "Set reminders."}
	}`
	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatal(err)
	}
	res.Normalize()

	want := map[Category]Level{
		CategoryMedication: LevelLow,
		CategoryNutrition:  LevelMedium,
		CategorySleep:      LevelHigh,
	}
	for c, l := range want {
		if res.Levels[c] != l {
			t.Errorf("%s level = %q, want %q", c, res.Levels[c], l)
		}
	}
	if res.Suggestions[CategoryMedication] != "Set reminders." {
		t.Errorf("backend suggestion overwritten: %q", res.Suggestions[CategoryMedication])
	}
	if res.Suggestions[CategoryNutrition] != Suggestion(CategoryNutrition, LevelMedium) {
		t.Errorf("fallback suggestion = %q", res.Suggestions[CategoryNutrition])
	}
}

func TestLevelRejectsUnknown(t *testing.T) {
	var l Level
	if err := json.Unmarshal([]byte(`"purple"`), &l); err == nil {
		t.Fatal("expected error")
	}
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{1, LevelLow}, {3, LevelLow}, {4, LevelMedium}, {6, LevelMedium}, {7, LevelHigh}, {10, LevelHigh},
	}
	for _, tt := range tests {
		if got := LevelForScore(tt.score); got != tt.want {
			t.Errorf("LevelForScore(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestResultSummary(t *testing.T) {
	res := Result{
		Scores:      map[Category]float64{CategoryMedication: 2, CategorySleep: 8},
		Average:     5,
		Suggestions: map[Category]string{CategoryMedication: "Set reminders."},
	}
	res.Normalize()
	got := res.Summary()
	want := "Medication: 2/10 (low) - Set reminders.\n" +
		"Sleep: 8/10 (high) - " + Suggestion(CategorySleep, LevelHigh) + "\n" +
		"Overall: 5.0/10"
	if got != want {
		t.Fatalf("Summary() =\n%s\nwant\n%s", got, want)
	}
}
