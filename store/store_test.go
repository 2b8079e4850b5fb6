package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"insulink/questionnaire"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAnswers() questionnaire.AnswerSet {
	return questionnaire.AnswerSet{
		questionnaire.CategoryMedication: {"yes"},
		questionnaire.CategoryNutrition:  {"oatmeal", "no soda"},
		questionnaire.CategorySleep:      {"seven hours"},
	}
}

func TestSaveAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	done := base.Add(3 * time.Minute)
	res := &questionnaire.Result{
		Scores:  map[questionnaire.Category]float64{questionnaire.CategorySleep: 8},
		Average: 8,
		Levels:  map[questionnaire.Category]questionnaire.Level{questionnaire.CategorySleep: questionnaire.LevelHigh},
	}
	checkins := []CheckIn{
		{ID: "a", StartedAt: base, CompletedAt: &done, Strategy: "batch", Answers: sampleAnswers(), Result: res},
		{ID: "b", StartedAt: base.Add(time.Hour), Strategy: "stream", Answers: sampleAnswers(), Err: "scoring failed: 500"},
	}
	for _, c := range checkins {
		if err := s.Save(ctx, c); err != nil {
			t.Fatalf("Save %s: %v", c.ID, err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("order = %+v", got)
	}

	failed := got[0]
	if failed.Result != nil || failed.CompletedAt != nil || failed.Err == "" {
		t.Errorf("failed checkin = %+v", failed)
	}

	ok := got[1]
	if ok.Result == nil || ok.Result.Levels[questionnaire.CategorySleep] != questionnaire.LevelHigh {
		t.Fatalf("result = %+v", ok.Result)
	}
	if !ok.StartedAt.Equal(base) || ok.CompletedAt == nil || !ok.CompletedAt.Equal(done) {
		t.Errorf("times = %v / %v", ok.StartedAt, ok.CompletedAt)
	}
	if ok.Answers.Total() != 4 || ok.Answers[questionnaire.CategoryNutrition][1] != "no soda" {
		t.Errorf("answers = %v", ok.Answers)
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"1", "2", "3"} {
		s.Save(ctx, CheckIn{ID: id, StartedAt: base.Add(time.Duration(i) * time.Second), Strategy: "batch", Answers: sampleAnswers()})
	}
	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "3" {
		t.Fatalf("got %+v", got)
	}
}

func TestSaveReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	c := CheckIn{ID: "x", StartedAt: time.Now(), Strategy: "batch", Answers: sampleAnswers(), Err: "interrupted"}
	s.Save(ctx, c)
	c.Err = ""
	s.Save(ctx, c)
	got, _ := s.Recent(ctx, 10)
	if len(got) != 1 || got[0].Err != "" {
		t.Fatalf("got %+v", got)
	}
}

func TestOpenFileCreatesDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.Save(context.Background(), CheckIn{ID: "x", StartedAt: time.Now(), Strategy: "batch"}); err != nil {
		t.Fatal(err)
	}
}
