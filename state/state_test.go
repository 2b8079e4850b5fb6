package state

import (
	"errors"
	"testing"
	"time"

	"insulink/questionnaire"
)

func testApp(t *testing.T) (*App, *time.Time) {
	t.Helper()
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	a := NewApp(Profile{Name: "Sam"})
	a.now = func() time.Time { return now }
	return a, &now
}

func TestSingleWriter(t *testing.T) {
	a, _ := testApp(t)
	if _, err := a.AlertWriter(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.AlertWriter(); !errors.Is(err, ErrWriterTaken) {
		t.Fatalf("second AlertWriter = %v", err)
	}
}

func TestEvaluateRaisesByLevel(t *testing.T) {
	a, _ := testApp(t)
	w, _ := a.AlertWriter()

	res := questionnaire.Result{
		Average: 4.7,
		Levels: map[questionnaire.Category]questionnaire.Level{
			questionnaire.CategoryMedication: questionnaire.LevelLow,
			questionnaire.CategoryNutrition:  questionnaire.LevelMedium,
			questionnaire.CategorySleep:      questionnaire.LevelHigh,
		},
		Suggestions: map[questionnaire.Category]string{
			questionnaire.CategoryMedication: "Set reminders.",
		},
	}
	raised := w.Evaluate(res)
	if len(raised) != 2 {
		t.Fatalf("raised %d alerts", len(raised))
	}

	cur, ok := a.CurrentAlert()
	if !ok || cur.Severity != SeverityCritical || cur.Category != questionnaire.CategoryMedication {
		t.Fatalf("current = %+v, %v", cur, ok)
	}
	if cur.Message != "Set reminders." {
		t.Errorf("message = %q", cur.Message)
	}

	hist := a.AlertHistory()
	if len(hist) != 2 || hist[0].Severity != SeverityCritical || hist[1].Severity != SeverityCaution {
		t.Fatalf("history = %+v", hist)
	}
	if a.Health() != 4.7 {
		t.Errorf("health = %v", a.Health())
	}
}

func TestAlertExpiresAndDismiss(t *testing.T) {
	a, now := testApp(t)
	w, _ := a.AlertWriter()
	w.Raise(Alert{Title: "x", Severity: SeverityCaution})

	if _, ok := a.CurrentAlert(); !ok {
		t.Fatal("expected current alert")
	}
	*now = now.Add(AlertTTL)
	if _, ok := a.CurrentAlert(); ok {
		t.Fatal("alert should have expired")
	}

	w.Raise(Alert{Title: "y", Severity: SeverityCritical})
	a.Dismiss()
	if _, ok := a.CurrentAlert(); ok {
		t.Fatal("dismissed alert still current")
	}
	if len(a.AlertHistory()) != 2 {
		t.Fatal("dismiss must keep history")
	}
}

func TestHistoryIsCopy(t *testing.T) {
	a, _ := testApp(t)
	w, _ := a.AlertWriter()
	w.Raise(Alert{Title: "x"})
	h := a.AlertHistory()
	h[0].Title = "changed"
	if a.AlertHistory()[0].Title != "x" {
		t.Fatal("history aliased")
	}
}
