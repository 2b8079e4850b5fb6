// Package state holds the app-wide profile and health alerts. The App is
// read by everyone; exactly one AlertWriter may change the alerts.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"insulink/questionnaire"
)

// AlertTTL is how long an alert stays current before it is auto-dismissed.
const AlertTTL = 15 * time.Second

var ErrWriterTaken = errors.New("alert writer already taken")

type Severity string

const (
	SeverityCaution  Severity = "caution"
	SeverityCritical Severity = "critical"
)

type Alert struct {
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Severity Severity               `json:"severity"`
	Category questionnaire.Category `json:"category,omitempty"`
	Time     time.Time              `json:"timestamp"`
}

type Profile struct {
	Name string `json:"name"`
}

type App struct {
	profile Profile
	now     func() time.Time

	mu          sync.RWMutex
	writerTaken bool
	health      float64
	alert       *Alert
	history     []Alert
}

func NewApp(p Profile) *App {
	return &App{profile: p, now: time.Now}
}

func (a *App) Profile() Profile { return a.profile }

// AlertWriter hands out the only writer. Later calls fail with
// ErrWriterTaken.
func (a *App) AlertWriter() (*AlertWriter, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.writerTaken {
		return nil, ErrWriterTaken
	}
	a.writerTaken = true
	return &AlertWriter{app: a}, nil
}

// CurrentAlert returns the active alert, if it has not expired or been
// dismissed.
func (a *App) CurrentAlert() (Alert, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.alert == nil || a.now().Sub(a.alert.Time) >= AlertTTL {
		return Alert{}, false
	}
	return *a.alert, true
}

// AlertHistory returns every raised alert, newest first.
func (a *App) AlertHistory() []Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Alert(nil), a.history...)
}

// Dismiss clears the current alert. History is kept.
func (a *App) Dismiss() {
	a.mu.Lock()
	a.alert = nil
	a.mu.Unlock()
}

// Health is the latest overall score (0 before any check-in).
func (a *App) Health() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.health
}

type AlertWriter struct {
	app *App
}

// Raise makes al the current alert and returns it with its time set.
func (w *AlertWriter) Raise(al Alert) Alert {
	a := w.app
	a.mu.Lock()
	defer a.mu.Unlock()
	if al.Time.IsZero() {
		al.Time = a.now()
	}
	a.alert = &al
	a.history = append([]Alert{al}, a.history...)
	return al
}

func (w *AlertWriter) SetHealth(v float64) {
	w.app.mu.Lock()
	w.app.health = v
	w.app.mu.Unlock()
}

// Evaluate records res.Average as the health value and raises an alert for
// every category scored low (critical) or medium (caution). Criticals are
// raised last so one of them ends up current. It returns the raised alerts.
func (w *AlertWriter) Evaluate(res questionnaire.Result) []Alert {
	w.SetHealth(res.Average)

	var cautions, criticals []Alert
	for _, c := range questionnaire.Categories {
		lvl, ok := res.Levels[c]
		if !ok {
			continue
		}
		switch lvl {
		case questionnaire.LevelLow:
			criticals = append(criticals, Alert{
				Title:    fmt.Sprintf("%s needs attention", c.Label()),
				Message:  res.Suggestions[c],
				Severity: SeverityCritical,
				Category: c,
			})
		case questionnaire.LevelMedium:
			cautions = append(cautions, Alert{
				Title:    fmt.Sprintf("%s could improve", c.Label()),
				Message:  res.Suggestions[c],
				Severity: SeverityCaution,
				Category: c,
			})
		}
	}

	raised := append(cautions, criticals...)
	for i := range raised {
		raised[i] = w.Raise(raised[i])
	}
	return raised
}
