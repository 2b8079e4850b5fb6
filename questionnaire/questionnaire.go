// Package questionnaire holds the check-in data model: prompts drawn from a
// category-partitioned bank, the shuffled queue, the per-category answer set,
// the sequencing state machine and the one-shot submission to the scorer.
package questionnaire

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Category tags a prompt with the health area it covers. The string values are
// the keys used by the backend.
type Category string

const (
	CategoryMedication Category = "med"
	CategoryNutrition  Category = "food"
	CategorySleep      Category = "sleep"
)

// Categories lists the known categories in bank order.
var Categories = []Category{CategoryMedication, CategoryNutrition, CategorySleep}

func (c Category) Valid() bool {
	switch c {
	case CategoryMedication, CategoryNutrition, CategorySleep:
		return true
	}
	return false
}

func (c Category) Label() string {
	switch c {
	case CategoryMedication:
		return "Medication"
	case CategoryNutrition:
		return "Nutrition"
	case CategorySleep:
		return "Sleep"
	default:
		return string(c)
	}
}

// Prompt is a single question presented to the user. Immutable once loaded.
type Prompt struct {
	ID       string   `json:"id"`
	Category Category `json:"category"`
	Text     string   `json:"text"`
}

// Bank is the question bank as delivered by GET /questions:
// {"med": [...], "food": [...], "sleep": [...]}.
type Bank map[Category][]string

// BankSource delivers a question bank. Implemented by the backend client and the bank cache.
type BankSource interface {
	Questions(ctx context.Context) (Bank, error)
}

// Validate rejects unknown categories and banks without any prompt.
func (b Bank) Validate() error {
	for c := range b {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownCategory, c)
		}
	}
	if b.Size() == 0 {
		return ErrEmptyBank
	}
	return nil
}

// Size is the number of prompts across all categories.
func (b Bank) Size() int {
	n := 0
	for _, texts := range b {
		n += len(texts)
	}
	return n
}

// Prompts flattens the bank in category order. IDs are "<category>-<n>", 1-based.
func (b Bank) Prompts() []Prompt {
	prompts := make([]Prompt, 0, b.Size())
	for _, c := range Categories {
		for i, text := range b[c] {
			prompts = append(prompts, Prompt{
				ID:       fmt.Sprintf("%s-%d", c, i+1),
				Category: c,
				Text:     strings.TrimSpace(text),
			})
		}
	}
	return prompts
}

// AnswerSet maps each category to its answers in presentation order.
type AnswerSet map[Category][]string

func newAnswerSet() AnswerSet {
	s := make(AnswerSet, len(Categories))
	for _, c := range Categories {
		s[c] = []string{}
	}
	return s
}

// Total is the number of recorded answers across all categories.
func (s AnswerSet) Total() int {
	n := 0
	for _, answers := range s {
		n += len(answers)
	}
	return n
}

// Clone returns a deep copy.
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for c, answers := range s {
		out[c] = append([]string(nil), answers...)
	}
	return out
}

// Answer pairs a prompt with the text recorded for it.
type Answer struct {
	Prompt Prompt `json:"prompt"`
	Text   string `json:"text"`
}

// Level is the qualitative band the scorer assigns to a category.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ParseLevel accepts low/medium/high and the traffic-light names the backend
// emits (red/yellow/green).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "red":
		return LevelLow, nil
	case "medium", "yellow", "amber":
		return LevelMedium, nil
	case "high", "green":
		return LevelHigh, nil
	}
	return "", fmt.Errorf("unknown level %q", s)
}

// LevelForScore buckets a 1-10 score: 1-3 low, 4-6 medium, 7+ high.
func LevelForScore(score float64) Level {
	switch {
	case score < 4:
		return LevelLow
	case score < 7:
		return LevelMedium
	default:
		return LevelHigh
	}
}

func (l *Level) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseLevel(raw)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Result is the scoring collaborator's response. The client only renders it.
type Result struct {
	Scores      map[Category]float64 `json:"scores"`
	Average     float64              `json:"average"`
	Levels      map[Category]Level   `json:"levels"`
	Suggestions map[Category]string  `json:"suggestions"`
}

// Normalize fills levels and suggestions the backend left out, deriving them
// from the scores.
func (r *Result) Normalize() {
	if r.Levels == nil {
		r.Levels = make(map[Category]Level)
	}
	if r.Suggestions == nil {
		r.Suggestions = make(map[Category]string)
	}
	for c, score := range r.Scores {
		if _, ok := r.Levels[c]; !ok {
			r.Levels[c] = LevelForScore(score)
		}
	}
	for c, l := range r.Levels {
		if r.Suggestions[c] == "" {
			r.Suggestions[c] = Suggestion(c, l)
		}
	}
}

// Summary renders the result as plain text, one line per scored category in
// category order followed by the overall average.
func (r Result) Summary() string {
	var b strings.Builder
	for _, c := range Categories {
		score, ok := r.Scores[c]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %g/10", c.Label(), score)
		if l, ok := r.Levels[c]; ok {
			fmt.Fprintf(&b, " (%s)", l)
		}
		if s := r.Suggestions[c]; s != "" {
			fmt.Fprintf(&b, " - %s", s)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Overall: %.1f/10", r.Average)
	return b.String()
}
