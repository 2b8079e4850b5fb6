package questionnaire

import (
	"context"
	"fmt"
	"sync"
)

// Scorer is the external scoring collaborator (POST /analyze).
type Scorer interface {
	Analyze(ctx context.Context, answers AnswerSet) (Result, error)
}

// Submitter sends a completed answer set to the scorer once. A failed
// submission is not retried; the check-in must be restarted.
type Submitter struct {
	scorer Scorer

	mu        sync.Mutex
	submitted bool
}

func NewSubmitter(scorer Scorer) *Submitter {
	return &Submitter{scorer: scorer}
}

// Submit validates that answers holds exactly expected entries, then calls
// the scorer. Scorer failures are wrapped in ErrScoringFailed.
func (s *Submitter) Submit(ctx context.Context, answers AnswerSet, expected int) (Result, error) {
	for c := range answers {
		if !c.Valid() {
			return Result{}, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
		}
	}
	if n := answers.Total(); n != expected {
		return Result{}, fmt.Errorf("%w: have %d, want %d", ErrAnswerCountMismatch, n, expected)
	}

	s.mu.Lock()
	if s.submitted {
		s.mu.Unlock()
		return Result{}, ErrAlreadySubmitted
	}
	s.submitted = true
	s.mu.Unlock()

	res, err := s.scorer.Analyze(ctx, answers.Clone())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}
	res.Normalize()
	return res, nil
}

// Submitted reports whether Submit has already called the scorer.
func (s *Submitter) Submitted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}
