package questionnaire

import (
	"fmt"
	"strings"
	"sync"
)

type State int

const (
	StateLoading State = iota
	StateReady
	StatePresenting
	StateAwaitingAnswer
	StateAdvancing
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePresenting:
		return "presenting"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateAdvancing:
		return "advancing"
	case StateComplete:
		return "complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sequencer owns the shuffled prompt queue, the current position and the
// per-category answers for one check-in. Safe for concurrent use.
type Sequencer struct {
	mu      sync.Mutex
	rng     Shuffler
	state   State
	queue   []Prompt
	idx     int
	answers AnswerSet
	log     []Answer
}

func NewSequencer(rng Shuffler) *Sequencer {
	if rng == nil {
		rng = NewShuffler()
	}
	return &Sequencer{rng: rng, answers: newAnswerSet()}
}

// Load builds and shuffles the queue from bank. Only valid in the Loading
// state; on error the sequencer stays in Loading.
func (s *Sequencer) Load(b Bank) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return ErrAlreadyLoaded
	}
	if err := b.Validate(); err != nil {
		return err
	}
	s.queue = BuildQueue(b, s.rng)
	s.idx = 0
	s.state = StateReady
	return nil
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Sequencer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Queue returns a copy of the shuffled prompts.
func (s *Sequencer) Queue() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.queue...)
}

// Current returns the prompt at the current position and its zero-based
// index. ok is false while loading and once complete.
func (s *Sequencer) Current() (p Prompt, idx int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateLoading || s.state == StateComplete {
		return Prompt{}, s.idx, false
	}
	return s.queue[s.idx], s.idx, true
}

// Present moves to Presenting for the current prompt and returns it. Calling
// it again while presenting or awaiting an answer replays the same prompt.
func (s *Sequencer) Present() (Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateLoading:
		return Prompt{}, ErrNotReady
	case StateComplete:
		return Prompt{}, ErrComplete
	}
	s.state = StatePresenting
	return s.queue[s.idx], nil
}

// BeginAnswer marks that capture started for the presented prompt.
func (s *Sequencer) BeginAnswer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePresenting, StateAwaitingAnswer:
		s.state = StateAwaitingAnswer
		return nil
	case StateLoading:
		return ErrNotReady
	case StateComplete:
		return ErrComplete
	default:
		return ErrNoPrompt
	}
}

// Record appends text (trimmed, possibly empty) to the current prompt's
// category and advances. done is true exactly once, when the last prompt has
// been answered and the sequencer entered Complete.
func (s *Sequencer) Record(text string) (done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePresenting, StateAwaitingAnswer:
	case StateLoading:
		return false, ErrNotReady
	case StateComplete:
		return false, ErrComplete
	default:
		return false, ErrNoPrompt
	}

	p := s.queue[s.idx]
	text = strings.TrimSpace(text)
	s.answers[p.Category] = append(s.answers[p.Category], text)
	s.log = append(s.log, Answer{Prompt: p, Text: text})
	s.state = StateAdvancing

	if s.idx == len(s.queue)-1 {
		s.state = StateComplete
		return true, nil
	}
	s.idx++
	return false, nil
}

// Answers returns a copy of the per-category answers recorded so far.
func (s *Sequencer) Answers() AnswerSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// Transcript returns the recorded answers in presentation order.
func (s *Sequencer) Transcript() []Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Answer(nil), s.log...)
}

// Progress returns the number of answered prompts and the queue length.
func (s *Sequencer) Progress() (answered, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log), len(s.queue)
}

// Reset discards the queue and answers and returns to Loading. A fresh Load
// reshuffles.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateLoading
	s.queue = nil
	s.idx = 0
	s.answers = newAnswerSet()
	s.log = nil
}
