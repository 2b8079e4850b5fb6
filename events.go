package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"insulink/questionnaire"
	"insulink/state"
)

// EventSink abstracts the display layer so both the Bubble Tea TUI and the
// headless line printer receive the same check-in events.
type EventSink interface {
	Loading()
	BankError(err error)
	Prompt(p questionnaire.Prompt, index, total int)
	Speaking(on bool)
	RecordingStart()
	RecordingTick(d time.Duration)
	AudioLevel(level float64)
	RecordingStop(autoStopped bool)
	LiveTranscript(text string)
	Answer(p questionnaire.Prompt, text string, noSpeech bool)
	Error(err error)
	Submitting()
	Result(res questionnaire.Result, alerts []state.Alert)
	ModeLine(text string)
	DeviceLine(text string)
}

// controls carries user intent to the running check-in. Every channel holds
// at most one pending request; extra presses are dropped.
type controls struct {
	start chan struct{}
	stop  chan struct{}
	next  chan struct{}
}

func newControls() *controls {
	return &controls{
		start: make(chan struct{}, 1),
		stop:  make(chan struct{}, 1),
		next:  make(chan struct{}, 1),
	}
}

func (c *controls) Start() { trySend(c.start) }
func (c *controls) Stop()  { trySend(c.stop) }
func (c *controls) Next()  { trySend(c.next) }

func trySend(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func drain(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

// lineSink prints events as plain lines. Used with --no-tui and --test.
type lineSink struct {
	mu sync.Mutex
	w  io.Writer

	// settled fires after each answer, failed attempt or final result.
	settled chan struct{}
	// prompted fires each time a prompt is shown.
	prompted chan struct{}
}

func newLineSink(w io.Writer) *lineSink {
	return &lineSink{w: w, settled: make(chan struct{}, 1), prompted: make(chan struct{}, 1)}
}

func (s *lineSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *lineSink) Loading()            { s.printf("LOADING") }
func (s *lineSink) BankError(err error) { s.printf("BANK_ERROR %v", err); trySend(s.settled) }
func (s *lineSink) Prompt(p questionnaire.Prompt, index, total int) {
	s.printf("PROMPT %d/%d [%s] %s", index+1, total, p.Category, p.Text)
	trySend(s.prompted)
}
func (s *lineSink) Speaking(bool)               {}
func (s *lineSink) RecordingStart()             { s.printf("RECORDING") }
func (s *lineSink) RecordingTick(time.Duration) {}
func (s *lineSink) AudioLevel(float64)          {}
func (s *lineSink) RecordingStop(auto bool) {
	if auto {
		s.printf("STOPPED silence")
		return
	}
	s.printf("STOPPED")
}
func (s *lineSink) LiveTranscript(text string) {
	if text != "" {
		s.printf("LIVE %s", text)
	}
}
func (s *lineSink) Answer(p questionnaire.Prompt, text string, noSpeech bool) {
	if noSpeech {
		s.printf("ANSWER [%s] (no speech detected)", p.Category)
	} else {
		s.printf("ANSWER [%s] %s", p.Category, text)
	}
	trySend(s.settled)
}
func (s *lineSink) Error(err error) { s.printf("ERROR %v", err); trySend(s.settled) }
func (s *lineSink) Submitting()     { s.printf("SUBMITTING") }
func (s *lineSink) Result(res questionnaire.Result, alerts []state.Alert) {
	s.mu.Lock()
	fmt.Fprintln(s.w, "RESULT")
	for _, line := range strings.Split(res.Summary(), "\n") {
		fmt.Fprintf(s.w, "  %s\n", line)
	}
	for _, a := range alerts {
		fmt.Fprintf(s.w, "ALERT %s %s\n", a.Severity, a.Title)
	}
	s.mu.Unlock()
	trySend(s.settled)
}
func (s *lineSink) ModeLine(text string)   { s.printf("MODE %s", text) }
func (s *lineSink) DeviceLine(text string) { s.printf("DEVICE %s", text) }
