package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeTranscriber answers sessions from a script, one entry per session.
// Once the script is exhausted the last entry repeats. In stream mode each
// word is delivered as an interim update followed by a final one.
type FakeTranscriber struct {
	mu       sync.Mutex
	script   []string
	err      error
	sessions int
}

func NewFake(script ...string) *FakeTranscriber {
	return &FakeTranscriber{script: script}
}

// FailWith makes every following session fail on Close.
func (f *FakeTranscriber) FailWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *FakeTranscriber) Name() string { return "fake" }

// Sessions reports how many sessions have been opened.
func (f *FakeTranscriber) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *FakeTranscriber) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	f.mu.Lock()
	text := ""
	if n := len(f.script); n > 0 {
		text = f.script[min(f.sessions, n-1)]
	}
	f.sessions++
	err := f.err
	f.mu.Unlock()

	words := strings.Fields(text)
	s := &fakeSession{text: text, err: err, stream: cfg.Stream, updates: make(chan Update, 2*len(words)+1)}
	if cfg.Stream {
		var final string
		for _, w := range words {
			s.updates <- Update{Interim: w, Final: final}
			final = strings.TrimSpace(final + " " + w)
			s.updates <- Update{Final: final}
		}
	}
	return s, nil
}

type fakeSession struct {
	text    string
	err     error
	stream  bool
	fed     int
	updates chan Update
	once    sync.Once
}

func (s *fakeSession) Feed(pcm []byte) { s.fed += len(pcm) }

func (s *fakeSession) Updates() <-chan Update { return s.updates }

func (s *fakeSession) Close(context.Context) (SessionResult, error) {
	s.once.Do(func() { close(s.updates) })
	if s.err != nil {
		if s.stream {
			return SessionResult{NoSpeech: true, RecognitionErr: s.err, Stream: &StreamStats{}}, nil
		}
		return SessionResult{}, fmt.Errorf("%w: %w", ErrTranscriptionFailed, s.err)
	}
	text := strings.TrimSpace(s.text)
	r := SessionResult{
		Text:     text,
		HasText:  text != "",
		NoSpeech: text == "",
		Metrics:  []string{"total: 0ms (fake)"},
	}
	if s.stream {
		r.Stream = &StreamStats{AudioS: float64(s.fed) / 32000}
	} else {
		r.Batch = &BatchStats{AudioLengthS: float64(s.fed) / 32000}
	}
	r.captureMemStats()
	return r, nil
}
