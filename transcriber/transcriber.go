// Package transcriber turns captured answers into text. Batch sessions encode
// while recording and upload on Close; stream sessions push PCM over a
// websocket and surface interim and final text as it arrives.
package transcriber

import (
	"context"
	"errors"
	"fmt"

	"insulink/encoder"
	"insulink/nettrace"
)

// ErrTranscriptionFailed wraps every batch upload, parse or status failure.
var ErrTranscriptionFailed = errors.New("transcription failed")

type Result struct {
	Text       string
	Metrics    *nettrace.Metrics
	RateLimit  string
	Confidence float64
	Duration   float64
}

type Transcriber interface {
	Name() string
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

type transcribeFunc func(ctx context.Context, audio []byte, format encoder.Format) (*Result, error)

type baseTranscriber struct {
	client *nettrace.Client
	apiURL string
	lang   string
}

func (b *baseTranscriber) setLanguage(lang string) {
	if lang != "" {
		b.lang = lang
	}
}

// Keys holds provider credentials, usually read from the environment.
type Keys struct {
	Groq     string
	Deepgram string
}

// New builds the transcriber for provider. up is required for "backend".
func New(provider string, up Uploader, keys Keys) (Transcriber, error) {
	switch provider {
	case "", "backend":
		if up == nil {
			return nil, fmt.Errorf("backend transcriber needs a backend client")
		}
		return NewBackend(up), nil
	case "groq":
		if keys.Groq == "" {
			return nil, fmt.Errorf("set GROQ_API_KEY to use the groq provider")
		}
		return NewGroq(keys.Groq), nil
	case "deepgram":
		if keys.Deepgram == "" {
			return nil, fmt.Errorf("set DEEPGRAM_API_KEY to use the deepgram provider")
		}
		return NewDeepgram(keys.Deepgram), nil
	}
	return nil, fmt.Errorf("unknown transcription provider %q", provider)
}
