package transcriber

import (
	"context"
	"fmt"

	"insulink/backend"
	"insulink/encoder"
)

// Uploader is the backend's POST /transcribe.
type Uploader interface {
	Transcribe(ctx context.Context, audio []byte, format encoder.Format) (*backend.TranscribeResult, error)
}

// Backend transcribes through the insulink backend, which relays to its own
// speech-to-text provider.
type Backend struct {
	up Uploader
}

func NewBackend(up Uploader) *Backend {
	return &Backend{up: up}
}

func (b *Backend) Name() string { return "backend" }

func (b *Backend) NewSession(_ context.Context, cfg SessionConfig) (Session, error) {
	if cfg.Stream {
		return nil, fmt.Errorf("backend does not support streaming transcription")
	}
	return newBatchSession(cfg, b.transcribe)
}

func (b *Backend) transcribe(ctx context.Context, audio []byte, format encoder.Format) (*Result, error) {
	res, err := b.up.Transcribe(ctx, audio, format)
	if err != nil {
		return nil, err
	}
	return &Result{Text: res.Text, Metrics: res.Metrics}, nil
}
