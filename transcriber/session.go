package transcriber

import (
	"context"
	"runtime"

	"insulink/encoder"
)

func (r *SessionResult) captureMemStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	r.MemoryAllocMB = float64(m.Alloc) / 1024 / 1024
}

type SessionConfig struct {
	Stream   bool
	Format   encoder.Format // batch only
	Language string
}

// Strategy names the mode a config selects.
func (c SessionConfig) Strategy() string {
	if c.Stream {
		return "stream"
	}
	return "batch"
}

// Update carries streaming text: Interim is replaced on every message, Final
// only grows.
type Update struct {
	Interim string
	Final   string
}

// Text is the best current rendering: final text followed by the interim tail.
func (u Update) Text() string {
	switch {
	case u.Final == "":
		return u.Interim
	case u.Interim == "":
		return u.Final
	}
	return u.Final + " " + u.Interim
}

type BatchStats struct {
	AudioLengthS     float64
	RawSizeKB        float64
	CompressedSizeKB float64
	CompressionPct   float64
	EncodeTimeMs     float64
	DNSTimeMs        float64
	TLSTimeMs        float64
	TTFBMs           float64
	TotalTimeMs      float64
	ConnReused       bool
	TLSProtocol      string
	Confidence       float64
}

type StreamStats struct {
	ConnectMs    float64
	SentChunks   int
	SentKB       float64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	CommitEvents int
	FinalizeMs   float64
	TotalMs      float64
	AudioS       float64
}

type SessionResult struct {
	Text          string
	HasText       bool
	NoSpeech      bool
	RateLimit     string
	MemoryAllocMB float64
	Batch         *BatchStats  // non-nil for batch sessions
	Stream        *StreamStats // non-nil for stream sessions
	Metrics       []string     // pre-formatted lines for the TUI
	// RecognitionErr is a stream failure that was absorbed; Text holds
	// whatever was recognized before it.
	RecognitionErr error
}

type Session interface {
	Feed(pcm []byte)
	Updates() <-chan Update
	Close(ctx context.Context) (SessionResult, error)
}
