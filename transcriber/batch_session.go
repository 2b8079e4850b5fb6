package transcriber

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"insulink/encoder"
	"insulink/nettrace"
)

// minBatchFrames is the shortest recording worth uploading (100ms).
const minBatchFrames = encoder.SampleRate / 10

type batchSession struct {
	cfg        SessionConfig
	transcribe transcribeFunc
	encoder    encoder.Encoder
	updates    chan Update
	blockChan  chan []int16
	encodeDone chan struct{}
	sampleBuf  []int16
	bufMu      sync.Mutex
	closeOnce  sync.Once
	encodeErr  error
}

func newBatchSession(cfg SessionConfig, transcribe transcribeFunc) (*batchSession, error) {
	if cfg.Format == "" {
		cfg.Format = encoder.FormatFLAC
	}
	enc, err := encoder.New(cfg.Format)
	if err != nil {
		return nil, err
	}

	bs := &batchSession{
		cfg:        cfg,
		transcribe: transcribe,
		encoder:    enc,
		updates:    make(chan Update),
		blockChan:  make(chan []int16, 64),
		encodeDone: make(chan struct{}),
	}

	go func() {
		defer close(bs.encodeDone)
		for block := range bs.blockChan {
			start := time.Now()
			if err := bs.encoder.EncodeBlock(block); err != nil && bs.encodeErr == nil {
				bs.encodeErr = err
			}
			bs.encoder.AddEncodeTime(time.Since(start))
		}
	}()

	return bs, nil
}

func (bs *batchSession) Feed(pcm []byte) {
	bs.bufMu.Lock()
	for i := 0; i+1 < len(pcm); i += 2 {
		bs.sampleBuf = append(bs.sampleBuf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	var blocks [][]int16
	for len(bs.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, bs.sampleBuf[:encoder.BlockSize])
		bs.sampleBuf = bs.sampleBuf[encoder.BlockSize:]
		blocks = append(blocks, block)
	}
	bs.bufMu.Unlock()

	for _, block := range blocks {
		bs.blockChan <- block
	}
}

func (bs *batchSession) Updates() <-chan Update {
	return bs.updates
}

// finish flushes the tail block and waits for the encoder goroutine.
func (bs *batchSession) finish() {
	bs.closeOnce.Do(func() {
		bs.bufMu.Lock()
		if len(bs.sampleBuf) > 0 {
			partial := make([]int16, len(bs.sampleBuf))
			copy(partial, bs.sampleBuf)
			bs.sampleBuf = nil
			bs.blockChan <- partial
		}
		bs.bufMu.Unlock()

		close(bs.blockChan)
		<-bs.encodeDone
		close(bs.updates)
	})
}

func (bs *batchSession) Close(ctx context.Context) (SessionResult, error) {
	bs.finish()

	if bs.encodeErr != nil {
		return SessionResult{}, fmt.Errorf("%w: encoding: %w", ErrTranscriptionFailed, bs.encodeErr)
	}
	if err := bs.encoder.Close(); err != nil {
		return SessionResult{}, fmt.Errorf("%w: encoding: %w", ErrTranscriptionFailed, err)
	}

	enc := bs.encoder
	audioDuration := float64(enc.TotalFrames()) / float64(encoder.SampleRate)
	if enc.TotalFrames() < minBatchFrames {
		return SessionResult{NoSpeech: true, Batch: &BatchStats{AudioLengthS: audioDuration}}, nil
	}

	result, err := bs.transcribe(ctx, enc.Bytes(), bs.cfg.Format)
	if err != nil {
		return SessionResult{}, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	text := strings.TrimSpace(result.Text)
	noSpeech := text == ""

	rawSize := enc.TotalFrames() * 2
	encodedSize := uint64(len(enc.Bytes()))
	compressionPct := (1.0 - float64(encodedSize)/float64(rawSize)) * 100
	nm := result.Metrics
	if nm == nil {
		nm = &nettrace.Metrics{}
	}

	sr := SessionResult{
		Text:      text,
		HasText:   !noSpeech,
		NoSpeech:  noSpeech,
		RateLimit: result.RateLimit,
		Batch: &BatchStats{
			AudioLengthS:     audioDuration,
			RawSizeKB:        float64(rawSize) / 1024,
			CompressedSizeKB: float64(encodedSize) / 1024,
			CompressionPct:   compressionPct,
			EncodeTimeMs:     float64(enc.EncodeTime().Milliseconds()),
			DNSTimeMs:        float64(nm.DNS.Milliseconds()),
			TLSTimeMs:        float64(nm.TLS.Milliseconds()),
			TTFBMs:           float64(nm.TTFB.Milliseconds()),
			TotalTimeMs:      float64(nm.Sum().Milliseconds()),
			ConnReused:       nm.ConnReused,
			TLSProtocol:      nm.TLSProtocol,
			Confidence:       result.Confidence,
		},
	}
	sr.Metrics = bs.formatMetrics(rawSize, encodedSize, compressionPct, audioDuration, result, nm)
	sr.captureMemStats()
	return sr, nil
}

func (bs *batchSession) formatMetrics(rawSize, encodedSize uint64, compressionPct, audioDuration float64, result *Result, m *nettrace.Metrics) []string {
	reused := ""
	if m.ConnReused {
		reused = " (reused)"
	}

	lines := []string{
		fmt.Sprintf("audio:      %.1fs | %.1f KB → %.1f KB (%.0f%% smaller)",
			audioDuration, float64(rawSize)/1024, float64(encodedSize)/1024, compressionPct),
		fmt.Sprintf("format:     %s", bs.cfg.Format),
		fmt.Sprintf("encode:     %dms (concurrent)", bs.encoder.EncodeTime().Milliseconds()),
		fmt.Sprintf("conn_wait:  %dms%s", m.ConnWait.Milliseconds(), reused),
		fmt.Sprintf("ttfb:       %dms", m.TTFB.Milliseconds()),
		fmt.Sprintf("total:      %dms", m.Sum().Milliseconds()),
	}
	if result.Confidence > 0 {
		lines = append(lines, fmt.Sprintf("confidence: %.4f", result.Confidence))
	}
	return lines
}
