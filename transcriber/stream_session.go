package transcriber

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"insulink/encoder"
	"insulink/log"
)

const (
	streamChunkMs      = 200
	streamChunkBytes   = encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8) * streamChunkMs / 1000
	streamFinalizeIdle = 200 * time.Millisecond
	streamFinalizeMax  = 1000 * time.Millisecond
	streamDrainMax     = 2 * time.Second
)

type rawStreamSession interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

// streamSession keeps interimText (replaced on every non-final message) and
// finalText (append-only, space-joined). Recognition errors never fail the
// session: Close reports them in SessionResult.RecognitionErr.
type streamSession struct {
	ws        rawStreamSession
	finalText string
	interim   string
	audioCh   chan []byte
	updates   chan Update
	startedAt time.Time
	connected chan struct{} // closed when the socket is ready or failed

	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	feedBuf []byte
	feedMu  sync.Mutex

	mu      sync.Mutex
	err     error
	errOnce sync.Once
	closing bool
	closed  bool
	stats   streamStats
}

type streamStats struct {
	ConnectDur   time.Duration
	SentChunks   int
	SentBytes    uint64
	RecvMessages int
	RecvFinal    int
	RecvInterim  int
	CommitEvents int
	FinalizeWait time.Duration
	SessionDur   time.Duration
}

func (s streamStats) audioDuration() float64 {
	return float64(s.SentBytes) / float64(encoder.SampleRate*encoder.Channels*(encoder.BitsPerSample/8))
}

func newStreamSession(dial func() (rawStreamSession, error)) *streamSession {
	ss := &streamSession{
		audioCh:   make(chan []byte, 128),
		updates:   make(chan Update, 16),
		startedAt: time.Now(),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
		connected: make(chan struct{}),
	}

	go func() {
		connectStart := time.Now()
		ws, err := dial()
		ss.mu.Lock()
		ss.stats.ConnectDur = time.Since(connectStart)
		ss.mu.Unlock()

		if err != nil {
			ss.setErr(err)
			close(ss.sendDone)
			close(ss.recvDone)
			close(ss.connected)
			return
		}

		ss.ws = ws
		close(ss.connected)
		go ss.runSender()
		go ss.runReceiver()
	}()

	return ss
}

func (s *streamSession) Feed(pcm []byte) {
	s.mu.Lock()
	if s.err != nil || s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.feedMu.Lock()
	s.feedBuf = append(s.feedBuf, pcm...)
	var chunks [][]byte
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		chunks = append(chunks, chunk)
	}
	s.feedMu.Unlock()

	for _, chunk := range chunks {
		select {
		case s.audioCh <- chunk:
		case <-s.sendDone:
			return
		}
	}
}

func (s *streamSession) Updates() <-chan Update {
	return s.updates
}

func (s *streamSession) Close(ctx context.Context) (SessionResult, error) {
	<-s.connected

	s.mu.Lock()
	s.closed = true
	connErr := s.err
	s.mu.Unlock()

	if connErr != nil && s.ws == nil {
		s.feedMu.Lock()
		s.feedBuf = nil
		s.feedMu.Unlock()
		close(s.updates)
		log.Warnf("stream connect failed: %v", connErr)
		return SessionResult{NoSpeech: true, RecognitionErr: connErr, Stream: &StreamStats{}}, nil
	}

	s.feedMu.Lock()
	if len(s.feedBuf) > 0 {
		tail := make([]byte, len(s.feedBuf))
		copy(tail, s.feedBuf)
		s.feedBuf = nil
		select {
		case s.audioCh <- tail:
		case <-s.sendDone:
		}
	}
	s.feedMu.Unlock()
	close(s.audioCh)
	finalizeStart := time.Now()

	<-s.sendDone

	select {
	case <-s.finalized:
		time.Sleep(streamFinalizeIdle)
	case <-time.After(streamFinalizeMax):
	case <-s.recvDone:
	case <-ctx.Done():
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.ws.Close()
	select {
	case <-s.recvDone:
	case <-time.After(streamDrainMax):
		log.Warn("stream receiver drain timeout")
	}

	s.mu.Lock()
	final := Update{Final: s.finalText}
	s.mu.Unlock()
	if final.Final != "" {
		select {
		case s.updates <- final:
		default:
		}
	}
	close(s.updates)

	s.mu.Lock()
	text := s.finalText
	stats := s.stats
	stats.FinalizeWait = time.Since(finalizeStart)
	stats.SessionDur = time.Since(s.startedAt)
	recErr := s.err
	s.mu.Unlock()

	if recErr != nil {
		log.Warnf("stream recognition error (ignored): %v", recErr)
	}

	cleanText := strings.TrimSpace(text)
	sr := SessionResult{
		Text:           cleanText,
		HasText:        cleanText != "",
		NoSpeech:       cleanText == "",
		Metrics:        s.formatMetrics(stats),
		RecognitionErr: recErr,
		Stream: &StreamStats{
			ConnectMs:    float64(stats.ConnectDur.Milliseconds()),
			SentChunks:   stats.SentChunks,
			SentKB:       float64(stats.SentBytes) / 1024,
			RecvMessages: stats.RecvMessages,
			RecvFinal:    stats.RecvFinal,
			RecvInterim:  stats.RecvInterim,
			CommitEvents: stats.CommitEvents,
			FinalizeMs:   float64(stats.FinalizeWait.Milliseconds()),
			TotalMs:      float64(stats.SessionDur.Milliseconds()),
			AudioS:       stats.audioDuration(),
		},
	}
	sr.captureMemStats()
	return sr, nil
}

func (s *streamSession) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.ws.Send(chunk); err != nil {
			s.setErr(err)
			for range s.audioCh {
			}
			return
		}
		s.mu.Lock()
		s.stats.SentChunks++
		s.stats.SentBytes += uint64(len(chunk))
		s.mu.Unlock()
	}
	if err := s.ws.CloseSend(); err != nil {
		s.setErr(err)
	}
}

func (s *streamSession) runReceiver() {
	defer close(s.recvDone)
	for {
		update, err := s.ws.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if !closing {
				s.setErr(err)
			}
			return
		}

		if update.FromFinalize {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}

		isFinal := update.IsFinal || update.SpeechFinal || update.FromFinalize
		transcript := strings.TrimSpace(update.Transcript)

		s.mu.Lock()
		s.stats.RecvMessages++
		if isFinal {
			s.stats.RecvFinal++
		} else {
			s.stats.RecvInterim++
		}
		switch {
		case !isFinal:
			s.interim = transcript
		case transcript != "":
			if s.finalText != "" {
				s.finalText += " " + transcript
			} else {
				s.finalText = transcript
			}
			s.interim = ""
			s.stats.CommitEvents++
		default:
			s.interim = ""
		}
		u := Update{Interim: s.interim, Final: s.finalText}
		s.mu.Unlock()

		select {
		case s.updates <- u:
		default:
		}
	}
}

func (s *streamSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		ws := s.ws
		s.mu.Unlock()
		if ws != nil {
			ws.Close()
		}
	})
}

func (s *streamSession) formatMetrics(stats streamStats) []string {
	return []string{
		fmt.Sprintf("audio:      %.1fs | %.1f KB PCM sent", stats.audioDuration(), float64(stats.SentBytes)/1024),
		fmt.Sprintf("stream:     PCM16 %dHz mono | %dms chunks", encoder.SampleRate, streamChunkMs),
		fmt.Sprintf("connect:    %dms", stats.ConnectDur.Milliseconds()),
		fmt.Sprintf("recv:       %d msgs (%d final, %d interim)", stats.RecvMessages, stats.RecvFinal, stats.RecvInterim),
		fmt.Sprintf("finalize:   %dms", stats.FinalizeWait.Milliseconds()),
		fmt.Sprintf("total:      %dms", stats.SessionDur.Milliseconds()),
	}
}
