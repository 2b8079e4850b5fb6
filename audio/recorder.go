package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"insulink/encoder"
)

// Recording is the finalized audio of one capture session.
type Recording struct {
	ID       string
	Device   string
	PCM      []byte
	Frames   int
	Duration time.Duration
	Peak     float64
}

func (r Recording) Empty() bool { return r.Frames == 0 }

func (r Recording) Samples() []int16 {
	out := make([]int16, len(r.PCM)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(r.PCM[i*2:]))
	}
	return out
}

// WAV renders the recording as a 16-bit mono WAV file.
func (r Recording) WAV() []byte {
	return encoder.WavBytes(r.PCM)
}

type captureSession struct {
	id      string
	dev     CaptureDevice
	started time.Time
	onChunk func([]byte)

	mu     sync.Mutex
	buf    []byte
	frames int
	peak   float64
}

// Recorder enforces a single active capture session. Each session opens a
// fresh device and releases it on Stop or Close.
type Recorder struct {
	ctx    Context
	device *DeviceInfo
	config CaptureConfig

	mu      sync.Mutex
	session *captureSession
	level   atomic.Uint64
	opened  atomic.Int64
}

func NewRecorder(ctx Context, device *DeviceInfo) *Recorder {
	return &Recorder{ctx: ctx, device: device, config: DefaultCaptureConfig}
}

// Start opens the device and begins buffering. onChunk, if set, receives a
// copy of every chunk from the capture goroutine. Returns the session ID.
func (r *Recorder) Start(onChunk func(pcm []byte)) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return "", ErrSessionActive
	}

	dev, err := r.ctx.NewCapture(r.device, r.config)
	if err != nil {
		return "", classify(err)
	}
	r.opened.Add(1)

	s := &captureSession{
		id:      uuid.NewString(),
		dev:     dev,
		started: time.Now(),
		onChunk: onChunk,
	}
	dev.SetCallback(func(data []byte, frameCount uint32) {
		chunk := make([]byte, len(data))
		copy(chunk, data)
		level := RMS(chunk)

		s.mu.Lock()
		s.buf = append(s.buf, chunk...)
		s.frames += int(frameCount)
		s.peak = max(s.peak, level)
		s.mu.Unlock()

		r.level.Store(math.Float64bits(level))
		if s.onChunk != nil {
			s.onChunk(chunk)
		}
	})

	if err := dev.Start(); err != nil {
		dev.ClearCallback()
		dev.Close()
		r.opened.Add(-1)
		return "", classify(err)
	}

	r.session = s
	return s.id, nil
}

// Stop finalizes the active session and releases the device. Without an
// active session it returns an empty Recording and ErrNoActiveSession.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	s := r.session
	r.session = nil
	r.mu.Unlock()

	if s == nil {
		return Recording{}, ErrNoActiveSession
	}

	s.dev.Stop()
	s.dev.ClearCallback()
	s.dev.Close()
	r.opened.Add(-1)
	r.level.Store(0)

	s.mu.Lock()
	defer s.mu.Unlock()
	return Recording{
		ID:       s.id,
		Device:   s.dev.DeviceName(),
		PCM:      s.buf,
		Frames:   s.frames,
		Duration: time.Duration(s.frames) * time.Second / time.Duration(r.config.SampleRate),
		Peak:     s.peak,
	}, nil
}

// Active reports whether a capture session is running.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// SessionID returns the active session's ID, or "".
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return ""
	}
	return r.session.id
}

// Level is the RMS of the latest chunk, 0 when idle.
func (r *Recorder) Level() float64 {
	return math.Float64frombits(r.level.Load())
}

// OpenDevices is the number of capture devices currently held.
func (r *Recorder) OpenDevices() int {
	return int(r.opened.Load())
}

func (r *Recorder) DeviceName() string {
	if r.device != nil {
		return r.device.Name
	}
	return "system default"
}

// Close releases any active session.
func (r *Recorder) Close() {
	r.Stop()
}
