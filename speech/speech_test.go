package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"insulink/backend"
	"insulink/encoder"
)

type fakeSynth struct {
	mu       sync.Mutex
	calls    map[string]int
	fail     map[string]error
	inflight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
	gate     chan struct{} // if set, Speech blocks until it is closed
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{calls: map[string]int{}, fail: map[string]error{}}
}

func (f *fakeSynth) Speech(ctx context.Context, text string) ([]byte, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[text]++
	if err := f.fail[text]; err != nil {
		return nil, err
	}
	return []byte("clip:" + text), nil
}

func (f *fakeSynth) count(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

type recordingPlayer struct {
	played [][]byte
}

func (r *recordingPlayer) Play(_ context.Context, clip []byte) error {
	r.played = append(r.played, clip)
	return nil
}

func TestSayFetchesAndPlays(t *testing.T) {
	synth := newFakeSynth()
	player := &recordingPlayer{}
	s := NewSpeaker(synth, player)

	for range 2 {
		if err := s.Say(context.Background(), "Did you sleep well?"); err != nil {
			t.Fatalf("Say: %v", err)
		}
	}
	if len(player.played) != 2 || string(player.played[0]) != "clip:Did you sleep well?" {
		t.Fatalf("played = %q", player.played)
	}
	if n := synth.count("Did you sleep well?"); n != 1 {
		t.Fatalf("synth calls = %d, want 1 (cached)", n)
	}
}

func TestSayNoAudioIsSilent(t *testing.T) {
	synth := newFakeSynth()
	synth.fail["quiet"] = backend.ErrNoAudio
	player := &recordingPlayer{}
	if err := NewSpeaker(synth, player).Say(context.Background(), "quiet"); err != nil {
		t.Fatalf("Say = %v", err)
	}
	if len(player.played) != 0 {
		t.Fatal("nothing should play")
	}
}

func TestSaySynthError(t *testing.T) {
	synth := newFakeSynth()
	cause := errors.New("503")
	synth.fail["q"] = cause
	err := NewSpeaker(synth, NopPlayer{}).Say(context.Background(), "q")
	if !errors.Is(err, cause) {
		t.Fatalf("Say = %v", err)
	}
}

func TestPrefetchBoundedAndTolerant(t *testing.T) {
	synth := newFakeSynth()
	synth.delay = 20 * time.Millisecond
	synth.fail["bad"] = errors.New("boom")
	s := NewSpeaker(synth, NopPlayer{})

	texts := []string{"a", "b", "c", "d", "bad", "e", "f", ""}
	s.Prefetch(context.Background(), texts)

	if p := synth.peak.Load(); p > prefetchLimit {
		t.Fatalf("peak concurrency = %d, limit %d", p, prefetchLimit)
	}
	if got := s.Cached(); got != 6 {
		t.Fatalf("cached = %d, want 6", got)
	}
	// The failed clip is retried on demand.
	delete(synth.fail, "bad")
	if err := s.Say(context.Background(), "bad"); err != nil {
		t.Fatal(err)
	}
	if synth.count("bad") != 2 {
		t.Fatalf("bad fetched %d times", synth.count("bad"))
	}
}

func TestSayJoinsPrefetchInFlight(t *testing.T) {
	synth := newFakeSynth()
	synth.gate = make(chan struct{})
	player := &recordingPlayer{}
	s := NewSpeaker(synth, player)

	prefetched := make(chan struct{})
	go func() {
		defer close(prefetched)
		s.Prefetch(context.Background(), []string{"Did you take your insulin?"})
	}()
	for synth.inflight.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	said := make(chan error, 1)
	go func() { said <- s.Say(context.Background(), "Did you take your insulin?") }()
	time.Sleep(20 * time.Millisecond)
	close(synth.gate)

	if err := <-said; err != nil {
		t.Fatal(err)
	}
	<-prefetched
	if n := synth.count("Did you take your insulin?"); n != 1 {
		t.Fatalf("synth calls = %d, want 1", n)
	}
	if len(player.played) != 1 {
		t.Fatalf("played %d clips", len(player.played))
	}
}

func TestDecodeMonoWAV(t *testing.T) {
	raw := new(bytes.Buffer)
	binary.Write(raw, binary.LittleEndian, []int16{100, -200, 300})
	wav := encoder.WavBytes(raw.Bytes())
	pcm, err := decodeClip(wav)
	if err != nil {
		t.Fatal(err)
	}
	if pcm.rate != encoder.SampleRate {
		t.Fatalf("rate = %d", pcm.rate)
	}
	if len(pcm.data) != 3*4 {
		t.Fatalf("len = %d", len(pcm.data))
	}
	left := int16(binary.LittleEndian.Uint16(pcm.data[4:]))
	right := int16(binary.LittleEndian.Uint16(pcm.data[6:]))
	if left != -200 || right != -200 {
		t.Fatalf("frame 1 = %d/%d", left, right)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := decodeClip([]byte("not audio at all")); !errors.Is(err, errUnsupportedClip) {
		t.Fatalf("err = %v", err)
	}
}

func TestResample(t *testing.T) {
	in := new(bytes.Buffer)
	for i := range 100 {
		binary.Write(in, binary.LittleEndian, [2]int16{int16(i * 10), int16(-i * 10)})
	}
	out := resample(in.Bytes(), 24000, 48000)
	if len(out) != 200*4 {
		t.Fatalf("len = %d", len(out))
	}
	mid := int16(binary.LittleEndian.Uint16(out[1*4:]))
	if mid != 5 {
		t.Fatalf("interpolated = %d, want 5", mid)
	}
	if same := resample(in.Bytes(), 44100, 44100); len(same) != in.Len() {
		t.Fatal("same-rate resample changed length")
	}
}
