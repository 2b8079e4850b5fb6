package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"
)

func sinePCM(frames int, amp float64) []byte {
	pcm := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		v := int16(amp * 32767 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func TestRecorderStartStop(t *testing.T) {
	pcm := sinePCM(8000, 0.5)
	ctx := NewFakeContextPCM(pcm, false)
	rec := NewRecorder(ctx, nil)

	var chunks atomic.Int64
	id, err := rec.Start(func(b []byte) { chunks.Add(int64(len(b))) })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if id == "" || !rec.Active() || rec.SessionID() != id {
		t.Fatalf("session not tracked: id=%q active=%v", id, rec.Active())
	}
	if rec.OpenDevices() != 1 {
		t.Fatalf("open devices = %d", rec.OpenDevices())
	}

	r, err := rec.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.ID != id || r.Frames < 8000 || len(r.PCM) != r.Frames*2 {
		t.Fatalf("recording = id %q frames %d pcm %d", r.ID, r.Frames, len(r.PCM))
	}
	if chunks.Load() != int64(len(r.PCM)) {
		t.Errorf("onChunk saw %d bytes, recording has %d", chunks.Load(), len(r.PCM))
	}
	if r.Peak < 0.3 {
		t.Errorf("peak = %v", r.Peak)
	}
	if r.Duration < 500*time.Millisecond {
		t.Errorf("duration = %v", r.Duration)
	}
	if rec.Active() || rec.OpenDevices() != 0 || rec.Level() != 0 {
		t.Fatalf("device not released: active=%v open=%d level=%v", rec.Active(), rec.OpenDevices(), rec.Level())
	}
}

func TestRecorderDoubleStartRejected(t *testing.T) {
	ctx := NewFakeContextPCM(nil, false)
	rec := NewRecorder(ctx, nil)
	if _, err := rec.Start(nil); err != nil {
		t.Fatal(err)
	}
	defer rec.Close()

	if _, err := rec.Start(nil); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Start = %v", err)
	}
	if ctx.Opened() != 1 {
		t.Fatalf("second start acquired a device: opened=%d", ctx.Opened())
	}
}

func TestRecorderStopWithoutStart(t *testing.T) {
	rec := NewRecorder(NewFakeContextPCM(nil, false), nil)
	r, err := rec.Stop()
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v", err)
	}
	if !r.Empty() || r.PCM != nil {
		t.Fatalf("recording = %+v", r)
	}
}

func TestRecorderStopTwice(t *testing.T) {
	rec := NewRecorder(NewFakeContextPCM(sinePCM(100, 0.1), false), nil)
	rec.Start(nil)
	if _, err := rec.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Stop(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("second Stop = %v", err)
	}
}

func TestRecorderOpenErrors(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{errors.New("Access denied by user"), ErrPermissionDenied},
		{errors.New("connection refused"), ErrDeviceUnavailable},
	}
	for _, tt := range tests {
		ctx := NewFakeContextPCM(nil, false)
		ctx.FailWith(tt.err)
		rec := NewRecorder(ctx, nil)
		if _, err := rec.Start(nil); !errors.Is(err, tt.want) {
			t.Errorf("Start with %q = %v, want %v", tt.err, err, tt.want)
		}
		if rec.Active() {
			t.Error("failed start left a session")
		}
	}
}

func TestRecorderCloseReleases(t *testing.T) {
	ctx := NewFakeContextPCM(sinePCM(100, 0.1), true)
	rec := NewRecorder(ctx, nil)
	rec.Start(nil)
	rec.Close()
	if rec.Active() || rec.OpenDevices() != 0 {
		t.Fatal("Close did not release the session")
	}
	rec.Close()
}

func TestRecordingWAV(t *testing.T) {
	r := Recording{PCM: sinePCM(10, 0.2), Frames: 10}
	wav := r.WAV()
	if string(wav[:4]) != "RIFF" || len(wav) != 44+20 {
		t.Fatalf("wav = %d bytes", len(wav))
	}
	if s := r.Samples(); len(s) != 10 {
		t.Fatalf("samples = %d", len(s))
	}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("RMS(nil) != 0")
	}
	if got := RMS(make([]byte, 64)); got != 0 {
		t.Errorf("silence RMS = %v", got)
	}
	full := make([]byte, 4)
	binary.LittleEndian.PutUint16(full, uint16(0x8000))
	binary.LittleEndian.PutUint16(full[2:], uint16(0x8000))
	if got := RMS(full); got != 1 {
		t.Errorf("full-scale RMS = %v", got)
	}
	if got := RMS(sinePCM(1600, 0.5)); math.Abs(got-0.5/math.Sqrt2) > 0.01 {
		t.Errorf("sine RMS = %v", got)
	}
}

func TestFindDevice(t *testing.T) {
	devices := []DeviceInfo{{ID: "1", Name: "Built-in Microphone"}, {ID: "2", Name: "AirPods Pro"}}
	d, err := FindDevice(devices, "airpods")
	if err != nil || d.ID != "2" {
		t.Fatalf("FindDevice = %v, %v", d, err)
	}
	if _, err := FindDevice(devices, "usb"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if !IsBluetooth(devices[1].Name) || IsBluetooth(devices[0].Name) {
		t.Error("bluetooth detection")
	}
}
