package doctor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"insulink/audio"
	"insulink/questionnaire"
	"insulink/transcriber"
)

type bankFunc func(context.Context) (questionnaire.Bank, error)

func (f bankFunc) Questions(ctx context.Context) (questionnaire.Bank, error) { return f(ctx) }

func tone(frames int) []byte {
	pcm := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		v := int16(0.4 * 32767 * math.Sin(2*math.Pi*220*float64(i)/16000))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func TestCheckBankFails(t *testing.T) {
	var out bytes.Buffer
	d := &Checks{
		Bank: bankFunc(func(context.Context) (questionnaire.Bank, error) { return nil, errors.New("connection refused") }),
		Out:  &out,
	}
	if checkBank(context.Background(), d, nil, &runState{}) {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.String(), "connection refused") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestCheckTranscriptionConfirmed(t *testing.T) {
	var out bytes.Buffer
	d := &Checks{
		Transcriber: transcriber.NewFake("two units at breakfast"),
		Out:         &out,
	}
	r := newReader("y\n")
	st := &runState{pcm: tone(1600)}
	if !checkTranscription(context.Background(), d, r, st) {
		t.Fatalf("transcription check failed:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "two units at breakfast") {
		t.Fatalf("text not shown:\n%s", out.String())
	}
}

func TestCheckMicrophoneReportsPermission(t *testing.T) {
	fake := audio.NewFakeContextPCM(tone(1600), false)
	fake.FailWith(audio.ErrPermissionDenied)
	var out bytes.Buffer
	d := &Checks{Recorder: audio.NewRecorder(fake, nil), Out: &out}

	if checkMicrophone(context.Background(), d, newReader("\n"), &runState{}) {
		t.Fatal("expected failure")
	}
	if !strings.Contains(out.String(), audio.ErrPermissionDenied.Error()) {
		t.Fatalf("output = %q", out.String())
	}
}

func TestCheckMicrophoneCancelReleasesDevice(t *testing.T) {
	fake := audio.NewFakeContextPCM(tone(1600), true)
	rec := audio.NewRecorder(fake, nil)
	var out bytes.Buffer
	d := &Checks{Recorder: rec, Out: &out}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if checkMicrophone(ctx, d, newReader("\n"), &runState{}) {
		t.Fatal("cancelled capture should fail")
	}
	if rec.Active() || rec.OpenDevices() != 0 {
		t.Fatalf("device held after cancel: active=%v open=%d", rec.Active(), rec.OpenDevices())
	}
	if fake.Opened() != 1 {
		t.Fatalf("opened %d devices", fake.Opened())
	}
	if !strings.Contains(out.String(), "interrupted") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	bank := questionnaire.Bank{questionnaire.CategorySleep: {"Slept well?"}}
	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code := Run(ctx, Checks{
		Bank:     bankFunc(func(context.Context) (questionnaire.Bank, error) { return bank, nil }),
		Recorder: audio.NewRecorder(audio.NewFakeContextPCM(tone(1600), true), nil),
		In:       strings.NewReader("\n"),
		Out:      &out,
	})
	if code != 1 {
		t.Fatalf("code = %d", code)
	}
	if strings.Contains(out.String(), "[3/") {
		t.Fatalf("checks continued after cancel:\n%s", out.String())
	}
}

func TestCheckSpeechSkippedWithoutVoice(t *testing.T) {
	var out bytes.Buffer
	if !checkSpeech(context.Background(), &Checks{Out: &out}, newReader(""), &runState{}) {
		t.Fatal("skip should pass")
	}
}

func newReader(s string) *bufio.Reader { return bufio.NewReader(strings.NewReader(s)) }
