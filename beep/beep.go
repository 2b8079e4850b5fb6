package beep

import (
	"math"
	"sync/atomic"
)

var disabled atomic.Bool

// Disable silences every tone for the rest of the process.
func Disable() { disabled.Store(true) }

func Enabled() bool { return !disabled.Load() }

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// Stop beep: medium pitch, slightly longer
	stopFreq   = 900
	stopVolume = 0.5
	stopDecay  = 40

	// Auto-stop: the stop tone followed by a softer echo a fifth lower
	autoFreq   = 600
	autoVolume = 0.35

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

// tail pads every tone so the sink's buffer drains the decay fully.
const tail = 0.2

type tone int

const (
	toneStart tone = iota
	toneStop
	toneAutoStop
	toneError
)

// samples renders t as mono int16 PCM at sampleRate.
func (t tone) samples() []int16 {
	switch t {
	case toneStart:
		return generateTick(sampleRate, startFreq, tail, startVolume, startDecay)
	case toneStop:
		return generateTick(sampleRate, stopFreq, tail, stopVolume, stopDecay)
	case toneAutoStop:
		first := generateTick(sampleRate, stopFreq, 0.06, stopVolume, stopDecay)
		second := generateTick(sampleRate, autoFreq, tail, autoVolume, stopDecay)
		return append(first, second...)
	case toneError:
		return generateDoubleBeep(sampleRate, errorFreq, 0.08, 0.05, errorVolume, errorDecay)
	}
	return nil
}

func generateTick(sampleRate int, freq float64, duration float64, volume float64, decay float64) []int16 {
	n := int(float64(sampleRate) * duration)
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(sampleRate int, freq float64, beepDur float64, gapDur float64, volume float64, decay float64) []int16 {
	beep := generateTick(sampleRate, freq, beepDur, volume, decay)
	gap := make([]int16, int(float64(sampleRate)*gapDur))
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}

// PlayStart signals that the microphone is open.
func PlayStart() { play(toneStart) }

// PlayStop signals a manual stop.
func PlayStop() { play(toneStop) }

// PlayAutoStop signals that silence ended the capture.
func PlayAutoStop() { play(toneAutoStop) }

func PlayError() { play(toneError) }

func play(t tone) {
	if disabled.Load() {
		return
	}
	soundOnce.Do(initSound)
	playTone(t)
}
