package main

import "time"

const (
	// silencePollInterval matches a display refresh: the level is sampled
	// once per animation frame.
	silencePollInterval = 16 * time.Millisecond

	defaultSilenceThreshold = 0.01
	defaultSilenceWindow    = 1400 * time.Millisecond
)

type SilenceEvent int

const (
	SilenceNone     SilenceEvent = iota
	SilenceAutoStop              // level stayed below threshold for longer than the window
)

// silenceDetector tracks the last time the level reached the threshold and
// signals auto-stop once per capture session.
type silenceDetector struct {
	threshold float64
	window    time.Duration

	active    bool
	fired     bool
	lastAbove time.Time
}

func newSilenceDetector(threshold float64, window time.Duration) *silenceDetector {
	if threshold <= 0 {
		threshold = defaultSilenceThreshold
	}
	if window <= 0 {
		window = defaultSilenceWindow
	}
	return &silenceDetector{threshold: threshold, window: window}
}

// Begin arms the detector for a new session. The session start counts as
// the last loud sample.
func (d *silenceDetector) Begin(now time.Time) {
	d.active = true
	d.fired = false
	d.lastAbove = now
}

func (d *silenceDetector) Observe(level float64, now time.Time) SilenceEvent {
	if !d.active || d.fired {
		return SilenceNone
	}
	if level >= d.threshold {
		d.lastAbove = now
		return SilenceNone
	}
	if now.Sub(d.lastAbove) > d.window {
		d.fired = true
		return SilenceAutoStop
	}
	return SilenceNone
}

func (d *silenceDetector) End() {
	d.active = false
}
