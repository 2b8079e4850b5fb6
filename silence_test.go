package main

import (
	"testing"
	"time"
)

// feed observes level every silencePollInterval for dur and returns how many
// auto-stops fired.
func feed(d *silenceDetector, now *time.Time, level func(i int) float64, dur time.Duration) int {
	fired := 0
	for i := 0; time.Duration(i)*silencePollInterval < dur; i++ {
		*now = now.Add(silencePollInterval)
		if d.Observe(level(i), *now) == SilenceAutoStop {
			fired++
		}
	}
	return fired
}

func constant(v float64) func(int) float64 { return func(int) float64 { return v } }

func TestSilenceAutoStopOnce(t *testing.T) {
	d := newSilenceDetector(0.01, 1400*time.Millisecond)
	now := time.Unix(0, 0)
	d.Begin(now)

	if n := feed(d, &now, constant(0.001), 1300*time.Millisecond); n != 0 {
		t.Fatalf("fired %d times before the window elapsed", n)
	}
	if n := feed(d, &now, constant(0.001), 5*time.Second); n != 1 {
		t.Fatalf("fired %d times, want 1", n)
	}
}

func TestSilenceOscillatingNeverFires(t *testing.T) {
	d := newSilenceDetector(0.01, 1400*time.Millisecond)
	now := time.Unix(0, 0)
	d.Begin(now)

	// loud for one frame every second, quiet otherwise
	level := func(i int) float64 {
		if i%62 == 0 {
			return 0.2
		}
		return 0.002
	}
	if n := feed(d, &now, level, 30*time.Second); n != 0 {
		t.Fatalf("fired %d times with gaps below the window", n)
	}
}

func TestSilenceThresholdInclusive(t *testing.T) {
	d := newSilenceDetector(0.01, 100*time.Millisecond)
	now := time.Unix(0, 0)
	d.Begin(now)
	if n := feed(d, &now, constant(0.01), time.Second); n != 0 {
		t.Fatalf("level equal to threshold counted as silence (%d)", n)
	}
}

func TestSilenceInactiveIgnored(t *testing.T) {
	d := newSilenceDetector(0.01, 100*time.Millisecond)
	now := time.Unix(0, 0)
	if n := feed(d, &now, constant(0), time.Second); n != 0 {
		t.Fatalf("fired without a session: %d", n)
	}

	d.Begin(now)
	d.End()
	if n := feed(d, &now, constant(0), time.Second); n != 0 {
		t.Fatalf("fired after End: %d", n)
	}
}

func TestSilenceRearmsPerSession(t *testing.T) {
	d := newSilenceDetector(0.01, 100*time.Millisecond)
	now := time.Unix(0, 0)
	for session := 0; session < 3; session++ {
		d.Begin(now)
		if n := feed(d, &now, constant(0), time.Second); n != 1 {
			t.Fatalf("session %d fired %d times", session, n)
		}
		d.End()
	}
}

func TestSilenceDefaults(t *testing.T) {
	d := newSilenceDetector(0, 0)
	if d.threshold != defaultSilenceThreshold || d.window != defaultSilenceWindow {
		t.Fatalf("defaults = %v, %v", d.threshold, d.window)
	}
}
