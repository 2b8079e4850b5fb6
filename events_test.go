package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"insulink/questionnaire"
	"insulink/state"
)

func TestControlsCoalesce(t *testing.T) {
	c := newControls()
	c.Start()
	c.Start()
	if len(c.start) != 1 {
		t.Fatalf("pending starts = %d", len(c.start))
	}
	drain(c.start)
	if len(c.start) != 0 {
		t.Fatal("drain left a request")
	}
}

func TestLineSinkOutput(t *testing.T) {
	var buf bytes.Buffer
	s := newLineSink(&buf)
	p := questionnaire.Prompt{ID: "med-1", Category: questionnaire.CategoryMedication, Text: "Insulin taken?"}

	s.Prompt(p, 0, 9)
	s.RecordingStop(true)
	s.Answer(p, "", true)
	res := questionnaire.Result{Scores: map[questionnaire.Category]float64{"med": 2}, Average: 2}
	res.Normalize()
	s.Result(res, []state.Alert{{Title: "Medication needs attention", Severity: state.SeverityCritical}})

	out := buf.String()
	for _, want := range []string{
		"PROMPT 1/9 [med] Insulin taken?",
		"STOPPED silence",
		"ANSWER [med] (no speech detected)",
		"RESULT",
		"ALERT critical Medication needs attention",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	select {
	case <-s.settled:
	default:
		t.Fatal("settled not signalled")
	}
}

func TestReadCommands(t *testing.T) {
	ctl := newControls()
	sink := newLineSink(&bytes.Buffer{})
	sink.Error(errors.New("boom"))

	quit := make(chan struct{})
	in := strings.NewReader("start\nWAIT\nSTOP\nNEXT\nSLEEP 1\nQUIT\nSTART\n")
	go readCommands(context.Background(), in, ctl, sink, func() { close(quit) })

	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("QUIT not honoured")
	}
	if len(ctl.start) != 1 || len(ctl.stop) != 1 || len(ctl.next) != 1 {
		t.Fatalf("pending start=%d stop=%d next=%d", len(ctl.start), len(ctl.stop), len(ctl.next))
	}
}
