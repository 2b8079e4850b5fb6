// Package doctor runs interactive checks of everything a check-in touches:
// backend, microphone, transcription, prompt audio and clipboard.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"insulink/audio"
	"insulink/clipboard"
	"insulink/questionnaire"
	"insulink/speech"
	"insulink/transcriber"
)

const recordFor = 3 * time.Second

// Checks holds the collaborators under test. Speaker may be nil when voice
// is disabled.
type Checks struct {
	Bank        questionnaire.BankSource
	Recorder    *audio.Recorder
	Transcriber transcriber.Transcriber
	Session     transcriber.SessionConfig
	Speaker     *speech.Speaker

	In  io.Reader
	Out io.Writer
}

type check struct {
	name string
	run  func(ctx context.Context, d *Checks, r *bufio.Reader, st *runState) bool
}

type runState struct {
	prompt questionnaire.Prompt
	pcm    []byte
}

var checks = []check{
	{"Question bank", checkBank},
	{"Microphone", checkMicrophone},
	{"Transcription", checkTranscription},
	{"Prompt audio", checkSpeech},
	{"Clipboard", checkClipboard},
}

// Run executes the checks in order, stopping at the first failure or when
// ctx is cancelled, and returns an exit code (0=all pass, 1=any fail).
func Run(ctx context.Context, d Checks) int {
	resetTerminal()

	fmt.Fprintln(d.Out, "insulink doctor - interactive system diagnostics")
	fmt.Fprintln(d.Out, "================================================")

	r := bufio.NewReader(d.In)
	st := &runState{}
	allPass := true
	for i, c := range checks {
		fmt.Fprintf(d.Out, "\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if !c.run(ctx, &d, r, st) {
			allPass = false
			break
		}
	}

	fmt.Fprintln(d.Out)
	if allPass {
		fmt.Fprintln(d.Out, "All checks passed!")
		return 0
	}
	fmt.Fprintln(d.Out, "Some checks failed. See details above.")
	return 1
}

func checkBank(ctx context.Context, d *Checks, _ *bufio.Reader, st *runState) bool {
	bank, err := d.Bank.Questions(ctx)
	if err != nil {
		fmt.Fprintf(d.Out, "  FAIL: %v\n", err)
		return false
	}
	if err := bank.Validate(); err != nil {
		fmt.Fprintf(d.Out, "  FAIL: %v\n", err)
		return false
	}
	st.prompt = bank.Prompts()[0]
	fmt.Fprintf(d.Out, "  PASS: %d prompts\n", bank.Size())
	return true
}

func checkMicrophone(ctx context.Context, d *Checks, r *bufio.Reader, st *runState) bool {
	fmt.Fprintf(d.Out, "Using device: %s\n", d.Recorder.DeviceName())
	fmt.Fprintf(d.Out, "Press Enter and answer for %d seconds: %q", int(recordFor.Seconds()), st.prompt.Text)
	r.ReadString('\n')

	if _, err := d.Recorder.Start(nil); err != nil {
		fmt.Fprintf(d.Out, "  FAIL: %v\n", err)
		return false
	}

	fmt.Fprint(d.Out, "  Recording")
	ticker := time.NewTicker(500 * time.Millisecond)
	deadline := time.After(recordFor)
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-deadline:
			break loop
		case <-ticker.C:
			fmt.Fprint(d.Out, ".")
		}
	}
	ticker.Stop()

	rec, err := d.Recorder.Stop()
	fmt.Fprintln(d.Out, " done")
	if ctx.Err() != nil {
		fmt.Fprintln(d.Out, "  FAIL: interrupted")
		return false
	}
	if err != nil {
		fmt.Fprintf(d.Out, "  FAIL: %v\n", err)
		return false
	}
	if rec.Empty() {
		fmt.Fprintln(d.Out, "  FAIL: no audio captured")
		return false
	}
	st.pcm = rec.PCM
	fmt.Fprintf(d.Out, "  PASS: %.1fs captured, peak level %.3f\n", rec.Duration.Seconds(), rec.Peak)
	if rec.Peak < 0.02 {
		fmt.Fprintln(d.Out, "  Warning: very quiet input, check the microphone level")
	}
	return true
}

func checkTranscription(ctx context.Context, d *Checks, r *bufio.Reader, st *runState) bool {
	fmt.Fprintf(d.Out, "  Transcribing %.1f KB with %s...\n", float64(len(st.pcm))/1024, d.Transcriber.Name())
	sess, err := d.Transcriber.NewSession(ctx, d.Session)
	if err != nil {
		fmt.Fprintf(d.Out, "  FAIL: session error: %v\n", err)
		return false
	}
	go func() {
		for range sess.Updates() {
		}
	}()
	sess.Feed(st.pcm)
	result, err := sess.Close(ctx)
	if err != nil {
		fmt.Fprintf(d.Out, "  FAIL: transcription error: %v\n", err)
		return false
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		text = "(no speech detected)"
	}
	fmt.Fprintf(d.Out, "\n  Transcribed text: %s\n\n", text)
	if !confirm(d, r, "Is this correct?") {
		fmt.Fprintln(d.Out, "  FAIL: transcription not confirmed")
		return false
	}
	fmt.Fprintln(d.Out, "  PASS: transcription verified by user")
	return true
}

func checkSpeech(ctx context.Context, d *Checks, r *bufio.Reader, st *runState) bool {
	if d.Speaker == nil {
		fmt.Fprintln(d.Out, "  SKIP: voice disabled")
		return true
	}
	fmt.Fprintln(d.Out, "  Speaking the first prompt...")
	if err := d.Speaker.Say(ctx, st.prompt.Text); err != nil {
		fmt.Fprintf(d.Out, "  FAIL: %v\n", err)
		return false
	}
	resetTerminal()
	if !confirm(d, r, "Did you hear the question?") {
		fmt.Fprintln(d.Out, "  FAIL: playback not confirmed")
		return false
	}
	fmt.Fprintln(d.Out, "  PASS: playback verified by user")
	return true
}

func checkClipboard(_ context.Context, d *Checks, _ *bufio.Reader, _ *runState) bool {
	sentinel := fmt.Sprintf("insulink-doctor-%d", time.Now().UnixNano())
	if err := clipboard.Copy(sentinel); err != nil {
		fmt.Fprintf(d.Out, "  FAIL: copy: %v\n", err)
		return false
	}
	got, err := clipboard.Read()
	if err != nil {
		fmt.Fprintf(d.Out, "  FAIL: read back: %v\n", err)
		return false
	}
	if got != sentinel {
		fmt.Fprintf(d.Out, "  FAIL: clipboard holds %q, want %q\n", got, sentinel)
		return false
	}
	fmt.Fprintln(d.Out, "  PASS: result summaries can be copied")
	return true
}

func confirm(d *Checks, r *bufio.Reader, question string) bool {
	fmt.Fprintf(d.Out, "%s [y/n]: ", question)
	answer, _ := r.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}
