package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"insulink/audio"
	"insulink/beep"
	"insulink/config"
	"insulink/log"
)

// runTestMode runs check-ins headless with a WAV file as the microphone,
// driven by commands on stdin.
func runTestMode(ctx context.Context, cfg config.Config, opts *options) error {
	beep.Disable()
	initLogging(opts.logPath)
	defer log.Close()

	fake, err := audio.NewFakeContext(opts.testWAV, true)
	if err != nil {
		return fmt.Errorf("loading WAV: %w", err)
	}

	a, err := newApp(ctx, cfg, appOptions{history: true})
	if err != nil {
		return err
	}
	defer a.Close()

	rec := audio.NewRecorder(fake, nil)
	defer rec.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctl := newControls()
	sink := newLineSink(os.Stdout)
	sink.ModeLine(a.modeLine())
	sink.DeviceLine("mic: " + opts.testWAV)

	go readCommands(ctx, os.Stdin, ctl, sink, cancel)
	return a.runSessions(ctx, rec, sink, ctl)
}

// readCommands drives controls from line commands: START, STOP, NEXT,
// WAIT (until the next answer, error or result), WAIT_PROMPT, SLEEP <ms>
// and QUIT.
// End of input quits.
func readCommands(ctx context.Context, r io.Reader, ctl *controls, sink *lineSink, quit func()) {
	defer quit()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		cmd := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		switch {
		case cmd == "START":
			ctl.Start()
		case cmd == "STOP":
			ctl.Stop()
		case cmd == "NEXT":
			ctl.Next()
		case cmd == "WAIT":
			select {
			case <-sink.settled:
			case <-ctx.Done():
				return
			}
		case cmd == "WAIT_PROMPT":
			select {
			case <-sink.prompted:
			case <-ctx.Done():
				return
			}
		case cmd == "QUIT":
			return
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(strings.TrimSpace(cmd[6:])); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case cmd == "":
		default:
			sink.printf("UNKNOWN %s", cmd)
		}
	}
}
