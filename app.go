package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime/debug"
	"time"

	"github.com/redis/go-redis/v9"

	"insulink/audio"
	"insulink/backend"
	"insulink/beep"
	"insulink/cache"
	"insulink/config"
	"insulink/encoder"
	"insulink/log"
	"insulink/metrics"
	"insulink/questionnaire"
	"insulink/speech"
	"insulink/state"
	"insulink/store"
	"insulink/transcriber"
)

// EnvFakeText sets the text the fake provider returns for every answer.
const EnvFakeText = "INSULINK_FAKE_TEXT"

type appOptions struct {
	voice   bool
	history bool
}

// app holds the long-lived collaborators shared by every check-in of a run.
type app struct {
	cfg         config.Config
	client      *backend.Client
	bank        questionnaire.BankSource
	transcriber transcriber.Transcriber
	speaker     *speech.Speaker
	history     *store.Store
	metrics     *metrics.Metrics
	state       *state.App
	alerts      *state.AlertWriter

	redis      *redis.Client
	metricsSrv *metrics.Server
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	client, err := backend.New(cfg.Backend.URL, cfg.BackendTimeout())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, client: client, metrics: metrics.Default}

	var bankCache cache.BankCache = cache.NewMemory(cfg.CacheTTL())
	if addr := cfg.Cache.RedisAddr; addr != "" {
		rc, err := cache.NewRedisClient(ctx, addr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.Warnf("redis %s unavailable, using memory cache: %v", addr, err)
		} else {
			a.redis = rc
			bankCache = cache.NewRedis(rc, cfg.CacheTTL())
		}
	}
	a.bank = cache.NewCachedSource(client, bankCache)

	a.transcriber, err = newTranscriber(cfg, client)
	if err != nil {
		a.Close()
		return nil, err
	}

	if opts.voice && cfg.VoiceEnabled() {
		a.speaker = speech.NewSpeaker(client, speech.NewOtoPlayer())
	}

	if opts.history {
		a.history, err = store.Open(historyPath(cfg))
		if err != nil {
			log.Warnf("history disabled: %v", err)
		}
	}

	a.state = state.NewApp(state.Profile{Name: cfg.Profile.Name})
	if a.alerts, err = a.state.AlertWriter(); err != nil {
		a.Close()
		return nil, err
	}

	if addr := cfg.Metrics.Addr; addr != "" {
		if a.metricsSrv, err = metrics.Serve(addr, a.metrics); err != nil {
			a.Close()
			return nil, fmt.Errorf("metrics listener: %w", err)
		}
	}

	if !cfg.BeepsEnabled() {
		beep.Disable()
	}
	return a, nil
}

func newTranscriber(cfg config.Config, client *backend.Client) (transcriber.Transcriber, error) {
	provider := cfg.Transcription.Provider
	if provider == "fake" {
		text := os.Getenv(EnvFakeText)
		if text == "" {
			text = "yes"
		}
		return transcriber.NewFake(text), nil
	}
	return transcriber.New(provider, client, transcriber.Keys{
		Groq:     os.Getenv("GROQ_API_KEY"),
		Deepgram: os.Getenv("DEEPGRAM_API_KEY"),
	})
}

func (a *app) Close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if a.history != nil {
		a.history.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

func (a *app) sessionConfig() transcriber.SessionConfig {
	format := encoder.Format(a.cfg.Transcription.Format)
	if format == "" {
		format = encoder.FormatFLAC
	}
	return transcriber.SessionConfig{
		Stream:   a.cfg.Transcription.Stream,
		Format:   format,
		Language: a.cfg.Transcription.Language,
	}
}

func (a *app) modeLine() string {
	s := a.sessionConfig()
	label := a.transcriber.Name()
	if s.Language != "" {
		label += " (" + s.Language + ")"
	}
	if s.Stream {
		return fmt.Sprintf("[PCM16 | %s (stream)]", label)
	}
	return fmt.Sprintf("[%s | %s]", s.Format, label)
}

func (a *app) newCheckIn(rec *audio.Recorder, sink EventSink, ctl *controls) *checkIn {
	typewriter := a.cfg.TypewriterInterval()
	if a.speaker == nil {
		typewriter = 0
	}
	return newCheckIn(checkInConfig{
		Session:    a.sessionConfig(),
		Threshold:  a.cfg.Silence.Threshold,
		Window:     a.cfg.SilenceWindow(),
		Typewriter: typewriter,
	}, checkInDeps{
		Bank:        a.bank,
		Scorer:      a.client,
		Recorder:    rec,
		Transcriber: a.transcriber,
		Speaker:     a.speaker,
		History:     a.history,
		Alerts:      a.alerts,
		Metrics:     a.metrics,
		Sink:        sink,
		Controls:    ctl,
	})
}

// runSessions runs check-ins back to back. After each one it waits for the
// user to ask for the next.
func (a *app) runSessions(ctx context.Context, rec *audio.Recorder, sink EventSink, ctl *controls) error {
	for {
		_, err := a.newCheckIn(rec, sink, ctl).Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !errors.Is(err, questionnaire.ErrScoringFailed) {
			log.Errorf("check-in: %v", err)
		}
		drain(ctl.next)
		select {
		case <-ctx.Done():
			return nil
		case <-ctl.next:
		}
	}
}

func historyPath(cfg config.Config) string {
	if cfg.History.Path != "" {
		return cfg.History.Path
	}
	return store.DefaultPath(log.Dir())
}

// initLogDir resolves and creates the log directory without opening log files.
func initLogDir(flagPath string) error {
	dir, err := log.ResolveDir(flagPath)
	if err != nil {
		return fmt.Errorf("resolving log directory: %w", err)
	}
	log.SetDir(dir)
	return log.EnsureDir()
}

// initLogging opens the diagnostics and check-in logs and routes runtime
// crash output to crash_log.txt.
func initLogging(flagPath string) {
	if err := initLogDir(flagPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return
	}
	if crashFile, err := log.OpenCrashFile(); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
}

func startPprof(addr string) {
	if addr == "" {
		return
	}
	go func() {
		fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
		}
	}()
}

func openMicrophone(opts *options) (audio.Context, *audio.DeviceInfo, error) {
	ctx, err := audio.NewContext()
	if err != nil {
		return nil, nil, fmt.Errorf("initializing audio: %w", err)
	}
	var dev *audio.DeviceInfo
	switch {
	case opts.device != "":
		devices, err := ctx.Devices()
		if err == nil {
			dev, err = audio.FindDevice(devices, opts.device)
		}
		if err != nil {
			ctx.Close()
			return nil, nil, err
		}
	case opts.setup:
		dev, err = audio.SelectDevice(ctx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: device selection failed: %v\nFalling back to default device\n", err)
			dev = nil
		}
	}
	return ctx, dev, nil
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name, suffix := "system default", ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

// runInteractive runs check-ins against the real microphone, with the TUI
// unless --no-tui is set.
func runInteractive(ctx context.Context, cfg config.Config, opts *options) error {
	initLogging(opts.logPath)
	defer log.Close()
	startPprof(opts.pprofAddr)

	actx, dev, err := openMicrophone(opts)
	if err != nil {
		return err
	}
	defer actx.Close()

	a, err := newApp(ctx, cfg, appOptions{voice: true, history: true})
	if err != nil {
		return err
	}
	defer a.Close()

	rec := audio.NewRecorder(actx, dev)
	defer rec.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	ctl := newControls()

	if opts.noTUI {
		sink := newLineSink(os.Stdout)
		sink.ModeLine(a.modeLine())
		sink.DeviceLine(deviceLineText(dev))
		go readCommands(ctx, os.Stdin, ctl, sink, cancel)
		return a.runSessions(ctx, rec, sink, ctl)
	}

	p := newTUIProgram(a.state, ctl, a.cfg.TypewriterInterval())
	sink := &tuiSink{p: p}
	done := make(chan struct{})
	go func() {
		defer close(done)
		sink.ModeLine(a.modeLine())
		sink.DeviceLine(deviceLineText(dev))
		if err := a.runSessions(ctx, rec, sink, ctl); err != nil {
			log.Errorf("sessions: %v", err)
		}
	}()

	_, err = p.Run()
	cancel()
	<-done
	if err != nil {
		return fmt.Errorf("terminal UI: %w", err)
	}
	return nil
}
