package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"insulink/audio"
	"insulink/beep"
	"insulink/log"
	"insulink/metrics"
	"insulink/questionnaire"
	"insulink/speech"
	"insulink/state"
	"insulink/store"
	"insulink/transcriber"
)

type checkInConfig struct {
	Session    transcriber.SessionConfig
	Threshold  float64
	Window     time.Duration
	Typewriter time.Duration
	Shuffler   questionnaire.Shuffler
}

type checkInDeps struct {
	Bank        questionnaire.BankSource
	Scorer      questionnaire.Scorer
	Recorder    *audio.Recorder
	Transcriber transcriber.Transcriber
	Speaker     *speech.Speaker    // nil: prompts are not spoken
	History     *store.Store       // nil: nothing is stored
	Alerts      *state.AlertWriter // nil: results raise no alerts
	Metrics     *metrics.Metrics
	Sink        EventSink
	Controls    *controls
}

// checkIn runs one pass over a freshly shuffled prompt queue. The strategy in
// cfg.Session is fixed for its whole lifetime.
type checkIn struct {
	cfg  checkInConfig
	deps checkInDeps

	id      string
	started time.Time
	seq     *questionnaire.Sequencer
	sub     *questionnaire.Submitter
}

type answer struct {
	text     string
	noSpeech bool
}

func newCheckIn(cfg checkInConfig, deps checkInDeps) *checkIn {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Default
	}
	return &checkIn{
		cfg:  cfg,
		deps: deps,
		id:   uuid.NewString(),
		seq:  questionnaire.NewSequencer(cfg.Shuffler),
		sub:  questionnaire.NewSubmitter(deps.Scorer),
	}
}

// Run drives the check-in from loading the bank to the scored result. The
// microphone is released on every return path.
func (c *checkIn) Run(ctx context.Context) (questionnaire.Result, error) {
	c.started = time.Now()
	defer func() {
		if c.deps.Recorder.Active() {
			c.deps.Recorder.Stop()
		}
	}()

	if err := c.load(ctx); err != nil {
		return questionnaire.Result{}, err
	}
	total := c.seq.Len()
	log.SessionStart(c.id, c.cfg.Session.Strategy(), c.deps.Transcriber.Name(), total)

	if c.deps.Speaker != nil {
		texts := make([]string, 0, total)
		for _, p := range c.seq.Queue() {
			texts = append(texts, p.Text)
		}
		go c.deps.Speaker.Prefetch(ctx, texts)
	}

	speak := true
	for {
		p, err := c.seq.Present()
		if err != nil {
			return questionnaire.Result{}, err
		}
		_, idx, _ := c.seq.Current()
		c.present(ctx, p, idx, total, speak)

		if err := c.awaitStart(ctx); err != nil {
			return questionnaire.Result{}, err
		}
		if err := c.seq.BeginAnswer(); err != nil {
			return questionnaire.Result{}, err
		}

		ans, err := c.answer(ctx)
		if ctx.Err() != nil {
			return questionnaire.Result{}, ctx.Err()
		}
		if err != nil {
			// Nothing is retried automatically; the prompt waits for the
			// next start. Only a failed transcription repeats the prompt.
			log.Errorf("answer %s: %v", p.ID, err)
			c.deps.Sink.Error(err)
			beep.PlayError()
			speak = errors.Is(err, transcriber.ErrTranscriptionFailed)
			continue
		}

		done, err := c.seq.Record(ans.text)
		if err != nil {
			return questionnaire.Result{}, err
		}
		log.Answer(c.id, string(p.Category), ans.text)
		c.deps.Metrics.AnswersRecorded.WithLabelValues(string(p.Category)).Inc()
		c.deps.Sink.Answer(p, ans.text, ans.noSpeech)
		speak = true
		if done {
			break
		}
	}

	return c.submit(ctx)
}

// load stays in Loading until a bank arrives. After a failure it waits for
// the user to ask again.
func (c *checkIn) load(ctx context.Context) error {
	for {
		c.deps.Sink.Loading()
		bank, err := c.deps.Bank.Questions(ctx)
		if err == nil {
			err = c.seq.Load(bank)
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, questionnaire.ErrQuestionBankUnavailable) {
			err = fmt.Errorf("%w: %w", questionnaire.ErrQuestionBankUnavailable, err)
		}
		log.Errorf("load bank: %v", err)
		c.deps.Sink.BankError(err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.deps.Controls.start:
		}
	}
}

// present shows p and, when speak is set, waits out the typewriter reveal
// and plays the prompt audio to its end. Start requests made while the
// prompt is speaking are kept.
func (c *checkIn) present(ctx context.Context, p questionnaire.Prompt, idx, total int, speak bool) {
	drain(c.deps.Controls.start)
	drain(c.deps.Controls.stop)
	c.deps.Sink.Prompt(p, idx, total)
	if !speak {
		return
	}

	if !sleepCtx(ctx, revealDuration(p.Text, c.cfg.Typewriter)) {
		return
	}
	if c.deps.Speaker == nil {
		return
	}
	c.deps.Sink.Speaking(true)
	if err := c.deps.Speaker.Say(ctx, p.Text); err != nil && ctx.Err() == nil {
		log.Warnf("speak %s: %v", p.ID, err)
	}
	c.deps.Sink.Speaking(false)
}

func (c *checkIn) awaitStart(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.deps.Controls.start:
		return nil
	}
}

// answer captures one response and transcribes it. Manual stop, silence
// auto-stop and cancellation all converge on a single stop path.
func (c *checkIn) answer(ctx context.Context) (answer, error) {
	sess, err := c.deps.Transcriber.NewSession(ctx, c.cfg.Session)
	if err != nil {
		return answer{}, fmt.Errorf("%w: %w", transcriber.ErrTranscriptionFailed, err)
	}

	updatesDone := make(chan struct{})
	go func() {
		defer close(updatesDone)
		for u := range sess.Updates() {
			c.deps.Sink.LiveTranscript(u.Text())
		}
	}()

	if _, err := c.deps.Recorder.Start(sess.Feed); err != nil {
		sess.Close(ctx)
		<-updatesDone
		return answer{}, err
	}
	go beep.PlayStart()
	c.deps.Metrics.CaptureSessions.Inc()
	c.deps.Sink.RecordingStart()

	rec, autoStopped, err := c.capture(ctx)
	if err != nil {
		sess.Close(ctx)
		<-updatesDone
		return answer{}, err
	}
	if autoStopped {
		log.Info("silence_auto_stop")
		go beep.PlayAutoStop()
	} else {
		go beep.PlayStop()
	}
	c.deps.Sink.RecordingStop(autoStopped)
	c.deps.Metrics.ObserveCapture(rec.Duration, autoStopped)
	log.Capture(log.CaptureMetrics{
		Device:    rec.Device,
		AudioS:    rec.Duration.Seconds(),
		Frames:    rec.Frames,
		PeakLevel: rec.Peak,
		AutoStop:  autoStopped,
	})

	closeStart := time.Now()
	result, err := sess.Close(ctx)
	<-updatesDone
	c.deps.Sink.LiveTranscript("")
	strategy := c.cfg.Session.Strategy()
	if err != nil {
		c.deps.Metrics.ObserveTranscription(strategy, 0, true)
		return answer{}, err
	}
	c.deps.Metrics.ObserveTranscription(strategy, time.Since(closeStart), false)
	c.logTranscription(result)

	return answer{text: result.Text, noSpeech: result.NoSpeech}, nil
}

// capture waits for a stop source, then releases the device.
func (c *checkIn) capture(ctx context.Context) (audio.Recording, bool, error) {
	det := newSilenceDetector(c.cfg.Threshold, c.cfg.Window)
	start := time.Now()
	det.Begin(start)

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }
	defer closeDone()

	var autoStopped atomic.Bool
	silent := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		defer det.End()
		ticker := time.NewTicker(silencePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				level := c.deps.Recorder.Level()
				c.deps.Sink.AudioLevel(level)
				c.deps.Sink.RecordingTick(now.Sub(start))
				if det.Observe(level, now) == SilenceAutoStop {
					autoStopped.Store(true)
					close(silent)
					return
				}
			}
		}
	}()

	<-mergeStop(c.deps.Controls.stop, silent, ctx.Done())
	closeDone()
	<-polled

	rec, err := c.deps.Recorder.Stop()
	return rec, autoStopped.Load(), err
}

func (c *checkIn) submit(ctx context.Context) (questionnaire.Result, error) {
	answers := c.seq.Answers()
	c.deps.Sink.Submitting()

	entry := store.CheckIn{
		ID:        c.id,
		StartedAt: c.started,
		Strategy:  c.cfg.Session.Strategy(),
		Answers:   answers,
	}

	res, err := c.sub.Submit(ctx, answers, c.seq.Len())
	if err != nil {
		outcome := metrics.OutcomeFailed
		if errors.Is(err, questionnaire.ErrAnswerCountMismatch) {
			outcome = metrics.OutcomeMismatch
		}
		c.deps.Metrics.Submissions.WithLabelValues(outcome).Inc()
		log.Errorf("submit: %v", err)
		c.deps.Sink.Error(err)
		beep.PlayError()
		entry.Err = err.Error()
		c.save(ctx, entry)
		log.SessionEnd(c.id, answers.Total())
		return res, err
	}
	c.deps.Metrics.Submissions.WithLabelValues(metrics.OutcomeOK).Inc()

	completed := time.Now()
	entry.CompletedAt = &completed
	entry.Result = &res
	c.save(ctx, entry)

	var alerts []state.Alert
	if c.deps.Alerts != nil {
		alerts = c.deps.Alerts.Evaluate(res)
	}
	log.Result(c.id, res.Average)
	log.SessionEnd(c.id, answers.Total())
	c.deps.Sink.Result(res, alerts)
	return res, nil
}

func (c *checkIn) save(ctx context.Context, entry store.CheckIn) {
	if c.deps.History == nil {
		return
	}
	if err := c.deps.History.Save(ctx, entry); err != nil {
		log.Warnf("save history: %v", err)
	}
}

func (c *checkIn) logTranscription(r transcriber.SessionResult) {
	if r.RecognitionErr != nil {
		log.Warnf("recognition error absorbed: %v", r.RecognitionErr)
	}
	if r.RateLimit != "" {
		log.Info("rate_limit: " + r.RateLimit)
	}
	if bs := r.Batch; bs != nil {
		log.Transcription(log.TranscriptionMetrics{
			AudioLengthS:     bs.AudioLengthS,
			RawSizeKB:        bs.RawSizeKB,
			CompressedSizeKB: bs.CompressedSizeKB,
			CompressionPct:   bs.CompressionPct,
			EncodeTimeMs:     bs.EncodeTimeMs,
			DNSTimeMs:        bs.DNSTimeMs,
			TLSTimeMs:        bs.TLSTimeMs,
			TTFBMs:           bs.TTFBMs,
			TotalTimeMs:      bs.TotalTimeMs,
			MemoryAllocMB:    r.MemoryAllocMB,
		}, c.deps.Transcriber.Name(), string(c.cfg.Session.Format), bs.ConnReused, bs.TLSProtocol)
	}
	if ss := r.Stream; ss != nil {
		log.StreamTranscription(log.StreamMetrics{
			ConnectMs:    ss.ConnectMs,
			FinalizeMs:   ss.FinalizeMs,
			TotalMs:      ss.TotalMs,
			AudioS:       ss.AudioS,
			SentChunks:   ss.SentChunks,
			SentKB:       ss.SentKB,
			RecvMessages: ss.RecvMessages,
			RecvFinal:    ss.RecvFinal,
		})
	}
}

// mergeStop returns a channel that closes when any source fires.
func mergeStop(sources ...<-chan struct{}) chan struct{} {
	out := make(chan struct{})
	var once sync.Once
	for _, s := range sources {
		if s == nil {
			continue
		}
		go func(ch <-chan struct{}) {
			select {
			case <-ch:
				once.Do(func() { close(out) })
			case <-out:
			}
		}(s)
	}
	return out
}

// revealDuration is how long the typewriter takes to show text.
func revealDuration(text string, perChar time.Duration) time.Duration {
	return time.Duration(utf8.RuneCountInString(text)) * perChar
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
