package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"insulink/audio"
	"insulink/config"
	"insulink/doctor"
	"insulink/encoder"
	"insulink/log"
	"insulink/questionnaire"
	"insulink/store"
	"insulink/transcriber"
)

// options holds the root command's flags. Flag values only override the
// config file when set explicitly.
type options struct {
	configPath  string
	logPath     string
	device      string
	setup       bool
	provider    string
	stream      bool
	lang        string
	threshold   float64
	window      time.Duration
	noTUI       bool
	noVoice     bool
	testWAV     string
	metricsAddr string
	pprofAddr   string
}

// Execute runs the CLI. ctx is cancelled on shutdown signals.
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	envLog := os.Getenv(log.EnvLogPath)

	cmd := &cobra.Command{
		Use:           "insulink",
		Short:         "Voice check-in for daily diabetes self-care",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if opts.testWAV != "" {
				return runTestMode(cmd.Context(), cfg, opts)
			}
			return runInteractive(cmd.Context(), cfg, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to YAML config (default insulink.yaml or $"+config.EnvConfigPath+")")
	pf.StringVar(&opts.logPath, "logpath", envLog, "log directory (default: OS-specific location, use ./ for current dir)")

	pf.StringVar(&opts.device, "device", "", "use the named microphone")
	pf.BoolVar(&opts.setup, "setup", false, "pick a microphone interactively")

	f := cmd.Flags()
	f.StringVar(&opts.provider, "provider", "", "transcription provider: backend, groq, deepgram or fake")
	f.BoolVar(&opts.stream, "stream", false, "stream audio for live transcription (deepgram only)")
	f.StringVar(&opts.lang, "lang", "", "transcription language code, empty for auto-detect")
	f.Float64Var(&opts.threshold, "threshold", 0, "silence threshold as normalized RMS")
	f.DurationVar(&opts.window, "window", 0, "silence duration before capture stops by itself")
	f.BoolVar(&opts.noTUI, "no-tui", false, "print events as plain lines instead of the terminal UI")
	f.BoolVar(&opts.noVoice, "no-voice", false, "do not speak prompts aloud")
	f.StringVar(&opts.testWAV, "test", "", "headless stdin-driven mode with WAV input instead of a microphone")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&opts.pprofAddr, "profile", "", "enable pprof server (e.g. localhost:6060)")

	cmd.AddCommand(
		newQuestionsCmd(opts),
		newHistoryCmd(opts),
		newDevicesCmd(),
		newTranscribeCmd(opts),
		newDoctorCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig layers .env, the YAML file and explicitly set flags, then
// validates the result.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(config.ResolvePath(opts.configPath))
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Transcription.Provider = opts.provider
	}
	if flags.Changed("stream") {
		cfg.Transcription.Stream = opts.stream
	}
	if flags.Changed("lang") {
		cfg.Transcription.Language = opts.lang
	}
	if flags.Changed("threshold") {
		cfg.Silence.Threshold = opts.threshold
	}
	if flags.Changed("window") {
		cfg.Silence.Window = opts.window.String()
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if flags.Changed("no-voice") && opts.noVoice {
		off := false
		cfg.Presentation.Voice = &off
	}
	return cfg, cfg.Validate()
}

func newQuestionsCmd(opts *options) *cobra.Command {
	var shuffle bool
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Fetch and print the question bank",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			bank, err := a.bank.Questions(cmd.Context())
			if err != nil {
				return err
			}
			prompts := bank.Prompts()
			if shuffle {
				prompts = questionnaire.BuildQueue(bank, questionnaire.NewShuffler())
			}
			for i, p := range prompts {
				fmt.Fprintf(cmd.OutOrStdout(), "%2d. [%s] %s\n", i+1, p.Category.Label(), p.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&shuffle, "shuffle", false, "print in check-in order")
	return cmd
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent check-ins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if err := initLogDir(opts.logPath); err != nil {
				return err
			}
			st, err := store.Open(historyPath(cfg))
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no check-ins yet")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTRATEGY\tANSWERS\tAVERAGE\tSTATUS")
			for _, e := range entries {
				avg, status := "-", "ok"
				if e.Result != nil {
					avg = fmt.Sprintf("%.1f", e.Result.Average)
				}
				if e.Err != "" {
					status = e.Err
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					e.StartedAt.Local().Format("2006-01-02 15:04"), e.Strategy, e.Answers.Total(), avg, status)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of check-ins to show")
	return cmd
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List capture devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, err := audio.NewContext()
			if err != nil {
				return fmt.Errorf("initializing audio: %w", err)
			}
			defer ctx.Close()
			return audio.ListDevices(cmd.OutOrStdout(), ctx)
		},
	}
}

// newTranscribeCmd runs a WAV file through the configured transcriber, once
// per run, and prints text and timings.
func newTranscribeCmd(opts *options) *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "transcribe <wav>",
		Short: "Transcribe a WAV file with the configured provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if len(data) > encoder.WavHeaderSize {
				data = data[encoder.WavHeaderSize:]
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			for i := range max(runs, 1) {
				res, err := transcribeOnce(cmd.Context(), a.transcriber, a.sessionConfig(), data)
				if err != nil {
					return fmt.Errorf("run %d: %w", i+1, err)
				}
				text := res.Text
				if res.NoSpeech {
					text = "(no speech detected)"
				}
				fmt.Fprintf(out, "--- run %d ---\n%s\n", i+1, text)
				if len(res.Metrics) > 0 {
					fmt.Fprintln(out, strings.Join(res.Metrics, "\n"))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&runs, "runs", 1, "number of iterations")
	return cmd
}

func transcribeOnce(ctx context.Context, t transcriber.Transcriber, cfg transcriber.SessionConfig, pcm []byte) (transcriber.SessionResult, error) {
	sess, err := t.NewSession(ctx, cfg)
	if err != nil {
		return transcriber.SessionResult{}, err
	}
	go func() {
		for range sess.Updates() {
		}
	}()
	const chunk = 3200 // 100ms at 16 kHz
	for off := 0; off < len(pcm); off += chunk {
		sess.Feed(pcm[off:min(off+chunk, len(pcm))])
	}
	return sess.Close(ctx)
}

func newDoctorCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run interactive diagnostics of backend, microphone, transcription and audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			actx, dev, err := openMicrophone(opts)
			if err != nil {
				return err
			}
			defer actx.Close()
			a, err := newApp(cmd.Context(), cfg, appOptions{voice: true})
			if err != nil {
				return err
			}
			defer a.Close()
			rec := audio.NewRecorder(actx, dev)
			defer rec.Close()

			code := doctor.Run(cmd.Context(), doctor.Checks{
				Bank:        a.bank,
				Recorder:    rec,
				Transcriber: a.transcriber,
				Session:     a.sessionConfig(),
				Speaker:     a.speaker,
				In:          cmd.InOrStdin(),
				Out:         cmd.OutOrStdout(),
			})
			if code != 0 {
				return errors.New("doctor: some checks failed")
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "insulink %s\n", version)
		},
	}
}
