package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/sonago/config"
	"github.com/kbukum/sonago/diarization"
	"github.com/kbukum/sonago/logger"
	"github.com/kbukum/sonago/observability"
	"github.com/kbukum/sonago/sona"
	"github.com/kbukum/sonago/transcription"
	"github.com/kbukum/sonago/version"
)

type app struct {
	configFile string
	binary     string
	port       int
	verbose    bool
	timeout    time.Duration

	cfg      *sona.Config
	metrics  *observability.Metrics
	shutdown observability.ShutdownFunc
}

// run executes the command line and flushes telemetry, returning the exit
// code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if tErr := a.teardown(ctx); tErr != nil {
		logger.Warn("telemetry shutdown", logger.ErrorFields("shutdown", tErr))
	}
	if err != nil {
		return 1
	}
	return 0
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:               "sona-client",
		Short:             "Run a local Sona server and transcribe audio with it",
		Version:           version.String(),
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default: ./sona.yml or the user config dir)")
	flags.StringVar(&a.binary, "binary", "", "path to the sona executable")
	flags.IntVar(&a.port, "port", 0, "server port (0 = pick a free port)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging, including server output")
	flags.DurationVar(&a.timeout, "startup-timeout", 0, "how long to wait for the server to become ready")

	root.AddCommand(a.newTranscribeCommand(), a.newModelsCommand())
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var opts []config.LoaderOption
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	cfg, err := sona.LoadConfig(opts...)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("binary") {
		cfg.Server.BinaryPath = a.binary
	}
	if flags.Changed("port") {
		cfg.Server.Port = a.port
	}
	if flags.Changed("startup-timeout") {
		cfg.Server.StartupTimeout = a.timeout
		cfg.Server.ReadyTimeout = a.timeout
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(&cfg.Logging)
	logger.RegisterDefaults("sona", "supervisor", "client", "config")

	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = version.Short()
	}
	shutdown, err := observability.Setup(cmd.Context(), cfg.Observability)
	if err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	metrics, err := observability.NewMetrics(observability.Meter())
	if err != nil {
		_ = shutdown(cmd.Context())
		return fmt.Errorf("metrics: %w", err)
	}

	a.cfg = cfg
	a.metrics = metrics
	a.shutdown = shutdown
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if a.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return a.shutdown(ctx)
}

func (a *app) sessionOptions() []sona.Option {
	return []sona.Option{
		sona.WithConfig(*a.cfg),
		sona.WithMetrics(a.metrics),
	}
}

func (a *app) newTranscribeCommand() *cobra.Command {
	var req transcription.Request
	var format string

	cmd := &cobra.Command{
		Use:   "transcribe <model.bin> <audio>",
		Short: "Load a model and transcribe an audio file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.AudioPath = args[1]
			req.Format = transcription.Format(format)
			out := cmd.OutOrStdout()

			return sona.With(cmd.Context(), func(s *sona.Session) error {
				if _, err := s.LoadModel(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("load model: %w", err)
				}
				if req.Stream {
					stream, err := s.TranscribeStream(cmd.Context(), req)
					if err != nil {
						return err
					}
					return printStream(cmd.Context(), out, cmd.ErrOrStderr(), stream)
				}
				res, err := s.Transcribe(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printResult(out, res)
			}, a.sessionOptions()...)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", string(transcription.FormatText), "response format: json, verbose_json, text, srt, vtt")
	flags.StringVarP(&req.Language, "language", "l", "", "language code (e.g. en, he, auto)")
	flags.BoolVar(&req.Stream, "stream", false, "print segments as they are decoded")
	flags.StringVar(&req.DiarizeModel, "diarize-model", "", "speaker diarization model")
	flags.StringVar(&req.Prompt, "prompt", "", "initial prompt / vocabulary hint")
	flags.BoolVar(&req.Translate, "translate", false, "translate to English")
	flags.IntVar(&req.Threads, "threads", 0, "CPU threads (0 = server default)")
	flags.IntVar(&req.BeamSize, "beam-size", 0, "beam search width (0 = greedy)")
	return cmd
}

func (a *app) newModelsCommand() *cobra.Command {
	var load string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models the server has loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			return sona.With(cmd.Context(), func(s *sona.Session) error {
				if load != "" {
					if _, err := s.LoadModel(cmd.Context(), load); err != nil {
						return fmt.Errorf("load model: %w", err)
					}
				}
				list, err := s.Models(cmd.Context())
				if err != nil {
					return err
				}
				if len(list.Data) == 0 {
					_, err := fmt.Fprintln(out, "no models loaded")
					return err
				}
				for _, m := range list.Data {
					if _, err := fmt.Fprintf(out, "%s\t%s\n", m.ID, m.OwnedBy); err != nil {
						return err
					}
				}
				return nil
			}, a.sessionOptions()...)
		},
	}

	cmd.Flags().StringVar(&load, "load", "", "model file to load before listing")
	return cmd
}

func printResult(out io.Writer, res transcription.Result) error {
	switch r := res.(type) {
	case transcription.Text:
		_, err := io.WriteString(out, ensureNewline(string(r)))
		return err
	case *transcription.Transcript:
		if diarization.Diarized(r.Segments) {
			for _, turn := range diarization.Turns(r.Segments) {
				if _, err := fmt.Fprintf(out, "[%s - %s] %s: %s\n",
					timestamp(turn.Start), timestamp(turn.End), turn.Label(), strings.TrimSpace(turn.Text)); err != nil {
					return err
				}
			}
			return nil
		}
		_, err := io.WriteString(out, ensureNewline(r.Text))
		return err
	default:
		return fmt.Errorf("unexpected result %s", res.Kind())
	}
}

func printStream(ctx context.Context, out, progress io.Writer, stream *transcription.Stream) error {
	segments := 0
	progressed := false
	for ev, err := range stream.All(ctx) {
		if err != nil {
			return err
		}
		if progressed && ev.Type != transcription.EventProgress {
			fmt.Fprintln(progress)
			progressed = false
		}
		switch ev.Type {
		case transcription.EventProgress:
			fmt.Fprintf(progress, "\rprogress: %3d%%", ev.Progress)
			progressed = true
		case transcription.EventSegment:
			segments++
			line := strings.TrimSpace(ev.Text)
			if ev.Speaker != nil {
				line = diarization.SpeakerLabel(ev.Speaker) + ": " + line
			}
			if _, err := fmt.Fprintf(out, "[%s - %s] %s\n", timestamp(ev.Start), timestamp(ev.End), line); err != nil {
				return err
			}
		case transcription.EventResult:
			if segments == 0 {
				if _, err := io.WriteString(out, ensureNewline(ev.Text)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// timestamp renders seconds as mm:ss.mmm.
func timestamp(sec float64) string {
	d := time.Duration(sec * float64(time.Second)).Round(time.Millisecond)
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d.%03d", m, s, d/time.Millisecond)
}

func ensureNewline(s string) string {
	if s == "" || s[len(s)-1] == '\n' {
		return s
	}
	return s + "\n"
}
