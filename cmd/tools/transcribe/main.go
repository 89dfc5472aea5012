package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	config "github.com/xilidan/transcriber/config/transcriber"
	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/pkg/poll"
	"github.com/xilidan/transcriber/pkg/vtt"
	"github.com/xilidan/transcriber/services/transcriber/clients/llm"
	"github.com/xilidan/transcriber/services/transcriber/clients/soniox"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

const (
	formatText = "text"
	formatVTT  = "vtt"
)

type options struct {
	language    string
	format      string
	translateTo string
	output      string
	keep        bool
	wordsPerCue int
	interval    time.Duration
	verbose     bool
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "transcribe <audio-url>",
		Short: "Transcribe a remote audio file with Soniox",
		Long: `Transcribe starts an asynchronous Soniox job for a publicly reachable audio
URL, waits for it to finish and prints the transcript as plain text or WebVTT,
optionally translated with OpenAI. Reads SONIOX_API_KEY and OPENAI_API_KEY from
the environment or a .env file.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd.Context(), args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.language, "language", "l", "", "language hint, e.g. en (default: en and es)")
	f.StringVarP(&opts.format, "format", "f", formatText, "output format: text or vtt")
	f.StringVarP(&opts.translateTo, "translate-to", "t", "", "translate the output into this language")
	f.StringVarP(&opts.output, "output", "o", "", "write the result to a file instead of stdout")
	f.BoolVar(&opts.keep, "keep", false, "keep the job on Soniox after fetching the result")
	f.IntVar(&opts.wordsPerCue, "words-per-cue", vtt.DefaultWordsPerCue, "words per subtitle cue")
	f.DurationVar(&opts.interval, "interval", poll.DefaultInterval, "status polling interval")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")

	return cmd
}

func runTranscribe(ctx context.Context, audioURL string, opts options) error {
	if opts.format != formatText && opts.format != formatVTT {
		return fmt.Errorf("unsupported format %q, want %s or %s", opts.format, formatText, formatVTT)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := logger.New(logger.Config{Level: level, Output: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.translateTo != "" && !cfg.TranslationEnabled() {
		return fmt.Errorf("--translate-to needs OPENAI_API_KEY: %w", entity.ErrNotConfigured)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stt := soniox.New(cfg.Soniox.APIKey, log,
		soniox.WithBaseURL(cfg.Soniox.BaseURL),
		soniox.WithModel(cfg.Soniox.Model))

	jobID, err := stt.Start(ctx, audioURL, opts.language)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "started job %s\n", jobID)

	if !opts.keep {
		defer func() {
			// the signal context may already be done
			delCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := stt.Delete(delCtx, jobID); err != nil {
				log.Warn("failed to delete job", slog.String("job_id", jobID), slog.String("error", err.Error()))
			}
		}()
	}

	err = poll.Until(ctx, opts.interval, func(ctx context.Context) (bool, error) {
		st, err := stt.Status(ctx, jobID)
		if err != nil {
			return false, err
		}
		switch st.Status {
		case entity.StatusCompleted:
			return true, nil
		case entity.StatusError:
			msg := "Unknown error"
			if st.ErrorMessage != nil {
				msg = *st.ErrorMessage
			}
			return false, fmt.Errorf("transcription failed: %s", msg)
		}
		fmt.Fprint(os.Stderr, ".")
		return false, nil
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	res, err := stt.Result(ctx, jobID)
	if err != nil {
		return err
	}

	out, err := render(ctx, cfg, log, res, opts)
	if err != nil {
		return err
	}

	if opts.output == "" {
		_, err = fmt.Fprint(os.Stdout, out)
		return err
	}
	if err := os.WriteFile(opts.output, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", opts.output)
	return nil
}

func render(ctx context.Context, cfg *config.Config, log *slog.Logger, res *entity.TranscriptResult, opts options) (string, error) {
	var out string
	if opts.format == formatVTT {
		out = vtt.Build(res.Tokens, opts.wordsPerCue)
	} else {
		out = vtt.PlainText(res.Tokens)
		if out == "" {
			out = res.Text
		}
	}

	if opts.translateTo == "" {
		if opts.format == formatText {
			out += "\n"
		}
		return out, nil
	}

	translator := llm.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, llm.Config{
		Model:             cfg.OpenAI.Model,
		BatchSize:         cfg.Translation.BatchSize,
		Concurrency:       cfg.Translation.Concurrency,
		RequestsPerMinute: cfg.Translation.RatePerMin,
		ChunkChars:        cfg.Translation.ChunkChars,
	}, log)

	if opts.format == formatText {
		translated, err := translator.Translate(ctx, out, opts.translateTo)
		if err != nil {
			return "", err
		}
		return translated + "\n", nil
	}

	tr, err := translator.TranslateVTT(ctx, out, opts.translateTo)
	if err != nil {
		return "", err
	}
	if tr.Partial() {
		fmt.Fprintf(os.Stderr, "warning: %d subtitle batch(es) left untranslated\n", tr.FailedBatches())
	}
	return tr.Content, nil
}
