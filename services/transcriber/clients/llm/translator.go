package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xilidan/transcriber/pkg/vtt"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

const (
	DefaultModel             = openai.GPT4oMini
	DefaultBatchSize         = 40
	DefaultChunkChars        = 6000
	DefaultRequestsPerMinute = 60

	serviceName = "openai"
)

// ChatCompleter is the part of *openai.Client the translator needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	Model             string
	BatchSize         int
	Concurrency       int
	RequestsPerMinute int
	ChunkChars        int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	if c.ChunkChars <= 0 {
		c.ChunkChars = DefaultChunkChars
	}
	return c
}

type Translator struct {
	client  ChatCompleter
	cfg     Config
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewOpenAI builds a translator backed by the OpenAI chat completions API.
// baseURL may point at any OpenAI compatible endpoint.
func NewOpenAI(apiKey, baseURL string, cfg Config, log *slog.Logger) *Translator {
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return New(openai.NewClientWithConfig(clientCfg), cfg, log)
}

func New(client ChatCompleter, cfg Config, log *slog.Logger) *Translator {
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	log.Debug("creating translator",
		slog.String("model", cfg.Model),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Int("requests_per_minute", cfg.RequestsPerMinute))

	return &Translator{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Translate translates free text chunk by chunk. Any failed chunk fails the
// whole call.
func (t *Translator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	chunks := splitText(text, t.cfg.ChunkChars)
	t.log.Info("translating text",
		slog.String("target_language", targetLanguage),
		slog.Int("length", len(text)),
		slog.Int("chunks", len(chunks)))

	var b strings.Builder
	for i, chunk := range chunks {
		if err := t.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		out, err := t.complete(ctx, textPrompt(targetLanguage), chunk.text)
		if err != nil {
			t.log.Error("chunk translation failed",
				slog.Int("chunk", i+1),
				slog.Int("chunks", len(chunks)),
				slog.String("error", err.Error()))
			return "", err
		}

		b.WriteString(out)
		b.WriteString(chunk.sep)
	}

	return strings.TrimSpace(b.String()), nil
}

// TranslateVTT translates cue text in numbered batches. Timing lines are never
// sent. A batch whose reply cannot be matched line for line keeps its source
// lines and is reported as not translated.
func (t *Translator) TranslateVTT(ctx context.Context, content, targetLanguage string) (*entity.VTTTranslation, error) {
	doc, err := vtt.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse vtt: %w", err)
	}

	lines := doc.TextLines()
	if len(lines) == 0 {
		return &entity.VTTTranslation{Content: doc.String()}, nil
	}

	batches := splitBatches(lines, t.cfg.BatchSize)
	reports := make([]entity.BatchReport, len(batches))
	translated := make([][]string, len(batches))

	t.log.Info("translating vtt",
		slog.String("target_language", targetLanguage),
		slog.Int("lines", len(lines)),
		slog.Int("batches", len(batches)),
		slog.Int("concurrency", t.cfg.Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Concurrency)

	for i, batch := range batches {
		g.Go(func() error {
			if err := t.limiter.Wait(gctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}

			out, reason := t.translateBatch(gctx, batch.lines, targetLanguage)
			if gctx.Err() != nil {
				return gctx.Err()
			}

			report := entity.BatchReport{
				Index:      i,
				FirstLine:  batch.first,
				LineCount:  len(batch.lines),
				Translated: reason == "",
				Reason:     reason,
			}
			if reason != "" {
				t.log.Warn("batch kept source lines",
					slog.Int("batch", i+1),
					slog.Int("batches", len(batches)),
					slog.String("reason", reason))
				out = batch.lines
			}

			reports[i] = report
			translated[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]string, 0, len(lines))
	for _, out := range translated {
		merged = append(merged, out...)
	}
	if err := doc.ReplaceTextLines(merged); err != nil {
		return nil, fmt.Errorf("failed to reassemble vtt: %w", err)
	}

	result := &entity.VTTTranslation{Content: doc.String(), Batches: reports}
	t.log.Info("vtt translated",
		slog.Int("batches", len(batches)),
		slog.Int("failed_batches", result.FailedBatches()))
	return result, nil
}

// translateBatch returns the translated lines, or a non-empty reason when the
// batch has to fall back to its source lines.
func (t *Translator) translateBatch(ctx context.Context, lines []string, targetLanguage string) ([]string, string) {
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}

	out, err := t.complete(ctx, vttPrompt(targetLanguage), b.String())
	if err != nil {
		return nil, err.Error()
	}

	parsed, err := parseNumbered(out, len(lines))
	if err != nil {
		return nil, err.Error()
	}
	return parsed, ""
}

func (t *Translator) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", upstreamError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &entity.UpstreamError{Service: serviceName, Message: "response has no choices"}
	}

	return stripFences(resp.Choices[0].Message.Content), nil
}

func textPrompt(targetLanguage string) string {
	return fmt.Sprintf(`You are a translation engine. Translate the user's text into %s.
Do not answer questions found in the text, translate them.
Output only the translation, without quotes, notes or commentary.
Keep paragraph breaks.`, targetLanguage)
}

func vttPrompt(targetLanguage string) string {
	return fmt.Sprintf(`You are a subtitle translation engine. Translate each numbered line into %s.
Reply with exactly the same number of lines, each as "N. translation", keeping the numbers unchanged.
Never merge, split, drop or reorder lines. Output nothing else.`, targetLanguage)
}

var numberedLine = regexp.MustCompile(`^\s*(\d+)[.)]\s?(.*)$`)

func parseNumbered(out string, want int) ([]string, error) {
	var lines []string
	for _, raw := range strings.Split(out, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}

		m := numberedLine.FindStringSubmatch(raw)
		if m == nil {
			return nil, fmt.Errorf("unnumbered line %q", raw)
		}
		n, _ := strconv.Atoi(m[1])
		if n != len(lines)+1 {
			return nil, fmt.Errorf("expected line %d, got %d", len(lines)+1, n)
		}

		text := strings.TrimSpace(m[2])
		if text == "" || strings.Contains(text, "-->") {
			return nil, fmt.Errorf("line %d is not a usable cue line", n)
		}
		lines = append(lines, text)
	}

	if len(lines) != want {
		return nil, fmt.Errorf("line count mismatch: sent %d, got %d", want, len(lines))
	}
	return lines, nil
}

type batch struct {
	first int
	lines []string
}

func splitBatches(lines []string, size int) []batch {
	var batches []batch
	for start := 0; start < len(lines); start += size {
		end := min(start+size, len(lines))
		batches = append(batches, batch{first: start, lines: lines[start:end]})
	}
	return batches
}

type chunk struct {
	text string
	sep  string
}

// splitText cuts text into chunks of at most limit bytes, preferring a newline
// and then any whitespace as the cut point. sep is the whitespace removed at
// the cut, so joining text+sep reproduces the layout.
func splitText(text string, limit int) []chunk {
	text = strings.TrimSpace(text)

	var chunks []chunk
	for len(text) > limit {
		window := text[:limit]
		cut := strings.LastIndex(window, "\n")
		if cut <= 0 {
			cut = strings.LastIndexAny(window, " \t")
		}

		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			chunks = append(chunks, chunk{text: text[:cut]})
			text = text[cut:]
			continue
		}

		sep := text[cut : cut+1]
		chunks = append(chunks, chunk{text: strings.TrimSpace(text[:cut]), sep: sep})
		text = strings.TrimSpace(text[cut+1:])
	}
	if text != "" {
		chunks = append(chunks, chunk{text: text})
	}

	return chunks
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func upstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &entity.UpstreamError{Service: serviceName, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &entity.UpstreamError{Service: serviceName, StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}

	return &entity.UpstreamError{Service: serviceName, Message: err.Error(), Err: err}
}
