package soniox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xilidan/transcriber/pkg/vtt"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

const (
	DefaultBaseURL = "https://api.soniox.com"
	DefaultModel   = "stt-async-preview"

	serviceName = "soniox"
)

// DefaultLanguageHints are sent when the caller names no language.
var DefaultLanguageHints = []string{"en", "es"}

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

type createTranscriptionRequest struct {
	AudioURL      string   `json:"audio_url"`
	Model         string   `json:"model"`
	LanguageHints []string `json:"language_hints,omitempty"`
}

type createTranscriptionResponse struct {
	ID string `json:"id"`
}

type transcriptionResponse struct {
	ID           string  `json:"id"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message"`
}

type transcriptResponse struct {
	ID     string      `json:"id"`
	Text   string      `json:"text"`
	Tokens []vtt.Token `json:"tokens"`
}

func New(apiKey string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.log.Debug("creating soniox client",
		slog.String("base_url", c.baseURL),
		slog.String("model", c.model),
		slog.Bool("api_key_set", apiKey != ""))
	return c
}

// Start submits an audio URL and returns the provider's job id.
func (c *Client) Start(ctx context.Context, audioURL, language string) (string, error) {
	c.log.Info("starting transcription", slog.String("audio_url", audioURL), slog.String("language", language))

	req := createTranscriptionRequest{
		AudioURL:      audioURL,
		Model:         c.model,
		LanguageHints: DefaultLanguageHints,
	}
	if language != "" {
		req.LanguageHints = []string{language}
	}

	var resp createTranscriptionResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transcriptions", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &entity.UpstreamError{Service: serviceName, StatusCode: http.StatusOK, Message: "response has no transcription id"}
	}

	c.log.Info("transcription started", slog.String("job_id", resp.ID))
	return resp.ID, nil
}

// Status maps the provider's queued/processing/completed/error states onto
// pending/completed/error.
func (c *Client) Status(ctx context.Context, jobID string) (*entity.JobStatus, error) {
	var resp transcriptionResponse
	if err := c.do(ctx, http.MethodGet, "/v1/transcriptions/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return nil, err
	}

	status := &entity.JobStatus{ErrorMessage: resp.ErrorMessage}
	switch resp.Status {
	case "completed":
		status.Status = entity.StatusCompleted
	case "error":
		status.Status = entity.StatusError
		if status.ErrorMessage == nil {
			msg := "Unknown error"
			status.ErrorMessage = &msg
		}
	case "queued", "processing":
		status.Status = entity.StatusPending
	default:
		c.log.Warn("unknown transcription status, treating as pending",
			slog.String("job_id", jobID),
			slog.String("status", resp.Status))
		status.Status = entity.StatusPending
	}

	c.log.Debug("transcription status", slog.String("job_id", jobID), slog.String("status", string(status.Status)))
	return status, nil
}

// Result fetches the finished transcript text and tokens.
func (c *Client) Result(ctx context.Context, jobID string) (*entity.TranscriptResult, error) {
	var resp transcriptResponse
	if err := c.do(ctx, http.MethodGet, "/v1/transcriptions/"+url.PathEscape(jobID)+"/transcript", nil, &resp); err != nil {
		return nil, err
	}

	c.log.Info("transcript fetched",
		slog.String("job_id", jobID),
		slog.Int("text_length", len(resp.Text)),
		slog.Int("tokens", len(resp.Tokens)))
	return &entity.TranscriptResult{Text: resp.Text, Tokens: resp.Tokens}, nil
}

func (c *Client) Transcript(ctx context.Context, jobID string) (string, error) {
	res, err := c.Result(ctx, jobID)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (c *Client) Tokens(ctx context.Context, jobID string) ([]vtt.Token, error) {
	res, err := c.Result(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return res.Tokens, nil
}

// Delete removes the job and its transcript from the provider.
func (c *Client) Delete(ctx context.Context, jobID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/transcriptions/"+url.PathEscape(jobID), nil, nil); err != nil {
		return err
	}

	c.log.Debug("transcription deleted", slog.String("job_id", jobID))
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("HTTP request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return &entity.UpstreamError{Service: serviceName, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		c.log.Error("API request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", string(raw)))
		return &entity.UpstreamError{Service: serviceName, StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.log.Error("failed to decode response", slog.String("path", path), slog.String("error", err.Error()))
		return &entity.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Message:    "malformed response: " + err.Error(),
			Err:        err,
		}
	}

	return nil
}

// errorMessage pulls a human readable message out of an error body.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Message      string `json:"message"`
		ErrorMessage string `json:"error_message"`
		Error        string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, msg := range []string{payload.Message, payload.ErrorMessage, payload.Error} {
			if msg != "" {
				return msg
			}
		}
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fallback
}
