package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/pkg/poll"
	"github.com/xilidan/transcriber/pkg/vtt"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

func (u *usecase) StartTranscription(ctx context.Context, req *entity.StartTranscriptionRequest) (*entity.StartTranscriptionResponse, error) {
	log := logger.FromContext(ctx)

	audioURL := strings.TrimSpace(req.AudioURL)
	if audioURL == "" {
		return nil, entity.Invalid("audio_url", "is required")
	}
	parsed, err := url.Parse(audioURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, entity.Invalid("audio_url", "must be an absolute http(s) URL")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = titleFromURL(parsed)
	}
	language := strings.TrimSpace(req.Language)

	jobID, err := u.transcriber.Start(ctx, audioURL, language)
	if err != nil {
		return nil, err
	}

	row := &entity.Transcription{
		ID:       u.ids.NextString(),
		JobID:    jobID,
		Title:    title,
		AudioURL: audioURL,
		Language: language,
		Status:   entity.StatusPending,
	}
	if err := u.storage.CreateTranscription(ctx, row); err != nil {
		if delErr := u.transcriber.Delete(ctx, jobID); delErr != nil {
			log.Warn("failed to clean up orphaned job", slog.String("job_id", jobID), slog.String("error", delErr.Error()))
		}
		return nil, err
	}

	log.Info("transcription started",
		slog.String("db_id", row.ID),
		slog.String("job_id", jobID),
		slog.String("title", title))

	return &entity.StartTranscriptionResponse{
		JobID: jobID,
		DBID:  row.ID,
	}, nil
}

// GetStatus answers from the stored row once it is terminal. Otherwise it asks
// the provider and, when the job has just finished, finalises the row.
func (u *usecase) GetStatus(ctx context.Context, jobID, dbID string) (*entity.JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, entity.Invalid("transcription_id", "is required")
	}

	row, err := u.lookup(ctx, jobID, dbID)
	if err != nil {
		return nil, err
	}
	if row != nil && row.Status.Terminal() {
		return statusOf(row), nil
	}

	st, err := u.transcriber.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if row == nil || !st.Status.Terminal() {
		return st, nil
	}

	return u.finalise(ctx, row.ID, jobID, st)
}

func (u *usecase) finalise(ctx context.Context, id, jobID string, st *entity.JobStatus) (*entity.JobStatus, error) {
	log := logger.FromContext(ctx)

	unlock := u.jobs.Lock(jobID)
	defer unlock()

	row, err := u.storage.GetTranscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if row.Status.Terminal() {
		return statusOf(row), nil
	}

	switch st.Status {
	case entity.StatusCompleted:
		res, err := u.transcriber.Result(ctx, jobID)
		if err != nil {
			return nil, err
		}

		text, vttContent := u.derive(res.Tokens)
		if text == "" {
			text = strings.TrimSpace(res.Text)
		}
		raw, err := entity.EncodeRawResult(entity.ProviderSoniox, res.Tokens)
		if err != nil {
			return nil, err
		}

		if err := u.storage.CompleteTranscription(ctx, id, text, vttContent, raw); err != nil {
			return nil, err
		}
		log.Info("transcription completed",
			slog.String("db_id", id),
			slog.String("job_id", jobID),
			slog.Int("tokens", len(res.Tokens)))

		if err := u.transcriber.Delete(ctx, jobID); err != nil {
			log.Warn("failed to delete finished job", slog.String("job_id", jobID), slog.String("error", err.Error()))
		}

	case entity.StatusError:
		msg := "Unknown error"
		if st.ErrorMessage != nil && *st.ErrorMessage != "" {
			msg = *st.ErrorMessage
		}
		if err := u.storage.FailTranscription(ctx, id, msg); err != nil {
			return nil, err
		}
		log.Warn("transcription failed",
			slog.String("db_id", id),
			slog.String("job_id", jobID),
			slog.String("error_message", msg))
	}

	return st, nil
}

func (u *usecase) GetTranscript(ctx context.Context, jobID, dbID string) (string, error) {
	row, err := u.finishedRow(ctx, jobID, dbID)
	if err != nil {
		return "", err
	}

	if row == nil {
		res, err := u.transcriber.Result(ctx, jobID)
		if err != nil {
			return "", err
		}
		if text := vtt.PlainText(res.Tokens); text != "" {
			return text, nil
		}
		return strings.TrimSpace(res.Text), nil
	}

	if row.TranscriptText == nil {
		return "", nil
	}
	return *row.TranscriptText, nil
}

func (u *usecase) GetVTT(ctx context.Context, jobID, dbID string) (string, error) {
	row, err := u.finishedRow(ctx, jobID, dbID)
	if err != nil {
		return "", err
	}

	if row == nil {
		res, err := u.transcriber.Result(ctx, jobID)
		if err != nil {
			return "", err
		}
		return vtt.Build(res.Tokens, u.cfg.VTTWordsPerCue), nil
	}

	if row.VTTContent == nil {
		return vtt.Format(nil), nil
	}
	return *row.VTTContent, nil
}

// finishedRow returns the completed row for the job, nil when the job is not
// tracked locally, or an error when the job has not completed.
func (u *usecase) finishedRow(ctx context.Context, jobID, dbID string) (*entity.Transcription, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, entity.Invalid("transcription_id", "is required")
	}

	row, err := u.lookup(ctx, jobID, dbID)
	if err != nil || row == nil {
		return nil, err
	}

	if !row.Status.Terminal() {
		if _, err := u.GetStatus(ctx, jobID, row.ID); err != nil {
			return nil, err
		}
		if row, err = u.storage.GetTranscription(ctx, row.ID); err != nil {
			return nil, err
		}
	}

	switch row.Status {
	case entity.StatusCompleted:
		return row, nil
	case entity.StatusError:
		msg := "unknown error"
		if row.ErrorMessage != nil {
			msg = *row.ErrorMessage
		}
		return nil, fmt.Errorf("transcription failed (%s): %w", msg, entity.ErrNotReady)
	default:
		return nil, entity.ErrNotReady
	}
}

// WaitForCompletion polls until the job is terminal or ctx ends.
func (u *usecase) WaitForCompletion(ctx context.Context, jobID, dbID string, interval time.Duration) (*entity.JobStatus, error) {
	if interval <= 0 {
		interval = u.cfg.PollInterval
	}

	var last *entity.JobStatus
	err := poll.Until(ctx, interval, func(ctx context.Context) (bool, error) {
		st, err := u.GetStatus(ctx, jobID, dbID)
		if err != nil {
			return false, err
		}
		last = st
		return st.Status.Terminal(), nil
	})
	if err != nil {
		return last, fmt.Errorf("waiting for job %s: %w", jobID, err)
	}

	return last, nil
}

func (u *usecase) ListTranscriptions(ctx context.Context) ([]*entity.Transcription, error) {
	return u.storage.ListTranscriptions(ctx)
}

func (u *usecase) GetTranscription(ctx context.Context, id string) (*entity.TranscriptionDetails, error) {
	row, err := u.storage.GetTranscription(ctx, id)
	if err != nil {
		return nil, err
	}

	translations, err := u.storage.ListTranslations(ctx, id)
	if err != nil {
		return nil, err
	}

	return &entity.TranscriptionDetails{
		Transcription: row,
		Translations:  translations,
	}, nil
}

func (u *usecase) GetStoredVTT(ctx context.Context, id string) (string, error) {
	row, err := u.storage.GetTranscription(ctx, id)
	if err != nil {
		return "", err
	}
	if row.VTTContent == nil {
		return "", fmt.Errorf("transcription %s has no subtitles: %w", id, entity.ErrNotReady)
	}

	return *row.VTTContent, nil
}

// RegenerateVTT rebuilds subtitles from the stored raw result.
func (u *usecase) RegenerateVTT(ctx context.Context, id string) (string, error) {
	raw, err := u.rawResult(ctx, id)
	if err != nil {
		return "", err
	}

	content := vtt.Build(raw.Tokens, u.cfg.VTTWordsPerCue)
	if err := u.storage.UpdateDerived(ctx, id, nil, &content); err != nil {
		return "", err
	}

	logger.FromContext(ctx).Info("regenerated vtt", slog.String("db_id", id), slog.Int("length", len(content)))
	return content, nil
}

// RegenerateText rebuilds the plain text from the stored raw result.
func (u *usecase) RegenerateText(ctx context.Context, id string) (string, error) {
	raw, err := u.rawResult(ctx, id)
	if err != nil {
		return "", err
	}

	text := vtt.PlainText(raw.Tokens)
	if err := u.storage.UpdateDerived(ctx, id, &text, nil); err != nil {
		return "", err
	}

	logger.FromContext(ctx).Info("regenerated text", slog.String("db_id", id), slog.Int("length", len(text)))
	return text, nil
}

func (u *usecase) rawResult(ctx context.Context, id string) (*entity.RawResult, error) {
	row, err := u.storage.GetTranscription(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := entity.DecodeRawResult(row.RawResult)
	if err != nil {
		return nil, fmt.Errorf("transcription %s: %w", id, err)
	}
	return raw, nil
}

// lookup finds the stored row for a job. A db_id that does not exist is an
// error; a job id with no row just means the job is not tracked locally.
func (u *usecase) lookup(ctx context.Context, jobID, dbID string) (*entity.Transcription, error) {
	if dbID != "" {
		row, err := u.storage.GetTranscription(ctx, dbID)
		if err != nil {
			return nil, err
		}
		if row.JobID != jobID {
			return nil, entity.Invalid("db_id", "does not belong to this transcription job")
		}
		return row, nil
	}

	row, err := u.storage.GetTranscriptionByJobID(ctx, jobID)
	if errors.Is(err, entity.ErrNotFound) {
		return nil, nil
	}
	return row, err
}

func (u *usecase) derive(tokens []vtt.Token) (string, string) {
	return vtt.PlainText(tokens), vtt.Build(tokens, u.cfg.VTTWordsPerCue)
}

func statusOf(row *entity.Transcription) *entity.JobStatus {
	return &entity.JobStatus{Status: row.Status, ErrorMessage: row.ErrorMessage}
}

func titleFromURL(u *url.URL) string {
	if base := path.Base(u.Path); base != "." && base != "/" {
		if unescaped, err := url.PathUnescape(base); err == nil {
			return unescaped
		}
		return base
	}
	return u.Host
}
