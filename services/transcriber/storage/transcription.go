package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

const transcriptionsTable = "transcriptions"

var (
	transcriptionColumns = []string{
		"id", "job_id", "title", "audio_url", "language", "status", "error_message",
		"transcript_text", "vtt_content", "raw_result", "created_at", "updated_at",
	}
	// the list view never needs the heavy columns
	transcriptionSummaryColumns = []string{
		"id", "job_id", "title", "audio_url", "language", "status", "error_message",
		"created_at", "updated_at",
	}
)

func (s *storage) CreateTranscription(ctx context.Context, t *entity.Transcription) error {
	log := logger.FromContext(ctx)

	now := s.now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Status == "" {
		t.Status = entity.StatusPending
	}

	var raw any
	if len(t.RawResult) > 0 {
		raw = string(t.RawResult)
	}

	query, args := entsql.Dialect(s.dialect).
		Insert(transcriptionsTable).
		Columns(transcriptionColumns...).
		Values(t.ID, t.JobID, t.Title, t.AudioURL, t.Language, string(t.Status), t.ErrorMessage,
			t.TranscriptText, t.VTTContent, raw, t.CreatedAt, t.UpdatedAt).
		Query()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to create transcription", "error", err)
		return fmt.Errorf("failed to create transcription: %w", err)
	}
	log.Debug("created transcription", "id", t.ID, "job_id", t.JobID)

	return nil
}

func (s *storage) CompleteTranscription(ctx context.Context, id, text, vttContent string, rawResult []byte) error {
	log := logger.FromContext(ctx)

	query, args := entsql.Dialect(s.dialect).
		Update(transcriptionsTable).
		Set("status", string(entity.StatusCompleted)).
		Set("transcript_text", text).
		Set("vtt_content", vttContent).
		Set("raw_result", string(rawResult)).
		SetNull("error_message").
		Set("updated_at", s.now()).
		Where(entsql.EQ("id", id)).
		Query()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to complete transcription", "error", err)
		return fmt.Errorf("failed to complete transcription: %w", err)
	}
	log.Debug("completed transcription", "id", id, "text_length", len(text))

	return rowsAffected(res, id)
}

func (s *storage) FailTranscription(ctx context.Context, id, message string) error {
	log := logger.FromContext(ctx)

	query, args := entsql.Dialect(s.dialect).
		Update(transcriptionsTable).
		Set("status", string(entity.StatusError)).
		Set("error_message", message).
		Set("updated_at", s.now()).
		Where(entsql.EQ("id", id)).
		Query()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to mark transcription as failed", "error", err)
		return fmt.Errorf("failed to mark transcription as failed: %w", err)
	}

	return rowsAffected(res, id)
}

// UpdateDerived stores regenerated text and/or subtitles. Nil arguments leave
// the column untouched.
func (s *storage) UpdateDerived(ctx context.Context, id string, text, vttContent *string) error {
	log := logger.FromContext(ctx)

	upd := entsql.Dialect(s.dialect).
		Update(transcriptionsTable).
		Set("updated_at", s.now()).
		Where(entsql.EQ("id", id))
	if text != nil {
		upd.Set("transcript_text", *text)
	}
	if vttContent != nil {
		upd.Set("vtt_content", *vttContent)
	}

	query, args := upd.Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to update transcription", "error", err)
		return fmt.Errorf("failed to update transcription: %w", err)
	}

	return rowsAffected(res, id)
}

func (s *storage) GetTranscription(ctx context.Context, id string) (*entity.Transcription, error) {
	return s.getTranscription(ctx, "id", id)
}

func (s *storage) GetTranscriptionByJobID(ctx context.Context, jobID string) (*entity.Transcription, error) {
	return s.getTranscription(ctx, "job_id", jobID)
}

func (s *storage) getTranscription(ctx context.Context, column, value string) (*entity.Transcription, error) {
	log := logger.FromContext(ctx)

	b := entsql.Dialect(s.dialect)
	query, args := b.Select(transcriptionColumns...).
		From(b.Table(transcriptionsTable)).
		Where(entsql.EQ(column, value)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1).
		Query()

	t, err := scanTranscription(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transcription %s: %w", value, entity.ErrNotFound)
	}
	if err != nil {
		log.Error("failed to get transcription", "error", err, column, value)
		return nil, fmt.Errorf("failed to get transcription: %w", err)
	}

	return t, nil
}

// ListTranscriptions returns summaries, most recent first.
func (s *storage) ListTranscriptions(ctx context.Context) ([]*entity.Transcription, error) {
	log := logger.FromContext(ctx)

	b := entsql.Dialect(s.dialect)
	query, args := b.Select(transcriptionSummaryColumns...).
		From(b.Table(transcriptionsTable)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list transcriptions", "error", err)
		return nil, fmt.Errorf("failed to list transcriptions: %w", err)
	}
	defer rows.Close()

	list := make([]*entity.Transcription, 0)
	for rows.Next() {
		var (
			t      entity.Transcription
			status string
			errMsg sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.JobID, &t.Title, &t.AudioURL, &t.Language, &status, &errMsg,
			&t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transcription: %w", err)
		}
		t.Status = entity.Status(status)
		t.ErrorMessage = nullString(errMsg)
		list = append(list, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transcriptions: %w", err)
	}

	return list, nil
}

func scanTranscription(row scanner) (*entity.Transcription, error) {
	var (
		t                     entity.Transcription
		status                string
		errMsg, text, vttText sql.NullString
		raw                   sql.NullString
	)

	if err := row.Scan(&t.ID, &t.JobID, &t.Title, &t.AudioURL, &t.Language, &status, &errMsg,
		&text, &vttText, &raw, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	t.Status = entity.Status(status)
	t.ErrorMessage = nullString(errMsg)
	t.TranscriptText = nullString(text)
	t.VTTContent = nullString(vttText)
	if raw.Valid && raw.String != "" {
		t.RawResult = []byte(raw.String)
	}

	return &t, nil
}
