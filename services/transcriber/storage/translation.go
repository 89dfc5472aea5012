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

const translationsTable = "translations"

var translationColumns = []string{
	"id", "transcription_id", "target_language", "translated_text", "translated_vtt",
	"partial", "failed_batches", "created_at",
}

func (s *storage) CreateTranslation(ctx context.Context, t *entity.Translation) error {
	log := logger.FromContext(ctx)

	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	query, args := entsql.Dialect(s.dialect).
		Insert(translationsTable).
		Columns(translationColumns...).
		Values(t.ID, t.TranscriptionID, t.TargetLanguage, t.TranslatedText, t.TranslatedVTT,
			t.Partial, t.FailedBatches, t.CreatedAt).
		Query()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		log.Error("failed to create translation", "error", err)
		return fmt.Errorf("failed to create translation: %w", err)
	}
	log.Debug("created translation",
		"id", t.ID,
		"transcription_id", t.TranscriptionID,
		"target_language", t.TargetLanguage,
		"partial", t.Partial)

	return nil
}

// ListTranslations returns the translations of one transcription, oldest
// first.
func (s *storage) ListTranslations(ctx context.Context, transcriptionID string) ([]*entity.Translation, error) {
	log := logger.FromContext(ctx)

	b := entsql.Dialect(s.dialect)
	query, args := b.Select(translationColumns...).
		From(b.Table(translationsTable)).
		Where(entsql.EQ("transcription_id", transcriptionID)).
		OrderBy("created_at", "id").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list translations", "error", err)
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}
	defer rows.Close()

	list := make([]*entity.Translation, 0)
	for rows.Next() {
		t, err := scanTranslation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan translation: %w", err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}

	return list, nil
}

func (s *storage) GetTranslation(ctx context.Context, id string) (*entity.Translation, error) {
	log := logger.FromContext(ctx)

	b := entsql.Dialect(s.dialect)
	query, args := b.Select(translationColumns...).
		From(b.Table(translationsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	t, err := scanTranslation(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("translation %s: %w", id, entity.ErrNotFound)
	}
	if err != nil {
		log.Error("failed to get translation", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get translation: %w", err)
	}

	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTranslation(row scanner) (*entity.Translation, error) {
	var (
		t   entity.Translation
		vtt sql.NullString
	)

	if err := row.Scan(&t.ID, &t.TranscriptionID, &t.TargetLanguage, &t.TranslatedText, &vtt,
		&t.Partial, &t.FailedBatches, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.TranslatedVTT = nullString(vtt)

	return &t, nil
}
