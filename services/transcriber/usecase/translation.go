package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/pkg/vtt"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

// AddTranslation stores a translation of a transcription. With AutoTranslate
// set the text and subtitles are translated by the configured provider;
// otherwise the caller supplies them.
func (u *usecase) AddTranslation(ctx context.Context, req *entity.AddTranslationRequest) (*entity.AddTranslationResponse, error) {
	log := logger.FromContext(ctx)

	target := strings.TrimSpace(req.TargetLanguage)
	if target == "" {
		return nil, entity.Invalid("target_language", "is required")
	}

	row, err := u.storage.GetTranscription(ctx, req.TranscriptionID)
	if err != nil {
		return nil, err
	}

	translation := &entity.Translation{
		ID:              u.ids.NextString(),
		TranscriptionID: row.ID,
		TargetLanguage:  target,
	}
	var batches []entity.BatchReport

	if req.AutoTranslate {
		if batches, err = u.autoTranslate(ctx, row, translation); err != nil {
			return nil, err
		}
	} else {
		if err := manualTranslation(req, translation); err != nil {
			return nil, err
		}
	}

	if err := u.storage.CreateTranslation(ctx, translation); err != nil {
		return nil, err
	}

	log.Info("translation added",
		slog.String("id", translation.ID),
		slog.String("transcription_id", row.ID),
		slog.String("target_language", target),
		slog.Bool("auto", req.AutoTranslate),
		slog.Bool("partial", translation.Partial))

	return &entity.AddTranslationResponse{
		Translation: translation,
		Batches:     batches,
	}, nil
}

func (u *usecase) autoTranslate(ctx context.Context, row *entity.Transcription, translation *entity.Translation) ([]entity.BatchReport, error) {
	if u.translator == nil {
		return nil, entity.ErrNotConfigured
	}
	if row.Status != entity.StatusCompleted || row.TranscriptText == nil {
		return nil, fmt.Errorf("transcription %s: %w", row.ID, entity.ErrNotReady)
	}

	text, err := u.translator.Translate(ctx, *row.TranscriptText, translation.TargetLanguage)
	if err != nil {
		return nil, err
	}
	translation.TranslatedText = text

	if row.VTTContent == nil {
		return nil, nil
	}

	res, err := u.translator.TranslateVTT(ctx, *row.VTTContent, translation.TargetLanguage)
	if err != nil {
		return nil, err
	}
	translation.TranslatedVTT = &res.Content
	translation.Partial = res.Partial()
	translation.FailedBatches = res.FailedBatches()

	return res.Batches, nil
}

func manualTranslation(req *entity.AddTranslationRequest, translation *entity.Translation) error {
	if strings.TrimSpace(req.TranslatedText) == "" {
		return entity.Invalid("translated_text", "is required")
	}
	translation.TranslatedText = req.TranslatedText

	if strings.TrimSpace(req.TranslatedVTT) != "" {
		if _, err := vtt.Parse(req.TranslatedVTT); err != nil {
			return entity.Invalid("translated_vtt", "is not a WebVTT document")
		}
		content := req.TranslatedVTT
		translation.TranslatedVTT = &content
	}

	return nil
}

func (u *usecase) GetTranslationVTT(ctx context.Context, id string) (string, error) {
	translation, err := u.storage.GetTranslation(ctx, id)
	if err != nil {
		return "", err
	}
	if translation.TranslatedVTT == nil {
		return "", fmt.Errorf("translation %s has no subtitles: %w", id, entity.ErrNotFound)
	}

	return *translation.TranslatedVTT, nil
}
