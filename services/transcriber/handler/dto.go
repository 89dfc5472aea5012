package handler

import (
	"time"

	"github.com/xilidan/transcriber/services/transcriber/entity"
)

type (
	StartTranscriptionRequest struct {
		AudioURL string `json:"audio_url"`
		Title    string `json:"title"`
		Language string `json:"language"`
	}

	StartTranscriptionResponse struct {
		TranscriptionID string `json:"transcription_id"`
		DBID            string `json:"db_id"`
	}

	StatusResponse struct {
		Status       entity.Status `json:"status"`
		ErrorMessage *string       `json:"error_message,omitempty"`
	}

	TranscriptResponse struct {
		Text string `json:"text"`
	}

	ListTranscriptionsResponse struct {
		Transcriptions []Transcription `json:"transcriptions"`
	}

	GetTranscriptionResponse struct {
		Transcription Transcription `json:"transcription"`
		Translations  []Translation `json:"translations"`
	}

	RegenerateVTTResponse struct {
		VTTContent string `json:"vtt_content"`
	}

	RegenerateTextResponse struct {
		TranscriptText string `json:"transcript_text"`
	}

	AddTranslationRequest struct {
		TargetLanguage string `json:"target_language"`
		TranslatedText string `json:"translated_text"`
		TranslatedVTT  string `json:"translated_vtt"`
		AutoTranslate  bool   `json:"auto_translate"`
	}

	AddTranslationResponse struct {
		Translation Translation   `json:"translation"`
		Batches     []BatchReport `json:"batches,omitempty"`
	}

	Transcription struct {
		ID             string        `json:"id"`
		JobID          string        `json:"job_id"`
		Title          string        `json:"title"`
		AudioURL       string        `json:"audio_url"`
		Language       string        `json:"language"`
		Status         entity.Status `json:"status"`
		ErrorMessage   *string       `json:"error_message,omitempty"`
		TranscriptText *string       `json:"transcript_text,omitempty"`
		VTTContent     *string       `json:"vtt_content,omitempty"`
		HasRawResult   bool          `json:"has_raw_result"`
		CreatedAt      time.Time     `json:"created_at"`
		UpdatedAt      time.Time     `json:"updated_at"`
	}

	Translation struct {
		ID              string    `json:"id"`
		TranscriptionID string    `json:"transcription_id"`
		TargetLanguage  string    `json:"target_language"`
		TranslatedText  string    `json:"translated_text"`
		TranslatedVTT   *string   `json:"translated_vtt,omitempty"`
		Partial         bool      `json:"partial"`
		FailedBatches   int       `json:"failed_batches"`
		CreatedAt       time.Time `json:"created_at"`
	}

	BatchReport struct {
		Index      int    `json:"index"`
		FirstLine  int    `json:"first_line"`
		LineCount  int    `json:"line_count"`
		Translated bool   `json:"translated"`
		Reason     string `json:"reason,omitempty"`
	}
)

func makeTranscription(t *entity.Transcription) Transcription {
	return Transcription{
		ID:             t.ID,
		JobID:          t.JobID,
		Title:          t.Title,
		AudioURL:       t.AudioURL,
		Language:       t.Language,
		Status:         t.Status,
		ErrorMessage:   t.ErrorMessage,
		TranscriptText: t.TranscriptText,
		VTTContent:     t.VTTContent,
		HasRawResult:   len(t.RawResult) > 0,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func makeTranslation(t *entity.Translation) Translation {
	return Translation{
		ID:              t.ID,
		TranscriptionID: t.TranscriptionID,
		TargetLanguage:  t.TargetLanguage,
		TranslatedText:  t.TranslatedText,
		TranslatedVTT:   t.TranslatedVTT,
		Partial:         t.Partial,
		FailedBatches:   t.FailedBatches,
		CreatedAt:       t.CreatedAt,
	}
}

func makeBatchReports(batches []entity.BatchReport) []BatchReport {
	if len(batches) == 0 {
		return nil
	}

	out := make([]BatchReport, len(batches))
	for i, b := range batches {
		out[i] = BatchReport{
			Index:      b.Index,
			FirstLine:  b.FirstLine,
			LineCount:  b.LineCount,
			Translated: b.Translated,
			Reason:     b.Reason,
		}
	}
	return out
}
