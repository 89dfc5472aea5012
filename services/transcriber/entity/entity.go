package entity

import (
	"time"

	"github.com/xilidan/transcriber/pkg/vtt"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

type (
	Transcription struct {
		ID             string
		JobID          string
		Title          string
		AudioURL       string
		Language       string
		Status         Status
		ErrorMessage   *string
		TranscriptText *string
		VTTContent     *string
		RawResult      []byte
		CreatedAt      time.Time
		UpdatedAt      time.Time
	}

	Translation struct {
		ID              string
		TranscriptionID string
		TargetLanguage  string
		TranslatedText  string
		TranslatedVTT   *string
		Partial         bool
		FailedBatches   int
		CreatedAt       time.Time
	}

	// TranscriptResult is a finished recognizer transcript: the provider's
	// text plus the token stream subtitles are built from.
	TranscriptResult struct {
		Text   string
		Tokens []vtt.Token
	}

	JobStatus struct {
		Status       Status
		ErrorMessage *string
	}

	// BatchReport describes how one batch of subtitle lines was translated.
	// Translated is false when the batch fell back to the source lines.
	BatchReport struct {
		Index      int
		FirstLine  int
		LineCount  int
		Translated bool
		Reason     string
	}

	VTTTranslation struct {
		Content string
		Batches []BatchReport
	}
)

func (v *VTTTranslation) FailedBatches() int {
	failed := 0
	for _, b := range v.Batches {
		if !b.Translated {
			failed++
		}
	}
	return failed
}

func (v *VTTTranslation) Partial() bool {
	return v.FailedBatches() > 0
}
