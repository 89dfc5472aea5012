package usecase

import (
	"context"
	"time"

	config "github.com/xilidan/transcriber/config/transcriber"
	"github.com/xilidan/transcriber/pkg/gen"
	"github.com/xilidan/transcriber/services/transcriber/entity"
	"github.com/xilidan/transcriber/services/transcriber/storage"
)

// Transcriber is the speech-to-text provider.
type Transcriber interface {
	Start(ctx context.Context, audioURL, language string) (string, error)
	Status(ctx context.Context, jobID string) (*entity.JobStatus, error)
	Result(ctx context.Context, jobID string) (*entity.TranscriptResult, error)
	Delete(ctx context.Context, jobID string) error
}

// Translator is the LLM translation provider.
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	TranslateVTT(ctx context.Context, content, targetLanguage string) (*entity.VTTTranslation, error)
}

type Usecase interface {
	StartTranscription(ctx context.Context, req *entity.StartTranscriptionRequest) (*entity.StartTranscriptionResponse, error)
	GetStatus(ctx context.Context, jobID, dbID string) (*entity.JobStatus, error)
	GetTranscript(ctx context.Context, jobID, dbID string) (string, error)
	GetVTT(ctx context.Context, jobID, dbID string) (string, error)
	WaitForCompletion(ctx context.Context, jobID, dbID string, interval time.Duration) (*entity.JobStatus, error)

	ListTranscriptions(ctx context.Context) ([]*entity.Transcription, error)
	GetTranscription(ctx context.Context, id string) (*entity.TranscriptionDetails, error)
	GetStoredVTT(ctx context.Context, id string) (string, error)
	RegenerateVTT(ctx context.Context, id string) (string, error)
	RegenerateText(ctx context.Context, id string) (string, error)

	AddTranslation(ctx context.Context, req *entity.AddTranslationRequest) (*entity.AddTranslationResponse, error)
	GetTranslationVTT(ctx context.Context, id string) (string, error)

	Ping(ctx context.Context) error
}

type usecase struct {
	cfg         *config.Config
	storage     storage.Storage
	transcriber Transcriber
	translator  Translator
	ids         gen.IDGenerator
	jobs        *keyedMutex
}

// New wires the usecase. translator may be nil, in which case automatic
// translation reports entity.ErrNotConfigured.
func New(cfg *config.Config, storage storage.Storage, transcriber Transcriber, translator Translator) Usecase {
	return &usecase{
		cfg:         cfg,
		storage:     storage,
		transcriber: transcriber,
		translator:  translator,
		ids:         gen.UUID(),
		jobs:        newKeyedMutex(),
	}
}

func (u *usecase) Ping(ctx context.Context) error {
	return u.storage.Ping(ctx)
}
