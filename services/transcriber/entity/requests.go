package entity

type (
	StartTranscriptionRequest struct {
		AudioURL string
		Title    string
		Language string
	}

	StartTranscriptionResponse struct {
		JobID string
		DBID  string
	}

	TranscriptionDetails struct {
		Transcription *Transcription
		Translations  []*Translation
	}

	AddTranslationRequest struct {
		TranscriptionID string
		TargetLanguage  string
		TranslatedText  string
		TranslatedVTT   string
		AutoTranslate   bool
	}

	AddTranslationResponse struct {
		Translation *Translation
		Batches     []BatchReport
	}
)
