package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xilidan/transcriber/pkg/json"
	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/services/transcriber/entity"
)

func (h *Handler) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	list, err := h.usecase.ListTranscriptions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := ListTranscriptionsResponse{Transcriptions: make([]Transcription, 0, len(list))}
	for _, t := range list {
		resp.Transcriptions = append(resp.Transcriptions, makeTranscription(t))
	}

	json.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	details, err := h.usecase.GetTranscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := GetTranscriptionResponse{
		Transcription: makeTranscription(details.Transcription),
		Translations:  make([]Translation, 0, len(details.Translations)),
	}
	for _, t := range details.Translations {
		resp.Translations = append(resp.Translations, makeTranslation(t))
	}

	json.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetStoredVTT(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	content, err := h.usecase.GetStoredVTT(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	attachment(w, "transcription-"+id+".vtt")
	json.WriteVTT(w, http.StatusOK, content)
}

func (h *Handler) RegenerateVTT(w http.ResponseWriter, r *http.Request) {
	content, err := h.usecase.RegenerateVTT(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, RegenerateVTTResponse{VTTContent: content})
}

func (h *Handler) RegenerateText(w http.ResponseWriter, r *http.Request) {
	text, err := h.usecase.RegenerateText(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, RegenerateTextResponse{TranscriptText: text})
}

func (h *Handler) AddTranslation(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req AddTranslationRequest
	if err := json.ParseJSON(r, &req); err != nil {
		writeError(w, r, entity.Invalid("", fmt.Sprintf("invalid request body: %s", err)))
		return
	}

	resp, err := h.usecase.AddTranslation(r.Context(), &entity.AddTranslationRequest{
		TranscriptionID: chi.URLParam(r, "id"),
		TargetLanguage:  req.TargetLanguage,
		TranslatedText:  req.TranslatedText,
		TranslatedVTT:   req.TranslatedVTT,
		AutoTranslate:   req.AutoTranslate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info("translation created",
		slog.String("id", resp.Translation.ID),
		slog.Bool("partial", resp.Translation.Partial))
	json.WriteJSON(w, http.StatusCreated, AddTranslationResponse{
		Translation: makeTranslation(resp.Translation),
		Batches:     makeBatchReports(resp.Batches),
	})
}

func (h *Handler) GetTranslationVTT(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	content, err := h.usecase.GetTranslationVTT(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	attachment(w, "translation-"+id+".vtt")
	json.WriteVTT(w, http.StatusOK, content)
}

func attachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}
