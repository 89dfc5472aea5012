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

func (h *Handler) StartTranscription(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req StartTranscriptionRequest
	if err := json.ParseJSON(r, &req); err != nil {
		writeError(w, r, entity.Invalid("", fmt.Sprintf("invalid request body: %s", err)))
		return
	}

	resp, err := h.usecase.StartTranscription(r.Context(), &entity.StartTranscriptionRequest{
		AudioURL: req.AudioURL,
		Title:    req.Title,
		Language: req.Language,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if h.tracker != nil {
		h.tracker.Track(resp.JobID, resp.DBID)
	}

	log.Info("transcription request accepted",
		slog.String("job_id", resp.JobID),
		slog.String("db_id", resp.DBID))
	json.WriteJSON(w, http.StatusOK, StartTranscriptionResponse{
		TranscriptionID: resp.JobID,
		DBID:            resp.DBID,
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.usecase.GetStatus(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("db_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, StatusResponse{
		Status:       st.Status,
		ErrorMessage: st.ErrorMessage,
	})
}

func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	text, err := h.usecase.GetTranscript(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("db_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	json.WriteJSON(w, http.StatusOK, TranscriptResponse{Text: text})
}

func (h *Handler) GetVTT(w http.ResponseWriter, r *http.Request) {
	content, err := h.usecase.GetVTT(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("db_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	json.WriteVTT(w, http.StatusOK, content)
}
