package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	config "github.com/xilidan/transcriber/config/transcriber"
	"github.com/xilidan/transcriber/pkg/json"
	"github.com/xilidan/transcriber/pkg/logger"
	"github.com/xilidan/transcriber/services/transcriber/entity"
	"github.com/xilidan/transcriber/services/transcriber/usecase"
	"github.com/xilidan/transcriber/services/transcriber/web"
)

// Tracker is told about every started job so it can be finalised in the
// background.
type Tracker interface {
	Track(jobID, dbID string)
}

type Handler struct {
	cfg     *config.Config
	usecase usecase.Usecase
	tracker Tracker
	log     *slog.Logger
}

func New(cfg *config.Config, usc usecase.Usecase, log *slog.Logger) *Handler {
	log.Debug("creating new handler")
	return &Handler{
		cfg:     cfg,
		usecase: usc,
		log:     log,
	}
}

// WithTracker enables background tracking of started jobs.
func (h *Handler) WithTracker(t Tracker) *Handler {
	h.tracker = t
	return h
}

func (h *Handler) Routes() http.Handler {
	h.log.Debug("registering HTTP routes")

	origins := h.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	router.Use(h.requestLogger)

	router.Get("/", web.Handler().ServeHTTP)
	router.Get("/health", h.HealthCheck)

	router.Post("/transcribe", h.StartTranscription)
	router.Route("/transcribe/{id}", func(r chi.Router) {
		r.Get("/status", h.GetStatus)
		r.Get("/transcript", h.GetTranscript)
		r.Get("/vtt", h.GetVTT)
	})

	router.Get("/transcriptions", h.ListTranscriptions)
	router.Route("/transcriptions/{id}", func(r chi.Router) {
		r.Get("/", h.GetTranscription)
		r.Get("/vtt", h.GetStoredVTT)
		r.Post("/regenerate-vtt", h.RegenerateVTT)
		r.Post("/regenerate-text", h.RegenerateText)
		r.Post("/translations", h.AddTranslation)
	})

	router.Get("/translations/{id}/vtt", h.GetTranslationVTT)

	h.log.Info("all routes registered successfully")
	return router
}

// requestLogger puts a request scoped logger into the context.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := h.log.With(
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), log)))
	})
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.usecase.Ping(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("health check failed", slog.String("error", err.Error()))
		json.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": false, "error": err.Error()})
		return
	}

	json.WriteJSON(w, http.StatusOK, map[string]bool{"status": true})
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.Int("status", status), slog.String("error", err.Error()))
	} else {
		log.Warn("request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}

	json.WriteError(w, status, err)
}

func statusFor(err error) int {
	var (
		vErr  *entity.ValidationError
		upErr *entity.UpstreamError
	)

	switch {
	case errors.As(err, &vErr):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrNotReady), errors.Is(err, entity.ErrNoRawResult):
		return http.StatusConflict
	case errors.Is(err, entity.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &upErr):
		if upErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
