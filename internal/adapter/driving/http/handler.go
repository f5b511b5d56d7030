package httphandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Szazlo/delphi/internal/application"
	"github.com/Szazlo/delphi/internal/domain/model"
)

// UserHeader carries the reviewer identity set by the fronting platform.
const UserHeader = "X-Delphi-User"

// maxEventBodyBytes bounds a single proposed event.
const maxEventBodyBytes = 1 << 20

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the review comment API.
type Handler struct {
	sessions *application.SessionService
	db       Pinger
	logger   *slog.Logger
}

// NewHandler creates a Handler. db may be nil, in which case the health
// check reports only process liveness.
func NewHandler(sessions *application.SessionService, db Pinger, logger *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		db:       db,
		logger:   logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/submissions/{submission}/files", h.ListFiles)
	mux.HandleFunc("GET /api/v1/submissions/{submission}/comments", h.ListComments)
	mux.HandleFunc("GET /api/v1/submissions/{submission}/threads", h.ListThreads)
	mux.HandleFunc("GET /api/v1/submissions/{submission}/suggestions", h.ListSuggestions)
	mux.HandleFunc("GET /api/v1/submissions/{submission}/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/submissions/{submission}/decorations", h.ListDecorations)
	mux.HandleFunc("POST /api/v1/submissions/{submission}/events", h.ProposeEvent)
	mux.HandleFunc("POST /api/v1/submissions/{submission}/reload", h.Reload)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns process liveness and, when configured, database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Error("health check database ping failed", "error", err)
			resp.Status = "degraded"
			resp.Database = "unreachable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Database = "ok"
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListFiles returns every file of a submission that has comment activity.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	submission := r.PathValue("submission")

	files, err := h.sessions.Files(r.Context(), submission)
	if err != nil {
		h.writeServiceError(w, "failed to list files", err, "submission", submission)
		return
	}
	if files == nil {
		files = []string{}
	}

	writeJSON(w, http.StatusOK, FilesResponse{Submission: submission, Files: files})
}

// fileParam returns the required file query parameter, writing a 400 when
// it is missing.
func fileParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	file := strings.TrimSpace(r.URL.Query().Get("file"))
	if file == "" {
		writeError(w, http.StatusBadRequest, "file query parameter is required")
		return "", false
	}
	return file, true
}

// userHeader returns the requesting user, writing a 401 when it is missing.
func userHeader(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := strings.TrimSpace(r.Header.Get(UserHeader))
	if user == "" {
		writeError(w, http.StatusUnauthorized, "missing "+UserHeader+" header")
		return "", false
	}
	return user, true
}

// writeServiceError maps application errors to HTTP status codes. Anything
// unrecognized is logged and reported as a 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, msg string, err error, attrs ...any) {
	switch {
	case errors.Is(err, model.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, application.ErrNotPermitted):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, application.ErrReadOnly):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error(msg, append(attrs, "error", err)...)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
