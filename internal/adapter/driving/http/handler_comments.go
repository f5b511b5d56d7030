package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Szazlo/delphi/internal/application"
)

// ListComments returns the live comments of one file, ordered by line.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	submission := r.PathValue("submission")
	file, ok := fileParam(w, r)
	if !ok {
		return
	}

	comments, err := h.sessions.Comments(r.Context(), submission, file)
	if err != nil {
		h.writeServiceError(w, "failed to list comments", err, "submission", submission, "file", file)
		return
	}

	resp := make([]CommentResponse, 0, len(comments))
	for _, cs := range comments {
		resp = append(resp, toCommentResponse(cs))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListThreads returns one file's comments grouped into reply threads.
func (h *Handler) ListThreads(w http.ResponseWriter, r *http.Request) {
	submission := r.PathValue("submission")
	file, ok := fileParam(w, r)
	if !ok {
		return
	}

	threads, err := h.sessions.Threads(r.Context(), submission, file)
	if err != nil {
		h.writeServiceError(w, "failed to list threads", err, "submission", submission, "file", file)
		return
	}

	resp := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		resp = append(resp, toThreadResponse(t))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListSuggestions returns the proposed code blocks of one file.
func (h *Handler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	submission := r.PathValue("submission")
	file, ok := fileParam(w, r)
	if !ok {
		return
	}

	suggestions, err := h.sessions.Suggestions(r.Context(), submission, file)
	if err != nil {
		h.writeServiceError(w, "failed to list suggestions", err, "submission", submission, "file", file)
		return
	}

	resp := make([]SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		resp = append(resp, toSuggestionResponse(s))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListEvents returns one file's event log in append order.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	submission := r.PathValue("submission")
	file, ok := fileParam(w, r)
	if !ok {
		return
	}

	events, err := h.sessions.Events(r.Context(), submission, file)
	if err != nil {
		h.writeServiceError(w, "failed to list events", err, "submission", submission, "file", file)
		return
	}

	resp := make([]EventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEventResponse(e))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListDecorations returns what the editor should draw for one file, with
// edit and delete affordances computed for the requesting user.
func (h *Handler) ListDecorations(w http.ResponseWriter, r *http.Request) {
	submission := r.PathValue("submission")
	file, ok := fileParam(w, r)
	if !ok {
		return
	}
	user, ok := userHeader(w, r)
	if !ok {
		return
	}

	decorations, err := h.sessions.Decorations(r.Context(), submission, file, user)
	if err != nil {
		h.writeServiceError(w, "failed to list decorations", err, "submission", submission, "file", file)
		return
	}

	resp := make([]DecorationResponse, 0, len(decorations))
	for _, d := range decorations {
		resp = append(resp, toDecorationResponse(d))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ProposeEvent stamps and records a create, edit, or delete proposal as the
// requesting user. A store failure after the event was recorded still answers
// 201, with persisted set to false.
func (h *Handler) ProposeEvent(w http.ResponseWriter, r *http.Request) {
	submission := r.PathValue("submission")
	user, ok := userHeader(w, r)
	if !ok {
		return
	}

	var req ProposeEventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.sessions.Propose(r.Context(), submission, user, req.toProposedEvent())
	persisted := true
	if errors.Is(err, application.ErrNotPersisted) {
		h.logger.Warn("event recorded but not persisted", "submission", submission,
			"event_id", event.ID, "error", err)
		persisted, err = false, nil
	}
	if err != nil {
		h.writeServiceError(w, "failed to record event", err,
			"submission", submission, "file", req.FilePath, "type", req.Type, "user", user)
		return
	}

	writeJSON(w, http.StatusCreated, ProposeEventResponse{EventResponse: toEventResponse(event), Persisted: persisted})
}

// Reload rebuilds one file's session from the event store.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	submission := r.PathValue("submission")
	file, ok := fileParam(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Reload(r.Context(), submission, file); err != nil {
		h.writeServiceError(w, "failed to reload session", err, "submission", submission, "file", file)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
