package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/livhair/schedule-engine/internal/realtime"
	"github.com/livhair/schedule-engine/internal/session"
	"github.com/livhair/schedule-engine/pkg/logging"
)

// SessionIDHeader carries the browser session id on session-scoped calls.
const SessionIDHeader = "X-Session-ID"

// SessionHandler serves per-session context and the recent activity feed.
// Both degrade gracefully when Redis is not configured.
type SessionHandler struct {
	sessions *session.Store
	activity *session.ActivityLog
	logger   *logging.Logger
}

// NewSessionHandler creates a session handler. Either store may be nil.
func NewSessionHandler(sessions *session.Store, activity *session.ActivityLog, logger *logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionHandler{
		sessions: sessions,
		activity: activity,
		logger:   logger,
	}
}

func sessionID(r *http.Request) string {
	return r.Header.Get(SessionIDHeader)
}

// GetLastViewed returns the stored "last viewed patient" context, or 204
// when nothing is stored.
func (h *SessionHandler) GetLastViewed(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		http.Error(w, "missing "+SessionIDHeader+" header", http.StatusBadRequest)
		return
	}
	lv, err := h.sessions.LastViewed(r.Context(), sid)
	if err != nil {
		h.logger.Error("load last viewed failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if lv == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, lv)
}

// PutLastViewed stores the context for the session.
func (h *SessionHandler) PutLastViewed(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		http.Error(w, "missing "+SessionIDHeader+" header", http.StatusBadRequest)
		return
	}
	var lv session.LastViewed
	if err := json.NewDecoder(r.Body).Decode(&lv); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := h.sessions.SaveLastViewed(r.Context(), sid, lv); err != nil {
		h.logger.Error("save last viewed failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteLastViewed clears the stored context.
func (h *SessionHandler) DeleteLastViewed(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		http.Error(w, "missing "+SessionIDHeader+" header", http.StatusBadRequest)
		return
	}
	if err := h.sessions.ClearLastViewed(r.Context(), sid); err != nil {
		h.logger.Error("clear last viewed failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activity returns the recent activity ring, newest first. ?limit= caps the
// result.
func (h *SessionHandler) Activity(w http.ResponseWriter, r *http.Request) {
	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			http.Error(w, "limit must be a non-negative number", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	events, err := h.activity.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("load activity failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []realtime.ActivityEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
