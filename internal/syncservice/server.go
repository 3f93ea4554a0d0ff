package syncservice

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 10 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the sync API. It stores notebook text and metadata only and runs no models.
type Server struct {
	store Store
	auth  Authenticator
	now   func() time.Time
}

func NewServer(store Store, auth Authenticator) *Server {
	return &Server{store: store, auth: auth, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/sync/status", s.withUser(s.handleStatus))
	mux.HandleFunc("POST /api/sync/notebooks", s.withUser(s.handlePushNotebook))
	mux.HandleFunc("GET /api/sync/notebooks", s.withUser(s.handleListNotebooks))
	mux.HandleFunc("GET /api/sync/notebooks/{id}", s.withUser(s.handleGetNotebook))
	mux.HandleFunc("DELETE /api/sync/notebooks/{id}", s.withUser(s.handleDeleteNotebook))
	mux.HandleFunc("POST /api/sync/conversations", s.withUser(s.handlePushConversation))
	mux.HandleFunc("GET /api/sync/conversations", s.withUser(s.handleListConversations))
	mux.HandleFunc("PUT /api/sync/settings", s.withUser(s.handlePutSettings))
	mux.HandleFunc("GET /api/sync/settings", s.withUser(s.handleGetSettings))
	return accessLog(mux)
}

type userHandler func(w http.ResponseWriter, r *http.Request, id Identity)

func (s *Server) withUser(h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.auth.Authenticate(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid authentication credentials"})
			return
		}
		h(w, r, id)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: what + " not found"})
		return
	}
	log.Error().Err(err).Str("op", what).Msg("Sync request failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "sync",
		"message":   "Clarity Sync Service - Metadata & Backup Only (No AI Processing)",
		"timestamp": s.now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, id Identity) {
	user, err := s.store.EnsureUser(r.Context(), id.UserID, id.Email)
	if err != nil {
		s.fail(w, err, "user")
		return
	}
	nbs, convs, err := s.store.Counts(r.Context(), id.UserID)
	if err != nil {
		s.fail(w, err, "status")
		return
	}
	writeJSON(w, http.StatusOK, Status{
		UserID:              id.UserID,
		LastSync:            user.LastSync,
		NotebooksSynced:     nbs,
		ConversationsSynced: convs,
		Status:              "connected",
	})
}

func (s *Server) handlePushNotebook(w http.ResponseWriter, r *http.Request, id Identity) {
	var req NotebookRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "id is required"})
		return
	}
	if _, err := s.store.EnsureUser(r.Context(), id.UserID, id.Email); err != nil {
		s.fail(w, err, "user")
		return
	}
	nb, err := s.store.UpsertNotebook(r.Context(), id.UserID, req, s.now())
	if err != nil {
		s.fail(w, err, "notebook")
		return
	}
	log.Info().Str("user", id.UserID).Str("notebook", nb.ID).Str("device", nb.DeviceID).Msg("Synced notebook")
	writeJSON(w, http.StatusOK, Ack{Status: "synced", NotebookID: nb.ID, UpdatedAt: &nb.UpdatedAt})
}

func (s *Server) handleListNotebooks(w http.ResponseWriter, r *http.Request, id Identity) {
	nbs, err := s.store.ListNotebooks(r.Context(), id.UserID)
	if err != nil {
		s.fail(w, err, "notebooks")
		return
	}
	if nbs == nil {
		nbs = []Notebook{}
	}
	writeJSON(w, http.StatusOK, map[string][]Notebook{"notebooks": nbs})
}

func (s *Server) handleGetNotebook(w http.ResponseWriter, r *http.Request, id Identity) {
	nb, err := s.store.GetNotebook(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		s.fail(w, err, "notebook")
		return
	}
	writeJSON(w, http.StatusOK, nb)
}

func (s *Server) handleDeleteNotebook(w http.ResponseWriter, r *http.Request, id Identity) {
	nbID := r.PathValue("id")
	if err := s.store.DeleteNotebook(r.Context(), id.UserID, nbID); err != nil {
		s.fail(w, err, "notebook")
		return
	}
	writeJSON(w, http.StatusOK, Ack{Status: "deleted", NotebookID: nbID})
}

func (s *Server) handlePushConversation(w http.ResponseWriter, r *http.Request, id Identity) {
	var req ConversationRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "id is required"})
		return
	}
	if _, err := s.store.AddConversation(r.Context(), id.UserID, req, s.now()); err != nil {
		s.fail(w, err, "conversation")
		return
	}
	writeJSON(w, http.StatusOK, Ack{Status: "synced", ConversationID: req.ID})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, id Identity) {
	convs, err := s.store.ListConversations(r.Context(), id.UserID, r.URL.Query().Get("notebook_id"))
	if err != nil {
		s.fail(w, err, "conversations")
		return
	}
	if convs == nil {
		convs = []Conversation{}
	}
	writeJSON(w, http.StatusOK, map[string][]Conversation{"conversations": convs})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request, id Identity) {
	var req SettingsRequest
	if !readJSON(w, r, &req) {
		return
	}
	if !json.Valid([]byte(req.SettingsJSON)) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "settings_json must be valid JSON"})
		return
	}
	st, err := s.store.PutSettings(r.Context(), id.UserID, req.SettingsJSON, s.now())
	if err != nil {
		s.fail(w, err, "settings")
		return
	}
	writeJSON(w, http.StatusOK, Ack{Status: "synced", UpdatedAt: st.UpdatedAt})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request, id Identity) {
	st, err := s.store.GetSettings(r.Context(), id.UserID)
	if errors.Is(err, ErrNotFound) {
		writeJSON(w, http.StatusOK, Settings{SettingsJSON: "{}"})
		return
	}
	if err != nil {
		s.fail(w, err, "settings")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	})
}
