package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/huddleapp/huddle/backend/internal/registry"
	"github.com/huddleapp/huddle/backend/internal/session"
)

// API is the HTTP surface for session lifecycle: the explicit
// create/retire paths that the realtime core treats as external.
type API struct {
	registry *registry.Registry
	store    *session.Store
}

func New(reg *registry.Registry, store *session.Store) *API {
	return &API{
		registry: reg,
		store:    store,
	}
}

func (a *API) Routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", a.StatsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", a.CreateSessionHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions", a.ListSessionsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", a.GetSessionHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", a.DeleteSessionHandler).Methods(http.MethodDelete)
	return r
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"active_rooms":        a.registry.RoomCount(),
		"active_participants": a.registry.ParticipantCount(),
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
	}

	if storeStats, err := a.store.Stats(); err == nil {
		stats["total_sessions"] = storeStats["session_count"]
		stats["active_sessions"] = storeStats["active_session_count"]
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Session handlers

type SessionResponse struct {
	session.Session
	ActiveParticipants int `json:"active_participants"`
}

type CreateSessionRequest struct {
	ID          string     `json:"id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// CreateSessionHandler creates the durable record and its in-memory
// room in one go, so explicit creation never depends on a first join.
func (a *API) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.ID != "" {
		existing, err := a.store.Get(req.ID)
		if err != nil {
			errorResponse(w, http.StatusInternalServerError, "Failed to check session")
			return
		}
		if existing != nil {
			errorResponse(w, http.StatusConflict, "Session already exists")
			return
		}
	}

	var start, end time.Time
	if req.StartTime != nil {
		start = *req.StartTime
	}
	if req.EndTime != nil {
		end = *req.EndTime
	}

	sess, err := a.store.Create(req.ID, req.Title, req.Description, start, end)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	if _, err := a.registry.CreateRoom(sess.ID); err != nil && !errors.Is(err, registry.ErrRoomExists) {
		errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	jsonResponse(w, http.StatusCreated, SessionResponse{Session: *sess})
}

func (a *API) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	sessions, err := a.store.List(limit, offset)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	activeRooms := a.registry.ActiveRooms()

	response := make([]SessionResponse, len(sessions))
	for i, sess := range sessions {
		response[i] = SessionResponse{
			Session:            sess,
			ActiveParticipants: activeRooms[sess.ID],
		}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"sessions": response,
		"limit":    limit,
		"offset":   offset,
	})
}

func (a *API) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := a.store.Get(id)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if sess == nil {
		errorResponse(w, http.StatusNotFound, "Session not found")
		return
	}

	jsonResponse(w, http.StatusOK, SessionResponse{
		Session:            *sess,
		ActiveParticipants: a.registry.ActiveRooms()[id],
	})
}

// DeleteSessionHandler retires a session: the record goes away and the
// live room, if any, is torn down with its connections.
func (a *API) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := a.store.Get(id)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if sess == nil {
		errorResponse(w, http.StatusNotFound, "Session not found")
		return
	}

	if err := a.store.Delete(id); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	a.registry.RemoveRoom(id)

	jsonResponse(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
