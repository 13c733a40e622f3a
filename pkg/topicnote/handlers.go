package topicnote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/topicnote/topicnote/pkg/auth"
	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/sharing"
	"github.com/topicnote/topicnote/pkg/store"
)

// maxBodyBytes bounds request bodies; a batch of topics is the largest.
const maxBodyBytes = 8 << 20

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if err := a.remote.Ping(ctx); err != nil {
		a.log.Warn().Err(err).Msg("health check: database unreachable")
		status["status"] = "unhealthy"
		status["database"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleListTopics returns the caller's topics, most recently updated first.
//
// HTTP Method: GET
// Endpoint: /api/topics
func (a *App) handleListTopics(w http.ResponseWriter, r *http.Request) {
	rows, err := a.remote.ListTopics(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	if rows == nil {
		rows = []models.RemoteTopic{}
	}
	respondJSON(w, http.StatusOK, rows)
}

// handleUpsertTopics stores a batch of wire rows for the caller. Rows whose
// timestamps do not parse reject the whole batch. A stored row only gives way
// to one whose updated_at is not older, and rows of other users are never
// touched.
//
// HTTP Method: POST
// Endpoint: /api/topics/batch
//
// Response:
//   - 204 No Content: batch stored
//   - 400 Bad Request: invalid JSON or timestamps
func (a *App) handleUpsertTopics(w http.ResponseWriter, r *http.Request) {
	var rows []models.RemoteTopic
	if !decodeBody(w, r, &rows) {
		return
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			respondError(w, http.StatusBadRequest, "topic id is required")
			return
		}
		if _, err := row.ToLocal(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		ids = append(ids, row.ID)
	}
	if len(rows) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	userID := auth.UserID(r.Context())
	if err := a.remote.UpsertTopics(r.Context(), userID, rows); err != nil {
		a.respondFailure(w, err)
		return
	}
	a.hub.TopicsChanged(userID, ids, false)
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteTopics deletes the caller's topics by id. Unknown ids are
// ignored.
//
// HTTP Method: POST
// Endpoint: /api/topics/delete
// Body: {"ids": ["..."]}
func (a *App) handleDeleteTopics(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	userID := auth.UserID(r.Context())
	if err := a.remote.DeleteTopics(r.Context(), userID, req.IDs); err != nil {
		a.respondFailure(w, err)
		return
	}
	a.hub.TopicsChanged(userID, req.IDs, true)
	w.WriteHeader(http.StatusNoContent)
}

// Sharing

func (a *App) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	var req models.ShareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	share, err := a.sharing.CreateShare(r.Context(), auth.UserID(r.Context()), req)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, share)
}

func (a *App) handleListTopicShares(w http.ResponseWriter, r *http.Request) {
	shares, err := a.sharing.ListTopicShares(r.Context(), auth.UserID(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, shares)
}

func (a *App) handleUpdateShareVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsPublic *bool `json:"is_public"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.IsPublic == nil {
		respondError(w, http.StatusBadRequest, "is_public is required")
		return
	}
	err := a.sharing.UpdateVisibility(r.Context(), auth.UserID(r.Context()), mux.Vars(r)["id"], *req.IsPublic)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleDeleteShare(w http.ResponseWriter, r *http.Request) {
	if err := a.sharing.DeleteShare(r.Context(), auth.UserID(r.Context()), mux.Vars(r)["id"]); err != nil {
		a.respondFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResolveShare serves the public view of a share token. Unknown and
// private tokens are both 404 so that a private share does not leak its
// existence.
//
// HTTP Method: GET
// Endpoint: /api/public/{token}
func (a *App) handleResolveShare(w http.ResponseWriter, r *http.Request) {
	resolved, err := a.sharing.ResolveByToken(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	if resolved == nil {
		respondError(w, http.StatusNotFound, "share not found")
		return
	}
	respondJSON(w, http.StatusOK, resolved)
}

// Helper functions

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

// respondFailure maps service errors to status codes. Anything unexpected is
// logged and reported as a 500 without details.
func (a *App) respondFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotAuthenticated):
		respondError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrEmailTaken):
		respondError(w, http.StatusConflict, err.Error())
	case auth.IsClientError(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, sharing.ErrTopicNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		a.log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
