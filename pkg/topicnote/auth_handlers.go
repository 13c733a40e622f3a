package topicnote

import (
	"errors"
	"net/http"

	"github.com/topicnote/topicnote/pkg/auth"
	"github.com/topicnote/topicnote/pkg/models"
)

// handleSignUp creates an account and signs it in.
//
// HTTP Method: POST
// Endpoint: /api/auth/signup
// Body: {"email": "...", "password": "..."}
//
// Response:
//   - 201 Created: {"token": "...", "user": {...}}
//   - 400 Bad Request: malformed email or password shorter than 6 characters
//   - 409 Conflict: email already registered
func (a *App) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	resp, err := a.auth.SignUp(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrWeakPassword) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// handleSignIn exchanges credentials for a session token.
//
// HTTP Method: POST
// Endpoint: /api/auth/signin
//
// Response:
//   - 200 OK: {"token": "...", "user": {...}}
//   - 401 Unauthorized: unknown email or wrong password
func (a *App) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var creds models.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	resp, err := a.auth.SignIn(r.Context(), creds)
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *App) handleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.CurrentUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		a.respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
