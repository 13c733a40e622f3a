package topicnote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Serve starts the HTTP server and blocks until ctx is cancelled or the server
// fails. On cancellation it allows up to 5 seconds for active requests to
// complete and disconnects websocket clients.
//
// # API Endpoints
//
// Health check:
//
//	GET    /health, /api/health                   - Service and database status
//
// Authentication:
//
//	POST   /api/auth/signup                       - Register, returns {token,user}
//	POST   /api/auth/signin                       - Authenticate, returns {token,user}
//	GET    /api/auth/me                           - Current user
//
// Topics (signed-in user only):
//
//	GET    /api/topics                            - List, most recently updated first
//	POST   /api/topics/batch                      - Upsert a batch, last write wins
//	POST   /api/topics/delete                     - Delete {ids}
//
// Sharing:
//
//	POST   /api/shares                            - Share a topic
//	GET    /api/topics/{id}/shares                - List a topic's shares
//	PUT    /api/shares/{id}/visibility            - Set {is_public}
//	DELETE /api/shares/{id}                       - Delete a share
//	GET    /api/public/{token}                    - Resolve a public share, no session
//
// Change feed:
//
//	GET    /api/ws                                - Websocket of CBOR events
func (a *App) Serve(ctx context.Context, cmd *ServeCommand) error {
	if err := a.openServer(); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%s", a.config.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.log.Info().Str("addr", ln.Addr().String()).Msg("starting topicnote server")

	server := &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.hub.Close()
		return server.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

// Router builds the HTTP handler of the server. The server components must be
// open.
func (a *App) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(a.logRequests)

	router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/auth/signup", a.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/signin", a.handleSignIn).Methods(http.MethodPost)
	api.HandleFunc("/public/{token}", a.handleResolveShare).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(a.auth.Tokens().Middleware)
	authed.HandleFunc("/auth/me", a.handleGetCurrentUser).Methods(http.MethodGet)

	authed.HandleFunc("/topics", a.handleListTopics).Methods(http.MethodGet)
	authed.HandleFunc("/topics/batch", a.handleUpsertTopics).Methods(http.MethodPost)
	authed.HandleFunc("/topics/delete", a.handleDeleteTopics).Methods(http.MethodPost)
	authed.HandleFunc("/topics/{id}/shares", a.handleListTopicShares).Methods(http.MethodGet)

	authed.HandleFunc("/shares", a.handleCreateShare).Methods(http.MethodPost)
	authed.HandleFunc("/shares/{id}/visibility", a.handleUpdateShareVisibility).Methods(http.MethodPut)
	authed.HandleFunc("/shares/{id}", a.handleDeleteShare).Methods(http.MethodDelete)

	authed.Handle("/ws", a.hub).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins: a.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	})
	return c.Handler(router)
}

// checkOrigin applies the CORS origin list to websocket upgrades. Requests
// without an Origin header come from non-browser clients and are accepted.
func (a *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(a.config.CORSOrigins) == 0 {
		return true
	}
	return slices.Contains(a.config.CORSOrigins, "*") || slices.Contains(a.config.CORSOrigins, origin)
}

func (a *App) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}
