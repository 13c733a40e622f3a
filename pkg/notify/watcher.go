package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/topicnote/topicnote/pkg/reachability"
	"github.com/topicnote/topicnote/pkg/store"
)

// DefaultCheckInterval is the pause between reconnection attempts.
const DefaultCheckInterval = 5 * time.Second

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithCheckInterval sets the pause between reconnection attempts.
func WithCheckInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.CheckInterval = d
		}
	}
}

// WithOnChange registers the callback for topics_changed events. It runs on
// the read goroutine.
func WithOnChange(fn func(Event)) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(log zerolog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = log.With().Str("component", "notify_watcher").Logger() }
}

// Watcher keeps a websocket open to the server's notification endpoint. It is
// online while connected.
type Watcher struct {
	reachability.Broadcaster

	// CheckInterval is the pause after a failed or dropped connection before
	// the next attempt. Default is 5 seconds.
	CheckInterval time.Duration

	endpoint string
	token    func() string
	dialer   *websocket.Dialer
	onChange func(Event)
	log      zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	started bool
	closeCh chan struct{}
	doneCh  chan struct{}
}

var _ reachability.Notifier = (*Watcher)(nil)

// NewWatcher returns a watcher for the server at baseURL. token is consulted
// before every attempt; while it returns "" the watcher stays offline.
func NewWatcher(baseURL string, token func() string, opts ...WatcherOption) (*Watcher, error) {
	endpoint, err := wsEndpoint(baseURL)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		CheckInterval: DefaultCheckInterval,
		endpoint:      endpoint,
		token:         token,
		dialer:        websocket.DefaultDialer,
		log:           zerolog.Nop(),
		closeCh:       make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func wsEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}
	u.Path += "/api/ws"
	return u.String(), nil
}

// Start launches the connection loop. It returns immediately; calling it twice
// is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.loop(ctx)
}

// Close stops the loop and drops the connection.
func (w *Watcher) Close() error {
	w.mu.Lock()
	select {
	case <-w.closeCh:
		w.mu.Unlock()
		return nil
	default:
	}
	close(w.closeCh)
	started := w.started
	conn := w.conn
	w.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if started {
		<-w.doneCh
	}
	w.Set(false)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		err := w.session(ctx)
		w.Set(false)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrNotAuthenticated):
			w.log.Debug().Msg("no session, staying offline")
		default:
			w.log.Debug().Err(err).Dur("retry_in", w.CheckInterval).Msg("notification connection lost")
		}

		select {
		case <-ctx.Done():
			return
		case <-w.closeCh:
			return
		case <-time.After(w.CheckInterval):
		}
	}
}

// session dials once and reads until the connection ends.
func (w *Watcher) session(ctx context.Context) error {
	token := w.token()
	if token == "" {
		return store.ErrNotAuthenticated
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := w.dialer.DialContext(ctx, w.endpoint, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %w", store.ErrNotAuthenticated, err)
		}
		return fmt.Errorf("failed to dial %s: %w", w.endpoint, err)
	}

	w.mu.Lock()
	select {
	case <-w.closeCh:
		w.mu.Unlock()
		_ = conn.Close()
		return nil
	default:
	}
	w.conn = conn
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		_ = conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	w.log.Info().Str("endpoint", w.endpoint).Msg("notification connection established")
	w.Set(true)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		e, err := Unmarshal(data)
		if err != nil {
			w.log.Warn().Err(err).Msg("ignoring malformed frame")
			continue
		}
		if e.Type == EventTopicsChanged && w.onChange != nil {
			w.onChange(e)
		}
	}
}
