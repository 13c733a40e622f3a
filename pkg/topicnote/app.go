package topicnote

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/topicnote/topicnote/pkg/auth"
	"github.com/topicnote/topicnote/pkg/logger"
	"github.com/topicnote/topicnote/pkg/notify"
	"github.com/topicnote/topicnote/pkg/sharing"
	"github.com/topicnote/topicnote/pkg/store/postgres"
)

// Config holds application configuration. Server commands use the first group
// of fields, client commands the second.
type Config struct {
	// Server
	ServerPort  string
	PostgresDSN string
	JWTSecret   string
	TokenTTL    time.Duration
	CORSOrigins []string

	// Client
	LocalDBPath  string
	LegacyPath   string
	RemoteURL    string
	Token        string
	Email        string
	Password     string
	SyncInterval time.Duration
	// Offline keeps client commands away from the network.
	Offline bool

	// Logging
	LogLevel   string
	LogFile    string
	LogConsole bool
}

// Option configures an App.
type Option func(*App)

// WithRemoteStore makes the App use st instead of connecting to PostgreSQL.
func WithRemoteStore(st *postgres.Store) Option {
	return func(a *App) { a.remote = st }
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) { a.log = &l }
}

// WithOutput redirects command output, os.Stdout by default.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.out = w }
}

// App holds the application state. Server components are created on first
// use so client commands never need a database server.
type App struct {
	config  *Config
	log     *zerolog.Logger
	logData *logger.LogData
	out     io.Writer

	remote  *postgres.Store
	auth    *auth.Service
	sharing *sharing.Service
	hub     *notify.Hub
}

// New creates a new application instance.
func New(config *Config, opts ...Option) (*App, error) {
	a := &App{config: config, out: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		build := logger.New().Level(config.LogLevel).Console(config.LogConsole)
		if config.LogFile != "" {
			build = build.FromPath(config.LogFile)
		}
		logData, err := build.Make()
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		a.logData = logData
		a.log = &logData.Logger
	}
	return a, nil
}

// Logger returns the application logger.
func (a *App) Logger() zerolog.Logger { return *a.log }

// openServer connects the remote store and builds the services on top of it.
func (a *App) openServer() error {
	if a.auth != nil {
		return nil
	}
	if a.remote == nil {
		st, err := postgres.NewPostgresStore(a.config.PostgresDSN, *a.log)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		a.log.Info().Msg("connected to PostgreSQL")
		a.remote = st
	}

	tokens, err := auth.NewTokens(a.config.JWTSecret, a.config.TokenTTL)
	if err != nil {
		return err
	}
	a.auth = auth.NewService(a.remote, tokens, *a.log)
	a.sharing = sharing.New(a.remote, a.remote, sharing.WithLogger(*a.log))
	a.hub = notify.NewHub(*a.log, notify.WithCheckOrigin(a.checkOrigin))
	return nil
}

// Close closes the application and its resources.
func (a *App) Close() error {
	var errs []error
	if a.hub != nil {
		a.hub.Close()
	}
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	if a.logData != nil {
		errs = append(errs, a.logData.Close())
	}
	return errors.Join(errs...)
}
