package topicnote

import (
	"context"
	"fmt"
)

// Main is the entry point of the topicnote binary. It parses args, builds the
// [App] and runs the command. It can be called from tests without building the
// binary; cancelling ctx stops long running commands (serve, sync -watch)
// gracefully.
//
// # Environment Variables
//
// Every flag can also be set through the environment or a .env file:
//
//	PORT, POSTGRES_DSN, JWT_SECRET, TOKEN_TTL, CORS_ORIGINS   - server
//	LOCAL_DB, LEGACY_FILE, REMOTE_URL, TOPICNOTE_TOKEN,
//	TOPICNOTE_EMAIL, TOPICNOTE_PASSWORD, SYNC_INTERVAL,
//	TOPICNOTE_OFFLINE                                          - client
//	LOG_LEVEL, LOG_FILE, LOG_CONSOLE                           - logging
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	app, err := New(config)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	return app.Execute(ctx, cmd)
}

// Execute runs cmd.
func (a *App) Execute(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case *ServeCommand:
		if err := a.Serve(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case *MigrateCommand:
		if err := a.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *SyncCommand:
		if err := a.Sync(ctx, c); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
	case *TreeCommand:
		return a.Tree(ctx, c)
	case *AddCommand:
		if err := a.Add(ctx, c); err != nil {
			return fmt.Errorf("add failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}
	return nil
}
