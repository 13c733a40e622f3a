package topicnote

import (
	"context"
	"fmt"
)

// Migrate creates or updates the server tables (topics, shared_topics, users)
// with GORM's AutoMigrate. It is safe to run multiple times and never drops
// data.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	if err := a.openServer(); err != nil {
		return err
	}
	a.log.Info().Msg("running database migrations")
	if err := a.remote.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	a.log.Info().Msg("migrations completed")
	return nil
}
