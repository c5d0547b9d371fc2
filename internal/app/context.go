package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"ferry/internal/config"
	"ferry/internal/db"
	"ferry/internal/engine"
	"ferry/internal/migrate"
)

// Open prepares a workspace: config, database, migrations, engine.
// The caller owns the returned engine's DB handle and closes it.
func Open(workspace string, log zerolog.Logger) (engine.Engine, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return engine.Engine{}, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, fmt.Errorf("migrate: %w", err)
	}
	return engine.New(conn, cfg, log), nil
}
