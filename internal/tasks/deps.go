// Package tasks implements the scheduled maintenance tasks of the
// conversation service: ledger retention cleanup and SQLite maintenance.
package tasks

import (
	"log/slog"

	"github.com/convocore/convocore/internal/config"
	"github.com/convocore/convocore/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger   *slog.Logger
	Store    database.Store
	Database config.DatabaseConfig
}
