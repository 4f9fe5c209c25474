package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotGroupMember is returned when a group-scoped write is attempted by a
// user who is not an active member of that group. It is a policy violation,
// not a storage fault.
var ErrNotGroupMember = errors.New("user is not an active member of the group")

// Store defines the data access layer. Lookups that find nothing return
// (nil, nil); absence is not an error.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CountUsers returns the total number of users (used by health checks).
	CountUsers(ctx context.Context) (int64, error)

	// ResolveOrCreateUser returns the user matching any of the supplied
	// platform identifiers, creating one with exactly those identifiers if
	// no match exists. Safe under concurrent identical calls.
	ResolveOrCreateUser(ctx context.Context, ids PlatformIDs) (*User, error)

	// GetUserByID retrieves a user by canonical id.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// ResolveOrCreateGroup is the group analog of ResolveOrCreateUser.
	// Deactivated groups are excluded from the platform-identifier lookup.
	ResolveOrCreateGroup(ctx context.Context, name string, ids GroupPlatformIDs) (*Group, error)

	// GetGroupByID retrieves a group by canonical id.
	GetGroupByID(ctx context.Context, id string) (*Group, error)

	// DeactivateGroup soft-deletes a group. History is retained.
	DeactivateGroup(ctx context.Context, id string) (bool, error)

	// GetMembership returns the membership row for the pair, active or not.
	GetMembership(ctx context.Context, userID, groupID string) (*Membership, error)

	// EnsureMembership returns the active membership for the pair, creating
	// or reactivating one as needed. Idempotent.
	EnsureMembership(ctx context.Context, userID, groupID string, role MembershipRole) (*Membership, error)

	// RemoveMembership marks the active membership as left. Reports whether
	// a row was changed.
	RemoveMembership(ctx context.Context, userID, groupID string) (bool, error)

	// IsActiveMember reports whether the user currently belongs to the group.
	IsActiveMember(ctx context.Context, userID, groupID string) (bool, error)

	// IsActiveAdmin reports whether the user is an active admin of the group.
	IsActiveAdmin(ctx context.Context, userID, groupID string) (bool, error)

	// AppendConversation writes one immutable ledger entry. Group-scoped
	// writes require active membership and fail with ErrNotGroupMember
	// otherwise.
	AppendConversation(ctx context.Context, params AppendParams) (*Conversation, error)

	// ConversationHistory returns one page of the user's entries in the
	// exact scope: private when groupID is nil, that group otherwise.
	ConversationHistory(ctx context.Context, userID string, groupID *string, limit, offset int) (*HistoryPage, error)

	// GroupConversationHistory returns one page of a group's entries across
	// all authors, including those who have since left.
	GroupConversationHistory(ctx context.Context, groupID string, limit, offset int) (*HistoryPage, error)

	// RecentForContext returns the most recent entries in the exact scope,
	// chronological ascending, for AI context assembly.
	RecentForContext(ctx context.Context, userID string, groupID *string, limit int) ([]Conversation, error)

	// DeleteConversationsBefore bulk-deletes ledger entries older than
	// cutoff. This is the ledger's only delete path.
	DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore implements Store on top of sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CountUsers returns the total number of users.
func (s *sqlxStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return err
	}
	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure, the expected outcome when two resolve-or-create calls race.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
