package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, whatsapp_id, telegram_id, api_id, created_at, updated_at`

// ResolveOrCreateUser returns the canonical user for any of the supplied
// platform identifiers. Lookup order is whatsapp, telegram, api; the first
// match wins and no duplicate is ever created. When no identifier matches,
// a new user is inserted with exactly the supplied identifiers.
//
// Two concurrent calls with the same identifier are serialized by the
// unique indexes on the platform columns: the losing insert fails with a
// unique-constraint error and is recovered by re-reading once.
func (s *sqlxStore) ResolveOrCreateUser(ctx context.Context, ids PlatformIDs) (*User, error) {
	if ids.Empty() {
		return nil, fmt.Errorf("at least one platform identifier is required")
	}

	user, err := s.lookupUserByPlatformIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if user != nil {
		s.logger.DebugContext(ctx, "Resolved existing user", "user_id", user.ID)
		return user, nil
	}

	now := time.Now().UTC()
	created := &User{
		ID:         uuid.NewString(),
		WhatsAppID: toNullString(ids.WhatsApp),
		TelegramID: toNullString(ids.Telegram),
		APIID:      toNullString(ids.API),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = s.db.NamedExecContext(ctx, `
        INSERT INTO users (id, whatsapp_id, telegram_id, api_id, created_at, updated_at)
        VALUES (:id, :whatsapp_id, :telegram_id, :api_id, :created_at, :updated_at)`,
		created)
	if err == nil {
		s.logger.InfoContext(ctx, "Created new user", "user_id", created.ID)
		return created, nil
	}

	if !isUniqueViolation(err) {
		s.logger.ErrorContext(ctx, "Error creating user", "error", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// A concurrent call won the insert; return the winner.
	s.logger.DebugContext(ctx, "User insert lost identifier race, re-reading")
	user, lookupErr := s.lookupUserByPlatformIDs(ctx, ids)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if user == nil {
		return nil, fmt.Errorf("failed to create user after identifier conflict: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by canonical id. Returns (nil, nil) when no
// user exists.
func (s *sqlxStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	var user User
	err := s.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No user found", "user_id", id)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user by ID", "user_id", id, "error", err)
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}

// lookupUserByPlatformIDs tries each supplied identifier against its
// platform column and returns the first match, or nil if none match.
func (s *sqlxStore) lookupUserByPlatformIDs(ctx context.Context, ids PlatformIDs) (*User, error) {
	candidates := []struct {
		column string
		value  string
	}{
		{"whatsapp_id", ids.WhatsApp},
		{"telegram_id", ids.Telegram},
		{"api_id", ids.API},
	}

	for _, c := range candidates {
		if c.value == "" {
			continue
		}

		var user User
		err := s.db.GetContext(ctx, &user,
			`SELECT `+userColumns+` FROM users WHERE `+c.column+` = ?`, c.value)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			continue
		case err != nil:
			s.logger.ErrorContext(ctx, "Error looking up user by platform identifier",
				"platform_column", c.column, "error", err)
			return nil, fmt.Errorf("failed to look up user by %s: %w", c.column, err)
		}
		return &user, nil
	}
	return nil, nil
}

func toNullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
