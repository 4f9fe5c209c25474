package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const groupColumns = `id, whatsapp_id, telegram_id, name, description, is_active, created_at, updated_at`

const membershipColumns = `id, user_id, group_id, role, joined_at, left_at`

// ResolveOrCreateGroup returns the canonical group for any of the supplied
// platform identifiers, creating one when no active group matches. The
// duplicate-avoidance contract mirrors ResolveOrCreateUser: unique indexes
// on the platform columns plus a single re-read on conflict.
func (s *sqlxStore) ResolveOrCreateGroup(ctx context.Context, name string, ids GroupPlatformIDs) (*Group, error) {
	if ids.Empty() {
		return nil, fmt.Errorf("at least one group platform identifier is required")
	}

	group, err := s.lookupGroupByPlatformIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if group != nil {
		s.logger.DebugContext(ctx, "Resolved existing group", "group_id", group.ID)
		return group, nil
	}

	now := time.Now().UTC()
	created := &Group{
		ID:         uuid.NewString(),
		WhatsAppID: toNullString(ids.WhatsApp),
		TelegramID: toNullString(ids.Telegram),
		Name:       toNullString(name),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = s.db.NamedExecContext(ctx, `
        INSERT INTO groups (id, whatsapp_id, telegram_id, name, description, is_active, created_at, updated_at)
        VALUES (:id, :whatsapp_id, :telegram_id, :name, :description, :is_active, :created_at, :updated_at)`,
		created)
	if err == nil {
		s.logger.InfoContext(ctx, "Created new group", "group_id", created.ID, "name", name)
		return created, nil
	}

	if !isUniqueViolation(err) {
		s.logger.ErrorContext(ctx, "Error creating group", "error", err)
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	s.logger.DebugContext(ctx, "Group insert lost identifier race, re-reading")
	group, lookupErr := s.lookupGroupByPlatformIDs(ctx, ids)
	if lookupErr != nil {
		return nil, lookupErr
	}
	if group == nil {
		return nil, fmt.Errorf("failed to create group after identifier conflict: %w", err)
	}
	return group, nil
}

// GetGroupByID retrieves a group by canonical id. Returns (nil, nil) when
// no group exists. Deactivated groups are still returned here; only the
// platform-identifier lookup excludes them.
func (s *sqlxStore) GetGroupByID(ctx context.Context, id string) (*Group, error) {
	if id == "" {
		return nil, fmt.Errorf("group id cannot be empty")
	}

	var group Group
	err := s.db.GetContext(ctx, &group,
		`SELECT `+groupColumns+` FROM groups WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No group found", "group_id", id)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting group by ID", "group_id", id, "error", err)
		return nil, fmt.Errorf("failed to get group %s: %w", id, err)
	}
	return &group, nil
}

// DeactivateGroup soft-deletes a group: it disappears from the
// platform-identifier lookup while its ledger history is retained.
func (s *sqlxStore) DeactivateGroup(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("group id cannot be empty")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE groups SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1`,
		time.Now().UTC(), id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deactivating group", "group_id", id, "error", err)
		return false, fmt.Errorf("failed to deactivate group %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		s.logger.InfoContext(ctx, "Group deactivated", "group_id", id)
	}
	return affected > 0, nil
}

func (s *sqlxStore) lookupGroupByPlatformIDs(ctx context.Context, ids GroupPlatformIDs) (*Group, error) {
	candidates := []struct {
		column string
		value  string
	}{
		{"whatsapp_id", ids.WhatsApp},
		{"telegram_id", ids.Telegram},
	}

	for _, c := range candidates {
		if c.value == "" {
			continue
		}

		var group Group
		err := s.db.GetContext(ctx, &group,
			`SELECT `+groupColumns+` FROM groups WHERE `+c.column+` = ? AND is_active = 1`, c.value)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			continue
		case err != nil:
			s.logger.ErrorContext(ctx, "Error looking up group by platform identifier",
				"platform_column", c.column, "error", err)
			return nil, fmt.Errorf("failed to look up group by %s: %w", c.column, err)
		}
		return &group, nil
	}
	return nil, nil
}

// GetMembership returns the membership row for the (user, group) pair,
// whether active or lapsed. Returns (nil, nil) when the user never joined.
func (s *sqlxStore) GetMembership(ctx context.Context, userID, groupID string) (*Membership, error) {
	var membership Membership
	err := s.db.GetContext(ctx, &membership,
		`SELECT `+membershipColumns+` FROM group_members WHERE user_id = ? AND group_id = ?`,
		userID, groupID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting membership",
			"user_id", userID, "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &membership, nil
}

// EnsureMembership returns the active membership for the pair. An existing
// active row is returned unchanged; a lapsed row is reactivated with its
// left_at cleared, joined_at refreshed, and role replaced; otherwise a new
// row is inserted. The upsert runs against the UNIQUE(user_id, group_id)
// constraint, so concurrent identical calls converge on a single row.
func (s *sqlxStore) EnsureMembership(ctx context.Context, userID, groupID string, role MembershipRole) (*Membership, error) {
	if role == "" {
		role = RoleMember
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO group_members (id, user_id, group_id, role, joined_at, left_at)
        VALUES (?, ?, ?, ?, ?, NULL)
        ON CONFLICT (user_id, group_id) DO UPDATE SET
            role = excluded.role,
            joined_at = excluded.joined_at,
            left_at = NULL
        WHERE group_members.left_at IS NOT NULL`,
		uuid.NewString(), userID, groupID, role, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring membership",
			"user_id", userID, "group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to ensure membership: %w", err)
	}

	membership, err := s.GetMembership(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, fmt.Errorf("membership missing after ensure for user %s in group %s", userID, groupID)
	}

	s.logger.DebugContext(ctx, "Membership ensured",
		"user_id", userID, "group_id", groupID, "role", membership.Role)
	return membership, nil
}

// RemoveMembership marks the active membership as left. Returns false when
// the user was not an active member.
func (s *sqlxStore) RemoveMembership(ctx context.Context, userID, groupID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE group_members SET left_at = ? WHERE user_id = ? AND group_id = ? AND left_at IS NULL`,
		time.Now().UTC(), userID, groupID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error removing membership",
			"user_id", userID, "group_id", groupID, "error", err)
		return false, fmt.Errorf("failed to remove membership: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected > 0 {
		s.logger.InfoContext(ctx, "Membership removed", "user_id", userID, "group_id", groupID)
	}
	return affected > 0, nil
}

// IsActiveMember reports whether the user currently belongs to the group.
func (s *sqlxStore) IsActiveMember(ctx context.Context, userID, groupID string) (bool, error) {
	var active bool
	err := s.db.GetContext(ctx, &active, `
        SELECT EXISTS (
            SELECT 1 FROM group_members
            WHERE user_id = ? AND group_id = ? AND left_at IS NULL
        )`, userID, groupID)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return active, nil
}

// IsActiveAdmin reports whether the user is an active admin of the group.
func (s *sqlxStore) IsActiveAdmin(ctx context.Context, userID, groupID string) (bool, error) {
	var admin bool
	err := s.db.GetContext(ctx, &admin, `
        SELECT EXISTS (
            SELECT 1 FROM group_members
            WHERE user_id = ? AND group_id = ? AND role = ? AND left_at IS NULL
        )`, userID, groupID, RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("failed to check admin membership: %w", err)
	}
	return admin, nil
}
