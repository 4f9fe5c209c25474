package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const conversationColumns = `id, user_id, group_id, message, sender, timestamp, context, message_type, platform`

// AppendParams carries the fields of a new ledger entry. GroupID nil means
// the entry belongs to the user's private scope. Platform and Context are
// optional; MessageType defaults to TEXT.
type AppendParams struct {
	UserID      string
	GroupID     *string
	Message     string
	Sender      Sender
	Platform    *Platform
	MessageType MessageType
	Context     string
}

// AppendConversation writes one immutable entry to the conversation ledger.
// Group-scoped writes are gated on active membership: this is the write-path
// enforcement point of the private/group separation, and a non-member write
// fails with ErrNotGroupMember before any row is created.
func (s *sqlxStore) AppendConversation(ctx context.Context, params AppendParams) (*Conversation, error) {
	if params.UserID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if params.Message == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}
	if !params.Sender.Valid() {
		return nil, fmt.Errorf("invalid sender %q", params.Sender)
	}
	if params.MessageType == "" {
		params.MessageType = MessageTypeText
	}
	if !params.MessageType.Valid() {
		return nil, fmt.Errorf("invalid message type %q", params.MessageType)
	}

	if params.GroupID != nil {
		active, err := s.IsActiveMember(ctx, params.UserID, *params.GroupID)
		if err != nil {
			return nil, err
		}
		if !active {
			s.logger.WarnContext(ctx, "Rejected group write from non-member",
				"user_id", params.UserID, "group_id", *params.GroupID)
			return nil, fmt.Errorf("append to group %s: %w", *params.GroupID, ErrNotGroupMember)
		}
	}

	entry := &Conversation{
		ID:          uuid.NewString(),
		UserID:      params.UserID,
		Message:     params.Message,
		Sender:      params.Sender,
		Timestamp:   time.Now().UTC(),
		MessageType: params.MessageType,
		Context:     toNullString(params.Context),
	}
	if params.GroupID != nil {
		entry.GroupID = toNullString(*params.GroupID)
	}
	if params.Platform != nil {
		entry.Platform = toNullString(string(*params.Platform))
	}

	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO conversations (id, user_id, group_id, message, sender, timestamp, context, message_type, platform)
        VALUES (:id, :user_id, :group_id, :message, :sender, :timestamp, :context, :message_type, :platform)`,
		entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error appending conversation entry",
			"user_id", params.UserID, "error", err)
		return nil, fmt.Errorf("failed to append conversation entry: %w", err)
	}

	s.logger.DebugContext(ctx, "Conversation entry appended",
		"entry_id", entry.ID, "user_id", entry.UserID,
		"group_scoped", entry.GroupID.Valid, "sender", entry.Sender)
	return entry, nil
}

// ConversationHistory returns one page of the user's entries in the exact
// requested scope: group_id IS NULL for private history, group_id = *groupID
// for group history. The scope never widens implicitly.
//
// Pagination fetches offset+limit+1 rows newest-first; the page is the slice
// after skipping the offset newest rows, reversed to chronological ascending.
// TotalCount follows the approximation contract described on HistoryPage.
func (s *sqlxStore) ConversationHistory(ctx context.Context, userID string, groupID *string, limit, offset int) (*HistoryPage, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if err := validatePage(limit, offset); err != nil {
		return nil, err
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = ?`
	args := []any{userID}
	if groupID == nil {
		query += ` AND group_id IS NULL`
	} else {
		query += ` AND group_id = ?`
		args = append(args, *groupID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, offset+limit+1)

	var rows []Conversation
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching conversation history",
			"user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to fetch conversation history: %w", err)
	}
	return paginate(rows, limit, offset), nil
}

// GroupConversationHistory returns one page of a group's entries across all
// authors. Membership is not checked on the read path, so entries from users
// who have since left remain visible.
func (s *sqlxStore) GroupConversationHistory(ctx context.Context, groupID string, limit, offset int) (*HistoryPage, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group id cannot be empty")
	}
	if err := validatePage(limit, offset); err != nil {
		return nil, err
	}

	var rows []Conversation
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+conversationColumns+` FROM conversations
         WHERE group_id = ?
         ORDER BY timestamp DESC, id DESC LIMIT ?`,
		groupID, offset+limit+1)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error fetching group conversation history",
			"group_id", groupID, "error", err)
		return nil, fmt.Errorf("failed to fetch group conversation history: %w", err)
	}
	return paginate(rows, limit, offset), nil
}

// RecentForContext returns the most recent entries in the exact scope,
// chronological ascending. Used only for AI context assembly; the scope
// filter is identical to ConversationHistory.
func (s *sqlxStore) RecentForContext(ctx context.Context, userID string, groupID *string, limit int) ([]Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = ?`
	args := []any{userID}
	if groupID == nil {
		query += ` AND group_id IS NULL`
	} else {
		query += ` AND group_id = ?`
		args = append(args, *groupID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []Conversation
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching context entries",
			"user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to fetch context entries: %w", err)
	}

	reverseEntries(rows)
	return rows, nil
}

// DeleteConversationsBefore bulk-deletes entries older than cutoff. Apart
// from parent cascades this is the only way entries leave the ledger.
func (s *sqlxStore) DeleteConversationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE timestamp < ?`, cutoff.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting old conversation entries", "error", err)
		return 0, fmt.Errorf("failed to delete old conversation entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "Deleted old conversation entries",
			"count", deleted, "cutoff", cutoff.UTC())
	}
	return deleted, nil
}

func validatePage(limit, offset int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}
	if offset < 0 {
		return fmt.Errorf("offset cannot be negative, got %d", offset)
	}
	return nil
}

// paginate turns a newest-first fetch of up to offset+limit+1 rows into a
// chronological page. TotalCount is exact when the fetch drained the scope
// and offset+limit+1 otherwise; exact counting is deliberately skipped.
func paginate(rows []Conversation, limit, offset int) *HistoryPage {
	hasMore := len(rows) > offset+limit

	total := len(rows)
	if hasMore {
		total = offset + limit + 1
	}

	var page []Conversation
	if offset < len(rows) {
		end := offset + limit
		if end > len(rows) {
			end = len(rows)
		}
		page = rows[offset:end]
		reverseEntries(page)
	}

	return &HistoryPage{
		Entries:    page,
		TotalCount: total,
		HasMore:    hasMore,
	}
}

func reverseEntries(entries []Conversation) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
