package database

import (
	"database/sql"
	"time"
)

// Sender identifies who produced a ledger entry.
type Sender string

// Sender values.
const (
	SenderUser Sender = "USER"
	SenderAI   Sender = "AI"
)

// Valid reports whether s is a known sender value.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderAI:
		return true
	}
	return false
}

// Platform identifies the messaging platform a message arrived from.
type Platform string

// Platform values.
const (
	PlatformWhatsApp Platform = "WHATSAPP"
	PlatformTelegram Platform = "TELEGRAM"
	PlatformAPI      Platform = "API"
)

// ParsePlatform maps a lowercase platform tag to its Platform value.
func ParsePlatform(tag string) (Platform, bool) {
	switch tag {
	case "whatsapp":
		return PlatformWhatsApp, true
	case "telegram":
		return PlatformTelegram, true
	case "api":
		return PlatformAPI, true
	}
	return "", false
}

// MessageType classifies the payload of a ledger entry.
type MessageType string

// MessageType values.
const (
	MessageTypeText     MessageType = "TEXT"
	MessageTypeImage    MessageType = "IMAGE"
	MessageTypeDocument MessageType = "DOCUMENT"
	MessageTypeAudio    MessageType = "AUDIO"
	MessageTypeSystem   MessageType = "SYSTEM"
)

// Valid reports whether m is a known message type.
func (m MessageType) Valid() bool {
	switch m {
	case MessageTypeText, MessageTypeImage, MessageTypeDocument, MessageTypeAudio, MessageTypeSystem:
		return true
	}
	return false
}

// MembershipRole is the role a user holds within a group.
type MembershipRole string

// MembershipRole values.
const (
	RoleAdmin  MembershipRole = "ADMIN"
	RoleMember MembershipRole = "MEMBER"
)

// User is a canonical identity, optionally linked to one identifier per
// messaging platform. Each platform identifier is globally unique.
type User struct {
	ID         string         `db:"id"`
	WhatsAppID sql.NullString `db:"whatsapp_id"`
	TelegramID sql.NullString `db:"telegram_id"`
	APIID      sql.NullString `db:"api_id"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// PlatformIDs carries the platform identifiers supplied when resolving a
// user. Empty strings mean the identifier was not supplied.
type PlatformIDs struct {
	WhatsApp string
	Telegram string
	API      string
}

// Empty reports whether no identifier was supplied at all.
func (p PlatformIDs) Empty() bool {
	return p.WhatsApp == "" && p.Telegram == "" && p.API == ""
}

// Group is a canonical multi-party conversation container. Deactivated
// groups are excluded from platform-identifier lookups but keep their
// ledger history.
type Group struct {
	ID          string         `db:"id"`
	WhatsAppID  sql.NullString `db:"whatsapp_id"`
	TelegramID  sql.NullString `db:"telegram_id"`
	Name        sql.NullString `db:"name"`
	Description sql.NullString `db:"description"`
	IsActive    bool           `db:"is_active"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// GroupPlatformIDs carries the platform identifiers supplied when resolving
// a group.
type GroupPlatformIDs struct {
	WhatsApp string
	Telegram string
}

// Empty reports whether no identifier was supplied at all.
func (g GroupPlatformIDs) Empty() bool {
	return g.WhatsApp == "" && g.Telegram == ""
}

// Membership ties a user to a group. At most one row exists per
// (user, group) pair; leaving sets left_at and rejoining clears it again.
type Membership struct {
	ID       string         `db:"id"`
	UserID   string         `db:"user_id"`
	GroupID  string         `db:"group_id"`
	Role     MembershipRole `db:"role"`
	JoinedAt time.Time      `db:"joined_at"`
	LeftAt   sql.NullTime   `db:"left_at"`
}

// Active reports whether the membership is currently in effect.
func (m *Membership) Active() bool {
	return !m.LeftAt.Valid
}

// Conversation is one immutable entry in the conversation ledger. A null
// group_id means the entry belongs to the user's private scope.
type Conversation struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	GroupID     sql.NullString `db:"group_id"`
	Message     string         `db:"message"`
	Sender      Sender         `db:"sender"`
	Timestamp   time.Time      `db:"timestamp"`
	Context     sql.NullString `db:"context"`
	MessageType MessageType    `db:"message_type"`
	Platform    sql.NullString `db:"platform"`
}

// Private reports whether the entry belongs to a private scope.
func (c *Conversation) Private() bool {
	return !c.GroupID.Valid
}

// HistoryPage is one page of ledger entries in chronological ascending
// order, plus the pagination metadata exposed to callers. TotalCount is an
// approximation: it is exact only when HasMore is false, and
// offset+limit+1 otherwise.
type HistoryPage struct {
	Entries    []Conversation
	TotalCount int
	HasMore    bool
}
