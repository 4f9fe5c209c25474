// Package chat implements the conversation gateway: it resolves canonical
// identities from platform identifiers, maintains group membership, persists
// the message ledger, assembles scope-bound AI context, and invokes the
// external response generator. Private and group conversation scopes never
// mix anywhere in this package.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/convocore/convocore/internal/config"
	"github.com/convocore/convocore/internal/database"
	"github.com/convocore/convocore/internal/gemini"
	"github.com/convocore/convocore/internal/text"
)

// Policy violations and outcome sentinels surfaced to the adapter layer.
var (
	// ErrNoUserIdentifier is returned when a message arrives without any
	// user platform identifier. Client fault, never retried.
	ErrNoUserIdentifier = errors.New("at least one user platform identifier is required")

	// ErrUserNotFound is returned by history lookups for unknown user ids.
	ErrUserNotFound = errors.New("user not found")

	// ErrGroupNotFound is returned by history lookups for unknown group ids.
	ErrGroupNotFound = errors.New("group not found")

	// ErrGenerationFailed wraps failures of the external response generator.
	// The inbound message is already durable when this is returned.
	ErrGenerationFailed = errors.New("response generation failed")
)

// Scope is the private/group axis of conversation isolation. It is decided
// once per inbound message from the presence of group identifiers and fixed
// for the lifetime of that request.
type Scope string

// Scope values.
const (
	ScopePrivate Scope = "private"
	ScopeGroup   Scope = "group"
)

// MessageRequest is one inbound message with the identifiers needed to
// resolve its sender and, optionally, its group.
type MessageRequest struct {
	Message   string
	UserIDs   database.PlatformIDs
	GroupIDs  database.GroupPlatformIDs
	GroupName string
	Platform  *database.Platform
	Context   string // optional free-text annotation stored with the entry
}

// MessageResult is the outcome of a handled message.
type MessageResult struct {
	Response       string
	UserID         string
	GroupID        string // empty for private scope
	Scope          Scope
	ProcessingTime time.Duration
}

// Service is the conversation gateway. It is constructed once at startup
// with its collaborators injected; it holds no hidden global state.
type Service struct {
	store      database.Store
	generator  gemini.Generator
	log        *slog.Logger
	cfg        config.ChatConfig
	genTimeout time.Duration
}

// NewService creates the gateway with its store and generator collaborators.
func NewService(store database.Store, generator gemini.Generator, cfg config.ChatConfig, genTimeout time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:      store,
		generator:  generator,
		log:        log.With("component", "chat_service"),
		cfg:        cfg,
		genTimeout: genTimeout,
	}
}

// HandleMessage runs the gateway sequence for one inbound message. The
// steps are ordered and none may be reordered: identity, then group and
// membership, then the durable inbound append, then context assembly, then
// generation, then the outbound append. A generator failure after step 4
// leaves the inbound message in the ledger and writes no outbound entry.
func (s *Service) HandleMessage(ctx context.Context, req MessageRequest) (*MessageResult, error) {
	start := time.Now()

	if req.UserIDs.Empty() {
		return nil, ErrNoUserIdentifier
	}

	user, err := s.store.ResolveOrCreateUser(ctx, req.UserIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	// The scope decision is made exactly once, here, from the presence of
	// group identifiers. It is never inferred from prior history.
	scope := ScopePrivate
	var groupID *string
	if !req.GroupIDs.Empty() {
		group, err := s.store.ResolveOrCreateGroup(ctx, req.GroupName, req.GroupIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve group: %w", err)
		}
		if _, err := s.store.EnsureMembership(ctx, user.ID, group.ID, database.RoleMember); err != nil {
			return nil, fmt.Errorf("failed to ensure membership: %w", err)
		}
		scope = ScopeGroup
		groupID = &group.ID
	}

	// The inbound message must be durable before the generator runs, so a
	// generation failure never loses it.
	inbound, err := s.store.AppendConversation(ctx, database.AppendParams{
		UserID:   user.ID,
		GroupID:  groupID,
		Message:  req.Message,
		Sender:   database.SenderUser,
		Platform: req.Platform,
		Context:  req.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store inbound message: %w", err)
	}

	contextText, err := s.buildContext(ctx, user.ID, groupID, inbound.ID)
	if err != nil {
		return nil, err
	}

	prompt := gemini.Prompt{
		UserID:      user.ID,
		Scope:       string(scope),
		ContextText: contextText,
	}
	if groupID != nil {
		prompt.GroupID = *groupID
	}

	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	response, err := s.generator.Generate(genCtx, req.Message, prompt)
	cancel()
	if err != nil {
		s.log.ErrorContext(ctx, "Response generation failed",
			"user_id", user.ID, "scope", scope, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	// Normalize model output before it becomes a ledger entry.
	response = text.Sanitize(response)
	if response == "" {
		return nil, fmt.Errorf("%w: generator returned empty response", ErrGenerationFailed)
	}

	if _, err := s.store.AppendConversation(ctx, database.AppendParams{
		UserID:   user.ID,
		GroupID:  groupID,
		Message:  response,
		Sender:   database.SenderAI,
		Platform: req.Platform,
	}); err != nil {
		return nil, fmt.Errorf("failed to store outbound message: %w", err)
	}

	elapsed := time.Since(start)
	s.log.InfoContext(ctx, "Message handled",
		"user_id", user.ID, "scope", scope, "duration", elapsed)

	result := &MessageResult{
		Response:       response,
		UserID:         user.ID,
		Scope:          scope,
		ProcessingTime: elapsed,
	}
	if groupID != nil {
		result.GroupID = *groupID
	}
	return result, nil
}

// PrivateHistory returns one page of the user's private entries, oldest
// first within the page. Group-scoped entries never appear here.
func (s *Service) PrivateHistory(ctx context.Context, userID string, limit, offset int) (*database.HistoryPage, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return s.store.ConversationHistory(ctx, userID, nil, limit, offset)
}

// GroupHistory returns one page of a group's entries across all authors,
// including users who have since left the group.
func (s *Service) GroupHistory(ctx context.Context, groupID string, limit, offset int) (*database.HistoryPage, error) {
	group, err := s.store.GetGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	return s.store.GroupConversationHistory(ctx, groupID, limit, offset)
}

// Health reports storage reachability and the user count.
func (s *Service) Health(ctx context.Context) (int64, error) {
	if err := s.store.Ping(ctx); err != nil {
		return 0, fmt.Errorf("database ping failed: %w", err)
	}
	return s.store.CountUsers(ctx)
}
