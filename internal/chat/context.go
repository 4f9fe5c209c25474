package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/convocore/convocore/internal/database"
)

// buildContext retrieves the most recent ledger entries in the exact
// (user, group-or-private) scope and renders them as a single text block for
// the response generator. The returned text never contains entries from a
// different scope, and never the current inbound message: the gateway
// appends it before assembly for durability, so the entry with excludeID is
// dropped here to keep the context strictly prior history.
func (s *Service) buildContext(ctx context.Context, userID string, groupID *string, excludeID string) (string, error) {
	// One extra entry so dropping the excluded one doesn't shrink the window.
	entries, err := s.store.RecentForContext(ctx, userID, groupID, s.cfg.ContextLimit+1)
	if err != nil {
		return "", fmt.Errorf("failed to assemble context: %w", err)
	}

	prior := make([]database.Conversation, 0, len(entries))
	for _, entry := range entries {
		if entry.ID == excludeID {
			continue
		}
		prior = append(prior, entry)
	}
	if len(prior) > s.cfg.ContextLimit {
		prior = prior[len(prior)-s.cfg.ContextLimit:]
	}

	return renderContext(prior, groupID != nil), nil
}

// renderContext formats entries as "<SenderLabel>: <message>" lines under a
// scope heading. The empty-history markers differ per scope to aid
// debugging; nothing downstream depends on their exact wording.
func renderContext(entries []database.Conversation, groupScoped bool) string {
	scope := "private"
	if groupScoped {
		scope = "group"
	}

	if len(entries) == 0 {
		return fmt.Sprintf("This is the beginning of your %s chat conversation.", scope)
	}

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", senderLabel(entry.Sender), entry.Message))
	}
	return fmt.Sprintf("Recent %s conversation:\n%s", scope, strings.Join(lines, "\n"))
}

func senderLabel(s database.Sender) string {
	switch s {
	case database.SenderUser:
		return "User"
	case database.SenderAI:
		return "AI"
	default:
		return string(s)
	}
}
