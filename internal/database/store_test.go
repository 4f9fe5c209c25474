package database_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/convocore/convocore/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolveOrCreateUserIdempotent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	ids := database.PlatformIDs{WhatsApp: "5511999999999@c.us"}

	first, err := store.ResolveOrCreateUser(ctx, ids)
	if err != nil {
		t.Fatalf("first resolve failed: %v", err)
	}
	second, err := store.ResolveOrCreateUser(ctx, ids)
	if err != nil {
		t.Fatalf("second resolve failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected same user id, got %q and %q", first.ID, second.ID)
	}

	count, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one user, got %d", count)
	}
}

func TestResolveOrCreateUserConcurrent(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	ids := database.PlatformIDs{Telegram: "123456789"}

	const callers = 8
	results := make(chan string, callers)
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := store.ResolveOrCreateUser(ctx, ids)
			if err != nil {
				t.Errorf("concurrent resolve failed: %v", err)
				return
			}
			results <- user.ID
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for id := range results {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected a single canonical user across concurrent calls, got %d: %v", len(seen), seen)
	}

	count, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected exactly one user row, got %d", count)
	}
}

func TestResolveOrCreateUserMatchesAnyIdentifier(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.ResolveOrCreateUser(ctx, database.PlatformIDs{WhatsApp: "551188888888@c.us"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Supplying the known whatsapp id alongside a fresh telegram id must
	// resolve to the existing user, never create a second one.
	resolved, err := store.ResolveOrCreateUser(ctx, database.PlatformIDs{
		WhatsApp: "551188888888@c.us",
		Telegram: "987654321",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.ID != created.ID {
		t.Errorf("expected existing user %q, got %q", created.ID, resolved.ID)
	}
}

func TestGetUserByIDNotFound(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	user, err := store.GetUserByID(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != nil {
		t.Errorf("expected absence, got %+v", user)
	}
}

func TestResolveOrCreateGroupAfterDeactivation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	ids := database.GroupPlatformIDs{WhatsApp: "5511777777777@g.us"}

	group, err := store.ResolveOrCreateGroup(ctx, "Test Group", ids)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	changed, err := store.DeactivateGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	if !changed {
		t.Fatal("expected deactivation to change a row")
	}

	// The deactivated group must stay fetchable by id but disappear from
	// the platform lookup, so a resolve creates a successor.
	old, err := store.GetGroupByID(ctx, group.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if old == nil || old.IsActive {
		t.Fatalf("expected inactive group, got %+v", old)
	}

	successor, err := store.ResolveOrCreateGroup(ctx, "Test Group", ids)
	if err != nil {
		t.Fatalf("resolve after deactivation failed: %v", err)
	}
	if successor.ID == group.ID {
		t.Error("expected a new group after deactivation, got the deactivated one")
	}
}

func TestEnsureMembershipRejoin(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.ResolveOrCreateUser(ctx, database.PlatformIDs{API: "client-1"})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	group, err := store.ResolveOrCreateGroup(ctx, "", database.GroupPlatformIDs{Telegram: "-100200300"})
	if err != nil {
		t.Fatalf("create group failed: %v", err)
	}

	first, err := store.EnsureMembership(ctx, user.ID, group.ID, database.RoleMember)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if !first.Active() {
		t.Fatal("expected active membership")
	}

	time.Sleep(2 * time.Millisecond)

	changed, err := store.RemoveMembership(ctx, user.ID, group.ID)
	if err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if !changed {
		t.Fatal("expected remove to change a row")
	}

	lapsed, err := store.GetMembership(ctx, user.ID, group.ID)
	if err != nil {
		t.Fatalf("get membership failed: %v", err)
	}
	if lapsed == nil || lapsed.Active() {
		t.Fatalf("expected lapsed membership, got %+v", lapsed)
	}

	rejoined, err := store.EnsureMembership(ctx, user.ID, group.ID, database.RoleMember)
	if err != nil {
		t.Fatalf("rejoin failed: %v", err)
	}
	if !rejoined.Active() {
		t.Error("expected rejoined membership to be active")
	}
	if rejoined.ID != first.ID {
		t.Errorf("expected rejoin to reuse row %q, got %q", first.ID, rejoined.ID)
	}
	if !rejoined.JoinedAt.After(first.JoinedAt) {
		t.Error("expected joined_at to be refreshed on rejoin")
	}
}

func TestEnsureMembershipKeepsActiveRowUnchanged(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.ResolveOrCreateUser(ctx, database.PlatformIDs{API: "client-2"})
	group, _ := store.ResolveOrCreateGroup(ctx, "", database.GroupPlatformIDs{Telegram: "-400500600"})

	admin, err := store.EnsureMembership(ctx, user.ID, group.ID, database.RoleAdmin)
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	// A repeated ensure while the membership is active must not demote it.
	again, err := store.EnsureMembership(ctx, user.ID, group.ID, database.RoleMember)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if again.Role != database.RoleAdmin {
		t.Errorf("expected role to stay %q, got %q", database.RoleAdmin, again.Role)
	}
	if !again.JoinedAt.Equal(admin.JoinedAt) {
		t.Error("expected joined_at unchanged for an active membership")
	}

	isAdmin, err := store.IsActiveAdmin(ctx, user.ID, group.ID)
	if err != nil {
		t.Fatalf("admin check failed: %v", err)
	}
	if !isAdmin {
		t.Error("expected user to be an active admin")
	}
}

func TestAppendRejectsNonMemberGroupWrite(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.ResolveOrCreateUser(ctx, database.PlatformIDs{WhatsApp: "551100000001@c.us"})
	group, _ := store.ResolveOrCreateGroup(ctx, "", database.GroupPlatformIDs{WhatsApp: "551100000002@g.us"})

	_, err := store.AppendConversation(ctx, database.AppendParams{
		UserID:  user.ID,
		GroupID: &group.ID,
		Message: "should not land",
		Sender:  database.SenderUser,
	})
	if !errors.Is(err, database.ErrNotGroupMember) {
		t.Fatalf("expected ErrNotGroupMember, got %v", err)
	}

	page, err := store.GroupConversationHistory(ctx, group.ID, 10, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page.Entries) != 0 {
		t.Errorf("expected no ledger rows after rejected write, got %d", len(page.Entries))
	}
}

func TestScopeIsolation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.ResolveOrCreateUser(ctx, database.PlatformIDs{WhatsApp: "551100000003@c.us"})
	group, _ := store.ResolveOrCreateGroup(ctx, "", database.GroupPlatformIDs{WhatsApp: "551100000004@g.us"})
	if _, err := store.EnsureMembership(ctx, user.ID, group.ID, database.RoleMember); err != nil {
		t.Fatalf("ensure membership failed: %v", err)
	}

	appendEntry := func(message string, groupID *string) {
		t.Helper()
		if _, err := store.AppendConversation(ctx, database.AppendParams{
			UserID:  user.ID,
			GroupID: groupID,
			Message: message,
			Sender:  database.SenderUser,
		}); err != nil {
			t.Fatalf("append %q failed: %v", message, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	appendEntry("private one", nil)
	appendEntry("group one", &group.ID)
	appendEntry("private two", nil)
	appendEntry("group two", &group.ID)

	private, err := store.ConversationHistory(ctx, user.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("private history failed: %v", err)
	}
	if len(private.Entries) != 2 {
		t.Fatalf("expected 2 private entries, got %d", len(private.Entries))
	}
	for _, entry := range private.Entries {
		if entry.GroupID.Valid {
			t.Errorf("private history leaked group entry %q", entry.Message)
		}
	}

	grouped, err := store.ConversationHistory(ctx, user.ID, &group.ID, 10, 0)
	if err != nil {
		t.Fatalf("group-scoped history failed: %v", err)
	}
	if len(grouped.Entries) != 2 {
		t.Fatalf("expected 2 group entries, got %d", len(grouped.Entries))
	}
	for _, entry := range grouped.Entries {
		if !entry.GroupID.Valid || entry.GroupID.String != group.ID {
			t.Errorf("group history returned entry outside the group: %+v", entry)
		}
	}

	if grouped.Entries[0].Message != "group one" || grouped.Entries[1].Message != "group two" {
		t.Errorf("expected chronological ascending order, got %q then %q",
			grouped.Entries[0].Message, grouped.Entries[1].Message)
	}
}

func TestGroupHistoryIncludesDepartedAuthors(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	author, _ := store.ResolveOrCreateUser(ctx, database.PlatformIDs{WhatsApp: "551100000005@c.us"})
	group, _ := store.ResolveOrCreateGroup(ctx, "", database.GroupPlatformIDs{WhatsApp: "551100000006@g.us"})
	if _, err := store.EnsureMembership(ctx, author.ID, group.ID, database.RoleMember); err != nil {
		t.Fatalf("ensure membership failed: %v", err)
	}

	if _, err := store.AppendConversation(ctx, database.AppendParams{
		UserID:  author.ID,
		GroupID: &group.ID,
		Message: "posted before leaving",
		Sender:  database.SenderUser,
	}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if _, err := store.RemoveMembership(ctx, author.ID, group.ID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	page, err := store.GroupConversationHistory(ctx, group.ID, 10, 0)
	if err != nil {
		t.Fatalf("group history failed: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].Message != "posted before leaving" {
		t.Errorf("expected departed author's entry to remain visible, got %+v", page.Entries)
	}
}

func TestPaginationContract(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.ResolveOrCreateUser(ctx, database.PlatformIDs{API: "pagination-client"})

	for i := 1; i <= 12; i++ {
		if _, err := store.AppendConversation(ctx, database.AppendParams{
			UserID:  user.ID,
			Message: "m" + string(rune('0'+i/10)) + string(rune('0'+i%10)),
			Sender:  database.SenderUser,
		}); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	page, err := store.ConversationHistory(ctx, user.ID, nil, 5, 5)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}

	// Offset skips the 5 newest entries (m12..m08); the page covers
	// m07..m03 and is returned oldest first.
	if len(page.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(page.Entries))
	}
	if got := page.Entries[0].Message; got != "m03" {
		t.Errorf("expected oldest entry of page to be m03, got %q", got)
	}
	if got := page.Entries[4].Message; got != "m07" {
		t.Errorf("expected newest entry of page to be m07, got %q", got)
	}

	if !page.HasMore {
		t.Error("expected hasMore with 12 entries past offset+limit=10")
	}
	if page.TotalCount != 11 {
		t.Errorf("expected approximate total offset+limit+1=11, got %d", page.TotalCount)
	}

	// The final page drains the scope, so the count becomes exact.
	last, err := store.ConversationHistory(ctx, user.ID, nil, 5, 10)
	if err != nil {
		t.Fatalf("last page failed: %v", err)
	}
	if last.HasMore {
		t.Error("expected no more entries past offset 10")
	}
	if last.TotalCount != 12 {
		t.Errorf("expected exact total 12 on the final page, got %d", last.TotalCount)
	}
	if len(last.Entries) != 2 {
		t.Errorf("expected 2 trailing entries, got %d", len(last.Entries))
	}
}

func TestRecentForContextAscending(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.ResolveOrCreateUser(ctx, database.PlatformIDs{API: "context-client"})

	for _, message := range []string{"first", "second", "third"} {
		if _, err := store.AppendConversation(ctx, database.AppendParams{
			UserID:  user.ID,
			Message: message,
			Sender:  database.SenderUser,
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	entries, err := store.RecentForContext(ctx, user.ID, nil, 2)
	if err != nil {
		t.Fatalf("recent fetch failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Message != "second" || entries[1].Message != "third" {
		t.Errorf("expected the two most recent entries ascending, got %q then %q",
			entries[0].Message, entries[1].Message)
	}
}

func TestDeleteConversationsBefore(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.ResolveOrCreateUser(ctx, database.PlatformIDs{API: "retention-client"})

	for _, message := range []string{"old one", "old two"} {
		if _, err := store.AppendConversation(ctx, database.AppendParams{
			UserID:  user.ID,
			Message: message,
			Sender:  database.SenderUser,
		}); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	deleted, err := store.DeleteConversationsBefore(ctx, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted rows, got %d", deleted)
	}

	page, err := store.ConversationHistory(ctx, user.ID, nil, 10, 0)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(page.Entries) != 0 {
		t.Errorf("expected empty ledger after cleanup, got %d entries", len(page.Entries))
	}
}

func TestAppendDefaultsAndValidation(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	user, _ := store.ResolveOrCreateUser(ctx, database.PlatformIDs{API: "validation-client"})

	entry, err := store.AppendConversation(ctx, database.AppendParams{
		UserID:  user.ID,
		Message: "hello",
		Sender:  database.SenderUser,
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if entry.MessageType != database.MessageTypeText {
		t.Errorf("expected TEXT default, got %q", entry.MessageType)
	}
	if !entry.Private() {
		t.Error("expected private scope when no group id supplied")
	}

	if _, err := store.AppendConversation(ctx, database.AppendParams{
		UserID:  user.ID,
		Message: "bad sender",
		Sender:  database.Sender("ROBOT"),
	}); err == nil {
		t.Error("expected invalid sender to be rejected")
	}

	if _, err := store.AppendConversation(ctx, database.AppendParams{
		UserID: user.ID,
		Sender: database.SenderUser,
	}); err == nil {
		t.Error("expected empty message to be rejected")
	}
}
