package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/switchboardhq/switchboard/internal/cherr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndFetchUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == "" {
		t.Fatal("user id is empty")
	}

	got, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("fetch user: %v", err)
	}
	if got.Email != "alice@example.com" || got.DisplayName != "Alice" {
		t.Errorf("got %+v", got)
	}

	_, err = s.UserByID(ctx, "missing")
	if cherr.KindOf(err) != cherr.NotFound {
		t.Errorf("missing user err = %v, want NotFound", err)
	}
}

func TestChatMembership(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice@example.com", "Alice")
	bob, _ := s.CreateUser(ctx, "bob@example.com", "Bob")

	c, err := s.CreateChat(ctx, "planning", alice.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	// Creator is a member immediately.
	if ok, _ := s.IsMember(ctx, c.ID, alice.ID); !ok {
		t.Error("creator is not a member")
	}
	if ok, _ := s.IsMember(ctx, c.ID, bob.ID); ok {
		t.Error("bob is a member before being added")
	}

	if err := s.AddMember(ctx, c.ID, bob.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	// Adding twice is fine.
	if err := s.AddMember(ctx, c.ID, bob.ID); err != nil {
		t.Fatalf("re-add member: %v", err)
	}
	if ok, _ := s.IsMember(ctx, c.ID, bob.ID); !ok {
		t.Error("bob is not a member after add")
	}

	members, err := s.MembersOf(ctx, c.ID)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("members = %v, want 2", members)
	}

	// Nonexistent chat has no members.
	if ok, _ := s.IsMember(ctx, "missing", alice.ID); ok {
		t.Error("membership reported for nonexistent chat")
	}
}

func TestChatsForUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice@example.com", "Alice")
	bob, _ := s.CreateUser(ctx, "bob@example.com", "Bob")

	c1, _ := s.CreateChat(ctx, "one", alice.ID)
	_, _ = s.CreateChat(ctx, "two", bob.ID)
	_ = s.AddMember(ctx, c1.ID, bob.ID)

	chats, err := s.ChatsForUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("chats for user: %v", err)
	}
	if len(chats) != 1 || chats[0].ID != c1.ID {
		t.Errorf("alice's chats = %+v, want just %s", chats, c1.ID)
	}

	chats, _ = s.ChatsForUser(ctx, bob.ID)
	if len(chats) != 2 {
		t.Errorf("bob's chats = %d, want 2", len(chats))
	}
}

func TestPersistAndReadMessages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice@example.com", "Alice")
	c, _ := s.CreateChat(ctx, "planning", alice.ID)

	m1, err := s.PersistMessage(ctx, c.ID, alice.ID, "hello", RoleUser, "", "text")
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	m2, err := s.PersistMessage(ctx, c.ID, alice.ID, "hi back", RoleAssistant, "model-a", "")
	if err != nil {
		t.Fatalf("persist assistant: %v", err)
	}
	if m2.MessageType != "text" {
		t.Errorf("message type = %q, want text default", m2.MessageType)
	}

	msgs, err := s.Messages(ctx, c.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if msgs[0].ID != m1.ID || msgs[1].ID != m2.ID {
		t.Error("messages not in creation order")
	}
	if msgs[0].Model != "" {
		t.Errorf("user message model = %q, want empty", msgs[0].Model)
	}
	if msgs[1].Model != "model-a" || msgs[1].Role != RoleAssistant {
		t.Errorf("assistant message = %+v", msgs[1])
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice, _ := s.CreateUser(ctx, "alice@example.com", "Alice")
	sess, err := s.CreateSession(ctx, alice.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := s.SessionByToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("fetch session: %v", err)
	}
	if got.UserID != alice.ID {
		t.Errorf("user id = %q, want %q", got.UserID, alice.ID)
	}
	if got.ExpiresAt.Before(time.Now()) {
		t.Error("fresh session already expired")
	}

	if err := s.DeleteSession(ctx, sess.Token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	_, err = s.SessionByToken(ctx, sess.Token)
	if cherr.KindOf(err) != cherr.NotFound {
		t.Errorf("deleted session err = %v, want NotFound", err)
	}
}

func TestMemoryStoreSharedAcrossGoroutines(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	alice, err := s.CreateUser(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	c, err := s.CreateChat(ctx, "planning", alice.ID)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}

	// Pooled connections must all see the same database, not a fresh
	// empty one each.
	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.PersistMessage(ctx, c.ID, alice.ID, fmt.Sprintf("msg %d", i), RoleUser, "", "text")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("persist: %v", err)
		}
	}

	msgs, err := s.Messages(ctx, c.ID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(msgs) != writers {
		t.Errorf("messages = %d, want %d", len(msgs), writers)
	}
}

func TestNewIDIsSortableAndUnique(t *testing.T) {
	a := NewID()
	b := NewID()
	if a == b {
		t.Error("two ids collided")
	}
	if len(a) != 26 {
		t.Errorf("id length = %d, want 26", len(a))
	}
}
