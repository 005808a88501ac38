package hub

import (
	"encoding/json"
	"testing"

	"github.com/switchboardhq/switchboard/internal/cherr"
)

func newTestHub(t *testing.T) (*Registry, *Index, *Router) {
	t.Helper()
	index := NewIndex()
	registry := NewRegistry(index, nil)
	router := NewRouter(registry, index, nil)
	return registry, index, router
}

func register(t *testing.T, r *Registry, userID string, queueSize int) *Conn {
	t.Helper()
	c := NewConn(userID, queueSize)
	if err := r.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	return c
}

func drainOne(t *testing.T, c *Conn) []byte {
	t.Helper()
	select {
	case data := <-c.Outbound():
		return data
	default:
		t.Fatalf("expected a queued frame for %s", c.UserID())
		return nil
	}
}

func TestRegisterRequiresUser(t *testing.T) {
	registry, _, _ := newTestHub(t)
	err := registry.Register(NewConn("", 0))
	if err == nil {
		t.Fatal("expected error for unauthenticated connection")
	}
	if cherr.KindOf(err) != cherr.Unauthorized {
		t.Errorf("kind = %v, want Unauthorized", cherr.KindOf(err))
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	registry, index, _ := newTestHub(t)
	c := register(t, registry, "alice", 0)
	index.Subscribe(c.ID(), "chat1")

	registry.Deregister(c.ID())
	registry.Deregister(c.ID())

	if registry.Count() != 0 {
		t.Errorf("count = %d, want 0", registry.Count())
	}
	if got := index.SubscribersOf("chat1"); len(got) != 0 {
		t.Errorf("subscribers after deregister = %v, want none", got)
	}
	select {
	case <-c.Done():
	default:
		t.Error("connection not closed after deregister")
	}
}

func TestDeregisterDropsAllSubscriptions(t *testing.T) {
	registry, index, _ := newTestHub(t)
	c := register(t, registry, "alice", 0)
	other := register(t, registry, "bob", 0)
	index.Subscribe(c.ID(), "chat1")
	index.Subscribe(c.ID(), "chat2")
	index.Subscribe(other.ID(), "chat1")

	registry.Deregister(c.ID())

	if index.IsSubscribed(c.ID(), "chat1") || index.IsSubscribed(c.ID(), "chat2") {
		t.Error("deregistered connection still subscribed")
	}
	if !index.IsSubscribed(other.ID(), "chat1") {
		t.Error("unrelated subscription was dropped")
	}
}

func TestSubscribeRefusedAfterDeregister(t *testing.T) {
	registry, index, _ := newTestHub(t)
	c := register(t, registry, "alice", 0)

	// The router deregisters (backpressure) while the read loop still has a
	// subscribe frame in flight for the same connection.
	registry.Deregister(c.ID())
	if err := registry.Subscribe(c.ID(), "chat1"); err == nil {
		t.Fatal("subscribe accepted for a deregistered connection")
	}

	// Handler teardown deregisters again; there must be nothing left to sweep.
	registry.Deregister(c.ID())
	if index.IsSubscribed(c.ID(), "chat1") {
		t.Error("dead connection still subscribed")
	}
	if got := index.SubscribersOf("chat1"); len(got) != 0 {
		t.Errorf("subscribers = %v, want none", got)
	}
}

func TestRegistrySubscribeLive(t *testing.T) {
	registry, index, _ := newTestHub(t)
	c := register(t, registry, "alice", 0)

	if err := registry.Subscribe(c.ID(), "chat1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !index.IsSubscribed(c.ID(), "chat1") {
		t.Fatal("subscription not recorded")
	}

	registry.Deregister(c.ID())
	if index.IsSubscribed(c.ID(), "chat1") {
		t.Error("subscription survived deregistration")
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	_, index, _ := newTestHub(t)
	c := NewConn("alice", 0)

	index.Subscribe(c.ID(), "chat1")
	index.Subscribe(c.ID(), "chat1")

	if got := len(index.SubscribersOf("chat1")); got != 1 {
		t.Errorf("subscribers = %d, want 1", got)
	}

	index.Unsubscribe(c.ID(), "chat1")
	index.Unsubscribe(c.ID(), "chat1")

	if got := len(index.SubscribersOf("chat1")); got != 0 {
		t.Errorf("subscribers after unsubscribe = %d, want 0", got)
	}
}

func TestBroadcastReachesOnlySubscribers(t *testing.T) {
	registry, index, router := newTestHub(t)
	sub1 := register(t, registry, "alice", 4)
	sub2 := register(t, registry, "bob", 4)
	member := register(t, registry, "carol", 4) // member of the chat, not subscribed
	index.Subscribe(sub1.ID(), "chat1")
	index.Subscribe(sub2.ID(), "chat1")
	index.Subscribe(member.ID(), "chat2")

	frame := map[string]string{"type": "message", "chat_id": "chat1"}
	if err := router.BroadcastToChat("chat1", frame); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	for _, c := range []*Conn{sub1, sub2} {
		var got map[string]string
		if err := json.Unmarshal(drainOne(t, c), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got["chat_id"] != "chat1" {
			t.Errorf("chat_id = %q, want chat1", got["chat_id"])
		}
	}

	select {
	case <-member.Outbound():
		t.Error("unsubscribed connection received a chat broadcast")
	default:
	}
}

func TestBroadcastToEmptyChatIsNoOp(t *testing.T) {
	_, _, router := newTestHub(t)
	if err := router.BroadcastToChat("nobody-here", map[string]string{"type": "message"}); err != nil {
		t.Fatalf("broadcast to empty chat: %v", err)
	}
}

func TestSendToUserHitsEveryConnection(t *testing.T) {
	registry, _, router := newTestHub(t)
	tab1 := register(t, registry, "alice", 4)
	tab2 := register(t, registry, "alice", 4)
	other := register(t, registry, "bob", 4)

	if err := router.SendToUser("alice", map[string]string{"type": "error"}); err != nil {
		t.Fatalf("send to user: %v", err)
	}

	drainOne(t, tab1)
	drainOne(t, tab2)
	select {
	case <-other.Outbound():
		t.Error("frame leaked to another user")
	default:
	}
}

func TestOverflowDisconnectsOnlyTheSlowConnection(t *testing.T) {
	registry, index, router := newTestHub(t)
	slow := register(t, registry, "alice", 1)
	fast := register(t, registry, "bob", 8)
	index.Subscribe(slow.ID(), "chat1")
	index.Subscribe(fast.ID(), "chat1")

	frame := map[string]string{"type": "message"}
	for i := 0; i < 3; i++ {
		if err := router.BroadcastToChat("chat1", frame); err != nil {
			t.Fatalf("broadcast %d: %v", i, err)
		}
	}

	// slow's queue held one frame; the second broadcast overflowed it.
	select {
	case <-slow.Done():
	default:
		t.Fatal("slow connection not closed after overflow")
	}
	if err := slow.Err(); cherr.KindOf(err) != cherr.Backpressure {
		t.Errorf("close reason = %v, want Backpressure", err)
	}
	if _, ok := registry.Get(slow.ID()); ok {
		t.Error("slow connection still registered")
	}

	// fast stayed up and got all three frames.
	if _, ok := registry.Get(fast.ID()); !ok {
		t.Fatal("fast connection was deregistered")
	}
	for i := 0; i < 3; i++ {
		drainOne(t, fast)
	}
}

func TestTrySendAfterClose(t *testing.T) {
	c := NewConn("alice", 1)
	c.Close()
	err := c.TrySend([]byte("x"))
	if err == nil {
		t.Fatal("expected error sending on closed connection")
	}
	if cherr.KindOf(err) == cherr.Backpressure {
		t.Error("closed connection reported as backpressure")
	}
}

func TestFailKeepsFirstReason(t *testing.T) {
	c := NewConn("alice", 1)
	first := cherr.New(cherr.Backpressure, "full")
	c.Fail(first)
	c.Fail(cherr.New(cherr.Internal, "second"))
	if c.Err() != first {
		t.Errorf("Err() = %v, want first failure", c.Err())
	}
}

func TestCloseAll(t *testing.T) {
	registry, index, _ := newTestHub(t)
	a := register(t, registry, "alice", 0)
	b := register(t, registry, "bob", 0)
	index.Subscribe(a.ID(), "chat1")
	index.Subscribe(b.ID(), "chat1")

	registry.CloseAll()

	if registry.Count() != 0 {
		t.Errorf("count = %d, want 0", registry.Count())
	}
	if got := index.SubscribersOf("chat1"); len(got) != 0 {
		t.Errorf("subscribers = %v, want none", got)
	}
}
