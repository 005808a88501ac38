package hub

import "sync"

// Index is the bidirectional chat <-> connection subscription mapping. It is
// the single source of truth for who receives a chat broadcast; the router
// never guesses membership itself.
//
// Subscriptions live and die with explicit client action or connection
// teardown. They never expire on their own.
type Index struct {
	mu     sync.RWMutex
	byChat map[string]map[ConnID]struct{}
	byConn map[ConnID]map[string]struct{}
}

// NewIndex creates an empty subscription index.
func NewIndex() *Index {
	return &Index{
		byChat: make(map[string]map[ConnID]struct{}),
		byConn: make(map[ConnID]map[string]struct{}),
	}
}

// Subscribe records interest. Subscribing twice is a no-op. The index does
// not check liveness; transport code subscribes through Registry.Subscribe,
// which serializes the insert with connection teardown.
func (ix *Index) Subscribe(id ConnID, chatID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	subs, ok := ix.byChat[chatID]
	if !ok {
		subs = make(map[ConnID]struct{})
		ix.byChat[chatID] = subs
	}
	subs[id] = struct{}{}

	chats, ok := ix.byConn[id]
	if !ok {
		chats = make(map[string]struct{})
		ix.byConn[id] = chats
	}
	chats[chatID] = struct{}{}
}

// Unsubscribe removes interest. Unsubscribing when not subscribed is a no-op.
func (ix *Index) Unsubscribe(id ConnID, chatID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.remove(id, chatID)
}

// SubscribersOf returns a point-in-time copy of a chat's subscriber set.
// Callers iterate the copy, so no lock is held across the send loop.
func (ix *Index) SubscribersOf(chatID string) []ConnID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	subs := ix.byChat[chatID]
	out := make([]ConnID, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// IsSubscribed reports whether the connection currently holds a subscription.
func (ix *Index) IsSubscribed(id ConnID, chatID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.byChat[chatID][id]
	return ok
}

// DropConnection removes every subscription held by id, across all chats.
// Called only from the registry's deregistration cascade; a subscription
// referencing a dead connection is a correctness bug.
func (ix *Index) DropConnection(id ConnID) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	for chatID := range ix.byConn[id] {
		ix.remove(id, chatID)
	}
}

// remove deletes one pair and prunes empty sets. Callers hold the lock.
func (ix *Index) remove(id ConnID, chatID string) {
	if subs, ok := ix.byChat[chatID]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(ix.byChat, chatID)
		}
	}
	if chats, ok := ix.byConn[id]; ok {
		delete(chats, chatID)
		if len(chats) == 0 {
			delete(ix.byConn, id)
		}
	}
}
