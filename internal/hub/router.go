package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/switchboardhq/switchboard/internal/cherr"
)

// Router fans events out to connections. Frames are marshaled once and the
// bytes enqueued per connection.
//
// Ordering: each connection's queue is FIFO, so two broadcasts issued by the
// same writer in program order arrive in that order. Across independent
// writers (two model calls completing for the same chat) no ordering is
// guaranteed; clients must not assume one.
//
// Overflow policy: a connection whose queue is full is forcibly closed with a
// Backpressure reason. Silently dropping chat messages is worse than forcing
// a reconnect, and a slow connection must never delay the others.
type Router struct {
	registry *Registry
	index    *Index
	log      *slog.Logger
}

// NewRouter creates a router over the given registry and index.
func NewRouter(registry *Registry, index *Index, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{registry: registry, index: index, log: log}
}

// BroadcastToChat delivers frame to every connection currently subscribed to
// chatID. Members who are not subscribed do not receive it; they catch up on
// their next fetch. No subscribers is a valid no-op.
func (r *Router) BroadcastToChat(chatID string, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	for _, id := range r.index.SubscribersOf(chatID) {
		c, ok := r.registry.Get(id)
		if !ok {
			// Deregistration raced the snapshot; the cascade already
			// dropped the subscription.
			continue
		}
		r.deliver(c, data)
	}
	return nil
}

// SendToUser delivers frame to every live connection owned by userID,
// independent of subscription state. Used for errors and account notices.
func (r *Router) SendToUser(userID string, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	for _, c := range r.registry.ConnectionsForUser(userID) {
		r.deliver(c, data)
	}
	return nil
}

// SendToConnection delivers frame to a single connection. Used for acks.
func (r *Router) SendToConnection(id ConnID, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c, ok := r.registry.Get(id)
	if !ok {
		return nil
	}
	r.deliver(c, data)
	return nil
}

// deliver enqueues without blocking. Overflow disconnects the offender;
// delivery to the remaining connections is unaffected.
func (r *Router) deliver(c *Conn, data []byte) {
	err := c.TrySend(data)
	if err == nil {
		return
	}

	if cherr.KindOf(err) == cherr.Backpressure {
		r.log.Warn("outbound queue overflow, disconnecting",
			"conn_id", string(c.ID()), "user_id", c.UserID())
		c.Fail(err)
		r.registry.Deregister(c.ID())
		return
	}

	// Connection already closing; teardown will deregister it.
	r.log.Debug("dropped frame for closing connection", "conn_id", string(c.ID()))
}
