package hub

import (
	"log/slog"
	"sync"

	"github.com/switchboardhq/switchboard/internal/cherr"
)

// Registry tracks live connections. It is the only owner of connection
// lifetime; the subscription index holds connection ids, never connections.
type Registry struct {
	mu     sync.RWMutex
	conns  map[ConnID]*Conn
	byUser map[string]map[ConnID]*Conn
	index  *Index
	log    *slog.Logger
}

// NewRegistry creates a registry whose deregistration cascades into index.
func NewRegistry(index *Index, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		conns:  make(map[ConnID]*Conn),
		byUser: make(map[string]map[ConnID]*Conn),
		index:  index,
		log:    log,
	}
}

// Register admits an authenticated connection. A connection without a user
// identity is refused: authentication happens before registration, not after.
func (r *Registry) Register(c *Conn) error {
	if c.UserID() == "" {
		return cherr.New(cherr.Unauthorized, "connection is not authenticated")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID()] = c
	userConns, ok := r.byUser[c.UserID()]
	if !ok {
		userConns = make(map[ConnID]*Conn)
		r.byUser[c.UserID()] = userConns
	}
	userConns[c.ID()] = c

	r.log.Debug("connection registered", "conn_id", string(c.ID()), "user_id", c.UserID())
	return nil
}

// Subscribe attaches a live connection to a chat. The liveness check and the
// index insert happen under the registry lock, so a subscribe can never land
// after Deregister's cascade has already swept the connection: either the
// connection is still registered and a later Deregister cleans the
// subscription up, or the subscribe is refused.
func (r *Registry) Subscribe(id ConnID, chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; !ok {
		return cherr.New(cherr.NotFound, "connection %s is gone", id)
	}
	r.index.Subscribe(id, chatID)
	return nil
}

// Deregister removes a connection and drops every subscription it held.
// Idempotent: both the read and write loop may report the same closure.
func (r *Registry) Deregister(id ConnID) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		if userConns, ok := r.byUser[c.UserID()]; ok {
			delete(userConns, id)
			if len(userConns) == 0 {
				delete(r.byUser, c.UserID())
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	// Cascade outside the registry lock; the index serializes itself.
	r.index.DropConnection(id)
	c.Close()
	r.log.Debug("connection deregistered", "conn_id", string(id), "user_id", c.UserID())
}

// Get returns a live connection by id.
func (r *Registry) Get(id ConnID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// ConnectionsForUser snapshots every live connection owned by userID.
// A user signed in from two tabs gets personal notices on both.
func (r *Registry) ConnectionsForUser(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns := r.byUser[userID]
	out := make([]*Conn, 0, len(userConns))
	for _, c := range userConns {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// CloseAll deregisters every connection. Used on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]ConnID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Deregister(id)
	}
}
