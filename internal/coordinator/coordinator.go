// Package coordinator turns one inbound user message into a persisted echo
// plus N independent model completions. Each completion persists and
// broadcasts on its own schedule; a slow or failing model never holds up its
// siblings.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/switchboardhq/switchboard/internal/cherr"
	"github.com/switchboardhq/switchboard/internal/provider"
	"github.com/switchboardhq/switchboard/internal/store"
	"github.com/switchboardhq/switchboard/internal/types"
)

// DefaultCallTimeout bounds a single provider invocation.
const DefaultCallTimeout = 2 * time.Minute

// MessageStore is the slice of the persistence collaborator the coordinator
// needs. Every message is durable before any broadcast references it.
type MessageStore interface {
	PersistMessage(ctx context.Context, chatID, userID, content, role, model, messageType string) (store.Message, error)
	IsMember(ctx context.Context, chatID, userID string) (bool, error)
}

// Broadcaster is the slice of the router the coordinator needs.
type Broadcaster interface {
	BroadcastToChat(chatID string, frame any) error
	SendToUser(userID string, frame any) error
}

// Coordinator orchestrates the per-prompt fan-out.
type Coordinator struct {
	store       MessageStore
	router      Broadcaster
	providers   *provider.Registry
	callTimeout time.Duration
	log         *slog.Logger

	mu      sync.Mutex
	pending map[string]map[string]struct{} // turn id -> outstanding model ids
	wg      sync.WaitGroup
}

// New creates a coordinator. timeout <= 0 uses DefaultCallTimeout.
func New(st MessageStore, router Broadcaster, providers *provider.Registry, timeout time.Duration, log *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		store:       st,
		router:      router,
		providers:   providers,
		callTimeout: timeout,
		log:         log,
		pending:     make(map[string]map[string]struct{}),
	}
}

// Submit accepts one user prompt: validates it, persists and broadcasts the
// user message, then dispatches one detached task per requested model. It
// returns the turn id once dispatch is done; completions arrive via the
// router as each model finishes, in whatever order the providers respond.
//
// An error return means nothing was persisted or broadcast.
func (c *Coordinator) Submit(ctx context.Context, userID, chatID, content string, models []string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", cherr.New(cherr.BadRequest, "message content is empty")
	}

	member, err := c.store.IsMember(ctx, chatID, userID)
	if err != nil {
		return "", fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return "", cherr.New(cherr.NotFound, "chat %s not found", chatID)
	}

	// Persist and broadcast the user's own message before any model call
	// starts, so the echo is not coupled to provider latency.
	userMsg, err := c.store.PersistMessage(ctx, chatID, userID, content, store.RoleUser, "", "text")
	if err != nil {
		return "", fmt.Errorf("persist user message: %w", err)
	}
	if err := c.router.BroadcastToChat(chatID, frameFor(userMsg)); err != nil {
		c.log.Error("broadcast user message", "chat_id", chatID, "error", err)
	}

	targets := dedupeModels(models)
	if len(targets) == 0 {
		if def, ok := c.providers.Default(); ok {
			targets = []string{def}
		}
	}
	if len(targets) == 0 {
		_ = c.router.SendToUser(userID, types.Error("no model configured"))
		return "", nil
	}

	turnID := store.NewID()
	outstanding := make(map[string]struct{}, len(targets))
	for _, model := range targets {
		outstanding[model] = struct{}{}
	}
	c.mu.Lock()
	c.pending[turnID] = outstanding
	c.mu.Unlock()

	// Model calls are detached from the submitting connection: a disconnect
	// must not cancel them, and their results still belong in the durable
	// history for other members.
	callCtx := context.WithoutCancel(ctx)
	for _, model := range targets {
		c.wg.Add(1)
		go c.invoke(callCtx, turnID, model, userID, chatID, content)
	}

	return turnID, nil
}

// invoke runs one model call to a terminal state: assistant message persisted
// and broadcast, or a failure notice sent to the requester. Sibling calls are
// never affected either way.
func (c *Coordinator) invoke(ctx context.Context, turnID, model, userID, chatID, prompt string) {
	defer c.wg.Done()
	defer c.finish(turnID, model)

	inv, err := c.providers.For(model)
	if err != nil {
		c.reportFailure(userID, model, err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	content, err := inv.Invoke(callCtx, model, prompt)
	if err != nil {
		// Classified so the requester sees the provider's own message
		// instead of the masked internal-error text.
		c.reportFailure(userID, model, cherr.Wrap(cherr.ProviderFailure, err))
		return
	}

	msg, err := c.store.PersistMessage(ctx, chatID, userID, content, store.RoleAssistant, model, "text")
	if err != nil {
		c.log.Error("persist assistant message", "chat_id", chatID, "model", model, "error", err)
		c.reportFailure(userID, model, cherr.New(cherr.ProviderFailure, "model %s failed", model))
		return
	}

	// Subscribers may all be gone by now; broadcasting to nobody is a
	// correct no-op, the message is already durable.
	if err := c.router.BroadcastToChat(chatID, frameFor(msg)); err != nil {
		c.log.Error("broadcast assistant message", "chat_id", chatID, "model", model, "error", err)
	}
}

// reportFailure tells the requesting user's connections that one model
// failed. The rest of the chat never asked for that model's answer.
func (c *Coordinator) reportFailure(userID, model string, err error) {
	c.log.Warn("model call failed", "model", model, "user_id", userID, "error", err)
	_ = c.router.SendToUser(userID, types.Error(fmt.Sprintf("model %s failed: %s", model, cherr.Public(err))))
}

// finish removes one model from a turn's pending set, discarding the turn's
// bookkeeping when the last model completes.
func (c *Coordinator) finish(turnID, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outstanding, ok := c.pending[turnID]
	if !ok {
		return
	}
	delete(outstanding, model)
	if len(outstanding) == 0 {
		delete(c.pending, turnID)
	}
}

// PendingModels returns the models still outstanding for a turn. Empty once
// the turn has drained.
func (c *Coordinator) PendingModels(turnID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.pending[turnID]))
	for model := range c.pending[turnID] {
		out = append(out, model)
	}
	return out
}

// Wait blocks until every dispatched model call has reached a terminal
// state. Used on shutdown and in tests.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// dedupeModels trims, drops blanks, and keeps the first occurrence of each
// model id. A model requested twice behaves as once.
func dedupeModels(models []string) []string {
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// frameFor projects a persisted message onto the wire.
func frameFor(m store.Message) types.MessageFrame {
	return types.MessageFrame{
		Type:        types.ServerMessage,
		ChatID:      m.ChatID,
		MessageID:   m.ID,
		UserID:      m.UserID,
		Content:     m.Content,
		Model:       m.Model,
		Timestamp:   m.CreatedAt,
		MessageType: m.MessageType,
	}
}
