// Package mcp exposes the chat daemon to MCP clients over stdio. An
// assistant plugged in this way acts as one authenticated user: it sends
// through the same coordinator and reads the same durable history as the
// WebSocket clients.
package mcp

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/switchboardhq/switchboard/internal/coordinator"
	"github.com/switchboardhq/switchboard/internal/store"
)

// Server is the MCP server that exposes chat tools.
type Server struct {
	store   *store.Store
	coord   *coordinator.Coordinator
	userID  string
	version string
	server  *gomcp.Server
}

// Option configures the MCP server.
type Option func(*Server)

// WithVersion sets the server version string.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates an MCP server acting as userID.
func NewServer(st *store.Store, coord *coordinator.Coordinator, userID string, opts ...Option) *Server {
	s := &Server{
		store:   st,
		coord:   coord,
		userID:  userID,
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{
			Name:    "switchboard",
			Version: s.version,
		},
		nil,
	)
	s.registerTools()

	return s
}

// Run starts the MCP server on stdin/stdout. It blocks until the client
// disconnects or the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// registerTools registers all MCP tool handlers with the server.
func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "send_message",
		Description: "Send a message into a chat. Requested models reply asynchronously; their answers land in the chat history.",
	}, s.handleSendMessage)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_chats",
		Description: "List the chats this user is a member of",
	}, s.handleListChats)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_history",
		Description: "Read a chat's message history, oldest first",
	}, s.handleGetHistory)
}
