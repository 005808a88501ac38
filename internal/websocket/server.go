// Package websocket is the transport edge of the daemon: it authenticates
// upgrade requests, registers connections with the hub, and runs the
// read/write loop pair for each socket.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/switchboardhq/switchboard/internal/auth"
	"github.com/switchboardhq/switchboard/internal/coordinator"
	"github.com/switchboardhq/switchboard/internal/hub"
	"github.com/switchboardhq/switchboard/internal/ratelimit"
	"github.com/switchboardhq/switchboard/internal/store"
	"github.com/switchboardhq/switchboard/internal/types"
)

// Options collects the server's collaborators.
type Options struct {
	Addr        string
	Version     string
	Auth        *auth.Authenticator
	Store       *store.Store
	Registry    *hub.Registry
	Index       *hub.Index
	Router      *hub.Router
	Coordinator *coordinator.Coordinator
	Limiter     *ratelimit.Limiter
	QueueSize   int
	Log         *slog.Logger
}

// Server accepts WebSocket connections at /ws. Authentication happens on
// the HTTP request, before the upgrade; a bad token never reaches the
// socket protocol.
type Server struct {
	addr       string
	version    string
	httpServer *http.Server
	upgrader   websocket.Upgrader

	auth      *auth.Authenticator
	store     *store.Store
	registry  *hub.Registry
	index     *hub.Index
	router    *hub.Router
	coord     *coordinator.Coordinator
	limiter   *ratelimit.Limiter
	queueSize int
	log       *slog.Logger

	mu       sync.RWMutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a WebSocket server from opts.
func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		addr:      opts.Addr,
		version:   opts.Version,
		auth:      opts.Auth,
		store:     opts.Store,
		registry:  opts.Registry,
		index:     opts.Index,
		router:    opts.Router,
		coord:     opts.Coordinator,
		limiter:   opts.Limiter,
		queueSize: opts.QueueSize,
		log:       log,
		upgrader: websocket.Upgrader{
			// Token auth, not cookies, so cross-origin requests carry no
			// ambient credentials.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler exposes the HTTP mux for serving over alternative listeners.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start begins accepting connections in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return fmt.Errorf("server is shutting down")
	}
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.addr = ln.Addr().String()

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("websocket server stopped", "error", err)
		}
	}()

	s.log.Info("websocket server listening", "addr", s.addr)
	return nil
}

// Serve accepts connections on a caller-provided listener. Used for the
// tailnet listener; blocks until the listener closes.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop refuses new connections, tears down the live ones, and waits for
// their loop pairs to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()

	s.registry.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("timed out waiting for connections to drain")
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok %d connections\n", s.registry.Count())
}

// handleWebSocket authenticates and upgrades one connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Hold the read lock across both the shutdown check and wg.Add to prevent
	// a race where Stop() calls wg.Wait() between our check and our Add.
	s.mu.RLock()
	if s.shutdown {
		s.mu.RUnlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	userID, err := s.auth.Authenticate(r.Context(), bearerToken(r))
	if err != nil {
		s.wg.Done()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.wg.Done()
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	go s.handleConnection(ws, userID)
}

// bearerToken pulls the session token from ?token= or the Authorization
// header. Browser WebSocket clients cannot set headers, so the query
// parameter is the primary path.
func bearerToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	const prefix = "Bearer "
	if h := r.Header.Get("Authorization"); len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// handleConnection runs one connection's lifecycle: register, hello, loop
// pair, teardown. Deregistration is idempotent, so it does not matter which
// loop dies first.
func (s *Server) handleConnection(ws *websocket.Conn, userID string) {
	defer s.wg.Done()
	defer func() {
		_ = ws.Close()
	}()

	hc := hub.NewConn(userID, s.queueSize)
	if err := s.registry.Register(hc); err != nil {
		s.log.Error("register connection", "user_id", userID, "error", err)
		return
	}
	defer s.registry.Deregister(hc.ID())
	defer s.limiter.Forget(string(hc.ID()))

	conn := NewConnection(ws, hc, s)

	// Hello goes through the queue like everything else, so it is the first
	// frame the write loop delivers.
	_ = s.router.SendToConnection(hc.ID(), types.Hello(s.version, userID))

	ctx := context.Background()
	errCh := make(chan error, 2)
	go func() {
		errCh <- conn.ReadLoop(ctx)
	}()
	go func() {
		errCh <- conn.WriteLoop(ctx)
	}()

	// First loop to exit wins. Deregister closes the hub conn for the write
	// loop; closing the socket unblocks a read loop parked in ReadMessage.
	if err := <-errCh; err != nil && err != context.Canceled {
		s.log.Debug("connection closed", "conn_id", string(hc.ID()), "user_id", userID, "error", err)
	}
	s.registry.Deregister(hc.ID())
	_ = ws.Close()
	<-errCh
}
