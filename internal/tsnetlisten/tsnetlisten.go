// Package tsnetlisten exposes the daemon on a tailnet via an embedded
// tsnet node, so remote clients connect without a public port.
package tsnetlisten

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"tailscale.com/client/local"
	"tailscale.com/tsnet"

	"github.com/switchboardhq/switchboard/internal/config"
)

// Listener wraps a tsnet server and its listener.
type Listener struct {
	server   *tsnet.Server
	listener net.Listener
	lc       *local.Client
	log      *slog.Logger
}

// New creates a tsnet node and starts listening on the configured port.
// The caller owns Close.
func New(cfg config.TailscaleConfig, log *slog.Logger) (*Listener, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("tailnet listener is not enabled")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
			return nil, fmt.Errorf("create tsnet state directory %s: %w", cfg.StateDir, err)
		}
	}

	srv := &tsnet.Server{
		Hostname: cfg.Hostname,
		AuthKey:  cfg.AuthKey,
		Dir:      cfg.StateDir,
	}
	if cfg.ControlURL != "" {
		srv.ControlURL = cfg.ControlURL
	}

	ln, err := srv.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("tsnet listen on :%d: %w", cfg.Port, err)
	}

	lc, err := srv.LocalClient()
	if err != nil {
		// WhoIs logging degrades to plain remote addresses.
		log.Warn("tsnet local client unavailable", "error", err)
		lc = nil
	}

	return &Listener{server: srv, listener: ln, lc: lc, log: log}, nil
}

// Accept waits for and returns the next connection, logging the tailnet
// identity behind it.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	l.logIdentity(conn)
	return conn, nil
}

// logIdentity resolves the peer's tailnet identity via WhoIs. Best effort;
// session auth still happens at the HTTP layer like every other listener.
func (l *Listener) logIdentity(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	if l.lc == nil {
		l.log.Debug("tailnet connection", "remote", remote)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	who, err := l.lc.WhoIs(ctx, remote)
	if err != nil || who.UserProfile == nil {
		l.log.Debug("tailnet connection", "remote", remote)
		return
	}
	l.log.Info("tailnet connection",
		"remote", remote,
		"login", who.UserProfile.LoginName,
		"node", who.Node.Name)
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close stops the listener and the tsnet node.
func (l *Listener) Close() error {
	lnErr := l.listener.Close()
	srvErr := l.server.Close()
	if lnErr != nil {
		return fmt.Errorf("close listener: %w", lnErr)
	}
	if srvErr != nil {
		return fmt.Errorf("close server: %w", srvErr)
	}
	return nil
}
