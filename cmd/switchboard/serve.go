package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchboardhq/switchboard/internal/auth"
	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/coordinator"
	"github.com/switchboardhq/switchboard/internal/hub"
	"github.com/switchboardhq/switchboard/internal/provider"
	"github.com/switchboardhq/switchboard/internal/ratelimit"
	"github.com/switchboardhq/switchboard/internal/store"
	"github.com/switchboardhq/switchboard/internal/tsnetlisten"
	"github.com/switchboardhq/switchboard/internal/websocket"
)

func serveCmd() *cobra.Command {
	var flagAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if flagDB != "" {
				cfg.DBPath = flagDB
			}
			if flagAddr != "" {
				cfg.Addr = flagAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (overrides SWITCHBOARD_ADDR)")
	return cmd
}

func runServe(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	providers := provider.NewRegistry()
	providers.Register("echo", &provider.Echo{})
	if cfg.DefaultModel != "" && cfg.DefaultModel != "echo" {
		// Echo backs any configured model id until a real client is wired
		// for it, so deployments can exercise the fan-out path end to end.
		providers.Register(cfg.DefaultModel, &provider.Echo{})
		providers.SetDefault(cfg.DefaultModel)
	}

	index := hub.NewIndex()
	registry := hub.NewRegistry(index, log)
	router := hub.NewRouter(registry, index, log)
	limiter := ratelimit.New(ratelimit.Config{
		Enabled:         cfg.RateLimitEnabled,
		FramesPerSecond: cfg.RateLimitFPS,
		BurstSize:       cfg.RateLimitBurst,
	})
	coord := coordinator.New(st, router, providers, cfg.CallTimeout, log)

	server := websocket.NewServer(websocket.Options{
		Addr:        cfg.Addr,
		Version:     Version,
		Auth:        auth.New(st),
		Store:       st,
		Registry:    registry,
		Index:       index,
		Router:      router,
		Coordinator: coord,
		Limiter:     limiter,
		QueueSize:   cfg.QueueSize,
		Log:         log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		return err
	}

	var tsln *tsnetlisten.Listener
	if cfg.Tailscale.Enabled {
		tsln, err = tsnetlisten.New(cfg.Tailscale, log)
		if err != nil {
			return fmt.Errorf("start tailnet listener: %w", err)
		}
		log.Info("tailnet listener up", "hostname", cfg.Tailscale.Hostname, "port", cfg.Tailscale.Port)
		go func() {
			if err := server.Serve(tsln); err != nil {
				log.Error("tailnet listener stopped", "error", err)
			}
		}()
	}

	// Idle rate-limit buckets accumulate one per connection; sweep hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.CleanupStale(0)
			}
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	if tsln != nil {
		_ = tsln.Close()
	}
	if err := server.Stop(); err != nil {
		log.Error("server stop", "error", err)
	}

	// In-flight model calls finish and persist before the store closes.
	coord.Wait()

	return nil
}
