package main

import (
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	// Build info (set via ldflags).
	Version = "dev"
	Build   = "unknown"
)

var (
	// Global flags.
	flagDB    string
	flagJSON  bool
	flagQuiet bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Multi-user chat daemon with model fan-out",
		Long: `Switchboard is a chat daemon for humans and models.

Clients connect over WebSocket, subscribe to chats, and send messages.
Each message can request completions from one or more models; every
completion is persisted and broadcast as it arrives.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Database path (overrides SWITCHBOARD_DB)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "JSON output for scripting")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress non-essential output")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("switchboard v{{.Version}} (build: " + Build + ", " + goruntime.Version() + ")\n")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. Terminals get text output, pipes and
// service managers get JSON.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
