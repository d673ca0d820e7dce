// Parley is a protocol-translation gateway for embedded live chat.
//
// It exposes the chat tool surface to AI agents over MCP (stdio and
// streamable HTTP) and over a plain JSON API, and drives a third-party
// live-chat messaging service underneath. Configuration is loaded from
// a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	parley serve             Start the HTTP server (JSON API + MCP + widget)
//	parley stdio             Serve MCP over stdin/stdout for agent hosts
//	parley init [dir]        Write a default config file
//	parley version           Print version and build information
//	parley -o json version   Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/parleygate/parley/internal/buildinfo"
	"github.com/parleygate/parley/internal/classify"
	"github.com/parleygate/parley/internal/config"
	"github.com/parleygate/parley/internal/gateway"
	"github.com/parleygate/parley/internal/mcp"
	"github.com/parleygate/parley/internal/messaging"
	"github.com/parleygate/parley/internal/poll"
	"github.com/parleygate/parley/internal/session"
	"github.com/parleygate/parley/internal/tools"
	"github.com/parleygate/parley/internal/web"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// sessionSweepInterval is how often the in-memory session janitor runs.
const sessionSweepInterval = time.Minute

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the parley command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the servers and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stderr so the stdio MCP transport can own stdout.
//   - args is os.Args[1:], parsed manually rather than with the flag
//     package to avoid global state that interferes with parallel
//     tests.
//
// run returns nil on clean shutdown and a non-nil error for any
// failure. The caller (main) is responsible for printing the error and
// exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stderr, configPath)
	case "stdio":
		return runStdio(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Parley - Live Chat Gateway for AI Agents")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: parley [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the HTTP server (JSON API, MCP endpoint, widget)")
	fmt.Fprintln(w, "  stdio        Serve MCP over stdin/stdout")
	fmt.Fprintln(w, "  init [dir]   Write a default config file (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// newLogger builds a slog logger writing to w.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
// Otherwise [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// noiseTable builds the classifier noise tables from config. Empty
// config slices keep the built-in defaults.
func noiseTable(cfg *config.Config) classify.NoiseTable {
	table := classify.DefaultNoiseTable()
	if len(cfg.Noise.Phrases) > 0 {
		table.Phrases = cfg.Noise.Phrases
	}
	if len(cfg.Noise.SenderSubstrings) > 0 {
		table.SenderSubstrings = cfg.Noise.SenderSubstrings
	}
	if len(cfg.Noise.MessageReasons) > 0 {
		table.MessageReasons = cfg.Noise.MessageReasons
	}
	return table
}

// openStore constructs the configured session store. The returned
// cleanup must be called on shutdown.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, func(), error) {
	switch cfg.Session.Store {
	case "sqlite":
		db, err := sql.Open("sqlite3", cfg.Session.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open session database %s: %w", cfg.Session.DBPath, err)
		}
		store, err := session.NewSQLiteStore(db, cfg.Session.TTL.Duration)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("init session database %s: %w", cfg.Session.DBPath, err)
		}
		logger.Info("session store opened", "store", "sqlite", "path", cfg.Session.DBPath)
		return store, func() { store.Close() }, nil
	default:
		store := session.NewMemoryStore(cfg.Session.TTL.Duration)
		go store.StartJanitor(ctx, sessionSweepInterval)
		logger.Info("session store opened", "store", "memory", "ttl", cfg.Session.TTL.Duration)
		return store, func() { store.Close() }, nil
	}
}

// buildService wires the gateway service from configuration.
func buildService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gateway.Service, func(), error) {
	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	client := messaging.NewClient(cfg.Chat.Endpoint, cfg.Chat.OrgID, cfg.Chat.DeploymentID, logger)

	svc := gateway.New(gateway.Config{
		Store:    store,
		Client:   client,
		Platform: cfg.Chat.Platform,
		DeviceID: cfg.Chat.DeviceID,
		BaseURL:  cfg.Listen.BaseURL(),
		Poll: poll.Config{
			Deadline: cfg.Poll.Deadline.Duration,
			Interval: cfg.Poll.Interval.Duration,
			Noise:    noiseTable(cfg),
			Logger:   logger,
		},
		Logger: logger,
	})
	return svc, cleanup, nil
}

// runServe starts the HTTP server hosting the JSON API, the
// streamable-HTTP MCP endpoint, and the chat widget. It blocks until
// ctx is cancelled or a termination signal arrives.
func runServe(ctx context.Context, stderr io.Writer, configPath string) error {
	logger := newLogger(stderr, slog.LevelInfo, "text")
	logger.Info("starting Parley",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. The initial Info-level text logger covers only the startup
	// banner.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate.
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stderr, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"endpoint", cfg.Chat.Endpoint,
		"platform", cfg.Chat.Platform,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := tools.NewChatRegistry(svc)
	mcpServer := mcp.NewServer(registry, logger)

	srv := web.NewServer(cfg.Listen.Address, cfg.Listen.Port, svc, mcpServer.NewHTTPHandler(), logger)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

// runStdio serves MCP over stdin/stdout until EOF. All logging goes to
// stderr; stdout carries only JSON-RPC frames.
func runStdio(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stderr, slog.LevelWarn, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stderr, level, cfg.LogFormat)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	registry := tools.NewChatRegistry(svc)
	return mcp.NewServer(registry, logger).ServeStdio(ctx, os.Stdin, stdout)
}
