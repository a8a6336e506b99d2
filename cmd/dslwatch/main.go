// CLAUDE:SUMMARY CLI entry point for dslwatch: daemon mode with HTTP status API, one-shot stats read, MCP over stdio.
// Command dslwatch augments the router console open in Chrome with live DSL
// line statistics and a Reset DSL button.
//
// Usage:
//
//	dslwatch -config dslwatch.yaml   # watch the console, serve the status API
//	dslwatch -once                   # print one stats snapshot as JSON and exit
//	dslwatch -mcp                    # also serve MCP tools on stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/dslwatch/dslwatch"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to dslwatch.yaml config file")
	envPath := flag.String("env", ".env", "path to a .env file (ignored if missing)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	once := flag.Bool("once", false, "read the line stats once, print them as JSON and exit")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdin/stdout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *envPath, *logLevel, *once, *serveMCP); err != nil {
		slog.Error("dslwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, envPath, logLevel string, once, serveMCP bool) error {
	cfg, err := loadConfig(configPath, envPath, logLevel)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	w, err := dslwatch.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	// Deferred first so it runs after the HTTP server has drained.
	defer w.Close()

	if once {
		return runOnce(ctx, w)
	}

	if cfg.HTTPEnabled() {
		srv := &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           w.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("dslwatch: http listening", "addr", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("dslwatch: http server", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
	}

	if serveMCP {
		srv := mcp.NewServer(&mcp.Implementation{Name: "dslwatch", Version: version}, nil)
		w.RegisterMCP(srv)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("dslwatch: mcp server", "error", err)
			}
		}()
	}

	return w.Run(ctx)
}

// loadConfig reads the .env file and the config file, then applies the
// -log-level override.
func loadConfig(configPath, envPath, logLevel string) (*dslwatch.Config, error) {
	if err := dslwatch.LoadDotEnv(envPath); err != nil {
		return nil, err
	}
	cfg, err := dslwatch.LoadConfigFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("-log-level: %w", err)
		}
	}
	return cfg, nil
}

func runOnce(ctx context.Context, w *dslwatch.Watcher) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	snap, err := w.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

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
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
