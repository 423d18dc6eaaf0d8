// ABOUTME: Entry point for the devto tool server
// ABOUTME: Serves platform tools over stdio or an SSE endpoint

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/HeetVekariya/devto-agent/internal/devto"
	"github.com/HeetVekariya/devto-agent/internal/registry"
	"github.com/HeetVekariya/devto-agent/internal/toolserver"
	"github.com/HeetVekariya/devto-agent/internal/toolset"
	"github.com/HeetVekariya/devto-agent/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _            _               _              _
  __| | _____   _| |_ ___        | |_ ___   ___ | |___
 / _' |/ _ \ \ / / __/ _ \ _____ | __/ _ \ / _ \| / __|
| (_| |  __/\ V /| || (_) |_____|| || (_) | (_) | \__ \
 \__,_|\___| \_/  \__\___/       \__\___/ \___/|_|___/
`

const defaultListenAddr = "127.0.0.1:8737"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: devto-toolserver <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  stdio          Serve one session over stdin/stdout")
		fmt.Println("  serve [addr]   Serve sessions over SSE (default " + defaultListenAddr + ")")
		fmt.Println("  version        Print the version")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  DEVTO_API_KEY   API key for the content platform")
		fmt.Println("  DEVTO_BASE_URL  Platform API root (default https://dev.to/api)")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "stdio":
		err = runStdio(ctx)
	case "serve":
		addr := defaultListenAddr
		if len(os.Args) > 2 {
			addr = os.Args[2]
		}
		err = runServe(ctx, addr)
	case "version":
		fmt.Printf("devto-toolserver %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildServer assembles the registry and server from the environment.
// Logs go to stderr: stdout belongs to the protocol in stdio mode.
func buildServer(format string) (*toolserver.Server, *slog.Logger) {
	logger := setupLogger(format)

	client := devto.NewClient(
		os.Getenv("DEVTO_BASE_URL"),
		os.Getenv("DEVTO_API_KEY"),
		nil,
		logger,
	)

	reg := registry.New()
	if err := toolset.Register(reg, client); err != nil {
		logger.Error("failed to register tools", "error", err)
		os.Exit(1)
	}

	return toolserver.New(reg, logger), logger
}

func runStdio(ctx context.Context) error {
	srv, logger := buildServer("text")

	// stdin/stdout carry frames; nothing else may write to stdout.
	pipe := transport.NewPipe(os.Stdin, os.Stdout, logger)
	sessionID := uuid.NewString()

	logger.Info("serving on stdio", "session_id", sessionID)
	err := srv.ServeChannel(ctx, pipe, sessionID)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runServe(ctx context.Context, addr string) error {
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	srv, logger := buildServer("text")
	hub := toolserver.NewHub(srv, logger)

	green.Print("    ▶ ")
	fmt.Printf("Listening: http://%s\n", addr)
	green.Print("    ▶ ")
	fmt.Printf("Events:    GET /events\n")
	fmt.Println()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: hub.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logger.Info("tool server listening", "addr", addr)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func setupLogger(format string) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEVTO_DEBUG") != "" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
