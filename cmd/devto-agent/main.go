// ABOUTME: Entry point for the devto agent CLI
// ABOUTME: Connects to a tool server and runs content-platform skills

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/HeetVekariya/devto-agent/internal/bridge"
	"github.com/HeetVekariya/devto-agent/internal/config"
	"github.com/HeetVekariya/devto-agent/internal/dedupe"
	"github.com/HeetVekariya/devto-agent/internal/registry"
	"github.com/HeetVekariya/devto-agent/internal/session"
	"github.com/HeetVekariya/devto-agent/internal/skill"
	"github.com/HeetVekariya/devto-agent/internal/store"
	"github.com/HeetVekariya/devto-agent/internal/toolset"
	"github.com/HeetVekariya/devto-agent/internal/transport"
)

// Version is set by goreleaser at build time.
var version = "dev"

// getConfigPath returns the path to the agent config file.
// Priority: DEVTO_AGENT_CONFIG env var > XDG_CONFIG_HOME/devto-agent/config.yaml > ~/.config/devto-agent/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("DEVTO_AGENT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "devto-agent", "config.yaml")
}

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "version" {
		fmt.Printf("devto-agent %s\n", version)
		return
	}
	if len(os.Args) < 2 {
		fmt.Println("Usage: devto-agent <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run <skill> [key=value ...]  Execute a skill")
		fmt.Println("  skills                       List available skills")
		fmt.Println("  tools                        List tools advertised by the server")
		fmt.Println("  ledger                       Show recent publish attempts")
		fmt.Println("  version                      Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runSkill(ctx, os.Args[2:])
	case "skills":
		err = runSkills(ctx)
	case "tools":
		err = runTools(ctx)
	case "ledger":
		err = runLedger(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// agent bundles everything a command needs once the session is up.
type agent struct {
	cfg    *config.Config
	logger *slog.Logger
	sess   *session.Session
	router *skill.Router
	ledger *store.Ledger
	guard  *dedupe.Guard
}

func connect(ctx context.Context) (*agent, error) {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	var channel transport.Channel
	switch cfg.Transport.Mode {
	case "stdio":
		channel, err = transport.StartSubprocess(ctx, cfg.Transport.Command, cfg.Transport.Args, logger)
	case "stream":
		channel, err = transport.DialStream(ctx, cfg.Transport.ServerURL, nil, logger)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting transport: %w", err)
	}

	sess := session.New(channel, logger, session.Options{
		DefaultTimeout: cfg.Transport.CallTimeout,
		DrainGrace:     cfg.Transport.DrainGrace,
	})
	if err := sess.WaitReady(ctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("waiting for server handshake: %w", err)
	}

	logger.Info("session established",
		"session_id", sess.ID(),
		"mode", cfg.Transport.Mode,
		"tools", len(sess.Tools()),
	)

	reg := registry.New()
	for _, def := range toolset.Definitions() {
		if err := reg.RegisterDefinition(def); err != nil {
			sess.Close()
			return nil, fmt.Errorf("registering tool %s: %w", def.Name, err)
		}
	}

	br := bridge.New(reg, sess, logger)

	publishWindow := cfg.Skills.PublishWindow
	if publishWindow == 0 {
		publishWindow = dedupe.DefaultWindow
	}
	guard := dedupe.NewGuard(publishWindow, 1000)

	ledger, err := store.Open(cfg.Ledger.Path)
	if err != nil {
		guard.Close()
		sess.Close()
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	router := skill.NewRouter(br, guard, ledger, logger)
	if cfg.Skills.CatalogPath != "" {
		if err := router.LoadCatalog(cfg.Skills.CatalogPath); err != nil {
			ledger.Close()
			guard.Close()
			sess.Close()
			return nil, err
		}
	}

	return &agent{
		cfg:    cfg,
		logger: logger,
		sess:   sess,
		router: router,
		ledger: ledger,
		guard:  guard,
	}, nil
}

func (a *agent) shutdown() {
	a.sess.Drain()
	a.ledger.Close()
	a.guard.Close()
}

func runSkill(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: devto-agent run <skill> [key=value ...]")
	}
	skillID := args[0]
	skillArgs, err := parseArgs(args[1:])
	if err != nil {
		return err
	}

	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown()

	reply, err := a.router.Execute(ctx, skillID, skillArgs)
	if err != nil {
		return err
	}

	if !reply.OK() {
		red := color.New(color.FgRed)
		red.Printf("✗ %s failed at step %s\n", reply.SkillID, reply.Failed)
		fmt.Printf("  %s: %s\n", reply.Failure.Kind, reply.Failure.Message)
		os.Exit(1)
	}

	fmt.Println(reply.Text)
	return nil
}

// parseArgs turns key=value pairs into skill arguments. Comma-separated
// values for "tags" become a list; numeric values stay strings except for
// the well-known integer keys.
func parseArgs(pairs []string) (map[string]any, error) {
	args := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		switch key {
		case "tags":
			var tags []string
			for _, tag := range strings.Split(value, ",") {
				if trimmed := strings.TrimSpace(tag); trimmed != "" {
					tags = append(tags, trimmed)
				}
			}
			args[key] = tags
		case "id", "page", "per_page", "article_id":
			var n int
			if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
				return nil, fmt.Errorf("argument %s must be an integer, got %q", key, value)
			}
			args[key] = n
		case "published":
			args[key] = value == "true"
		default:
			args[key] = value
		}
	}
	return args, nil
}

func runSkills(ctx context.Context) error {
	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown()

	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	fmt.Println("Available skills:")
	for _, d := range a.router.List() {
		fmt.Print("  ")
		cyan.Print(d.ID)
		if d.Mutating {
			yellow.Print(" [mutating]")
		}
		fmt.Printf("\n      %s\n", d.Description)
	}
	return nil
}

func runTools(ctx context.Context) error {
	a, err := connect(ctx)
	if err != nil {
		return err
	}
	defer a.shutdown()

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	tools := a.sess.Tools()
	sort.Strings(tools)

	fmt.Printf("Session %s advertises %d tool(s):\n", a.sess.ID(), len(tools))
	for _, name := range tools {
		fmt.Print("  ")
		cyan.Println(name)
	}
	gray.Println("\nTool calls are issued by skills; see: devto-agent skills")
	return nil
}

func runLedger(ctx context.Context) error {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ledger, err := store.Open(cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer ledger.Close()

	attempts, err := ledger.ListAttempts(ctx, 25)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Println("No publish attempts recorded.")
		return nil
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	fmt.Printf("Last %d publish attempt(s):\n", len(attempts))
	for _, a := range attempts {
		fmt.Print("  ")
		switch a.Outcome {
		case store.OutcomePublished:
			green.Print("✓ ")
		case store.OutcomeFailed:
			red.Print("✗ ")
		case store.OutcomeAmbiguous:
			yellow.Print("? ")
		default:
			gray.Print("… ")
		}
		fmt.Printf("%s  %q", a.CreatedAt.Local().Format("2006-01-02 15:04"), a.Title)
		if a.ArticleURL != "" {
			fmt.Printf("  %s", a.ArticleURL)
		}
		if a.Detail != "" {
			gray.Printf("  (%s)", a.Detail)
		}
		fmt.Println()
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler renders slog records as colorized single lines on stderr,
// keeping stdout clean for skill replies. One mutex serializes writes so
// concurrent loggers never interleave.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

var levelLabels = map[slog.Level]string{
	slog.LevelDebug: color.MagentaString("DBG "),
	slog.LevelInfo:  color.CyanString("INF "),
	slog.LevelWarn:  color.YellowString("WRN "),
	slog.LevelError: color.New(color.FgRed, color.Bold).Sprint("ERR "),
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var line strings.Builder
	line.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	label, ok := levelLabels[r.Level]
	if !ok {
		label = "??? "
	}
	line.WriteString(label)
	line.WriteString(r.Message)

	// Attrs bound via WithAttrs come before the record's own.
	for _, a := range h.attrs {
		writeAttr(&line, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&line, a)
		return true
	})

	line.WriteString("\n")
	fmt.Fprint(os.Stderr, line.String())
	return nil
}

func writeAttr(line *strings.Builder, a slog.Attr) {
	line.WriteString(color.HiBlackString(" " + a.Key + "="))
	line.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &colorHandler{level: h.level, attrs: merged, groups: h.groups}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &colorHandler{level: h.level, attrs: h.attrs, groups: groups}
}
