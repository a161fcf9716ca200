// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jolks/mcp-toolchat/internal/agent"
	"github.com/jolks/mcp-toolchat/internal/config"
	"github.com/jolks/mcp-toolchat/internal/gateway"
	"github.com/jolks/mcp-toolchat/internal/invoker"
	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/repl"
	"github.com/jolks/mcp-toolchat/internal/scheduler"
	"github.com/jolks/mcp-toolchat/internal/server"
	"github.com/jolks/mcp-toolchat/internal/singleton"
	"github.com/jolks/mcp-toolchat/internal/store"
	"github.com/jolks/mcp-toolchat/internal/tools"
)

// Run modes.
const (
	modeServer  = "server"
	modeChat    = "chat"
	modeGateway = "gateway"
)

const (
	discoverTimeout = 10 * time.Second
	replStopTimeout = 3 * time.Second
)

var (
	mode            = flag.String("mode", modeChat, "Run mode: server, chat or gateway")
	configPath      = flag.String("config", "", "Path to a TOML config file (default: ./config.toml if present)")
	address         = flag.String("address", "", "The address to bind the tool server to")
	port            = flag.Int("port", 0, "The port to bind the tool server to")
	transport       = flag.String("transport", "", "Tool server transport: stdio, sse or streamable")
	logLevel        = flag.String("log-level", "", "Logging level: debug, info, warn, error, fatal")
	logFile         = flag.String("log-file", "", "Log file path (default: stderr)")
	version         = flag.Bool("version", false, "Show version information and exit")
	aiProvider      = flag.String("ai-provider", "", "AI provider: openai, anthropic or gemini (default: openai)")
	aiBaseURL       = flag.String("ai-base-url", "", "Custom base URL for OpenAI-compatible endpoints")
	aiModel         = flag.String("ai-model", "", "Model name (default depends on the provider)")
	aiMaxIterations = flag.Int("ai-max-iterations", 0, "Maximum model completions per user message (default: 10)")
	mcpURL          = flag.String("mcp-url", "", "Endpoint of the MCP tool server used by the chat loop")
	dbPath          = flag.String("db-path", "", "Path to the SQLite database for transcripts and runs")
	dataDir         = flag.String("data-dir", "", "Directory served by the CSV tool")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if *version {
		log.Printf("%s version %s", cfg.Server.Name, cfg.Server.Version)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := createApp(ctx, cfg, *mode)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	waitForShutdown(cancel, app)
}

// loadConfig layers defaults, the config file, the environment and the
// command line, in that order.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.FromEnv(cfg)
	applyCommandLineFlagsToConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyCommandLineFlagsToConfig(cfg *config.Config) {
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *transport != "" {
		cfg.Server.TransportMode = *transport
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Logging.FilePath = *logFile
	}
	if *aiProvider != "" {
		cfg.AI.Provider = *aiProvider
	}
	if *aiBaseURL != "" {
		cfg.AI.BaseURL = *aiBaseURL
	}
	if *aiModel != "" {
		cfg.AI.Model = *aiModel
	}
	if *aiMaxIterations > 0 {
		cfg.AI.MaxToolIterations = *aiMaxIterations
	}
	if *mcpURL != "" {
		cfg.MCP.URL = *mcpURL
	}
	if *dbPath != "" {
		cfg.Store.DBPath = *dbPath
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
}

// Application holds the components of one run mode. Components a mode does
// not use stay nil.
type Application struct {
	mode       string
	logger     *logging.Logger
	server     *server.MCPServer
	controller *agent.Controller
	store      *store.SQLiteStore
	lock       *singleton.Lock
	scheduler  *scheduler.Scheduler
	gateway    *gateway.Gateway
	stdin      io.Reader
	stdout     io.Writer
	replCancel context.CancelFunc
	replDone   chan struct{}
}

func createApp(ctx context.Context, cfg *config.Config, mode string) (*Application, error) {
	switch mode {
	case modeServer:
		mcpServer, err := server.NewMCPServer(cfg, nil, nil)
		if err != nil {
			return nil, err
		}
		return &Application{mode: mode, server: mcpServer, logger: logging.GetDefaultLogger()}, nil
	case modeChat, modeGateway:
		return createChatApp(ctx, cfg, mode)
	default:
		return nil, fmt.Errorf("unknown mode %q: want %s, %s or %s", mode, modeServer, modeChat, modeGateway)
	}
}

func chatLogger(cfg *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.FilePath != "" {
		return logging.FileLogger(cfg.Logging.FilePath, level)
	}
	return logging.New(logging.Options{Output: os.Stderr, Level: level, Format: cfg.Logging.Format}), nil
}

// createChatApp wires the conversation loop shared by the terminal and the
// gateway: tool registry, remote invoker, chat provider and persistence.
func createChatApp(ctx context.Context, cfg *config.Config, mode string) (*Application, error) {
	logger, err := chatLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logging.SetDefaultLogger(logger)

	registry, err := tools.NewCatalogRegistry(cfg.Competitors)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	inv, err := invoker.New(cfg.MCP, logger)
	if err != nil {
		return nil, err
	}
	if cfg.MCP.DiscoverTools {
		discoverCtx, cancel := context.WithTimeout(ctx, discoverTimeout)
		defs, err := inv.Discover(discoverCtx)
		cancel()
		if err != nil {
			logger.Warnf("Tool discovery failed, using the built-in catalog: %v", err)
		} else {
			logger.Infof("Discovered %d remote tools, %d new", len(defs), registry.MergeRemote(defs))
		}
	}

	provider, err := agent.NewChatProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resultStore, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	controller := agent.NewController(provider, registry, inv, agent.Options{
		Model:         cfg.AI.Model,
		SystemPrompt:  cfg.AI.SystemPrompt,
		MaxIterations: cfg.AI.MaxToolIterations,
		Logger:        logger,
		Transcripts:   resultStore,
	})

	app := &Application{
		mode:       mode,
		logger:     logger,
		controller: controller,
		store:      resultStore,
	}

	// Only one process runs the schedules of a database.
	lock, err := singleton.Acquire(cfg.Store.DBPath)
	switch {
	case err == nil:
		app.lock = lock
		app.scheduler = scheduler.NewScheduler(&cfg.Scheduler, logger)
		app.scheduler.SetPromptRunner(agent.NewPromptRunner(controller, resultStore, logger))
		if err := app.scheduler.LoadSchedules(cfg.Schedules); err != nil {
			_ = lock.Release()
			_ = resultStore.Close()
			return nil, err
		}
	case err == singleton.ErrHeld:
		logger.Infof("Another process owns %s, scheduled prompts are skipped", cfg.Store.DBPath)
	default:
		_ = resultStore.Close()
		return nil, err
	}

	if mode == modeGateway {
		app.gateway = gateway.New(controller, cfg.Gateway, logger)
	}
	return app, nil
}

// Start starts every component of the application.
func (a *Application) Start(ctx context.Context) error {
	if a.scheduler != nil {
		a.scheduler.Start(ctx)
		a.logger.Infof("Prompt scheduler started")
	}

	switch a.mode {
	case modeServer:
		if err := a.server.Start(ctx); err != nil {
			return err
		}
		a.logger.Infof("MCP server started")
	case modeGateway:
		if err := a.gateway.Start(ctx); err != nil {
			return err
		}
	case modeChat:
		in, out := a.stdin, a.stdout
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stdout
		}
		terminal := repl.New(a.controller, in, out, a.logger)
		if a.scheduler != nil {
			terminal.WithSchedules(a.scheduler, a.store)
		}
		replCtx, cancel := context.WithCancel(ctx)
		a.replCancel = cancel
		a.replDone = make(chan struct{})
		go func() {
			defer close(a.replDone)
			if err := terminal.Run(replCtx); err != nil && replCtx.Err() == nil {
				a.logger.Errorf("Terminal chat ended: %v", err)
			}
		}()
	}
	return nil
}

// Done is closed when the foreground component ends on its own.
func (a *Application) Done() <-chan struct{} {
	switch {
	case a.replDone != nil:
		return a.replDone
	case a.server != nil:
		return a.server.Done()
	default:
		return nil
	}
}

// Stop stops every component and releases the database.
func (a *Application) Stop() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.replDone != nil {
		a.replCancel()
		// The terminal session saves its transcript on the way out.
		select {
		case <-a.replDone:
		case <-time.After(replStopTimeout):
			a.logger.Warnf("Terminal session did not end within %s", replStopTimeout)
		}
	}
	if a.scheduler != nil {
		keep(a.scheduler.Stop())
		a.logger.Infof("Prompt scheduler stopped")
	}
	if a.gateway != nil {
		keep(a.gateway.Stop())
		a.logger.Infof("Chat gateway stopped")
	}
	if a.server != nil {
		keep(a.server.Stop())
		a.logger.Infof("MCP server stopped")
	}
	if a.store != nil {
		keep(a.store.Close())
	}
	if a.lock != nil {
		keep(a.lock.Release())
	}
	return firstErr
}

// waitForShutdown waits for a termination signal or for the foreground
// component to exit, then stops the application.
func waitForShutdown(cancel context.CancelFunc, app *Application) {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signalCh:
		app.logger.Infof("Received termination signal, shutting down...")
	case <-app.Done():
		app.logger.Infof("Session ended, shutting down...")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	shutdownDone := make(chan struct{})
	go func() {
		if err := app.Stop(); err != nil {
			app.logger.Errorf("Error during shutdown: %v", err)
		}
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		app.logger.Infof("Graceful shutdown completed")
	case <-shutdownCtx.Done():
		app.logger.Warnf("Shutdown timed out")
	}
}
