// SPDX-License-Identifier: AGPL-3.0-only

// Package server exposes the companies registry and data-file tools as an
// MCP server over stdio, SSE or streamable HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jolks/mcp-toolchat/internal/companieshouse"
	"github.com/jolks/mcp-toolchat/internal/config"
	"github.com/jolks/mcp-toolchat/internal/datafiles"
	"github.com/jolks/mcp-toolchat/internal/errors"
	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/tools"
)

// Make os.OpenFile mockable for testing
var osOpenFile = os.OpenFile

// MCPServer serves the tool catalog.
type MCPServer struct {
	server         *mcp.Server
	httpServer     *http.Server
	cancel         context.CancelFunc
	address        string
	port           int
	stopCh         chan struct{}
	done           chan struct{}
	wg             sync.WaitGroup
	config         *config.Config
	logger         *logging.Logger
	registry       *companieshouse.Client
	data           *datafiles.Dir
	specs          map[string]tools.Spec
	shutdownMutex  sync.Mutex
	isShuttingDown bool
}

// NewMCPServer creates the server and registers every catalog tool.
func NewMCPServer(cfg *config.Config, registry *companieshouse.Client, data *datafiles.Dir) (*MCPServer, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	logger, err := serverLogger(cfg)
	if err != nil {
		return nil, err
	}
	logging.SetDefaultLogger(logger)

	switch cfg.Server.TransportMode {
	case "stdio":
		logger.Infof("Using stdio transport")
	case "sse", "streamable":
		logger.Infof("Using %s transport on %s:%d", cfg.Server.TransportMode, cfg.Server.Address, cfg.Server.Port)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported transport mode: %s", cfg.Server.TransportMode))
	}

	if registry == nil {
		registry = companieshouse.New(cfg.CompaniesHouse, nil, logger)
	}
	if data == nil {
		data = datafiles.NewDir(cfg.Data.Dir)
	}

	s := &MCPServer{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Server.Name,
			Version: cfg.Server.Version,
		}, nil),
		address:  cfg.Server.Address,
		port:     cfg.Server.Port,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		config:   cfg,
		logger:   logger,
		registry: registry,
		data:     data,
		specs:    map[string]tools.Spec{},
	}
	s.registerTools()
	return s, nil
}

// serverLogger picks the log destination. In stdio mode stdout carries the
// JSON-RPC stream, so logs go to a file next to the executable.
func serverLogger(cfg *config.Config) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.FilePath != "" {
		logger, err := logging.FileLogger(cfg.Logging.FilePath, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		return logger, nil
	}
	if cfg.Server.TransportMode != "stdio" {
		return logging.New(logging.Options{Level: level, Format: cfg.Logging.Format}), nil
	}

	execPath, err := os.Executable()
	if err != nil {
		execPath = cfg.Server.Name
	}
	logPath := filepath.Join(filepath.Dir(execPath), cfg.Server.Name+".log")

	logFile, err := osOpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.SetOutput(os.Stderr)
		return logging.New(logging.Options{Output: os.Stderr, Level: level, Format: cfg.Logging.Format}), nil
	}
	log.SetOutput(logFile)
	return logging.New(logging.Options{Output: logFile, Level: level, Format: cfg.Logging.Format}), nil
}

// Handler returns the HTTP handler of the configured HTTP transport.
func (s *MCPServer) Handler() http.Handler {
	getServer := func(*http.Request) *mcp.Server { return s.server }
	if s.config.Server.TransportMode == "sse" {
		return mcp.NewSSEHandler(getServer, nil)
	}
	return mcp.NewStreamableHTTPHandler(getServer, nil)
}

// Run serves one session on transport until it ends.
func (s *MCPServer) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// Start starts serving in the background.
func (s *MCPServer) Start(ctx context.Context) error {
	switch s.config.Server.TransportMode {
	case "stdio":
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer close(s.done)
			if err := s.server.Run(runCtx, &mcp.StdioTransport{}); err != nil {
				s.logger.Errorf("Error running MCP server: %v", err)
			}
		}()
	default:
		addr := fmt.Sprintf("%s:%d", s.address, s.port)
		s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Errorf("Error running MCP server: %v", err)
			}
		}()
	}

	go func() {
		select {
		case <-ctx.Done():
			if err := s.Stop(); err != nil {
				s.logger.Errorf("Error stopping MCP server: %v", err)
			}
		case <-s.stopCh:
		}
	}()
	return nil
}

// Done is closed when the stdio transport ends, for example when the client
// closes stdin. It never closes for HTTP transports.
func (s *MCPServer) Done() <-chan struct{} {
	return s.done
}

// Stop stops the server. Calling it twice is harmless.
func (s *MCPServer) Stop() error {
	s.shutdownMutex.Lock()
	defer s.shutdownMutex.Unlock()

	if s.isShuttingDown {
		s.logger.Debugf("Stop called but server is already shutting down, ignoring")
		return nil
	}
	s.isShuttingDown = true

	if s.cancel != nil {
		s.cancel()
	}

	var shutdownErr error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = errors.Internal(fmt.Errorf("error shutting down MCP server: %w", err))
		}
	}

	close(s.stopCh)
	s.wg.Wait()
	return shutdownErr
}
