// SPDX-License-Identifier: AGPL-3.0-only

// Package gateway serves chat sessions over WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jolks/mcp-toolchat/internal/agent"
	"github.com/jolks/mcp-toolchat/internal/config"
	"github.com/jolks/mcp-toolchat/internal/errors"
	"github.com/jolks/mcp-toolchat/internal/logging"
	"github.com/jolks/mcp-toolchat/internal/model"
)

// Conversation answers user messages within a session.
type Conversation interface {
	Respond(ctx context.Context, s *agent.Session, userText string) (agent.Reply, error)
	EndSession(s *agent.Session) error
}

// Request is a client frame.
type Request struct {
	Message string `json:"message"`
}

// Response is a server frame. Error is set alone when the exchange failed.
type Response struct {
	Reply     string `json:"reply,omitempty"`
	Stop      string `json:"stop,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

const writeTimeout = 10 * time.Second

// Gateway accepts WebSocket connections and gives each one its own session.
type Gateway struct {
	conv       Conversation
	cfg        config.GatewayConfig
	upgrader   websocket.Upgrader
	logger     *logging.Logger
	httpServer *http.Server

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	wg      sync.WaitGroup
	stopped bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a gateway.
func New(conv Conversation, cfg config.GatewayConfig, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		conv: conv,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:  logger,
		conns:   make(map[*websocket.Conn]struct{}),
		baseCtx: ctx,
		cancel:  cancel,
	}
	g.upgrader.CheckOrigin = g.checkOrigin
	return g
}

// checkOrigin accepts clients without an Origin header, the gateway's own
// host, and the configured origins. An allowed entry is either a full origin
// (scheme://host) or a bare host.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimRight(origin, "/")
	originHost := strings.TrimPrefix(origin, "https://")
	originHost = strings.TrimPrefix(originHost, "http://")
	if strings.EqualFold(originHost, r.Host) {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		a := strings.TrimRight(strings.TrimSpace(allowed), "/")
		if a == "" {
			continue
		}
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			if strings.EqualFold(a, origin) {
				return true
			}
			continue
		}
		if strings.EqualFold(a, originHost) {
			return true
		}
	}
	return false
}

// Handler routes the WebSocket path and a health check.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(g.cfg.Path, g.serveWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start listens on the configured address until ctx ends or Stop is called.
func (g *Gateway) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", g.cfg.Address, g.cfg.Port)
	g.httpServer = &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := g.Stop(); err != nil {
			g.logger.Errorf("Error stopping gateway: %v", err)
		}
	}()
	go func() {
		g.logger.Infof("Chat gateway listening on ws://%s%s", addr, g.cfg.Path)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.logger.Errorf("Error running gateway: %v", err)
		}
	}()
	return nil
}

// Stop closes the listener and every open connection, then waits for their
// sessions to be saved. Calling it twice is harmless.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	if g.stopped {
		g.mu.Unlock()
		return nil
	}
	g.stopped = true
	g.cancel()
	for conn := range g.conns {
		_ = conn.Close()
	}
	g.mu.Unlock()

	var shutdownErr error
	if g.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.httpServer.Shutdown(ctx); err != nil {
			shutdownErr = errors.Internal(fmt.Errorf("error shutting down gateway: %w", err))
		}
	}
	g.wg.Wait()
	return shutdownErr
}

func (g *Gateway) track(conn *websocket.Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return false
	}
	g.conns[conn] = struct{}{}
	g.wg.Add(1)
	return true
}

func (g *Gateway) untrack(conn *websocket.Conn) {
	g.mu.Lock()
	delete(g.conns, conn)
	g.mu.Unlock()
	g.wg.Done()
}

func (g *Gateway) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	if !g.track(conn) {
		_ = conn.Close()
		return
	}
	defer g.untrack(conn)
	defer conn.Close()

	connCtx, cancel := context.WithCancel(g.baseCtx)
	defer cancel()

	session := agent.NewSession(model.ChannelGateway)
	logger := g.logger.WithField("session_id", session.ID)
	logger.Infof("Gateway session opened from %s", r.RemoteAddr)
	defer func() {
		if err := g.conv.EndSession(session); err != nil {
			logger.Errorf("Failed to save transcript: %v", err)
		}
		logger.Infof("Gateway session closed")
	}()

	// Frames are read on their own goroutine so a disconnect cancels the turn
	// in progress.
	frames := make(chan []byte)
	go func() {
		defer cancel()
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debugf("Connection ended: %v", err)
				}
				return
			}
			select {
			case frames <- data:
			case <-connCtx.Done():
				return
			}
		}
	}()

	for data := range frames {
		resp := g.exchange(connCtx, session, logger, data)
		if connCtx.Err() != nil {
			return
		}
		if err := g.write(conn, resp); err != nil {
			logger.Warnf("Failed to write response: %v", err)
			return
		}
	}
}

// exchange turns one client frame into one server frame.
func (g *Gateway) exchange(ctx context.Context, session *agent.Session, logger *logging.Logger, data []byte) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Response{Error: fmt.Sprintf("invalid request: %v", err)}
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return Response{Error: "message must not be empty"}
	}

	reply, err := g.conv.Respond(ctx, session, text)
	if err != nil {
		logger.Errorf("Exchange failed: %v", err)
		return Response{Error: err.Error()}
	}
	return Response{Reply: reply.Text, Stop: string(reply.Stop), SessionID: session.ID}
}

func (g *Gateway) write(conn *websocket.Conn, resp Response) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(resp)
}
