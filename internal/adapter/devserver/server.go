// Package devserver is a small game server speaking the shiplink protocol.
// It backs local development (`shiplink devserver`) and end-to-end tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"shiplink/internal/adapter/codec"
	"shiplink/internal/adapter/transport"
	"shiplink/internal/domain"
	"shiplink/internal/infra/logger"
	"shiplink/internal/infra/middleware"
)

// Handler serves one method. Returning a *domain.RPCError sends its code
// and message to the client; any other error is reported as code 500.
type Handler func(ctx context.Context, c *Client, params []json.RawMessage) (any, error)

// Client is one connected player.
type Client struct {
	ConnID uint64
	Token  string

	mu   sync.Mutex
	user domain.User

	ws        *websocket.Conn
	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// User returns the client's current user record.
func (c *Client) User() domain.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

func (c *Client) setUser(u domain.User) {
	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Server accepts WebSocket clients on /ws.
type Server struct {
	auth     *TicketAuth
	sessions *Sessions
	logger   *slog.Logger
	addr     string
	now      func() time.Time

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	upgradeLimit middleware.RateLimitConfig

	clients   sync.Map // connID (uint64) -> *Client
	nextID    atomic.Uint64
	httpSrv   *http.Server
	boundAddr atomic.Value // string
	ready     chan struct{}
	readyOnce sync.Once
}

// NewServer creates a server with the default handlers registered.
func NewServer(auth *TicketAuth, addr string, log *slog.Logger) *Server {
	s := &Server{
		auth:     auth,
		sessions: NewSessions(nil),
		logger:   logger.OrDiscard(log),
		addr:     addr,
		now:      time.Now,
		handlers: make(map[string]Handler),
		ready:    make(chan struct{}),
	}
	registerDefaults(s)
	return s
}

// LimitUpgrades caps connection attempts per client IP. perMinute <= 0
// disables the limit. Must be called before Start.
func (s *Server) LimitUpgrades(perMinute, burst int) {
	s.upgradeLimit = middleware.RateLimitConfig{PerMinute: perMinute, Burst: burst}
}

// RegisterHandler adds or replaces the handler for method.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.handlersMu.Lock()
	s.handlers[method] = h
	s.handlersMu.Unlock()
}

// Start listens and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.readyOnce.Do(func() { close(s.ready) })
		return fmt.Errorf("devserver listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on an existing listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	var upgrade http.Handler = http.HandlerFunc(s.handleUpgrade)
	if s.upgradeLimit.PerMinute > 0 {
		upgrade = middleware.RateLimit(ctx, s.upgradeLimit)(upgrade)
	}
	mux.Handle("/ws", upgrade)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.httpSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s.boundAddr.Store(listener.Addr().String())
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("devserver started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("devserver serve: %w", err)
	}
	return nil
}

// Ready is closed once the server is bound (or failed to bind).
func (s *Server) Ready() <-chan struct{} { return s.ready }

// BoundAddr returns the address the server bound to. Only valid after Ready.
func (s *Server) BoundAddr() string {
	v, _ := s.boundAddr.Load().(string)
	return v
}

// URL returns the WebSocket URL clients should dial.
func (s *Server) URL() string {
	return "ws://" + s.BoundAddr() + "/ws"
}

// Stop closes every client with "going away" and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.clients.Range(func(key, value any) bool {
		c := value.(*Client)
		c.shutdown()
		c.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("version") == "" {
		http.Error(w, "missing client version", http.StatusBadRequest)
		return
	}

	var (
		user    domain.User
		token   string
		offline time.Duration
		expired bool
	)
	if tok := q.Get("session"); tok != "" {
		u, off, ok := s.sessions.Resume(tok)
		if ok {
			user, token, offline = u, tok, off
		} else {
			// Must upgrade to deliver the close code.
			expired = true
		}
	} else {
		u, err := s.auth.Authenticate(q.Get("ticket"), q.Get("platform"))
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		token, user = s.sessions.Open(u)
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*", "[::1]", "[::1]:*"},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	if expired {
		s.logger.Info("rejecting unknown session")
		ws.Close(websocket.StatusCode(transport.CloseSessionInvalid), "session expired")
		return
	}

	c := &Client{
		ConnID: s.nextID.Add(1),
		Token:  token,
		user:   user,
		ws:     ws,
		sendCh: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(c.ConnID, c)
	log := s.logger.With("conn_id", c.ConnID, "user", user.ID)
	log.Info("client connected", "version", q.Get("version"), "build", q.Get("build"), "resumed", offline > 0 || q.Has("session"))

	go s.writeLoop(c)

	welcome := &codec.Welcome{
		User:            user,
		ServerTime:      s.now().UnixMilli(),
		SessionToken:    token,
		OfflineDuration: offline.Milliseconds(),
	}
	s.send(c, welcome)

	s.readLoop(r.Context(), c, log)

	c.shutdown()
	s.clients.Delete(c.ConnID)
	s.sessions.Disconnected(token)
	ws.Close(websocket.StatusNormalClosure, "")
	log.Info("client disconnected")
}

func (s *Server) readLoop(ctx context.Context, c *Client, log *slog.Logger) {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		env, err := codec.Decode(data)
		if err != nil {
			log.Warn("bad frame from client", "error", err)
			continue
		}
		req, ok := env.(*codec.Request)
		if !ok {
			continue
		}
		go s.dispatch(ctx, c, req)
	}
}

func (s *Server) writeLoop(c *Client) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := c.ws.Write(ctx, websocket.MessageBinary, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatch(ctx context.Context, c *Client, req *codec.Request) {
	s.handlersMu.RLock()
	h, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()

	resp := &codec.Response{ID: req.ID}
	if !ok {
		resp.Error = &codec.ErrorObject{Code: CodeMethodNotFound, Message: fmt.Sprintf("%s: %s", domain.ErrMethodNotFound, req.Method)}
		s.send(c, resp)
		return
	}

	result, err := h(ctx, c, req.Params)
	switch {
	case err != nil:
		var re *domain.RPCError
		if errors.As(err, &re) {
			resp.Error = &codec.ErrorObject{Code: re.Code, Message: re.Message, Data: re.Data}
		} else {
			resp.Error = &codec.ErrorObject{Code: CodeInternal, Message: err.Error()}
		}
	case result != nil:
		raw, mErr := json.Marshal(result)
		if mErr != nil {
			resp.Error = &codec.ErrorObject{Code: CodeInternal, Message: mErr.Error()}
			break
		}
		resp.Result = raw
	}
	s.send(c, resp)
}

func (s *Server) send(c *Client, env codec.Envelope) {
	frame, err := codec.Encode(env)
	if err != nil {
		s.logger.Error("encode frame", "kind", env.Kind().String(), "error", err)
		return
	}
	select {
	case c.sendCh <- frame:
	default:
		s.logger.Warn("dropped frame for slow client", "conn_id", c.ConnID, "kind", env.Kind().String())
	}
}

// Broadcast pushes a chat frame to every connected client.
func (s *Server) Broadcast(items ...domain.ChatItem) {
	chat := &codec.Chat{Items: items}
	s.clients.Range(func(_, value any) bool {
		s.send(value.(*Client), chat)
		return true
	})
}

// InvalidateSession forgets token and disconnects its clients with the
// session-invalid close code.
func (s *Server) InvalidateSession(token string) bool {
	found := s.sessions.Invalidate(token)
	s.clients.Range(func(key, value any) bool {
		c := value.(*Client)
		if c.Token == token {
			c.shutdown()
			c.ws.Close(websocket.StatusCode(transport.CloseSessionInvalid), "session expired")
			s.clients.Delete(key)
		}
		return true
	})
	return found
}

// DropAll closes every connection with "going away" while keeping sessions,
// simulating a server restart.
func (s *Server) DropAll() {
	s.clients.Range(func(key, value any) bool {
		c := value.(*Client)
		c.shutdown()
		c.ws.Close(websocket.StatusGoingAway, "restarting")
		s.clients.Delete(key)
		return true
	})
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
