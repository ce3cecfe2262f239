package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/collab-service/internal/domain"
	"github.com/cwrk-planet/collab-service/internal/protocol"
	"github.com/cwrk-planet/collab-service/internal/room"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
)

const RoomKeyParam = "roomKey"

const resolveTimeout = 5 * time.Second

type Resolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

type Authenticator interface {
	Authenticate(r *http.Request) (domain.Principal, error)
}

type Hub interface {
	Join(key string, conn room.Conn, info domain.UserInfo) (room.Conn, error)
	Leave(key, userID string, conn room.Conn) bool
	Relay(key string, sender room.Conn, userID string, in protocol.Inbound) (int, error)
}

type Metrics interface {
	HeartbeatReaped()
	AdmissionRejected(reason string)
	FrameDropped(reason string)
	ConnectionOpened()
	ConnectionClosed()
}

type nopMetrics struct{}

func (nopMetrics) HeartbeatReaped()         {}
func (nopMetrics) AdmissionRejected(string) {}
func (nopMetrics) FrameDropped(string)      {}
func (nopMetrics) ConnectionOpened()        {}
func (nopMetrics) ConnectionClosed()        {}

type Config struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	SendBuffer     int
	AllowedOrigins []string // empty: any origin
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return c
}

type Option func(*Server)

func WithMetrics(m Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

type Server struct {
	upgrader websocket.Upgrader
	hub      Hub
	resolver Resolver
	auth     Authenticator
	metrics  Metrics
	cfg      Config
	log      *slog.Logger

	mu       sync.Mutex
	conns    map[*wsConn]struct{}
	closing  bool
	sessions sync.WaitGroup
}

func NewServer(hub Hub, resolver Resolver, auth Authenticator, cfg Config, opts ...Option) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		hub:      hub,
		resolver: resolver,
		auth:     auth,
		metrics:  nopMetrics{},
		cfg:      cfg,
		log:      slog.Default(),
		conns:    make(map[*wsConn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return lo.Contains(s.cfg.AllowedOrigins, origin)
}

// HandleWS serves GET /rooms/{roomKey}/stream.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer s.untrack(c)

	go c.writePump()
	s.serve(r.Context(), c, r)
}

// Reject: upgrade without a room key, close 1008
func (s *Server) Reject(w http.ResponseWriter, r *http.Request) {
	c, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	defer s.untrack(c)

	s.reject(c, domain.ErrMissingRoomKey, s.log.With("remote", r.RemoteAddr, "path", r.URL.Path))
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := lo.Keys(s.conns)
	s.mu.Unlock()

	s.log.Info("ws shutdown", "connections", len(conns))

	var wg conc.WaitGroup
	for _, c := range conns {
		wg.Go(func() {
			_ = c.Close(protocol.CloseGoingAway, protocol.ReasonShutdown)
		})
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*wsConn, bool) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.log.Warn("ws upgrade failed", "remote", r.RemoteAddr, "path", r.URL.Path, "err", err)
		return nil, false
	}
	raw.SetReadLimit(s.cfg.ReadLimit)

	c := newWsConn(raw, s.cfg.SendBuffer, s.cfg.WriteTimeout)
	if !s.track(c) {
		_ = c.Close(protocol.CloseGoingAway, protocol.ReasonShutdown)
		return nil, false
	}
	return c, true
}

func (s *Server) track(c *wsConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	s.sessions.Add(1)
	s.metrics.ConnectionOpened()
	return true
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	s.metrics.ConnectionClosed()
	s.sessions.Done()
}

type session struct {
	key       string
	principal domain.Principal
	userID    string
	joined    bool
}

func (s *Server) serve(ctx context.Context, c *wsConn, r *http.Request) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := s.log.With("conn", c.ID(), "remote", r.RemoteAddr)
	sess := &session{}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("ws session panic", "panic", rec, "stack", string(debug.Stack()))
			_ = c.Close(protocol.CloseInternalError, protocol.ReasonInternal)
		}
		if sess.joined && s.hub.Leave(sess.key, sess.userID, c) {
			log.Info("left room", "user", sess.userID)
		}
		_ = c.Close(protocol.CloseNormal, "")
	}()

	key, principal, err := s.admit(ctx, r)
	if err != nil {
		s.reject(c, err, log)
		return
	}
	sess.key, sess.principal = key, principal
	log = log.With("room", key)

	hb := NewHeartbeat()
	c.raw.SetPongHandler(func(string) error {
		hb.Pong()
		return nil
	})
	go hb.Run(ctx, s.cfg.PingInterval, c.ping, func() {
		s.metrics.HeartbeatReaped()
		log.Info("heartbeat timeout")
		c.terminate()
	})

	s.readLoop(c, sess, log)
}

func (s *Server) admit(ctx context.Context, r *http.Request) (string, domain.Principal, error) {
	raw := strings.TrimSpace(chi.URLParam(r, RoomKeyParam))
	if raw == "" {
		return "", domain.Principal{}, domain.ErrMissingRoomKey
	}

	principal, err := s.auth.Authenticate(r)
	if err != nil {
		return "", domain.Principal{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	key, err := s.resolver.Resolve(ctx, raw)
	if err != nil {
		return "", domain.Principal{}, err
	}
	return key, principal, nil
}

func (s *Server) reject(c *wsConn, err error, log *slog.Logger) {
	code, reason, label := closeFor(err)
	s.metrics.AdmissionRejected(label)
	if code == protocol.CloseInternalError {
		log.Error("ws admission failed", "err", err)
	} else {
		log.Info("ws admission rejected", "reason", label, "err", err)
	}
	_ = c.Close(code, reason)
}

func closeFor(err error) (code int, reason, label string) {
	switch {
	case errors.Is(err, domain.ErrMissingRoomKey):
		return protocol.ClosePolicyViolation, protocol.ReasonMissingRoom, "missing_room"
	case errors.Is(err, domain.ErrUnauthenticated):
		return protocol.ClosePolicyViolation, protocol.ReasonUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return protocol.ClosePolicyViolation, protocol.ReasonDocumentNotFound, "document_not_found"
	default:
		return protocol.CloseInternalError, protocol.ReasonInternal, "internal"
	}
}

func (s *Server) readLoop(c *wsConn, sess *session, log *slog.Logger) {
	for {
		_, data, err := c.raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("ws read", "err", err)
			}
			return
		}

		in, err := protocol.Decode(data)
		if err != nil {
			s.drop(log, err)
			continue
		}

		if in.Type == protocol.TypeJoinRoom {
			if sess.joined {
				s.metrics.FrameDropped("duplicate_join")
				log.Debug("ws duplicate join ignored", "user", sess.userID)
				continue
			}
			if !s.join(c, sess, in.Join, log) {
				return
			}
			continue
		}

		if !sess.joined {
			s.metrics.FrameDropped("not_joined")
			log.Debug("ws frame before join", "type", in.Type)
			continue
		}
		if in.UserID != sess.userID {
			log.Debug("ws identity claim ignored", "user", sess.userID, "claimed", in.UserID)
		}
		if _, err := s.hub.Relay(sess.key, c, sess.userID, in); err != nil {
			s.metrics.FrameDropped("not_member")
			log.Debug("ws relay refused", "type", in.Type, "err", err)
		}
	}
}

// false: connection closed
func (s *Server) join(c *wsConn, sess *session, p *protocol.JoinPayload, log *slog.Logger) bool {
	info, err := bindIdentity(sess.principal, p)
	if err != nil {
		s.reject(c, err, log)
		return false
	}

	replaced, err := s.hub.Join(sess.key, c, info)
	if err != nil {
		s.reject(c, fmt.Errorf("join: %w", err), log)
		return false
	}
	sess.joined, sess.userID = true, info.UserID

	log.Info("joined room", "user", info.UserID, "anonymous", info.IsAnonymous, "replaced", replaced != nil)
	return true
}

func (s *Server) drop(log *slog.Logger, err error) {
	switch {
	case errors.Is(err, protocol.ErrUnknownType):
		s.metrics.FrameDropped("unknown_type")
		log.Debug("ws frame dropped", "err", err)
	case errors.Is(err, protocol.ErrMalformed):
		s.metrics.FrameDropped("malformed")
		log.Warn("ws frame dropped", "err", err)
	default:
		s.metrics.FrameDropped("invalid")
		log.Warn("ws frame dropped", "err", err)
	}
}

func bindIdentity(p domain.Principal, j *protocol.JoinPayload) (domain.UserInfo, error) {
	if p.Authenticated() {
		return domain.UserInfo{
			UserID:    p.UserID,
			UserName:  lo.CoalesceOrEmpty(p.Name, j.UserName),
			UserEmail: lo.CoalesceOrEmpty(p.Email, j.UserEmail),
			UserImage: lo.CoalesceOrEmpty(p.Image, j.UserImage),
		}, nil
	}
	if !j.IsAnonymous || j.AnonymousSessionID == "" {
		return domain.UserInfo{}, domain.ErrUnauthenticated
	}
	return domain.AnonymousUser(j.AnonymousSessionID), nil
}
