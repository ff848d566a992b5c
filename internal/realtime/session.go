package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type SessionConfig struct {
	SendBuffer      int
	MaxMessageSize  int64
	WriteWait       time.Duration
	PongWait        time.Duration
	PingInterval    time.Duration
	Parallelism     int64
	EventsPerSecond float64
	EventBurst      int
}

func SessionConfigFrom(cfg *config.Config) SessionConfig {
	rt := cfg.Realtime
	return SessionConfig{
		SendBuffer:      rt.SendBuffer,
		MaxMessageSize:  rt.MaxMessageSize,
		WriteWait:       rt.WriteWait,
		PongWait:        rt.PongWait,
		PingInterval:    rt.PingInterval,
		Parallelism:     int64(rt.HandlerParallelism),
		EventsPerSecond: rt.EventsPerSecond,
		EventBurst:      rt.EventBurst,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 8
	}
	return c
}

// Session is one authenticated socket connection.
type Session struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	cfg      SessionConfig
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
	send   chan []byte

	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	inflight sync.WaitGroup
}

func newSession(id string, identity auth.Identity, conn *websocket.Conn, cfg SessionConfig, log *zap.Logger) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		id:       id,
		identity: identity,
		conn:     conn,
		cfg:      cfg,
		send:     make(chan []byte, cfg.SendBuffer),
		sem:      semaphore.NewWeighted(cfg.Parallelism),
		log: log.With(
			zap.String("session_id", id),
			zap.Int64("user_id", identity.UserID)),
	}
	if cfg.EventsPerSecond > 0 {
		burst := cfg.EventBurst
		if burst <= 0 {
			burst = int(cfg.EventsPerSecond)
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.EventsPerSecond), burst)
	}
	return s
}

func (s *Session) SessionID() string       { return s.id }
func (s *Session) UserID() int64           { return s.identity.UserID }
func (s *Session) Role() string            { return s.identity.Role }
func (s *Session) Identity() auth.Identity { return s.identity }

func (s *Session) Send(frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.log.Warn("session send buffer full")
		return false
	}
}

// Emit sends one event to this session only.
func (s *Session) Emit(event EventType, payload any) bool {
	frame, err := Encode(event, payload)
	if err != nil {
		s.log.Error("encode outbound event", zap.String("event", string(event)), zap.Error(err))
		return false
	}
	return s.Send(frame)
}

func (s *Session) EmitError(event EventType, code, msg string) {
	s.Emit(EventError, ErrorPayload{Code: code, Message: msg, Event: event})
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames until the connection fails and hands each one to
// dispatch on its own goroutine, at most Parallelism at a time.
func (s *Session) readPump(ctx context.Context, dispatch func(context.Context, *Session, []byte)) {
	defer s.inflight.Wait()

	if s.cfg.MaxMessageSize > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		mt, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			s.EmitError("", CodeValidation, "binary frames are not supported")
			continue
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.EmitError("", CodeRateLimited, "too many events")
			continue
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			defer s.sem.Release(1)
			dispatch(ctx, s, frame)
		}()
	}
}
