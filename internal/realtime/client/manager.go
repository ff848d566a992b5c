// Package client keeps one logical realtime session to the sync server,
// reconnecting with exponential backoff and replaying room membership.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/kazak5205/mebelplace-sub009/internal/realtime"
	"go.uber.org/zap"
)

var (
	ErrAuth               = errors.New("authentication rejected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrAlreadyConnected   = errors.New("session already started")
	ErrClosed             = errors.New("manager closed")
	// ErrHandshakeTimeout counts as a failed attempt during reconnect.
	ErrHandshakeTimeout = errors.New("handshake timed out")
)

type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateDisconnected State = "disconnected"
)

type Config struct {
	URL string
	// BaseDelay is the wait before the first reconnect attempt; attempt n
	// waits BaseDelay * 2^(n-1).
	BaseDelay   time.Duration
	MaxAttempts int
	// HandshakeTimeout bounds one dial plus the wait for session:ready.
	HandshakeTimeout time.Duration
	Dialer           Dialer
	Clock            Clock
	Logger           *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = NewWebsocketDialer()
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type Credentials struct {
	Token string
}

// Session describes the server side of an established connection.
type Session struct {
	ID     string
	UserID int64
	Role   string
}

type Handler func(data json.RawMessage)

type StatusFunc func(state State, err error)

type Manager struct {
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	state     State
	token     string
	conn      Conn
	session   *Session
	rooms     map[string]struct{}
	handlers  map[realtime.EventType][]Handler
	statusFns []StatusFunc
	closed    bool
	done      chan struct{}

	writeMu sync.Mutex
	errs    chan error
	wg      sync.WaitGroup
}

func New(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:      cfg,
		log:      cfg.Logger,
		state:    StateIdle,
		rooms:    make(map[string]struct{}),
		handlers: make(map[realtime.EventType][]Handler),
		done:     make(chan struct{}),
		errs:     make(chan error, 8),
	}
}

// Connect dials the server and waits for session:ready.
func (m *Manager) Connect(ctx context.Context, cred Credentials) (*Session, error) {
	if cred.Token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrAuth)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.state != StateIdle && m.state != StateDisconnected {
		m.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	m.token = cred.Token
	notify := m.setStateLocked(StateConnecting, nil)
	m.mu.Unlock()
	notify()

	conn, sess, err := m.open(ctx)
	if err != nil {
		m.mu.Lock()
		notify := m.setStateLocked(StateDisconnected, err)
		m.mu.Unlock()
		notify()
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	m.attachLocked(conn, sess)
	notify = m.setStateLocked(StateConnected, nil)
	m.mu.Unlock()
	notify()

	m.log.Info("realtime session connected", zap.String("session_id", sess.ID), zap.Int64("user_id", sess.UserID))
	return sess, nil
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the current server session, nil when not connected.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.session
}

// Errors reports terminal failures such as ErrReconnectExhausted.
func (m *Manager) Errors() <-chan error { return m.errs }

// On registers a handler for an inbound event. Handlers run on the read
// goroutine in arrival order.
func (m *Manager) On(event realtime.EventType, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], h)
}

// OnTyped registers a handler that receives the decoded payload.
func OnTyped[T any](m *Manager, event realtime.EventType, fn func(T)) {
	m.On(event, func(data json.RawMessage) {
		var v T
		if err := sonic.Unmarshal(data, &v); err != nil {
			m.log.Warn("undecodable event payload", zap.String("event", string(event)), zap.Error(err))
			return
		}
		fn(v)
	})
}

func (m *Manager) OnStatus(fn StatusFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusFns = append(m.statusFns, fn)
}

// Emit sends one event. When the session is not connected it logs and
// drops the event.
func (m *Manager) Emit(event realtime.EventType, payload any) {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()
	if state != StateConnected || conn == nil {
		m.log.Warn("emit while not connected", zap.String("event", string(event)), zap.String("state", string(state)))
		return
	}
	frame, err := realtime.Encode(event, payload)
	if err != nil {
		m.log.Warn("encode outbound event", zap.String("event", string(event)), zap.Error(err))
		return
	}
	if err := m.write(conn, websocket.TextMessage, frame); err != nil {
		// the read loop notices the broken connection and reconnects
		m.log.Warn("emit failed", zap.String("event", string(event)), zap.Error(err))
	}
}

// JoinRoom joins room now and again after every reconnect.
func (m *Manager) JoinRoom(room string) {
	m.mu.Lock()
	m.rooms[room] = struct{}{}
	m.mu.Unlock()
	m.Emit(realtime.EventRoomJoin, realtime.RoomPayload{Room: room})
}

func (m *Manager) LeaveRoom(room string) {
	m.mu.Lock()
	delete(m.rooms, room)
	m.mu.Unlock()
	m.Emit(realtime.EventRoomLeave, realtime.RoomPayload{Room: room})
}

// Rooms lists the rooms replayed on reconnect.
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomsLocked()
}

// Close ends the session for good. No reconnect follows.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	conn := m.conn
	m.conn = nil
	notify := m.setStateLocked(StateDisconnected, nil)
	m.mu.Unlock()

	var err error
	if conn != nil {
		_ = m.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = conn.Close()
	}
	notify()
	m.wg.Wait()
	return err
}

func (m *Manager) roomsLocked() []string {
	out := make([]string, 0, len(m.rooms))
	for r := range m.rooms {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

// setStateLocked records the new state and returns the callback fan-out,
// to be run after m.mu is released.
func (m *Manager) setStateLocked(s State, err error) func() {
	m.state = s
	fns := slices.Clone(m.statusFns)
	return func() {
		for _, fn := range fns {
			fn(s, err)
		}
	}
}

func (m *Manager) attachLocked(conn Conn, sess *Session) {
	m.conn = conn
	m.session = sess
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.readLoop(conn)
	}()
}

func (m *Manager) write(conn Conn, mt int, frame []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(mt, frame)
}

// open dials and completes the handshake within cfg.HandshakeTimeout.
func (m *Manager) open(ctx context.Context) (Conn, *Session, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, m.cfg.HandshakeTimeout, ErrHandshakeTimeout)
	defer cancel()

	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, err := m.cfg.Dialer.Dial(ctx, m.cfg.URL, header)
	if err != nil {
		if errors.Is(context.Cause(ctx), ErrHandshakeTimeout) {
			return nil, nil, ErrHandshakeTimeout
		}
		return nil, nil, err
	}
	sess, err := m.handshake(ctx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, sess, nil
}

type handshakeResult struct {
	sess *Session
	err  error
}

func (m *Manager) handshake(ctx context.Context, conn Conn) (*Session, error) {
	res := make(chan handshakeResult, 1)
	go func() {
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				res <- handshakeResult{err: fmt.Errorf("handshake: %w", err)}
				return
			}
			env, err := realtime.Decode(frame)
			if err != nil {
				continue
			}
			switch env.Event {
			case realtime.EventSessionReady:
				var p realtime.SessionReadyPayload
				if err := sonic.Unmarshal(env.Data, &p); err != nil {
					res <- handshakeResult{err: fmt.Errorf("handshake: %w", err)}
					return
				}
				res <- handshakeResult{sess: &Session{ID: p.SessionID, UserID: p.UserID, Role: p.Role}}
				return
			case realtime.EventError:
				var p realtime.ErrorPayload
				_ = sonic.Unmarshal(env.Data, &p)
				if p.Code == realtime.CodeAuth {
					res <- handshakeResult{err: fmt.Errorf("%w: %s", ErrAuth, p.Message)}
				} else {
					res <- handshakeResult{err: fmt.Errorf("handshake: server error %s: %s", p.Code, p.Message)}
				}
				return
			}
		}
	}()

	select {
	case r := <-res:
		return r.sess, r.err
	case <-ctx.Done():
		_ = conn.Close()
		if errors.Is(context.Cause(ctx), ErrHandshakeTimeout) {
			return nil, ErrHandshakeTimeout
		}
		return nil, ctx.Err()
	}
}

func (m *Manager) readLoop(conn Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			m.dropped(conn, err)
			return
		}
		env, err := realtime.Decode(frame)
		if err != nil {
			m.log.Warn("malformed frame from server", zap.Error(err))
			continue
		}
		m.mu.Lock()
		hs := slices.Clone(m.handlers[env.Event])
		m.mu.Unlock()
		for _, h := range hs {
			h(env.Data)
		}
	}
}

// dropped starts the reconnect loop unless the drop was requested.
func (m *Manager) dropped(conn Conn, cause error) {
	m.mu.Lock()
	if m.closed || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.session = nil
	notify := m.setStateLocked(StateReconnecting, cause)
	m.wg.Add(1)
	m.mu.Unlock()

	_ = conn.Close()
	m.log.Warn("realtime connection lost", zap.Error(cause))
	notify()

	go func() {
		defer m.wg.Done()
		m.reconnect()
	}()
}

func (m *Manager) reconnect() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var lastErr error
	for n := 1; n <= m.cfg.MaxAttempts; n++ {
		delay := m.cfg.BaseDelay << (n - 1)
		select {
		case <-m.cfg.Clock.After(delay):
		case <-m.done:
			return
		}

		conn, sess, err := m.open(ctx)
		if err != nil {
			lastErr = err
			m.log.Info("reconnect attempt failed", zap.Int("attempt", n), zap.Duration("delay", delay), zap.Error(err))
			if errors.Is(err, ErrAuth) {
				break
			}
			continue
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.attachLocked(conn, sess)
		rooms := m.roomsLocked()
		notify := m.setStateLocked(StateConnected, nil)
		m.mu.Unlock()

		for _, room := range rooms {
			frame, err := realtime.Encode(realtime.EventRoomJoin, realtime.RoomPayload{Room: room})
			if err != nil {
				continue
			}
			if err := m.write(conn, websocket.TextMessage, frame); err != nil {
				m.log.Warn("room replay failed", zap.String("room", room), zap.Error(err))
			}
		}
		m.log.Info("realtime session reconnected", zap.Int("attempt", n), zap.Int("rooms", len(rooms)))
		notify()
		return
	}

	terminal := ErrReconnectExhausted
	if errors.Is(lastErr, ErrAuth) {
		terminal = lastErr
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	notify := m.setStateLocked(StateDisconnected, terminal)
	m.mu.Unlock()

	m.log.Error("realtime session disconnected", zap.Error(terminal), zap.NamedError("last_error", lastErr))
	select {
	case m.errs <- terminal:
	default:
	}
	notify()
}
