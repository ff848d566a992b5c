package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/telemetry"
	"go.uber.org/zap"
)

// Hub owns the lifecycle of socket sessions on this instance.
type Hub struct {
	registry *Registry
	bus      Broadcaster
	router   *Router
	presence Presence
	cfg      SessionConfig
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub wires the session lifecycle. presence may be nil.
func NewHub(registry *Registry, bus Broadcaster, router *Router, presence Presence, cfg SessionConfig, log *zap.Logger) *Hub {
	return &Hub{
		registry: registry,
		bus:      bus,
		router:   router,
		presence: presence,
		cfg:      cfg.withDefaults(),
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024 * 4,
			WriteBufferSize: 1024 * 4,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *Hub) Upgrader() *websocket.Upgrader { return &h.upgrader }

func (h *Hub) Registry() *Registry { return h.registry }

// Serve runs an authenticated connection until it closes.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, id auth.Identity) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := newSession(uuid.NewString(), id, conn, h.cfg, h.log)
	s.Emit(EventSessionReady, SessionReadyPayload{
		SessionID: s.SessionID(),
		UserID:    id.UserID,
		Role:      id.Role,
	})
	h.registry.Attach(s)
	h.registry.Join(s, UserRoom(id.UserID))
	telemetry.SessionOpened(ctx)
	s.log.Info("session opened")

	h.markOnline(ctx, id.UserID)
	stopRefresh := h.keepOnline(ctx, id.UserID)

	go s.writePump()
	s.readPump(ctx, h.router.Dispatch)

	stopRefresh()
	h.registry.LeaveAll(s.SessionID())
	s.close()
	h.markOffline(context.WithoutCancel(ctx), id.UserID)
	telemetry.SessionClosed(ctx)
	s.log.Info("session closed")
}

func (h *Hub) markOnline(ctx context.Context, userID int64) {
	if h.presence == nil {
		return
	}
	first, err := h.presence.Connect(ctx, userID)
	if err != nil {
		h.log.Warn("presence connect failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if first {
		h.announce(ctx, userID, true)
	}
}

// keepOnline touches the user's presence every ping interval until the
// returned stop func is called.
func (h *Hub) keepOnline(ctx context.Context, userID int64) (stop func()) {
	if h.presence == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(h.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.presence.Touch(ctx, userID); err != nil && ctx.Err() == nil {
					h.log.Warn("presence refresh failed", zap.Int64("user_id", userID), zap.Error(err))
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (h *Hub) markOffline(ctx context.Context, userID int64) {
	if h.presence == nil {
		return
	}
	last, err := h.presence.Disconnect(ctx, userID)
	if err != nil {
		h.log.Warn("presence disconnect failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if last {
		h.announce(ctx, userID, false)
	}
}

func (h *Hub) announce(ctx context.Context, userID int64, online bool) {
	if err := h.bus.BroadcastAll(ctx, EventChatUserOnline, UserOnlineEvent{UserID: userID, IsOnline: online}); err != nil {
		h.log.Warn("presence broadcast failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}
