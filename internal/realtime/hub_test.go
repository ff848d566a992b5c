package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type hubFixture struct {
	hub      *Hub
	presence Presence
	redis    *miniredis.Miniredis
	url      string
}

func newHubFixture(t *testing.T, cfg SessionConfig) *hubFixture {
	t.Helper()
	return newHubFixtureTTL(t, cfg, time.Hour)
}

func newHubFixtureTTL(t *testing.T, cfg SessionConfig, presenceTTL time.Duration) *hubFixture {
	t.Helper()
	reg := NewRegistry(zap.NewNop())
	mr, rdb := newMiniredis(t)
	presence := NewRedisPresence(rdb, presenceTTL)
	hub := NewHub(reg, reg, NewRouter(Deps{Registry: reg, Bus: reg}, zap.NewNop()), presence, cfg, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := hub.Upgrader().Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// the test passes the user id in the path
		var id int64 = 1
		if strings.HasSuffix(r.URL.Path, "/2") {
			id = 2
		}
		hub.Serve(context.Background(), conn, auth.Identity{UserID: id, Role: "client"})
	}))
	t.Cleanup(srv.Close)

	return &hubFixture{hub: hub, presence: presence, redis: mr, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (f *hubFixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.url+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := Decode(frame)
	require.NoError(t, err)
	return env
}

func TestHub_SessionLifecycle(t *testing.T) {
	f := newHubFixture(t, SessionConfig{})
	ctx := context.Background()

	conn := f.dial(t, "/ws/1")
	ready := readEnvelope(t, conn)
	require.Equal(t, EventSessionReady, ready.Event)
	p := decodeData[SessionReadyPayload](t, ready)
	assert.Equal(t, int64(1), p.UserID)
	assert.NotEmpty(t, p.SessionID)

	online := readEnvelope(t, conn)
	require.Equal(t, EventChatUserOnline, online.Event)
	assert.Equal(t, UserOnlineEvent{UserID: 1, IsOnline: true}, decodeData[UserOnlineEvent](t, online))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"room:join","data":{"room":"video:5"}}`)))
	assert.Equal(t, EventRoomJoined, readEnvelope(t, conn).Event)
	assert.Equal(t, []Room{"user:1", "video:5"}, f.hub.Registry().Rooms(p.SessionID))

	// a second device of the same user is not announced again
	other := f.dial(t, "/ws/1")
	assert.Equal(t, EventSessionReady, readEnvelope(t, other).Event)
	require.NoError(t, other.Close())

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}))
	env := readEnvelope(t, conn)
	require.Equal(t, EventError, env.Event)
	assert.Equal(t, CodeValidation, decodeData[ErrorPayload](t, env).Code)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		on, err := f.presence.IsOnline(ctx, 1)
		return err == nil && !on && f.hub.Registry().Members(UserRoom(1)) == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHub_LongSessionStaysOnline(t *testing.T) {
	const ttl = 10 * time.Second
	f := newHubFixtureTTL(t, SessionConfig{PingInterval: 20 * time.Millisecond}, ttl)
	ctx := context.Background()

	conn := f.dial(t, "/ws/1")
	readEnvelope(t, conn) // session:ready
	readEnvelope(t, conn) // own online event

	// three refresh rounds outlive the original ttl
	for i := 0; i < 3; i++ {
		f.redis.FastForward(6 * time.Second)
		assert.Eventually(t, func() bool {
			return f.redis.TTL(presenceKey(1)) > 6*time.Second
		}, 2*time.Second, 10*time.Millisecond, "round %d", i)
	}

	on, err := f.presence.IsOnline(ctx, 1)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestHub_OfflineAnnouncedToOthers(t *testing.T) {
	f := newHubFixture(t, SessionConfig{})

	watcher := f.dial(t, "/ws/2")
	readEnvelope(t, watcher) // session:ready
	readEnvelope(t, watcher) // own online event

	leaver := f.dial(t, "/ws/1")
	readEnvelope(t, leaver)
	online := decodeData[UserOnlineEvent](t, readEnvelope(t, watcher))
	assert.Equal(t, UserOnlineEvent{UserID: 1, IsOnline: true}, online)

	require.NoError(t, leaver.Close())
	offline := readEnvelope(t, watcher)
	require.Equal(t, EventChatUserOnline, offline.Event)
	assert.Equal(t, UserOnlineEvent{UserID: 1, IsOnline: false}, decodeData[UserOnlineEvent](t, offline))
}

func TestHub_RateLimit(t *testing.T) {
	f := newHubFixture(t, SessionConfig{EventsPerSecond: 0.001, EventBurst: 1})
	conn := f.dial(t, "/ws/1")
	readEnvelope(t, conn)
	readEnvelope(t, conn)

	join := []byte(`{"event":"room:join","data":{"room":"story:2"}}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, join))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, join))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		env := readEnvelope(t, conn)
		if env.Event == EventError {
			got[decodeData[ErrorPayload](t, env).Code] = true
			continue
		}
		got[string(env.Event)] = true
	}
	assert.Equal(t, map[string]bool{string(EventRoomJoined): true, CodeRateLimited: true}, got)
}
