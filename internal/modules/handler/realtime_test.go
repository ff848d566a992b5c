package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/serializer"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"github.com/kazak5205/mebelplace-sub009/internal/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// staticAuthenticator accepts a fixed set of tokens.
type staticAuthenticator map[string]auth.Identity

func (a staticAuthenticator) Authenticate(_ context.Context, token string) (*auth.Identity, error) {
	if token == "down" {
		return nil, errors.New("auth service unreachable")
	}
	id, ok := a[token]
	if !ok {
		return nil, &service.DomainError{Kind: service.ErrAuth, Msg: "invalid token"}
	}
	return &id, nil
}

func newRealtimeServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	serializer.SetLogger(zap.NewNop())

	reg := realtime.NewRegistry(zap.NewNop())
	hub := realtime.NewHub(reg, reg, realtime.NewRouter(realtime.Deps{Registry: reg, Bus: reg}, zap.NewNop()), nil, realtime.SessionConfig{}, zap.NewNop())
	h := NewRealtimeHandler(hub, staticAuthenticator{"tok-7": {UserID: 7, Role: "master"}}, zap.NewNop())

	r := gin.New()
	r.GET("/ws", h.Connect)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRealtimeHandler_RejectsBeforeUpgrade(t *testing.T) {
	base := newRealtimeServer(t)

	tests := []struct {
		name           string
		query          string
		header         string
		expectedStatus int
	}{
		{name: "no token", expectedStatus: http.StatusUnauthorized},
		{name: "bad query token", query: "?token=nope", expectedStatus: http.StatusUnauthorized},
		{name: "bad header token", header: "Bearer nope", expectedStatus: http.StatusUnauthorized},
		{name: "auth backend down", query: "?token=down", expectedStatus: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, base+"/ws"+tt.query, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestRealtimeHandler_SessionReady(t *testing.T) {
	base := "ws" + strings.TrimPrefix(newRealtimeServer(t), "http")

	for _, dial := range []struct {
		name   string
		url    string
		header http.Header
	}{
		{name: "query", url: base + "/ws?token=tok-7"},
		{name: "header", url: base + "/ws", header: http.Header{"Authorization": {"Bearer tok-7"}}},
	} {
		t.Run(dial.name, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(dial.url, dial.header)
			require.NoError(t, err)
			defer conn.Close()

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			_, frame, err := conn.ReadMessage()
			require.NoError(t, err)
			env, err := realtime.Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, realtime.EventSessionReady, env.Event)
			assert.Contains(t, string(env.Data), `"userId":7`)
		})
	}
}
