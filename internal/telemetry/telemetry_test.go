package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Disabled(t *testing.T) {
	cfg := &config.Config{}
	assert.False(t, Enabled(cfg))

	shutdown, err := Setup(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestRecorders_NoopBeforeInit(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordOrderTransition(ctx, "pending", "in_progress", "ok")
		RecordBroadcast(ctx, "chat", 2)
		SessionOpened(ctx)
		SessionClosed(ctx)
		RecordInboundError(ctx, "chat:typing", "validation")
	})
}

func TestInitSyncMetrics_WithGlobalNoopProvider(t *testing.T) {
	require.NoError(t, InitSyncMetrics())
	assert.NotPanics(t, func() {
		RecordOrderTransition(context.Background(), "in_progress", "completed", "ok")
		RecordBroadcast(context.Background(), "video", 0)
	})
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOn")
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestGinMiddleware_SkipsNonAPIPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware("test"), TraceIDMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Trace-Id"))
}
