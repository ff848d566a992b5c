package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/kazak5205/mebelplace-sub009/docs"
	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/middleware"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/handler"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/serializer"
	"github.com/kazak5205/mebelplace-sub009/internal/telemetry"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type RouterDeps struct {
	Config              *config.Config
	Log                 *zap.Logger
	Authenticator       auth.Authenticator
	ServiceKeys         repo.ServiceKeyRepo
	OrderHandler        *handler.OrderHandler
	NotificationHandler *handler.NotificationHandler
	RealtimeHandler     *handler.RealtimeHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	// Initialize logger for serializer package
	serializer.SetLogger(d.Log)

	r := gin.New()
	r.Use(gin.Recovery())

	if telemetry.Enabled(d.Config) {
		r.Use(telemetry.GinMiddleware(d.Config.App.Name))
		// Add trace ID to response header
		r.Use(telemetry.TraceIDMiddleware())
	}

	r.Use(middleware.ZapLogger(d.Log))

	// health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, serializer.Response{Msg: "ok"}) })

	// swagger
	r.GET("/swagger", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// websocket; authenticates before upgrading
	r.GET("/ws", d.RealtimeHandler.Connect)

	v1 := r.Group("/api/v1")
	{
		v1.Use(middleware.Auth(d.Config, d.Authenticator, d.ServiceKeys))

		// ping endpoint
		v1.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, serializer.Response{Msg: "pong"}) })

		orders := v1.Group("/orders/:order_id")
		{
			orders.POST("/status", d.OrderHandler.ChangeStatus)
			orders.GET("/actions", d.OrderHandler.GetActions)
			orders.GET("/history", d.OrderHandler.GetHistory)
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", d.NotificationHandler.ListNotifications)
			notifications.POST("/read", d.NotificationHandler.MarkRead)
		}
	}
	return r
}
