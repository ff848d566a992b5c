package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/middleware"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/serializer"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"github.com/kazak5205/mebelplace-sub009/internal/realtime"
	"go.uber.org/zap"
)

type RealtimeHandler struct {
	hub   *realtime.Hub
	authn auth.Authenticator
	log   *zap.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, authn auth.Authenticator, log *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, authn: authn, log: log}
}

// Connect godoc
//
//	@Summary		Open a realtime session
//	@Description	Upgrades to a websocket after authenticating the token. The first frame is session:ready.
//	@Tags			realtime
//	@Param			token	query	string	false	"Access token, if no Authorization header is sent"
//	@Success		101
//	@Failure		401	{object}	serializer.Response
//	@Router			/ws [get]
func (h *RealtimeHandler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c)
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, serializer.AuthErr("missing token"))
		return
	}

	id, err := h.authn.Authenticate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrAuth) {
			c.JSON(http.StatusUnauthorized, serializer.AuthErr(err.Error()))
			return
		}
		c.JSON(http.StatusBadGateway, serializer.Err(http.StatusBadGateway, "authentication unavailable", err))
		return
	}

	conn, err := h.hub.Upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.hub.Serve(c.Request.Context(), conn, *id)
}
