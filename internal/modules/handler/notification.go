package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/serializer"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
)

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(s service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: s}
}

type ListNotificationsReq struct {
	Unread bool `form:"unread,default=false" json:"unread" example:"true"`
	Limit  int  `form:"limit,default=50" json:"limit" binding:"min=1,max=200" example:"50"`
}

// ListNotifications godoc
//
//	@Summary		List notifications
//	@Description	The caller's notifications, newest first
//	@Tags			notification
//	@Produce		json
//	@Param			unread	query	boolean	false	"Only unread notifications"
//	@Param			limit	query	integer	false	"Limit, default 50. Max 200."
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=[]model.Notification}
//	@Router			/notifications [get]
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	req := ListNotificationsReq{}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	items, err := h.svc.List(c.Request.Context(), id.UserID, req.Unread, req.Limit)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: items})
}

type MarkReadReq struct {
	IDs []int64 `json:"ids" binding:"required,min=1,max=500,dive,gt=0"`
}

type MarkReadResp struct {
	Updated int64 `json:"updated"`
}

// MarkRead godoc
//
//	@Summary		Mark notifications read
//	@Description	Ids that do not belong to the caller are ignored
//	@Tags			notification
//	@Accept			json
//	@Produce		json
//	@Param			payload	body	handler.MarkReadReq	true	"Notification ids"
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=handler.MarkReadResp}
//	@Router			/notifications/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	req := MarkReadReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	n, err := h.svc.MarkRead(c.Request.Context(), id.UserID, req.IDs)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: MarkReadResp{Updated: n}})
}
