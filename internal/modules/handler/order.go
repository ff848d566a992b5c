package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/serializer"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
)

type OrderHandler struct {
	svc service.OrderLifecycleService
}

func NewOrderHandler(s service.OrderLifecycleService) *OrderHandler {
	return &OrderHandler{svc: s}
}

type ChangeStatusReq struct {
	Status string `json:"status" binding:"required" example:"in_progress"`
	Reason string `json:"reason" binding:"max=1000" example:"materials delivered"`
}

// ChangeStatus godoc
//
//	@Summary		Change order status
//	@Description	Move an order along its lifecycle. The caller must be allowed to perform the transition.
//	@Tags			order
//	@Accept			json
//	@Produce		json
//	@Param			order_id	path	integer					true	"Order ID"
//	@Param			payload		body	handler.ChangeStatusReq	true	"Target status"
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=service.TransitionResult}
//	@Failure		400	{object}	serializer.Response
//	@Failure		403	{object}	serializer.Response
//	@Failure		404	{object}	serializer.Response
//	@Failure		409	{object}	serializer.Response
//	@Router			/orders/{order_id}/status [post]
func (h *OrderHandler) ChangeStatus(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	orderID, ok := int64Param(c, "order_id")
	if !ok {
		return
	}
	req := ChangeStatusReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	out, err := h.svc.ChangeStatus(c.Request.Context(), service.ChangeStatusInput{
		OrderID:   orderID,
		NewStatus: model.OrderStatus(req.Status),
		ActorID:   id.UserID,
		Reason:    req.Reason,
	})
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: out})
}

// GetActions godoc
//
//	@Summary		List available order actions
//	@Description	Transitions the caller may perform on the order right now
//	@Tags			order
//	@Produce		json
//	@Param			order_id	path	integer	true	"Order ID"
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=[]service.Action}
//	@Router			/orders/{order_id}/actions [get]
func (h *OrderHandler) GetActions(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	orderID, ok := int64Param(c, "order_id")
	if !ok {
		return
	}

	actions, err := h.svc.GetAvailableActions(c.Request.Context(), orderID, id.UserID)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: actions})
}

// GetHistory godoc
//
//	@Summary		Get order status history
//	@Tags			order
//	@Produce		json
//	@Param			order_id	path	integer	true	"Order ID"
//	@Security		BearerAuth
//	@Success		200	{object}	serializer.Response{data=[]repo.HistoryEntry}
//	@Router			/orders/{order_id}/history [get]
func (h *OrderHandler) GetHistory(c *gin.Context) {
	id, ok := caller(c)
	if !ok {
		return
	}
	orderID, ok := int64Param(c, "order_id")
	if !ok {
		return
	}

	rows, err := h.svc.StatusHistory(c.Request.Context(), orderID, id.UserID)
	if err != nil {
		writeErr(c, err)
		return
	}

	c.JSON(http.StatusOK, serializer.Response{Data: rows})
}
