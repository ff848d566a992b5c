package realtime

import (
	"context"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"go.uber.org/zap"
)

// OrderStatusRelay pushes committed order transitions to live sessions.
type OrderStatusRelay struct {
	bus Broadcaster
	log *zap.Logger
}

func NewOrderStatusRelay(bus Broadcaster, log *zap.Logger) *OrderStatusRelay {
	return &OrderStatusRelay{bus: bus, log: log}
}

func (r *OrderStatusRelay) OrderStatusChanged(ctx context.Context, ev service.StatusChange) {
	parties := []Room{UserRoom(ev.ClientID)}
	if ev.MasterID != nil {
		parties = append(parties, UserRoom(*ev.MasterID))
	}

	err := r.bus.Broadcast(ctx, OrderRoom(ev.OrderID), EventOrderStatusChange, OrderStatusEvent{
		OrderID:   ev.OrderID,
		OldStatus: string(ev.OldStatus),
		NewStatus: string(ev.NewStatus),
		ChangedBy: ev.ChangedBy,
		Reason:    ev.Reason,
	}, AlsoTo(parties...))
	if err != nil {
		r.log.Warn("order status broadcast failed", zap.Int64("order_id", ev.OrderID), zap.Error(err))
	}

	if ev.ChatID == nil {
		return
	}
	err = r.bus.Broadcast(ctx, parties[0], EventChatCreated, ChatCreatedEvent{
		OrderID:  ev.OrderID,
		ChatID:   *ev.ChatID,
		ClientID: ev.ClientID,
		MasterID: ev.MasterID,
	}, AlsoTo(parties[1:]...))
	if err != nil {
		r.log.Warn("chat created broadcast failed", zap.Int64("order_id", ev.OrderID), zap.Error(err))
	}
}

// NotificationRelay delivers stored notifications to the recipient's
// sessions. It serves both as the queue consumer and as the direct
// deliverer when no broker is configured.
type NotificationRelay struct {
	bus Broadcaster
	log *zap.Logger
}

func NewNotificationRelay(bus Broadcaster, log *zap.Logger) *NotificationRelay {
	return &NotificationRelay{bus: bus, log: log}
}

func (r *NotificationRelay) DeliverNotification(ctx context.Context, n service.NotificationMQ) error {
	return r.bus.Broadcast(ctx, UserRoom(n.UserID), EventNotificationNew, n)
}

// HandleMessage is the broker consumer callback.
func (r *NotificationRelay) HandleMessage(ctx context.Context, body []byte) error {
	n, err := service.DecodeNotificationMQ(body)
	if err != nil {
		// a malformed message will never succeed; drop it
		r.log.Warn("dropping notification message", zap.Error(err))
		return nil
	}
	return r.DeliverNotification(ctx, n)
}
