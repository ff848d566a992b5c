package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/kazak5205/mebelplace-sub009/internal/config"
	mq "github.com/kazak5205/mebelplace-sub009/internal/infra/queue"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type NotificationInput struct {
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Link    string         `json:"link,omitempty"`
}

// NotificationEmitter records a notification for a user and hands it off
// for delivery.
type NotificationEmitter interface {
	Enqueue(ctx context.Context, userID int64, in NotificationInput) error
}

// NotificationMQ is the broker message for a persisted notification.
type NotificationMQ struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"userId"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Link      string         `json:"link,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NotificationDeliverer pushes a notification to the user's live sessions.
type NotificationDeliverer interface {
	DeliverNotification(ctx context.Context, n NotificationMQ) error
}

type NotificationService interface {
	NotificationEmitter
	List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error)
}

type notificationService struct {
	r         repo.NotificationRepo
	publisher *mq.Publisher
	direct    NotificationDeliverer
	cfg       *config.Config
	log       *zap.Logger
}

// NewNotificationService persists through r and publishes to the broker.
// With a nil publisher the notification goes straight to direct.
func NewNotificationService(r repo.NotificationRepo, publisher *mq.Publisher, direct NotificationDeliverer, cfg *config.Config, log *zap.Logger) NotificationService {
	return &notificationService{
		r:         r,
		publisher: publisher,
		direct:    direct,
		cfg:       cfg,
		log:       log,
	}
}

func (s *notificationService) Enqueue(ctx context.Context, userID int64, in NotificationInput) error {
	n := &model.Notification{
		UserID:  userID,
		Type:    in.Type,
		Title:   in.Title,
		Message: in.Message,
		Link:    in.Link,
	}
	if in.Data != nil {
		b, err := sonic.Marshal(in.Data)
		if err != nil {
			return fmt.Errorf("encode notification data: %w", err)
		}
		n.Data = datatypes.JSON(b)
	}
	if err := s.r.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	msg := NotificationMQ{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      in.Data,
		Link:      n.Link,
		CreatedAt: n.CreatedAt,
	}

	if s.publisher != nil {
		return s.publisher.PublishJSON(ctx,
			s.cfg.RabbitMQ.ExchangeName.Notification,
			s.cfg.RabbitMQ.RoutingKey.NotificationCreated,
			msg)
	}
	if s.direct != nil {
		return s.direct.DeliverNotification(ctx, msg)
	}
	s.log.Debug("notification stored without live delivery", zap.Int64("user_id", userID))
	return nil
}

func (s *notificationService) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.r.ListByUser(ctx, userID, unreadOnly, limit)
}

func (s *notificationService) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	return s.r.MarkRead(ctx, userID, ids)
}

// DecodeNotificationMQ parses a broker body produced by Enqueue.
func DecodeNotificationMQ(body []byte) (NotificationMQ, error) {
	var n NotificationMQ
	if err := sonic.Unmarshal(body, &n); err != nil {
		return n, fmt.Errorf("decode notification: %w", err)
	}
	if n.UserID == 0 {
		return n, newErr(ErrValidation, "notification without recipient")
	}
	return n, nil
}
