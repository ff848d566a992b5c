package service

import (
	"context"
	"errors"
	"testing"

	"github.com/kazak5205/mebelplace-sub009/internal/config"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockNotificationRepo is a mock implementation of NotificationRepo
type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotificationRepo) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Notification), args.Error(1)
}

func (m *MockNotificationRepo) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	args := m.Called(ctx, userID, ids)
	return args.Get(0).(int64), args.Error(1)
}

type MockDeliverer struct {
	mock.Mock
}

func (m *MockDeliverer) DeliverNotification(ctx context.Context, n NotificationMQ) error {
	return m.Called(ctx, n).Error(0)
}

func TestNotificationService_EnqueueDeliversDirectly(t *testing.T) {
	ctx := context.Background()
	r := &MockNotificationRepo{}
	r.On("Create", ctx, mock.MatchedBy(func(n *model.Notification) bool {
		return n.UserID == 5 && n.Type == model.NotificationOrderStarted && string(n.Data) == `{"orderId":12}`
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.Notification).ID = 99
	}).Return(nil)

	d := &MockDeliverer{}
	d.On("DeliverNotification", ctx, mock.MatchedBy(func(n NotificationMQ) bool {
		return n.ID == 99 && n.UserID == 5 && n.Link == "/orders/12"
	})).Return(nil)

	svc := NewNotificationService(r, nil, d, &config.Config{}, zap.NewNop())
	err := svc.Enqueue(ctx, 5, NotificationInput{
		Type:  model.NotificationOrderStarted,
		Title: "Order accepted into work",
		Data:  map[string]any{"orderId": 12},
		Link:  "/orders/12",
	})
	require.NoError(t, err)
	r.AssertExpectations(t)
	d.AssertExpectations(t)
}

func TestNotificationService_StoreFailureSkipsDelivery(t *testing.T) {
	ctx := context.Background()
	r := &MockNotificationRepo{}
	r.On("Create", ctx, mock.Anything).Return(errors.New("db down"))
	d := &MockDeliverer{}

	svc := NewNotificationService(r, nil, d, &config.Config{}, zap.NewNop())
	err := svc.Enqueue(ctx, 5, NotificationInput{Type: model.NotificationOrderCancelled})
	assert.ErrorContains(t, err, "store notification")
	d.AssertNotCalled(t, "DeliverNotification", mock.Anything, mock.Anything)
}

func TestNotificationService_ListClampsLimit(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, 50},
		{"too large", 1000, 50},
		{"kept", 20, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &MockNotificationRepo{}
			r.On("ListByUser", ctx, int64(1), true, tt.want).Return([]model.Notification{}, nil)
			svc := NewNotificationService(r, nil, nil, &config.Config{}, zap.NewNop())
			_, err := svc.List(ctx, 1, true, tt.limit)
			assert.NoError(t, err)
			r.AssertExpectations(t)
		})
	}
}

func TestDecodeNotificationMQ(t *testing.T) {
	n, err := DecodeNotificationMQ([]byte(`{"id":1,"userId":7,"type":"order_completed","title":"Order completed"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(7), n.UserID)
	assert.Equal(t, model.NotificationOrderCompleted, n.Type)

	_, err = DecodeNotificationMQ([]byte(`{"id":1}`))
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = DecodeNotificationMQ([]byte(`not json`))
	assert.Error(t, err)
}
