package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kazak5205/mebelplace-sub009/internal/auth"
	"github.com/kazak5205/mebelplace-sub009/internal/middleware"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/serializer"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockOrderLifecycleService is a mock implementation of service.OrderLifecycleService
type MockOrderLifecycleService struct {
	mock.Mock
}

func (m *MockOrderLifecycleService) ChangeStatus(ctx context.Context, in service.ChangeStatusInput) (*service.TransitionResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TransitionResult), args.Error(1)
}

func (m *MockOrderLifecycleService) GetAvailableActions(ctx context.Context, orderID, actorID int64) ([]service.Action, error) {
	args := m.Called(ctx, orderID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.Action), args.Error(1)
}

func (m *MockOrderLifecycleService) StatusHistory(ctx context.Context, orderID, actorID int64) ([]repo.HistoryEntry, error) {
	args := m.Called(ctx, orderID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repo.HistoryEntry), args.Error(1)
}

func (m *MockOrderLifecycleService) CanView(ctx context.Context, orderID, userID int64) (bool, error) {
	args := m.Called(ctx, orderID, userID)
	return args.Bool(0), args.Error(1)
}

// asUser stands in for the auth middleware.
func asUser(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != 0 {
			middleware.SetIdentity(c, &auth.Identity{UserID: userID, Role: model.RoleClient})
		}
		c.Next()
	}
}

func domainErr(kind error, msg string) error {
	return &service.DomainError{Kind: kind, Msg: msg}
}

func TestOrderHandler_ChangeStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	serializer.SetLogger(zap.NewNop())

	tests := []struct {
		name           string
		userID         int64
		orderIDParam   string
		requestBody    string
		setup          func(*MockOrderLifecycleService)
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:         "success - master starts the order",
			userID:       2,
			orderIDParam: "10",
			requestBody:  `{"status":"in_progress"}`,
			setup: func(svc *MockOrderLifecycleService) {
				svc.On("ChangeStatus", mock.Anything, service.ChangeStatusInput{
					OrderID: 10, NewStatus: model.OrderInProgress, ActorID: 2,
				}).Return(&service.TransitionResult{
					OrderID: 10, OldStatus: model.OrderPending, NewStatus: model.OrderInProgress, Message: "Order started",
				}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:         "success - reason is passed through",
			userID:       1,
			orderIDParam: "10",
			requestBody:  `{"status":"cancelled","reason":"found another master"}`,
			setup: func(svc *MockOrderLifecycleService) {
				svc.On("ChangeStatus", mock.Anything, mock.MatchedBy(func(in service.ChangeStatusInput) bool {
					return in.Reason == "found another master" && in.NewStatus == model.OrderCancelled
				})).Return(&service.TransitionResult{OrderID: 10, NewStatus: model.OrderCancelled}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "error - not authenticated",
			orderIDParam:   "10",
			requestBody:    `{"status":"in_progress"}`,
			setup:          func(svc *MockOrderLifecycleService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "error - invalid order id",
			userID:         1,
			orderIDParam:   "abc",
			requestBody:    `{"status":"in_progress"}`,
			setup:          func(svc *MockOrderLifecycleService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "error - missing status",
			userID:         1,
			orderIDParam:   "10",
			requestBody:    `{}`,
			setup:          func(svc *MockOrderLifecycleService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:         "error - unknown status",
			userID:       1,
			orderIDParam: "10",
			requestBody:  `{"status":"archived"}`,
			setup: func(svc *MockOrderLifecycleService) {
				svc.On("ChangeStatus", mock.Anything, mock.Anything).Return(nil, domainErr(service.ErrValidation, `unknown order status "archived"`))
			},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    `unknown order status "archived"`,
		},
		{
			name:         "error - permission",
			userID:       3,
			orderIDParam: "10",
			requestBody:  `{"status":"completed"}`,
			setup: func(svc *MockOrderLifecycleService) {
				svc.On("ChangeStatus", mock.Anything, mock.Anything).Return(nil, domainErr(service.ErrPermission, "only the assigned master can complete the order"))
			},
			expectedStatus: http.StatusForbidden,
			expectedMsg:    "only the assigned master can complete the order",
		},
		{
			name:         "error - not found",
			userID:       1,
			orderIDParam: "99",
			requestBody:  `{"status":"cancelled"}`,
			setup: func(svc *MockOrderLifecycleService) {
				svc.On("ChangeStatus", mock.Anything, mock.Anything).Return(nil, domainErr(service.ErrNotFound, "order not found"))
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:         "error - invalid transition",
			userID:       1,
			orderIDParam: "10",
			requestBody:  `{"status":"pending"}`,
			setup: func(svc *MockOrderLifecycleService) {
				svc.On("ChangeStatus", mock.Anything, mock.Anything).Return(nil, domainErr(service.ErrInvalidTransition, "cannot change status from completed to pending"))
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:         "error - precondition",
			userID:       1,
			orderIDParam: "10",
			requestBody:  `{"status":"in_progress"}`,
			setup: func(svc *MockOrderLifecycleService) {
				svc.On("ChangeStatus", mock.Anything, mock.Anything).Return(nil, domainErr(service.ErrPrecondition, "master must be assigned before starting the order"))
			},
			expectedStatus: http.StatusConflict,
			expectedMsg:    "master must be assigned before starting the order",
		},
		{
			name:         "error - store failure",
			userID:       1,
			orderIDParam: "10",
			requestBody:  `{"status":"in_progress"}`,
			setup: func(svc *MockOrderLifecycleService) {
				svc.On("ChangeStatus", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockOrderLifecycleService{}
			tt.setup(svc)

			handler := NewOrderHandler(svc)
			w := httptest.NewRecorder()
			_, r := gin.CreateTestContext(w)
			r.POST("/orders/:order_id/status", asUser(tt.userID), handler.ChangeStatus)

			req := httptest.NewRequest(http.MethodPost, "/orders/"+tt.orderIDParam+"/status", strings.NewReader(tt.requestBody))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var resp serializer.Response
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, resp.Msg)
			}
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, 0, resp.Code)
				assert.NotNil(t, resp.Data)
			} else {
				assert.Equal(t, tt.expectedStatus, resp.Code)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestOrderHandler_GetActions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	serializer.SetLogger(zap.NewNop())

	svc := &MockOrderLifecycleService{}
	svc.On("GetAvailableActions", mock.Anything, int64(10), int64(1)).Return([]service.Action{
		{Action: model.OrderCancelled, Label: "Cancel order", RequiresConfirmation: true, Destructive: true},
	}, nil)
	svc.On("GetAvailableActions", mock.Anything, int64(11), int64(1)).Return(nil, domainErr(service.ErrNotFound, "order not found"))

	handler := NewOrderHandler(svc)
	w := httptest.NewRecorder()
	_, r := gin.CreateTestContext(w)
	r.GET("/orders/:order_id/actions", asUser(1), handler.GetActions)

	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/10/actions", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []service.Action `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []service.Action{{Action: model.OrderCancelled, Label: "Cancel order", RequiresConfirmation: true, Destructive: true}}, resp.Data)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/11/actions", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	svc.AssertExpectations(t)
}

func TestOrderHandler_GetHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	serializer.SetLogger(zap.NewNop())

	svc := &MockOrderLifecycleService{}
	svc.On("StatusHistory", mock.Anything, int64(10), int64(1)).Return([]repo.HistoryEntry{
		{ID: 1, OrderID: 10, ChangedBy: 2, ChangedByUsername: "boris", OldStatus: model.OrderPending, NewStatus: model.OrderInProgress},
	}, nil)
	svc.On("StatusHistory", mock.Anything, int64(10), int64(3)).Return(nil, domainErr(service.ErrPermission, "not a party to this order"))

	handler := NewOrderHandler(svc)

	tests := []struct {
		name           string
		userID         int64
		expectedStatus int
	}{
		{name: "party", userID: 1, expectedStatus: http.StatusOK},
		{name: "stranger", userID: 3, expectedStatus: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			_, r := gin.CreateTestContext(w)
			r.GET("/orders/:order_id/history", asUser(tt.userID), handler.GetHistory)
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/10/history", nil))
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
	svc.AssertExpectations(t)
}
