package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
	"github.com/kazak5205/mebelplace-sub009/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StatusObserver is told about every committed status change.
type StatusObserver interface {
	OrderStatusChanged(ctx context.Context, ev StatusChange)
}

type StatusChange struct {
	OrderID   int64
	ClientID  int64
	MasterID  *int64
	OldStatus model.OrderStatus
	NewStatus model.OrderStatus
	ChangedBy int64
	Reason    string
	// ChatID is set when the transition bootstrapped the order chat.
	ChatID *int64
}

type OrderLifecycleService interface {
	ChangeStatus(ctx context.Context, in ChangeStatusInput) (*TransitionResult, error)
	GetAvailableActions(ctx context.Context, orderID, actorID int64) ([]Action, error)
	StatusHistory(ctx context.Context, orderID, actorID int64) ([]repo.HistoryEntry, error)
	// CanView reports whether the user is a party to the order or an admin.
	CanView(ctx context.Context, orderID, userID int64) (bool, error)
}

type ChangeStatusInput struct {
	OrderID   int64             `json:"order_id"`
	NewStatus model.OrderStatus `json:"status"`
	ActorID   int64             `json:"actor_id"`
	Reason    string            `json:"reason,omitempty"`
}

type TransitionResult struct {
	OrderID   int64             `json:"orderId"`
	OldStatus model.OrderStatus `json:"oldStatus"`
	NewStatus model.OrderStatus `json:"newStatus"`
	Message   string            `json:"message"`
}

// sideEffect runs inside the transition's transaction. A returned error rolls
// the whole transition back.
type sideEffect func(ctx context.Context, tx *gorm.DB, o *model.Order, out *effectOutput) error

type effectOutput struct {
	chatID *int64
}

// sideEffects has an entry for every edge in transitions; an empty slice
// means the edge has no side effects.
var sideEffects = map[Transition][]sideEffect{
	{model.OrderPending, model.OrderInProgress}:   {bootstrapOrderChat},
	{model.OrderInProgress, model.OrderCompleted}: {creditCompletedOrder},
	{model.OrderPending, model.OrderCancelled}:    {},
	{model.OrderInProgress, model.OrderCancelled}: {},
}

func bootstrapOrderChat(ctx context.Context, tx *gorm.DB, o *model.Order, out *effectOutput) error {
	members := []int64{o.ClientID}
	if o.MasterID != nil {
		members = append(members, *o.MasterID)
	}
	chat, _, err := repo.NewChatRepo(tx).EnsureOrderChat(ctx, o.ID, members...)
	if err != nil {
		return fmt.Errorf("bootstrap order chat: %w", err)
	}
	out.chatID = &chat.ID
	return nil
}

func creditCompletedOrder(ctx context.Context, tx *gorm.DB, o *model.Order, _ *effectOutput) error {
	ids := []int64{o.ClientID}
	if o.MasterID != nil {
		ids = append(ids, *o.MasterID)
	}
	if err := repo.NewUserRepo(tx).IncrementOrdersCount(ctx, ids...); err != nil {
		return fmt.Errorf("increment orders_count: %w", err)
	}
	return nil
}

type orderLifecycleService struct {
	db            *gorm.DB
	notifier      NotificationEmitter
	observers     []StatusObserver
	log           *zap.Logger
	notifyTimeout time.Duration
}

func NewOrderLifecycleService(db *gorm.DB, notifier NotificationEmitter, log *zap.Logger, observers ...StatusObserver) OrderLifecycleService {
	return &orderLifecycleService{
		db:            db,
		notifier:      notifier,
		observers:     observers,
		log:           log,
		notifyTimeout: 5 * time.Second,
	}
}

func (s *orderLifecycleService) ChangeStatus(ctx context.Context, in ChangeStatusInput) (*TransitionResult, error) {
	if !in.NewStatus.Valid() {
		return nil, newErr(ErrValidation, fmt.Sprintf("unknown order status %q", in.NewStatus))
	}

	var (
		order   model.Order
		oldStat model.OrderStatus
		effects effectOutput
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := repo.NewOrderRepo(tx)

		o, err := orders.GetForUpdate(ctx, in.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newErr(ErrNotFound, "order not found")
			}
			return err
		}
		oldStat = o.Status
		t := Transition{From: o.Status, To: in.NewStatus}

		if !structurallyValid(t.From, t.To) {
			return newErr(ErrInvalidTransition, fmt.Sprintf("cannot change order status from %s to %s", t.From, t.To))
		}

		actor, err := repo.NewUserRepo(tx).GetByID(ctx, in.ActorID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newErr(ErrNotFound, "user not found")
			}
			return err
		}
		if err := authorize(o, actor.ID, actor.Role, t.To); err != nil {
			return err
		}

		changed, err := orders.CompareAndSetStatus(ctx, o.ID, t.From, t.To)
		if err != nil {
			return err
		}
		if !changed {
			return newErr(ErrInvalidTransition, fmt.Sprintf("order status is no longer %s", t.From))
		}

		h := &model.OrderStatusHistory{
			OrderID:   o.ID,
			ChangedBy: actor.ID,
			OldStatus: t.From,
			NewStatus: t.To,
		}
		if r := strings.TrimSpace(in.Reason); r != "" {
			h.Reason = &r
		}
		if err := orders.AppendHistory(ctx, h); err != nil {
			return err
		}

		for _, fx := range sideEffects[t] {
			if err := fx(ctx, tx, o, &effects); err != nil {
				return err
			}
		}

		o.Status = t.To
		order = *o
		return nil
	})
	if err != nil {
		telemetry.RecordOrderTransition(ctx, string(oldStat), string(in.NewStatus), outcome(err))
		return nil, err
	}

	t := Transition{From: oldStat, To: order.Status}
	telemetry.RecordOrderTransition(ctx, string(t.From), string(t.To), "ok")
	s.log.Info("order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
		zap.Int64("actor_id", in.ActorID))

	s.afterCommit(ctx, &order, t, in, effects)

	return &TransitionResult{
		OrderID:   order.ID,
		OldStatus: t.From,
		NewStatus: t.To,
		Message:   transitionMessage(t),
	}, nil
}

// afterCommit runs notifications and observers. Failures are logged and
// never reach the caller: the transition is already durable.
func (s *orderLifecycleService) afterCommit(ctx context.Context, o *model.Order, t Transition, in ChangeStatusInput, fx effectOutput) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if s.notifier != nil {
		if tpl, ok := notificationTemplates[t]; ok {
			if recipient, ok := notificationRecipient(o, in.ActorID); ok {
				err := s.notifier.Enqueue(nctx, recipient, NotificationInput{
					Type:    tpl.Type,
					Title:   tpl.Title,
					Message: fmt.Sprintf(tpl.Format, o.Title),
					Data: map[string]any{
						"orderId":   o.ID,
						"oldStatus": t.From,
						"newStatus": t.To,
					},
					Link: orderLink(o.ID),
				})
				if err != nil {
					s.log.Warn("order notification failed",
						zap.Int64("order_id", o.ID),
						zap.Int64("recipient_id", recipient),
						zap.Error(err))
				}
			}
		}
	}

	ev := StatusChange{
		OrderID:   o.ID,
		ClientID:  o.ClientID,
		MasterID:  o.MasterID,
		OldStatus: t.From,
		NewStatus: t.To,
		ChangedBy: in.ActorID,
		Reason:    in.Reason,
		ChatID:    fx.chatID,
	}
	for _, obs := range s.observers {
		obs.OrderStatusChanged(nctx, ev)
	}
}

func (s *orderLifecycleService) load(ctx context.Context, orderID, actorID int64) (*model.Order, *model.User, error) {
	o, err := repo.NewOrderRepo(s.db).GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, newErr(ErrNotFound, "order not found")
		}
		return nil, nil, err
	}
	u, err := repo.NewUserRepo(s.db).GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, newErr(ErrNotFound, "user not found")
		}
		return nil, nil, err
	}
	return o, u, nil
}

func (s *orderLifecycleService) GetAvailableActions(ctx context.Context, orderID, actorID int64) ([]Action, error) {
	o, u, err := s.load(ctx, orderID, actorID)
	if err != nil {
		return nil, err
	}
	return AvailableActions(o, u.ID, u.Role), nil
}

func (s *orderLifecycleService) StatusHistory(ctx context.Context, orderID, actorID int64) ([]repo.HistoryEntry, error) {
	o, u, err := s.load(ctx, orderID, actorID)
	if err != nil {
		return nil, err
	}
	if u.Role != model.RoleAdmin && !o.IsParty(u.ID) {
		return nil, newErr(ErrPermission, "only order participants can read its history")
	}
	return repo.NewOrderRepo(s.db).ListHistory(ctx, o.ID)
}

func (s *orderLifecycleService) CanView(ctx context.Context, orderID, userID int64) (bool, error) {
	o, u, err := s.load(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return u.Role == model.RoleAdmin || o.IsParty(u.ID), nil
}

func outcome(err error) string {
	switch Kind(err) {
	case ErrNotFound:
		return "not_found"
	case ErrInvalidTransition:
		return "invalid_transition"
	case ErrPermission:
		return "permission"
	case ErrPrecondition:
		return "precondition"
	case ErrValidation:
		return "validation"
	}
	return "error"
}
