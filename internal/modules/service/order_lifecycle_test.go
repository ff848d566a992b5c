package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kazak5205/mebelplace-sub009/internal/infra/db/dbtest"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sentNotification struct {
	UserID int64
	In     NotificationInput
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Enqueue(ctx context.Context, userID int64, in NotificationInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{UserID: userID, In: in})
	return f.err
}

func (f *fakeNotifier) all() []sentNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentNotification(nil), f.sent...)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []StatusChange
}

func (r *recordingObserver) OrderStatusChanged(ctx context.Context, ev StatusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type lifecycleFixture struct {
	db       *gorm.DB
	svc      OrderLifecycleService
	notifier *fakeNotifier
	observer *recordingObserver
	client   *model.User
	master   *model.User
	admin    *model.User
	stranger *model.User
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	d := dbtest.New(t)
	f := &lifecycleFixture{
		db:       d,
		notifier: &fakeNotifier{},
		observer: &recordingObserver{},
		client:   &model.User{Username: "client", Role: model.RoleClient},
		master:   &model.User{Username: "master", Role: model.RoleMaster},
		admin:    &model.User{Username: "admin", Role: model.RoleAdmin},
		stranger: &model.User{Username: "stranger", Role: model.RoleClient},
	}
	dbtest.Seed(t, d, f.client, f.master, f.admin, f.stranger)
	f.svc = NewOrderLifecycleService(d, f.notifier, zap.NewNop(), f.observer)
	return f
}

func (f *lifecycleFixture) order(t *testing.T, status model.OrderStatus, withMaster bool) *model.Order {
	o := &model.Order{ClientID: f.client.ID, Title: "corner sofa", Status: status}
	if withMaster {
		o.MasterID = &f.master.ID
	}
	dbtest.Seed(t, f.db, o)
	return o
}

func (f *lifecycleFixture) status(t *testing.T, id int64) model.OrderStatus {
	var o model.Order
	require.NoError(t, f.db.Unscoped().First(&o, id).Error)
	return o.Status
}

func (f *lifecycleFixture) historyCount(t *testing.T, id int64) int64 {
	var n int64
	require.NoError(t, f.db.Model(&model.OrderStatusHistory{}).Where("order_id = ?", id).Count(&n).Error)
	return n
}

func (f *lifecycleFixture) chatCount(t *testing.T, id int64) int64 {
	var n int64
	require.NoError(t, f.db.Model(&model.Chat{}).Where("order_id = ?", id).Count(&n).Error)
	return n
}

func (f *lifecycleFixture) ordersCount(t *testing.T, userID int64) int64 {
	var u model.User
	require.NoError(t, f.db.First(&u, userID).Error)
	return u.OrdersCount
}

func TestOrderLifecycle_ScenarioStartRequiresMaster(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	o := f.order(t, model.OrderPending, false)

	_, err := f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: o.ID, NewStatus: model.OrderInProgress, ActorID: f.client.ID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))
	assert.Equal(t, "master must be assigned before starting the order", err.Error())
	assert.Equal(t, model.OrderPending, f.status(t, o.ID))
	assert.Zero(t, f.historyCount(t, o.ID))
	assert.Empty(t, f.notifier.all())

	require.NoError(t, f.db.Model(&model.Order{}).Where("id = ?", o.ID).Update("master_id", f.master.ID).Error)

	res, err := f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: o.ID, NewStatus: model.OrderInProgress, ActorID: f.client.ID})
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, res.OldStatus)
	assert.Equal(t, model.OrderInProgress, res.NewStatus)
	assert.Equal(t, "order accepted into work", res.Message)
	assert.Equal(t, int64(1), f.historyCount(t, o.ID))
	assert.Equal(t, int64(1), f.chatCount(t, o.ID))

	var chat model.Chat
	require.NoError(t, f.db.Where("order_id = ?", o.ID).First(&chat).Error)
	var members []int64
	require.NoError(t, f.db.Model(&model.ChatParticipant{}).Where("chat_id = ?", chat.ID).Pluck("user_id", &members).Error)
	assert.ElementsMatch(t, []int64{f.client.ID, f.master.ID}, members)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, f.master.ID, sent[0].UserID)
	assert.Equal(t, model.NotificationOrderStarted, sent[0].In.Type)
	assert.Equal(t, orderLink(o.ID), sent[0].In.Link)
	assert.Equal(t, o.ID, sent[0].In.Data["orderId"])

	res, err = f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: o.ID, NewStatus: model.OrderCompleted, ActorID: f.master.ID})
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, res.NewStatus)
	assert.Equal(t, int64(1), f.ordersCount(t, f.client.ID))
	assert.Equal(t, int64(1), f.ordersCount(t, f.master.ID))

	sent = f.notifier.all()
	require.Len(t, sent, 2)
	assert.Equal(t, f.client.ID, sent[1].UserID, "the counterparty of the master is told")
	assert.Equal(t, model.NotificationOrderCompleted, sent[1].In.Type)

	_, err = f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: o.ID, NewStatus: model.OrderCancelled, ActorID: f.client.ID})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, model.OrderCompleted, f.status(t, o.ID))
	assert.Equal(t, int64(2), f.historyCount(t, o.ID))
	assert.Equal(t, int64(1), f.ordersCount(t, f.client.ID))
}

func TestOrderLifecycle_ScenarioConcurrentCompleteAndCancel(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	o := f.order(t, model.OrderInProgress, true)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
		res  = make([]*TransitionResult, 2)
	)
	start := make(chan struct{})
	for i, in := range []ChangeStatusInput{
		{OrderID: o.ID, NewStatus: model.OrderCancelled, ActorID: f.client.ID},
		{OrderID: o.ID, NewStatus: model.OrderCompleted, ActorID: f.master.ID},
	} {
		wg.Add(1)
		go func(i int, in ChangeStatusInput) {
			defer wg.Done()
			<-start
			res[i], errs[i] = f.svc.ChangeStatus(ctx, in)
		}(i, in)
	}
	close(start)
	wg.Wait()

	var ok, invalid int
	var winner model.OrderStatus
	for i := range errs {
		switch {
		case errs[i] == nil:
			ok++
			winner = res[i].NewStatus
		case errors.Is(errs[i], ErrInvalidTransition):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", errs[i])
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, invalid)
	assert.Equal(t, winner, f.status(t, o.ID))
	assert.Equal(t, int64(1), f.historyCount(t, o.ID))

	wantCount := int64(0)
	if winner == model.OrderCompleted {
		wantCount = 1
	}
	assert.Equal(t, wantCount, f.ordersCount(t, f.client.ID))
	assert.Equal(t, wantCount, f.ordersCount(t, f.master.ID))
}

func TestOrderLifecycle_StructurallyInvalidForEveryRole(t *testing.T) {
	statuses := []model.OrderStatus{model.OrderPending, model.OrderInProgress, model.OrderCompleted, model.OrderCancelled}

	f := newLifecycleFixture(t)
	ctx := context.Background()
	actors := []*model.User{f.client, f.master, f.admin, f.stranger}

	for _, from := range statuses {
		for _, to := range statuses {
			if structurallyValid(from, to) {
				continue
			}
			for _, actor := range actors {
				o := f.order(t, from, true)
				_, err := f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: o.ID, NewStatus: to, ActorID: actor.ID})
				assert.Truef(t, errors.Is(err, ErrInvalidTransition), "%s->%s as %s: %v", from, to, actor.Username, err)
				assert.Equal(t, from, f.status(t, o.ID))
				assert.Zero(t, f.historyCount(t, o.ID))
			}
		}
	}
}

func TestOrderLifecycle_Permissions(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		from       model.OrderStatus
		withMaster bool
		to         model.OrderStatus
		actor      func() *model.User
		wantErr    error
		wantMsg    string
	}{
		{name: "master cannot start", from: model.OrderPending, withMaster: true, to: model.OrderInProgress, actor: func() *model.User { return f.master }, wantErr: ErrPermission, wantMsg: "only the client can start the order"},
		{name: "stranger cannot cancel", from: model.OrderPending, withMaster: true, to: model.OrderCancelled, actor: func() *model.User { return f.stranger }, wantErr: ErrPermission, wantMsg: "only the client or master can cancel the order"},
		{name: "stranger cannot complete", from: model.OrderInProgress, withMaster: true, to: model.OrderCompleted, actor: func() *model.User { return f.stranger }, wantErr: ErrPermission, wantMsg: "only the client or master can complete the order"},
		{name: "client cancels pending", from: model.OrderPending, withMaster: false, to: model.OrderCancelled, actor: func() *model.User { return f.client }},
		{name: "master cancels pending", from: model.OrderPending, withMaster: true, to: model.OrderCancelled, actor: func() *model.User { return f.master }},
		{name: "client completes", from: model.OrderInProgress, withMaster: true, to: model.OrderCompleted, actor: func() *model.User { return f.client }},
		{name: "master cancels in progress", from: model.OrderInProgress, withMaster: true, to: model.OrderCancelled, actor: func() *model.User { return f.master }},
		{name: "admin starts without master", from: model.OrderPending, withMaster: false, to: model.OrderInProgress, actor: func() *model.User { return f.admin }},
		{name: "admin completes", from: model.OrderInProgress, withMaster: true, to: model.OrderCompleted, actor: func() *model.User { return f.admin }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := f.order(t, tt.from, tt.withMaster)
			res, err := f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: o.ID, NewStatus: tt.to, ActorID: tt.actor().ID})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				assert.Equal(t, tt.wantMsg, err.Error())
				assert.Equal(t, tt.from, f.status(t, o.ID))
				assert.Zero(t, f.historyCount(t, o.ID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, res.NewStatus)
			assert.Equal(t, tt.to, f.status(t, o.ID))
			assert.Equal(t, int64(1), f.historyCount(t, o.ID))
		})
	}
}

func TestOrderLifecycle_ChatBootstrapIsIdempotent(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	o := f.order(t, model.OrderPending, true)

	// a chat created earlier for the same order must be reused
	orderID := o.ID
	pre := &model.Chat{OrderID: &orderID, Type: model.ChatTypeOrder}
	dbtest.Seed(t, f.db, pre)

	_, err := f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: o.ID, NewStatus: model.OrderInProgress, ActorID: f.client.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.chatCount(t, o.ID))

	f.observer.mu.Lock()
	defer f.observer.mu.Unlock()
	require.Len(t, f.observer.events, 1)
	require.NotNil(t, f.observer.events[0].ChatID)
	assert.Equal(t, pre.ID, *f.observer.events[0].ChatID)
}

func TestOrderLifecycle_NotFoundAndValidation(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: 424242, NewStatus: model.OrderCancelled, ActorID: f.client.ID})
	assert.True(t, errors.Is(err, ErrNotFound))

	o := f.order(t, model.OrderPending, true)
	require.NoError(t, f.db.Delete(o).Error)
	_, err = f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: o.ID, NewStatus: model.OrderCancelled, ActorID: f.client.ID})
	assert.True(t, errors.Is(err, ErrNotFound), "soft-deleted orders are invisible")

	live := f.order(t, model.OrderPending, true)
	_, err = f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: live.ID, NewStatus: "archived", ActorID: f.client.ID})
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: live.ID, NewStatus: model.OrderCancelled, ActorID: 777777})
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, model.OrderPending, f.status(t, live.ID))
}

func TestOrderLifecycle_NotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newLifecycleFixture(t)
	f.notifier.err = errors.New("broker down")
	o := f.order(t, model.OrderPending, true)

	res, err := f.svc.ChangeStatus(context.Background(), ChangeStatusInput{
		OrderID:   o.ID,
		NewStatus: model.OrderCancelled,
		ActorID:   f.master.ID,
		Reason:    "  customer changed plans ",
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, res.NewStatus)
	assert.Len(t, f.notifier.all(), 1)

	var h model.OrderStatusHistory
	require.NoError(t, f.db.Where("order_id = ?", o.ID).First(&h).Error)
	require.NotNil(t, h.Reason)
	assert.Equal(t, "customer changed plans", *h.Reason)
	assert.Equal(t, f.master.ID, h.ChangedBy)
}

func TestOrderLifecycle_AvailableActionsMatchAuthorize(t *testing.T) {
	masterID := int64(2)
	roles := map[int64]string{1: model.RoleClient, 2: model.RoleMaster, 3: model.RoleAdmin, 4: model.RoleClient}

	for _, status := range []model.OrderStatus{model.OrderPending, model.OrderInProgress, model.OrderCompleted, model.OrderCancelled} {
		for _, withMaster := range []bool{true, false} {
			o := &model.Order{ID: 1, ClientID: 1, Status: status}
			if withMaster {
				o.MasterID = &masterID
			}
			for actorID, role := range roles {
				got := map[model.OrderStatus]bool{}
				for _, a := range AvailableActions(o, actorID, role) {
					got[a.Action] = true
				}
				for _, to := range []model.OrderStatus{model.OrderPending, model.OrderInProgress, model.OrderCompleted, model.OrderCancelled} {
					want := structurallyValid(status, to) && authorize(o, actorID, role, to) == nil
					assert.Equalf(t, want, got[to], "status=%s master=%v actor=%d to=%s", status, withMaster, actorID, to)
				}
			}
		}
	}
}

func TestAvailableActions_Examples(t *testing.T) {
	masterID := int64(2)
	pendingNoMaster := &model.Order{ClientID: 1, Status: model.OrderPending}
	pending := &model.Order{ClientID: 1, MasterID: &masterID, Status: model.OrderPending}

	actions := AvailableActions(pendingNoMaster, 1, model.RoleClient)
	require.Len(t, actions, 1)
	assert.Equal(t, model.OrderCancelled, actions[0].Action)
	assert.True(t, actions[0].Destructive)

	actions = AvailableActions(pending, 1, model.RoleClient)
	require.Len(t, actions, 2)
	assert.Equal(t, model.OrderInProgress, actions[0].Action)
	assert.Equal(t, "Start work", actions[0].Label)
	assert.True(t, actions[0].RequiresConfirmation)

	assert.Empty(t, AvailableActions(&model.Order{ClientID: 1, Status: model.OrderCompleted}, 1, model.RoleAdmin))
	assert.NotNil(t, AvailableActions(pending, 99, model.RoleClient))
}

func TestSideEffectTableCoversEveryTransition(t *testing.T) {
	all := Transitions()
	assert.Len(t, all, 4)
	for _, tr := range all {
		_, ok := sideEffects[tr]
		assert.Truef(t, ok, "no side-effect entry for %s", tr)
	}
	assert.Len(t, sideEffects, len(all))
	for tr := range notificationTemplates {
		assert.True(t, structurallyValid(tr.From, tr.To), tr.String())
	}
}

func TestOrderLifecycle_HistoryAndCanView(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()
	o := f.order(t, model.OrderPending, true)

	_, err := f.svc.ChangeStatus(ctx, ChangeStatusInput{OrderID: o.ID, NewStatus: model.OrderInProgress, ActorID: f.client.ID})
	require.NoError(t, err)

	items, err := f.svc.StatusHistory(ctx, o.ID, f.master.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "client", items[0].ChangedByUsername)

	_, err = f.svc.StatusHistory(ctx, o.ID, f.stranger.ID)
	assert.True(t, errors.Is(err, ErrPermission))

	for _, tc := range []struct {
		user *model.User
		want bool
	}{{f.client, true}, {f.master, true}, {f.admin, true}, {f.stranger, false}} {
		ok, err := f.svc.CanView(ctx, o.ID, tc.user.ID)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, tc.user.Username)
	}

	ok, err := f.svc.CanView(ctx, 98765, f.client.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	actions, err := f.svc.GetAvailableActions(ctx, o.ID, f.master.ID)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, model.OrderCompleted, actions[0].Action)
	assert.Equal(t, model.OrderCancelled, actions[1].Action)
}
