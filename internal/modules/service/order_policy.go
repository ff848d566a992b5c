package service

import (
	"fmt"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
)

// Transition is one edge of the order state machine.
type Transition struct {
	From model.OrderStatus
	To   model.OrderStatus
}

func (t Transition) String() string { return string(t.From) + "->" + string(t.To) }

// transitions lists, per status, the statuses it may move to.
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending:    {model.OrderInProgress, model.OrderCancelled},
	model.OrderInProgress: {model.OrderCompleted, model.OrderCancelled},
	model.OrderCompleted:  {},
	model.OrderCancelled:  {},
}

// Transitions returns every edge of the state machine.
func Transitions() []Transition {
	var out []Transition
	for _, from := range []model.OrderStatus{model.OrderPending, model.OrderInProgress, model.OrderCompleted, model.OrderCancelled} {
		for _, to := range transitions[from] {
			out = append(out, Transition{From: from, To: to})
		}
	}
	return out
}

func structurallyValid(from, to model.OrderStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// authorize decides whether the actor may move o to the target status.
// The transition must already be structurally valid. Returns nil, or an
// error wrapping ErrPermission or ErrPrecondition.
func authorize(o *model.Order, actorID int64, actorRole string, to model.OrderStatus) error {
	if actorRole == model.RoleAdmin {
		return nil
	}

	switch {
	case o.Status == model.OrderPending && to == model.OrderInProgress:
		if o.ClientID != actorID {
			return newErr(ErrPermission, "only the client can start the order")
		}
		if o.MasterID == nil {
			return newErr(ErrPrecondition, "master must be assigned before starting the order")
		}
		return nil
	case to == model.OrderCompleted:
		if !o.IsParty(actorID) {
			return newErr(ErrPermission, "only the client or master can complete the order")
		}
		return nil
	case to == model.OrderCancelled:
		if !o.IsParty(actorID) {
			return newErr(ErrPermission, "only the client or master can cancel the order")
		}
		return nil
	}
	return newErr(ErrPermission, "permission denied")
}

// Action is a transition the caller is currently allowed to perform.
type Action struct {
	Action               model.OrderStatus `json:"action"`
	Label                string            `json:"label"`
	RequiresConfirmation bool              `json:"requiresConfirmation"`
	Destructive          bool              `json:"destructive,omitempty"`
}

var actionCatalog = map[model.OrderStatus]Action{
	model.OrderInProgress: {Action: model.OrderInProgress, Label: "Start work", RequiresConfirmation: true},
	model.OrderCompleted:  {Action: model.OrderCompleted, Label: "Complete order", RequiresConfirmation: true},
	model.OrderCancelled:  {Action: model.OrderCancelled, Label: "Cancel order", RequiresConfirmation: true, Destructive: true},
}

// AvailableActions lists the transitions out of the order's current status
// that authorize would accept for this actor. It never touches the store.
func AvailableActions(o *model.Order, actorID int64, actorRole string) []Action {
	actions := []Action{}
	for _, to := range transitions[o.Status] {
		if authorize(o, actorID, actorRole, to) != nil {
			continue
		}
		actions = append(actions, actionCatalog[to])
	}
	return actions
}

func transitionMessage(t Transition) string {
	switch t {
	case Transition{model.OrderPending, model.OrderInProgress}:
		return "order accepted into work"
	case Transition{model.OrderInProgress, model.OrderCompleted}:
		return "order completed"
	case Transition{model.OrderPending, model.OrderCancelled}, Transition{model.OrderInProgress, model.OrderCancelled}:
		return "order cancelled"
	}
	return "order status updated"
}

type notificationTemplate struct {
	Type  string
	Title string
	// Format receives the order title.
	Format string
}

var notificationTemplates = map[Transition]notificationTemplate{
	{model.OrderPending, model.OrderInProgress}: {Type: model.NotificationOrderStarted, Title: "Order accepted into work", Format: "Order %q was accepted into work"},
	{model.OrderInProgress, model.OrderCompleted}: {Type: model.NotificationOrderCompleted, Title: "Order completed", Format: "Order %q was marked as completed"},
	{model.OrderPending, model.OrderCancelled}:    {Type: model.NotificationOrderCancelled, Title: "Order cancelled", Format: "Order %q was cancelled"},
	{model.OrderInProgress, model.OrderCancelled}: {Type: model.NotificationOrderCancelled, Title: "Order cancelled", Format: "Order %q was cancelled"},
}

// notificationRecipient is the party that did not perform the change. When
// an admin acts the client is told.
func notificationRecipient(o *model.Order, actorID int64) (int64, bool) {
	if actorID == o.ClientID {
		if o.MasterID == nil {
			return 0, false
		}
		return *o.MasterID, true
	}
	return o.ClientID, true
}

func orderLink(id int64) string { return fmt.Sprintf("/orders/%d", id) }
