package model

import (
	"time"

	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether no further transition can leave s.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderInProgress, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

type Order struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	ClientID    int64       `gorm:"not null;index:ix_orders_client_id" json:"client_id"`
	MasterID    *int64      `gorm:"index:ix_orders_master_id" json:"master_id,omitempty"`
	Title       string      `gorm:"type:text;not null" json:"title"`
	Description string      `gorm:"type:text" json:"description,omitempty"`
	Status      OrderStatus `gorm:"type:text;not null;default:'pending';check:status IN ('pending','in_progress','completed','cancelled');index:ix_orders_status" json:"status"`

	CreatedAt time.Time      `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Client *User `gorm:"foreignKey:ClientID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
	Master *User `gorm:"foreignKey:MasterID;references:ID;constraint:OnDelete:SET NULL,OnUpdate:CASCADE;" json:"-"`
}

func (Order) TableName() string { return "orders" }

// IsParty reports whether userID is the client or the assigned master.
func (o *Order) IsParty(userID int64) bool {
	return o.ClientID == userID || (o.MasterID != nil && *o.MasterID == userID)
}

// Counterparty returns the other side of the order for userID, if any.
func (o *Order) Counterparty(userID int64) (int64, bool) {
	switch {
	case o.ClientID == userID && o.MasterID != nil:
		return *o.MasterID, true
	case o.MasterID != nil && *o.MasterID == userID:
		return o.ClientID, true
	}
	return 0, false
}

type OrderStatusHistory struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64       `gorm:"not null;index:ix_order_status_history_order_id" json:"order_id"`
	ChangedBy int64       `gorm:"not null" json:"changed_by"`
	OldStatus OrderStatus `gorm:"type:text;not null" json:"old_status"`
	NewStatus OrderStatus `gorm:"type:text;not null" json:"new_status"`
	Reason    *string     `gorm:"type:text" json:"reason,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	Order *Order `gorm:"foreignKey:OrderID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }
