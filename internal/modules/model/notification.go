package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	NotificationOrderStarted   = "order_started"
	NotificationOrderCompleted = "order_completed"
	NotificationOrderCancelled = "order_cancelled"
)

type Notification struct {
	ID      int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID  int64          `gorm:"not null;index:ix_notifications_user_id_created_at,priority:1" json:"user_id"`
	Type    string         `gorm:"type:text;not null" json:"type"`
	Title   string         `gorm:"type:text;not null" json:"title"`
	Message string         `gorm:"type:text;not null" json:"message"`
	Data    datatypes.JSON `swaggertype:"object" json:"data,omitempty"`
	Link    string         `gorm:"type:text" json:"link,omitempty"`
	IsRead  bool           `gorm:"not null;default:false" json:"is_read"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP;index:ix_notifications_user_id_created_at,priority:2" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
