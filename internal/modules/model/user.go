package model

import "time"

const (
	RoleClient = "client"
	RoleMaster = "master"
	RoleAdmin  = "admin"
)

type User struct {
	ID       int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"type:text;not null;uniqueIndex:uq_users_username" json:"username"`
	Role     string `gorm:"type:text;not null;default:'client';check:role IN ('client','master','admin')" json:"role"`
	// OrdersCount is the number of completed orders the user took part in.
	OrdersCount int64 `gorm:"not null;default:0" json:"orders_count"`
	IsActive    bool  `gorm:"not null;default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }
