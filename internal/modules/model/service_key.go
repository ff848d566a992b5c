package model

import "time"

// ServiceKey authenticates trusted backends that call the order API on
// behalf of a user. Only an HMAC lookup value and an argon2id PHC string
// are stored, never the secret.
type ServiceKey struct {
	ID               int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string `gorm:"type:text;not null" json:"name"`
	SecretKeyHMAC    string `gorm:"type:char(64);uniqueIndex:uq_service_keys_hmac;not null" json:"-"`
	SecretKeyHashPHC string `gorm:"type:text;not null" json:"-"`
	IsRoot           bool   `gorm:"not null;default:false" json:"is_root"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (ServiceKey) TableName() string { return "service_keys" }
