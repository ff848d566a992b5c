package model

import "time"

const (
	ChatTypeOrder  = "order"
	ChatTypeDirect = "direct"

	MessageText  = "text"
	MessageVoice = "voice"
	MessagePhoto = "photo"
)

type Chat struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	// OrderID is unique so an order never gets a second chat.
	OrderID *int64 `gorm:"uniqueIndex:uq_chats_order_id" json:"order_id,omitempty"`
	Type    string `gorm:"type:text;not null;default:'direct'" json:"type"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	Participants []ChatParticipant `gorm:"constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"participants,omitempty"`
}

func (Chat) TableName() string { return "chats" }

type ChatParticipant struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID int64 `gorm:"not null;uniqueIndex:uq_chat_participants_chat_user,priority:1" json:"chat_id"`
	UserID int64 `gorm:"not null;uniqueIndex:uq_chat_participants_chat_user,priority:2;index:ix_chat_participants_user_id" json:"user_id"`

	JoinedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
}

func (ChatParticipant) TableName() string { return "chat_participants" }

type ChatMessage struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID      int64  `gorm:"not null;index:ix_chat_messages_chat_id_created_at,priority:1" json:"chatId"`
	SenderID    int64  `gorm:"not null" json:"senderId"`
	Content     string `gorm:"type:text;not null" json:"content"`
	MessageType string `gorm:"type:text;not null;default:'text'" json:"messageType"`

	CreatedAt time.Time `gorm:"autoCreateTime;not null;default:CURRENT_TIMESTAMP;index:ix_chat_messages_chat_id_created_at,priority:2" json:"createdAt"`

	Chat *Chat `gorm:"foreignKey:ChatID;references:ID;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
