package repo

import (
	"context"
	"errors"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepo interface {
	FindByOrderID(ctx context.Context, orderID int64) (*model.Chat, error)
	// EnsureOrderChat returns the order's chat, creating it with the given
	// participants when absent. created is false when the chat already existed.
	EnsureOrderChat(ctx context.Context, orderID int64, userIDs ...int64) (chat *model.Chat, created bool, err error)
	IsParticipant(ctx context.Context, chatID, userID int64) (bool, error)
	ParticipantIDs(ctx context.Context, chatID int64) ([]int64, error)
	CreateMessage(ctx context.Context, m *model.ChatMessage) error
}

type chatRepo struct{ db *gorm.DB }

func NewChatRepo(db *gorm.DB) ChatRepo {
	return &chatRepo{db: db}
}

func (r *chatRepo) FindByOrderID(ctx context.Context, orderID int64) (*model.Chat, error) {
	var c model.Chat
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *chatRepo) EnsureOrderChat(ctx context.Context, orderID int64, userIDs ...int64) (*model.Chat, bool, error) {
	existing, err := r.FindByOrderID(ctx, orderID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	chat := model.Chat{OrderID: &orderID, Type: model.ChatTypeOrder}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&chat)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// lost a race with a concurrent bootstrap
		existing, err := r.FindByOrderID(ctx, orderID)
		return existing, false, err
	}

	parts := make([]model.ChatParticipant, 0, len(userIDs))
	for _, id := range userIDs {
		parts = append(parts, model.ChatParticipant{ChatID: chat.ID, UserID: id})
	}
	if len(parts) > 0 {
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&parts).Error; err != nil {
			return nil, false, err
		}
	}
	chat.Participants = parts
	return &chat, true, nil
}

func (r *chatRepo) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *chatRepo) ParticipantIDs(ctx context.Context, chatID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.ChatParticipant{}).
		Where("chat_id = ?", chatID).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *chatRepo) CreateMessage(ctx context.Context, m *model.ChatMessage) error {
	return r.db.WithContext(ctx).Create(m).Error
}
