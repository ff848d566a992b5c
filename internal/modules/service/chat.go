package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/repo"
)

const maxMessageRunes = 4000

type ChatService interface {
	SendMessage(ctx context.Context, in SendMessageInput) (*model.ChatMessage, error)
	IsParticipant(ctx context.Context, chatID, userID int64) (bool, error)
	// ShareChat reports whether both users are participants of chatID.
	ShareChat(ctx context.Context, chatID, a, b int64) (bool, error)
}

type SendMessageInput struct {
	ChatID      int64
	SenderID    int64
	Content     string
	MessageType string
}

type chatService struct {
	r repo.ChatRepo
}

func NewChatService(r repo.ChatRepo) ChatService {
	return &chatService{r: r}
}

func (s *chatService) SendMessage(ctx context.Context, in SendMessageInput) (*model.ChatMessage, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, newErr(ErrValidation, "message is empty")
	}
	if utf8.RuneCountInString(content) > maxMessageRunes {
		return nil, newErr(ErrValidation, "message is too long")
	}
	msgType := in.MessageType
	if msgType == "" {
		msgType = model.MessageText
	}

	ok, err := s.r.IsParticipant(ctx, in.ChatID, in.SenderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newErr(ErrPermission, "not a participant of this chat")
	}

	m := &model.ChatMessage{
		ChatID:      in.ChatID,
		SenderID:    in.SenderID,
		Content:     content,
		MessageType: msgType,
	}
	if err := s.r.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *chatService) IsParticipant(ctx context.Context, chatID, userID int64) (bool, error) {
	return s.r.IsParticipant(ctx, chatID, userID)
}

func (s *chatService) ShareChat(ctx context.Context, chatID, a, b int64) (bool, error) {
	ids, err := s.r.ParticipantIDs(ctx, chatID)
	if err != nil {
		return false, err
	}
	var hasA, hasB bool
	for _, id := range ids {
		hasA = hasA || id == a
		hasB = hasB || id == b
	}
	return hasA && hasB, nil
}
