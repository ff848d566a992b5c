package realtime

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
)

// EventType is the tag of a frame on the socket.
type EventType string

// Inbound events, sent by clients.
const (
	EventRoomJoin  EventType = "room:join"
	EventRoomLeave EventType = "room:leave"

	EventChatSendMessage EventType = "chat:send_message"
	EventChatTyping      EventType = "chat:typing"

	EventVideoLike       EventType = "video:like"
	EventVideoUnlike     EventType = "video:unlike"
	EventVideoLikeToggle EventType = "video:like_toggle"
	EventVideoView       EventType = "video:view"
	EventVideoComment    EventType = "video:comment"
	EventVideoUploaded   EventType = "video:uploaded"

	EventStoryLike       EventType = "story:like"
	EventStoryUnlike     EventType = "story:unlike"
	EventStoryLikeToggle EventType = "story:like_toggle"
	EventStoryView       EventType = "story:view"

	EventCallInitiate     EventType = "call:initiate"
	EventCallAnswer       EventType = "call:answer"
	EventCallReject       EventType = "call:reject"
	EventCallEnd          EventType = "call:end"
	EventCallWebRTCSignal EventType = "call:webrtc_signal"
)

// Outbound events, sent by the server.
const (
	EventSessionReady EventType = "session:ready"
	EventError        EventType = "error"

	EventRoomJoined EventType = "room:joined"
	EventRoomLeft   EventType = "room:left"

	EventChatMessage     EventType = "chat:message"
	EventChatMessageSent EventType = "chat:message_sent"
	EventChatUserOnline  EventType = "chat:user_online"
	EventChatCreated     EventType = "chat:created"

	EventVideoNew EventType = "video:new"

	EventCallIncoming  EventType = "call:incoming"
	EventCallInitiated EventType = "call:initiated"
	EventCallAnswered  EventType = "call:answered"
	EventCallRejected  EventType = "call:rejected"
	EventCallEnded     EventType = "call:ended"

	EventNotificationNew   EventType = "notification:new"
	EventOrderStatusChange EventType = "order:status_changed"
)

// InboundEvents is the closed set of tags a client may send.
func InboundEvents() []EventType {
	return []EventType{
		EventRoomJoin, EventRoomLeave,
		EventChatSendMessage, EventChatTyping,
		EventVideoLike, EventVideoUnlike, EventVideoLikeToggle, EventVideoView, EventVideoComment, EventVideoUploaded,
		EventStoryLike, EventStoryUnlike, EventStoryLikeToggle, EventStoryView,
		EventCallInitiate, EventCallAnswer, EventCallReject, EventCallEnd, EventCallWebRTCSignal,
	}
}

func OutboundEvents() []EventType {
	return []EventType{
		EventSessionReady, EventError,
		EventRoomJoined, EventRoomLeft,
		EventChatMessage, EventChatMessageSent, EventChatUserOnline, EventChatCreated,
		EventVideoNew,
		EventCallIncoming, EventCallInitiated, EventCallAnswered, EventCallRejected, EventCallEnded,
		EventNotificationNew, EventOrderStatusChange,
	}
}

// Envelope is one frame on the wire.
type Envelope struct {
	Event     EventType       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Encode builds an outbound frame.
func Encode(event EventType, payload any) ([]byte, error) {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(Envelope{Event: event, Data: data, Timestamp: time.Now().UnixMilli()})
}

// Decode parses an inbound frame. Data is left raw for the handler.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	err := sonic.Unmarshal(frame, &env)
	return env, err
}

// Error codes carried by the error event.
const (
	CodeValidation  = "validation"
	CodeAuth        = "auth"
	CodeForbidden   = "forbidden"
	CodeNotFound    = "not_found"
	CodeConflict    = "conflict"
	CodeRateLimited = "rate_limited"
	CodeInternal    = "internal"
)

type ErrorPayload struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Event   EventType `json:"event,omitempty"`
}

type SessionReadyPayload struct {
	SessionID string `json:"sessionId"`
	UserID    int64  `json:"userId"`
	Role      string `json:"role"`
}

type RoomPayload struct {
	Room string `json:"room" validate:"required,max=64"`
}

type ChatSendPayload struct {
	ChatID      int64  `json:"chatId" validate:"required,gt=0"`
	Content     string `json:"content" validate:"required,max=4000"`
	MessageType string `json:"messageType" validate:"omitempty,oneof=text voice photo"`
}

type ChatTypingPayload struct {
	ChatID   int64 `json:"chatId" validate:"required,gt=0"`
	IsTyping bool  `json:"isTyping"`
}

type ChatTypingEvent struct {
	ChatID   int64 `json:"chatId"`
	UserID   int64 `json:"userId"`
	IsTyping bool  `json:"isTyping"`
}

type UserOnlineEvent struct {
	UserID   int64 `json:"userId"`
	IsOnline bool  `json:"isOnline"`
}

type ChatCreatedEvent struct {
	OrderID  int64  `json:"orderId"`
	ChatID   int64  `json:"chatId"`
	ClientID int64  `json:"clientId"`
	MasterID *int64 `json:"masterId,omitempty"`
}

type VideoRef struct {
	VideoID int64 `json:"videoId" validate:"required,gt=0"`
}

type StoryRef struct {
	StoryID int64 `json:"storyId" validate:"required,gt=0"`
}

type VideoCommentPayload struct {
	VideoID  int64  `json:"videoId" validate:"required,gt=0"`
	Content  string `json:"content" validate:"required,max=2000"`
	ParentID *int64 `json:"parentId,omitempty" validate:"omitempty,gt=0"`
}

type VideoUploadedPayload struct {
	VideoID  int64  `json:"videoId" validate:"required,gt=0"`
	Title    string `json:"title" validate:"required,max=200"`
	Category string `json:"category" validate:"max=64"`
}

type VideoNewEvent struct {
	VideoID  int64  `json:"videoId"`
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
	AuthorID int64  `json:"authorId"`
}

type VideoLikeEvent struct {
	VideoID    int64 `json:"videoId"`
	UserID     int64 `json:"userId"`
	IsLiked    bool  `json:"isLiked"`
	LikesCount int64 `json:"likesCount"`
}

type VideoViewEvent struct {
	VideoID int64 `json:"videoId"`
	UserID  int64 `json:"userId"`
	Views   int64 `json:"views"`
}

type VideoCommentEvent struct {
	VideoID       int64 `json:"videoId"`
	Comment       any   `json:"comment"`
	CommentsCount int64 `json:"commentsCount"`
}

type StoryLikeEvent struct {
	StoryID    int64 `json:"storyId"`
	UserID     int64 `json:"userId"`
	IsLiked    bool  `json:"isLiked"`
	LikesCount int64 `json:"likesCount"`
}

type StoryViewEvent struct {
	StoryID int64 `json:"storyId"`
	UserID  int64 `json:"userId"`
	Views   int64 `json:"views"`
}

type CallInitiatePayload struct {
	ChatID       int64  `json:"chatId" validate:"required,gt=0"`
	TargetUserID int64  `json:"targetUserId" validate:"required,gt=0"`
	CallType     string `json:"callType" validate:"required,oneof=audio video"`
}

type CallRef struct {
	CallID string `json:"callId" validate:"required,uuid"`
}

type CallSignalPayload struct {
	CallID string          `json:"callId" validate:"required,uuid"`
	Signal json.RawMessage `json:"signal" validate:"required"`
}

type CallIncomingEvent struct {
	CallID      string `json:"callId"`
	ChatID      int64  `json:"chatId"`
	CallerID    int64  `json:"callerId"`
	CallType    string `json:"callType"`
	InitiatedAt int64  `json:"initiatedAt"`
}

type CallStatusEvent struct {
	CallID string `json:"callId"`
	Status string `json:"status"`
}

type CallEndedEvent struct {
	CallID   string `json:"callId"`
	EndedBy  int64  `json:"endedBy"`
	Duration int64  `json:"duration"`
}

type CallSignalEvent struct {
	CallID     string          `json:"callId"`
	FromUserID int64           `json:"fromUserId"`
	Signal     json.RawMessage `json:"signal"`
}

type OrderStatusEvent struct {
	OrderID   int64  `json:"orderId"`
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
	ChangedBy int64  `json:"changedBy"`
	Reason    string `json:"reason,omitempty"`
}
