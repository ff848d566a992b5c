package realtime

import (
	"context"
	"time"

	"github.com/kazak5205/mebelplace-sub009/internal/modules/model"
	"github.com/kazak5205/mebelplace-sub009/internal/modules/service"
	"go.uber.org/zap"
)

type Deps struct {
	Registry   *Registry
	Bus        Broadcaster
	Chats      service.ChatService
	Engagement service.EngagementService
	Orders     service.OrderLifecycleService
	Calls      CallStore
	Now        func() time.Time
}

type handlers struct {
	Deps
	log *zap.Logger
}

// NewRouter builds the dispatch table for every inbound event.
func NewRouter(d Deps, log *zap.Logger) *Router {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{Deps: d, log: log}
	r := newRouter(log)

	register(r, EventRoomJoin, h.roomJoin)
	register(r, EventRoomLeave, h.roomLeave)

	register(r, EventChatSendMessage, h.chatSend)
	register(r, EventChatTyping, h.chatTyping)

	register(r, EventVideoLike, h.videoLike(true))
	register(r, EventVideoUnlike, h.videoLike(false))
	register(r, EventVideoLikeToggle, h.videoLikeToggle)
	register(r, EventVideoView, h.videoView)
	register(r, EventVideoComment, h.videoComment)
	register(r, EventVideoUploaded, h.videoUploaded)

	register(r, EventStoryLike, h.storyLike(true))
	register(r, EventStoryUnlike, h.storyLike(false))
	register(r, EventStoryLikeToggle, h.storyLikeToggle)
	register(r, EventStoryView, h.storyView)

	register(r, EventCallInitiate, h.callInitiate)
	register(r, EventCallAnswer, h.callAnswer)
	register(r, EventCallReject, h.callReject)
	register(r, EventCallEnd, h.callEnd)
	register(r, EventCallWebRTCSignal, h.callSignal)

	return r
}

func forbidden(msg string) error {
	return &service.DomainError{Kind: service.ErrPermission, Msg: msg}
}

func invalid(msg string) error {
	return &service.DomainError{Kind: service.ErrValidation, Msg: msg}
}

// rooms

func (h *handlers) canJoin(ctx context.Context, s *Session, p ParsedRoom) error {
	switch p.Kind {
	case RoomVideo, RoomStory:
		return nil
	case RoomUser:
		if p.ID != s.UserID() {
			return forbidden("cannot join another user's room")
		}
		return nil
	case RoomChat:
		ok, err := h.Chats.IsParticipant(ctx, p.ID, s.UserID())
		if err != nil {
			return err
		}
		if !ok {
			return forbidden("not a participant of this chat")
		}
		return nil
	case RoomOrder:
		ok, err := h.Orders.CanView(ctx, p.ID, s.UserID())
		if err != nil {
			return err
		}
		if !ok {
			return forbidden("not a party to this order")
		}
		return nil
	}
	return forbidden("call rooms are joined by answering the call")
}

func (h *handlers) roomJoin(ctx context.Context, s *Session, in *RoomPayload) error {
	p, err := ParseRoom(in.Room)
	if err != nil {
		return invalid(err.Error())
	}
	if err := h.canJoin(ctx, s, p); err != nil {
		return err
	}
	h.Registry.Join(s, p.Room)
	s.Emit(EventRoomJoined, RoomPayload{Room: string(p.Room)})
	return nil
}

func (h *handlers) roomLeave(ctx context.Context, s *Session, in *RoomPayload) error {
	p, err := ParseRoom(in.Room)
	if err != nil {
		return invalid(err.Error())
	}
	if p.Kind == RoomUser {
		return forbidden("the personal room cannot be left")
	}
	h.Registry.Leave(s.SessionID(), p.Room)
	s.Emit(EventRoomLeft, RoomPayload{Room: string(p.Room)})
	return nil
}

// chat

func (h *handlers) chatSend(ctx context.Context, s *Session, in *ChatSendPayload) error {
	msg, err := h.Chats.SendMessage(ctx, service.SendMessageInput{
		ChatID:      in.ChatID,
		SenderID:    s.UserID(),
		Content:     in.Content,
		MessageType: in.MessageType,
	})
	if err != nil {
		return err
	}
	if err := h.Bus.Broadcast(ctx, ChatRoom(in.ChatID), EventChatMessage, msg, Exclude(s.SessionID())); err != nil {
		return err
	}
	s.Emit(EventChatMessageSent, msg)
	return nil
}

func (h *handlers) chatTyping(ctx context.Context, s *Session, in *ChatTypingPayload) error {
	ok, err := h.Chats.IsParticipant(ctx, in.ChatID, s.UserID())
	if err != nil {
		return err
	}
	if !ok {
		return forbidden("not a participant of this chat")
	}
	return h.Bus.Broadcast(ctx, ChatRoom(in.ChatID), EventChatTyping, ChatTypingEvent{
		ChatID:   in.ChatID,
		UserID:   s.UserID(),
		IsTyping: in.IsTyping,
	}, Exclude(s.SessionID()))
}

// publish sends the event to the room and to the sender, who may not have
// joined it.
func (h *handlers) publish(ctx context.Context, s *Session, room Room, event EventType, payload any) error {
	if err := h.Bus.Broadcast(ctx, room, event, payload, Exclude(s.SessionID())); err != nil {
		return err
	}
	s.Emit(event, payload)
	return nil
}

// videos

func (h *handlers) videoLike(liked bool) func(context.Context, *Session, *VideoRef) error {
	return func(ctx context.Context, s *Session, in *VideoRef) error {
		st, err := h.Engagement.SetLike(ctx, model.SubjectVideo, in.VideoID, s.UserID(), liked)
		if err != nil {
			return err
		}
		return h.publishVideoLike(ctx, s, st)
	}
}

func (h *handlers) videoLikeToggle(ctx context.Context, s *Session, in *VideoRef) error {
	st, err := h.Engagement.ToggleLike(ctx, model.SubjectVideo, in.VideoID, s.UserID())
	if err != nil {
		return err
	}
	return h.publishVideoLike(ctx, s, st)
}

func (h *handlers) publishVideoLike(ctx context.Context, s *Session, st *service.LikeState) error {
	return h.publish(ctx, s, VideoRoom(st.SubjectID), EventVideoLike, VideoLikeEvent{
		VideoID:    st.SubjectID,
		UserID:     st.UserID,
		IsLiked:    st.IsLiked,
		LikesCount: st.LikesCount,
	})
}

func (h *handlers) videoView(ctx context.Context, s *Session, in *VideoRef) error {
	views, err := h.Engagement.RecordView(ctx, model.SubjectVideo, in.VideoID)
	if err != nil {
		return err
	}
	return h.publish(ctx, s, VideoRoom(in.VideoID), EventVideoView, VideoViewEvent{
		VideoID: in.VideoID,
		UserID:  s.UserID(),
		Views:   views,
	})
}

func (h *handlers) videoComment(ctx context.Context, s *Session, in *VideoCommentPayload) error {
	c, count, err := h.Engagement.AddComment(ctx, service.AddCommentInput{
		VideoID:  in.VideoID,
		UserID:   s.UserID(),
		Content:  in.Content,
		ParentID: in.ParentID,
	})
	if err != nil {
		return err
	}
	return h.publish(ctx, s, VideoRoom(in.VideoID), EventVideoComment, VideoCommentEvent{
		VideoID:       in.VideoID,
		Comment:       c,
		CommentsCount: count,
	})
}

func (h *handlers) videoUploaded(ctx context.Context, s *Session, in *VideoUploadedPayload) error {
	v, err := h.Engagement.GetVideo(ctx, in.VideoID)
	if err != nil {
		return err
	}
	if v.AuthorID != s.UserID() && s.Role() != model.RoleAdmin {
		return forbidden("only the author can announce a video")
	}
	return h.Bus.BroadcastAll(ctx, EventVideoNew, VideoNewEvent{
		VideoID:  v.ID,
		Title:    v.Title,
		Category: v.Category,
		AuthorID: v.AuthorID,
	})
}

// stories

func (h *handlers) storyLike(liked bool) func(context.Context, *Session, *StoryRef) error {
	return func(ctx context.Context, s *Session, in *StoryRef) error {
		st, err := h.Engagement.SetLike(ctx, model.SubjectStory, in.StoryID, s.UserID(), liked)
		if err != nil {
			return err
		}
		return h.publishStoryLike(ctx, s, st)
	}
}

func (h *handlers) storyLikeToggle(ctx context.Context, s *Session, in *StoryRef) error {
	st, err := h.Engagement.ToggleLike(ctx, model.SubjectStory, in.StoryID, s.UserID())
	if err != nil {
		return err
	}
	return h.publishStoryLike(ctx, s, st)
}

func (h *handlers) publishStoryLike(ctx context.Context, s *Session, st *service.LikeState) error {
	return h.publish(ctx, s, StoryRoom(st.SubjectID), EventStoryLike, StoryLikeEvent{
		StoryID:    st.SubjectID,
		UserID:     st.UserID,
		IsLiked:    st.IsLiked,
		LikesCount: st.LikesCount,
	})
}

func (h *handlers) storyView(ctx context.Context, s *Session, in *StoryRef) error {
	views, err := h.Engagement.RecordView(ctx, model.SubjectStory, in.StoryID)
	if err != nil {
		return err
	}
	return h.publish(ctx, s, StoryRoom(in.StoryID), EventStoryView, StoryViewEvent{
		StoryID: in.StoryID,
		UserID:  s.UserID(),
		Views:   views,
	})
}

// calls

func (h *handlers) callInitiate(ctx context.Context, s *Session, in *CallInitiatePayload) error {
	if in.TargetUserID == s.UserID() {
		return invalid("cannot call yourself")
	}
	ok, err := h.Chats.ShareChat(ctx, in.ChatID, s.UserID(), in.TargetUserID)
	if err != nil {
		return err
	}
	if !ok {
		return forbidden("caller and callee must share the chat")
	}

	call := &Call{
		ChatID:    in.ChatID,
		CallerID:  s.UserID(),
		CalleeID:  in.TargetUserID,
		CallType:  in.CallType,
		CreatedAt: h.Now(),
	}
	if err := h.Calls.Create(ctx, call); err != nil {
		return err
	}
	h.Registry.Join(s, CallRoom(call.ID))

	if err := h.Bus.Broadcast(ctx, UserRoom(in.TargetUserID), EventCallIncoming, CallIncomingEvent{
		CallID:      call.ID,
		ChatID:      call.ChatID,
		CallerID:    call.CallerID,
		CallType:    call.CallType,
		InitiatedAt: call.CreatedAt.UnixMilli(),
	}); err != nil {
		return err
	}
	s.Emit(EventCallInitiated, CallStatusEvent{CallID: call.ID, Status: call.Status})
	return nil
}

func (h *handlers) callAnswer(ctx context.Context, s *Session, in *CallRef) error {
	call, err := h.Calls.Get(ctx, in.CallID)
	if err != nil {
		return err
	}
	if call.CalleeID != s.UserID() {
		return forbidden("only the callee can answer")
	}
	call, err = h.Calls.Answer(ctx, in.CallID, h.Now())
	if err != nil {
		return err
	}
	h.Registry.Join(s, CallRoom(call.ID))
	return h.Bus.Broadcast(ctx, UserRoom(call.CallerID), EventCallAnswered,
		CallStatusEvent{CallID: call.ID, Status: call.Status}, AlsoTo(UserRoom(call.CalleeID)))
}

func (h *handlers) callReject(ctx context.Context, s *Session, in *CallRef) error {
	call, err := h.Calls.Get(ctx, in.CallID)
	if err != nil {
		return err
	}
	if call.CalleeID != s.UserID() {
		return forbidden("only the callee can reject")
	}
	if _, err := h.Calls.Remove(ctx, in.CallID); err != nil {
		return err
	}
	ev := CallStatusEvent{CallID: call.ID, Status: "rejected"}
	if err := h.Bus.Broadcast(ctx, UserRoom(call.CallerID), EventCallRejected, ev, AlsoTo(UserRoom(call.CalleeID))); err != nil {
		return err
	}
	h.Registry.Drain(CallRoom(call.ID))
	return nil
}

func (h *handlers) callEnd(ctx context.Context, s *Session, in *CallRef) error {
	call, err := h.Calls.Get(ctx, in.CallID)
	if err != nil {
		return err
	}
	if !call.IsParty(s.UserID()) {
		return forbidden("not a party to this call")
	}
	if call, err = h.Calls.Remove(ctx, in.CallID); err != nil {
		return err
	}
	ev := CallEndedEvent{CallID: call.ID, EndedBy: s.UserID(), Duration: call.Duration(h.Now())}
	// every device of both parties, including a callee that is still ringing
	if err := h.Bus.Broadcast(ctx, UserRoom(call.CallerID), EventCallEnded, ev, AlsoTo(UserRoom(call.CalleeID))); err != nil {
		return err
	}
	h.Registry.Drain(CallRoom(call.ID))
	return nil
}

func (h *handlers) callSignal(ctx context.Context, s *Session, in *CallSignalPayload) error {
	call, err := h.Calls.Get(ctx, in.CallID)
	if err != nil {
		return err
	}
	if !call.IsParty(s.UserID()) {
		return forbidden("not a party to this call")
	}
	target := CallRoom(call.ID)
	ev := CallSignalEvent{CallID: call.ID, FromUserID: s.UserID(), Signal: in.Signal}
	// signaling starts before the callee answers
	other := call.CalleeID
	if s.UserID() == call.CalleeID {
		other = call.CallerID
	}
	return h.Bus.Broadcast(ctx, target, EventCallWebRTCSignal, ev, AlsoTo(UserRoom(other)), Exclude(s.SessionID()))
}
