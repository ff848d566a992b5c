package realtime

import (
	"context"
	"slices"
	"sync"

	"github.com/kazak5205/mebelplace-sub009/internal/telemetry"
	"go.uber.org/zap"
)

// Member is a live session as seen by the registry.
type Member interface {
	SessionID() string
	UserID() int64
	// Send queues a frame without blocking. It returns false when the
	// session is gone or its queue is full.
	Send(frame []byte) bool
}

// Broadcaster fans events out to rooms.
type Broadcaster interface {
	Broadcast(ctx context.Context, room Room, event EventType, payload any, opts ...BroadcastOption) error
	BroadcastAll(ctx context.Context, event EventType, payload any) error
}

type broadcastOptions struct {
	exclude string
	also    []Room
}

type BroadcastOption func(*broadcastOptions)

// Exclude skips the given session, usually the sender.
func Exclude(sessionID string) BroadcastOption {
	return func(o *broadcastOptions) { o.exclude = sessionID }
}

// AlsoTo adds rooms to the target set. A session in several of them gets
// the frame once.
func AlsoTo(rooms ...Room) BroadcastOption {
	return func(o *broadcastOptions) { o.also = append(o.also, rooms...) }
}

type roomState struct {
	// dispatch serializes fan-out so members see broadcasts in issue order.
	dispatch sync.Mutex
	members  map[string]Member
}

// Registry tracks room membership for the sessions of this instance.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[Room]*roomState
	sessions map[string]Member
	joined   map[string]map[Room]struct{}

	allDispatch sync.Mutex
	log         *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		rooms:    make(map[Room]*roomState),
		sessions: make(map[string]Member),
		joined:   make(map[string]map[Room]struct{}),
		log:      log,
	}
}

// Attach makes the session reachable by BroadcastAll.
func (r *Registry) Attach(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[m.SessionID()] = m
}

// Join adds the session to room and reports whether it was not a member yet.
func (r *Registry) Join(m Member, room Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[room]
	if !ok {
		rs = &roomState{members: make(map[string]Member)}
		r.rooms[room] = rs
	}
	id := m.SessionID()
	if _, ok := rs.members[id]; ok {
		return false
	}
	rs.members[id] = m
	if r.joined[id] == nil {
		r.joined[id] = make(map[Room]struct{})
	}
	r.joined[id][room] = struct{}{}
	return true
}

// Leave removes the session from room and reports whether it was a member.
// An emptied room stays until the next lookup finds it empty.
func (r *Registry) Leave(sessionID string, room Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(sessionID, room)
}

func (r *Registry) leaveLocked(sessionID string, room Room) bool {
	rs, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, ok := rs.members[sessionID]; !ok {
		return false
	}
	delete(rs.members, sessionID)
	if set := r.joined[sessionID]; set != nil {
		delete(set, room)
		if len(set) == 0 {
			delete(r.joined, sessionID)
		}
	}
	return true
}

// LeaveAll drops every membership of the session and detaches it.
func (r *Registry) LeaveAll(sessionID string) []Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []Room
	for room := range r.joined[sessionID] {
		left = append(left, room)
	}
	for _, room := range left {
		r.leaveLocked(sessionID, room)
	}
	delete(r.sessions, sessionID)
	slices.Sort(left)
	return left
}

// Drain removes every member of room and returns them.
func (r *Registry) Drain(room Room) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	rs, ok := r.rooms[room]
	if !ok {
		return nil
	}
	out := make([]Member, 0, len(rs.members))
	for id, m := range rs.members {
		out = append(out, m)
		r.leaveLocked(id, room)
	}
	delete(r.rooms, room)
	return out
}

// lookup returns the room state, or nil when the room has no members.
// An empty room found here is removed.
func (r *Registry) lookup(room Room) *roomState {
	r.mu.RLock()
	rs := r.rooms[room]
	empty := rs != nil && len(rs.members) == 0
	r.mu.RUnlock()
	if !empty {
		return rs
	}

	r.mu.Lock()
	if cur, ok := r.rooms[room]; ok && len(cur.members) == 0 {
		delete(r.rooms, room)
	}
	r.mu.Unlock()
	return nil
}

func (r *Registry) Members(room Room) []Member {
	rs := r.lookup(room)
	if rs == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(rs.members))
	for _, m := range rs.members {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Member) int {
		switch {
		case a.SessionID() < b.SessionID():
			return -1
		case a.SessionID() > b.SessionID():
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) Rooms(sessionID string) []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Room, 0, len(r.joined[sessionID]))
	for room := range r.joined[sessionID] {
		out = append(out, room)
	}
	slices.Sort(out)
	return out
}

// RoomCount is the number of rooms currently held, empty ones included.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) Broadcast(ctx context.Context, room Room, event EventType, payload any, opts ...BroadcastOption) error {
	var o broadcastOptions
	for _, opt := range opts {
		opt(&o)
	}
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	r.Deliver(ctx, append([]Room{room}, o.also...), frame, o.exclude)
	return nil
}

func (r *Registry) BroadcastAll(ctx context.Context, event EventType, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	r.DeliverAll(ctx, frame)
	return nil
}

// Deliver sends an encoded frame to the local members of rooms and returns
// the number of sessions that accepted it.
func (r *Registry) Deliver(ctx context.Context, rooms []Room, frame []byte, exclude string) int {
	rooms = slices.Clone(rooms)
	slices.Sort(rooms)
	rooms = slices.Compact(rooms)

	// dispatch locks are taken in room-name order
	var states []*roomState
	for _, room := range rooms {
		if rs := r.lookup(room); rs != nil {
			states = append(states, rs)
		}
	}
	if len(states) == 0 {
		return 0
	}
	for _, rs := range states {
		rs.dispatch.Lock()
	}
	defer func() {
		for _, rs := range states {
			rs.dispatch.Unlock()
		}
	}()

	seen := make(map[string]struct{})
	var targets []Member
	r.mu.RLock()
	for _, rs := range states {
		for id, m := range rs.members {
			if id == exclude {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			targets = append(targets, m)
		}
	}
	r.mu.RUnlock()

	return r.send(ctx, string(rooms[0].Kind()), targets, frame)
}

// DeliverAll sends an encoded frame to every attached session.
func (r *Registry) DeliverAll(ctx context.Context, frame []byte) int {
	r.allDispatch.Lock()
	defer r.allDispatch.Unlock()

	r.mu.RLock()
	targets := make([]Member, 0, len(r.sessions))
	for _, m := range r.sessions {
		targets = append(targets, m)
	}
	r.mu.RUnlock()

	return r.send(ctx, "all", targets, frame)
}

func (r *Registry) send(ctx context.Context, kind string, targets []Member, frame []byte) int {
	delivered, dropped := 0, 0
	for _, m := range targets {
		if m.Send(frame) {
			delivered++
			continue
		}
		dropped++
		r.log.Debug("skipping unreachable session",
			zap.String("session_id", m.SessionID()),
			zap.Int64("user_id", m.UserID()))
	}
	telemetry.RecordBroadcast(ctx, kind, dropped)
	return delivered
}
