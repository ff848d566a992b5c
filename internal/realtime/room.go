package realtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Room is a named broadcast group, "<kind>:<id>".
type Room string

type RoomKind string

const (
	RoomUser  RoomKind = "user"
	RoomChat  RoomKind = "chat"
	RoomOrder RoomKind = "order"
	RoomVideo RoomKind = "video"
	RoomStory RoomKind = "story"
	RoomCall  RoomKind = "call"
)

func roomOf(kind RoomKind, id int64) Room {
	return Room(string(kind) + ":" + strconv.FormatInt(id, 10))
}

func UserRoom(id int64) Room  { return roomOf(RoomUser, id) }
func ChatRoom(id int64) Room  { return roomOf(RoomChat, id) }
func OrderRoom(id int64) Room { return roomOf(RoomOrder, id) }
func VideoRoom(id int64) Room { return roomOf(RoomVideo, id) }
func StoryRoom(id int64) Room { return roomOf(RoomStory, id) }
func CallRoom(id string) Room { return Room(string(RoomCall) + ":" + id) }

// Kind returns the prefix of the room name.
func (r Room) Kind() RoomKind {
	kind, _, _ := strings.Cut(string(r), ":")
	return RoomKind(kind)
}

// ParsedRoom is a client-supplied room name checked for shape.
type ParsedRoom struct {
	Room   Room
	Kind   RoomKind
	ID     int64
	CallID string
}

// ParseRoom validates a room name sent by a client. The returned Room is
// canonical, so "video:007" and "video:7" name the same room.
func ParseRoom(s string) (ParsedRoom, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return ParsedRoom{}, fmt.Errorf("malformed room %q", s)
	}
	p := ParsedRoom{Kind: RoomKind(kind)}
	switch p.Kind {
	case RoomUser, RoomChat, RoomOrder, RoomVideo, RoomStory:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || n <= 0 {
			return ParsedRoom{}, fmt.Errorf("malformed room id %q", id)
		}
		p.ID = n
		p.Room = roomOf(p.Kind, n)
	case RoomCall:
		u, err := uuid.Parse(id)
		if err != nil {
			return ParsedRoom{}, fmt.Errorf("malformed call id %q", id)
		}
		p.CallID = u.String()
		p.Room = CallRoom(p.CallID)
	default:
		return ParsedRoom{}, fmt.Errorf("unknown room kind %q", kind)
	}
	return p, nil
}
