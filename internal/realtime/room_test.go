package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseRoom(t *testing.T) {
	const callID = "6f1c2a4e-3b7d-4c1a-9e2f-0a1b2c3d4e5f"

	tests := []struct {
		name    string
		in      string
		want    ParsedRoom
		wantErr bool
	}{
		{name: "canonical", in: "video:7", want: ParsedRoom{Room: "video:7", Kind: RoomVideo, ID: 7}},
		{name: "leading zeros", in: "video:007", want: ParsedRoom{Room: "video:7", Kind: RoomVideo, ID: 7}},
		{name: "plus sign", in: "chat:+5", want: ParsedRoom{Room: "chat:5", Kind: RoomChat, ID: 5}},
		{name: "order", in: "order:12", want: ParsedRoom{Room: "order:12", Kind: RoomOrder, ID: 12}},
		{name: "call", in: "call:" + callID, want: ParsedRoom{Room: Room("call:" + callID), Kind: RoomCall, CallID: callID}},
		{name: "call upper case", in: "call:6F1C2A4E-3B7D-4C1A-9E2F-0A1B2C3D4E5F", want: ParsedRoom{Room: Room("call:" + callID), Kind: RoomCall, CallID: callID}},
		{name: "call braces", in: "call:{" + callID + "}", want: ParsedRoom{Room: Room("call:" + callID), Kind: RoomCall, CallID: callID}},
		{name: "no separator", in: "video7", wantErr: true},
		{name: "empty id", in: "video:", wantErr: true},
		{name: "zero id", in: "story:0", wantErr: true},
		{name: "negative id", in: "story:-3", wantErr: true},
		{name: "not a number", in: "chat:abc", wantErr: true},
		{name: "bad call id", in: "call:42", wantErr: true},
		{name: "unknown kind", in: "lobby:1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRoom(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRoom_AliasesShareMembership(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	s := testSession("s1", 1, "client")

	for _, name := range []string{"video:7", "video:007", "video:+7"} {
		p, err := ParseRoom(name)
		require.NoError(t, err)
		reg.Join(s, p.Room)
	}
	assert.Equal(t, []Room{"video:7"}, reg.Rooms(s.SessionID()))
}
