package protocol

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequests(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Request
	}{
		{
			name: "create-room",
			raw:  `{"event":"create-room","data":{"roomName":"Study Group","userId":"u1","userName":"Alice"}}`,
			want: CreateRoom{RoomName: "Study Group", UserID: "u1", UserName: "Alice"},
		},
		{
			name: "join-room",
			raw:  `{"event":"join-room","data":{"roomId":"study-group","userId":"u1","userName":"Alice"}}`,
			want: JoinRoom{RoomID: "study-group", UserID: "u1", UserName: "Alice"},
		},
		{
			name: "send-message with reply",
			raw:  `{"event":"send-message","data":{"roomId":"r","message":"hi","userId":"u1","userName":"Alice","replyTo":"yo","replyToUser":"Bob"}}`,
			want: SendMessage{RoomID: "r", Message: "hi", UserID: "u1", UserName: "Alice", ReplyTo: "yo", ReplyToUser: "Bob"},
		},
		{
			name: "leave-room",
			raw:  `{"event":"leave-room","data":{"roomId":"r","userId":"u1","userName":"Alice"}}`,
			want: LeaveRoom{RoomID: "r", UserID: "u1", UserName: "Alice"},
		},
		{
			name: "get-rooms without data",
			raw:  `{"event":"get-rooms"}`,
			want: GetRooms{},
		},
		{
			name: "numeric user id is coerced",
			raw:  `{"event":"join-room","data":{"roomId":"r","userId":42,"userName":"Alice"}}`,
			want: JoinRoom{RoomID: "r", UserID: "42", UserName: "Alice"},
		},
		{
			name: "missing fields default to empty",
			raw:  `{"event":"join-room","data":{"roomId":"r"}}`,
			want: JoinRoom{RoomID: "r"},
		},
		{
			name: "null data",
			raw:  `{"event":"leave-room","data":null}`,
			want: LeaveRoom{},
		},
		{
			name: "unknown fields are ignored",
			raw:  `{"event":"create-room","data":{"roomName":"x","color":"red"}}`,
			want: CreateRoom{RoomName: "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.RequestEvent(), got.RequestEvent())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"not json", `hello`, ErrMalformed},
		{"missing event", `{"data":{}}`, ErrMalformed},
		{"unknown event", `{"event":"explode","data":{}}`, ErrUnknownEvent},
		{"data is a string", `{"event":"join-room","data":"study-group"}`, ErrMalformed},
		{"field is an object", `{"event":"join-room","data":{"roomId":{"nested":true}}}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEncode(t *testing.T) {
	raw, err := Encode(UserJoined{UserID: "u2", UserName: "Bob", TotalUsers: 2, Message: "Bob joined the room"})
	require.NoError(t, err)

	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, EventUserJoined, env.Event)
	assert.Equal(t, "Bob", env.Data["userName"])
	assert.EqualValues(t, 2, env.Data["totalUsers"])
}

func TestEncodeOmitsEmptyReply(t *testing.T) {
	raw, err := Encode(ReceiveMessage{UserID: "u1", UserName: "Alice", Message: "hi", Timestamp: 1})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "replyTo")

	raw, err = Encode(ReceiveMessage{UserID: "u1", Message: "hi", ReplyTo: "earlier", ReplyToUser: "Bob"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"replyTo":"earlier"`)
	assert.Contains(t, string(raw), `"replyToUser":"Bob"`)
}

func TestEncodeEmptyUserListIsArray(t *testing.T) {
	raw, err := Encode(RoomJoined{RoomID: "r", Users: []User{}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"users":[]`)
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}
