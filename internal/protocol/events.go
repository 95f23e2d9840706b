// Package protocol defines the closed set of events exchanged with room
// clients and the JSON envelope that carries them over the socket.
//
// Every frame is a single envelope:
//
//	{"event": "join-room", "data": {"roomId": "study-group", ...}}
package protocol

// Client to server event names.
const (
	EventCreateRoom  = "create-room"
	EventJoinRoom    = "join-room"
	EventSendMessage = "send-message"
	EventLeaveRoom   = "leave-room"
	EventGetRooms    = "get-rooms"
)

// Server to client event names.
const (
	EventRoomCreated    = "room-created"
	EventRoomJoined     = "room-joined"
	EventUserJoined     = "user-joined"
	EventReceiveMessage = "receive-message"
	EventUserLeft       = "user-left"
	EventRoomsList      = "rooms-list"
	EventError          = "error"
)

// Request is an inbound client event. The set of implementations is closed.
type Request interface {
	RequestEvent() string
}

// CreateRoom asks the server to ensure a room exists.
type CreateRoom struct {
	RoomName string `json:"roomName"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// JoinRoom binds the connection to a user identity inside a room.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// SendMessage relays a chat message to the other members of a room.
type SendMessage struct {
	RoomID      string `json:"roomId"`
	Message     string `json:"message"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	ReplyTo     string `json:"replyTo"`
	ReplyToUser string `json:"replyToUser"`
}

// LeaveRoom removes the connection from a room.
type LeaveRoom struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// GetRooms asks for the current room list.
type GetRooms struct{}

func (CreateRoom) RequestEvent() string  { return EventCreateRoom }
func (JoinRoom) RequestEvent() string    { return EventJoinRoom }
func (SendMessage) RequestEvent() string { return EventSendMessage }
func (LeaveRoom) RequestEvent() string   { return EventLeaveRoom }
func (GetRooms) RequestEvent() string    { return EventGetRooms }

// Outbound is a server event. The set of implementations is closed.
type Outbound interface {
	EventName() string
}

// User is a member identity as seen by other members.
type User struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// RoomSummary is one entry of the room list.
type RoomSummary struct {
	RoomID     string `json:"roomId"`
	TotalUsers int    `json:"totalUsers"`
}

// RoomCreated confirms a create-room request.
type RoomCreated struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// RoomJoined is the joiner's snapshot of the other members.
type RoomJoined struct {
	RoomID     string `json:"roomId"`
	Users      []User `json:"users"`
	TotalUsers int    `json:"totalUsers"`
}

// UserJoined tells existing members that someone joined.
type UserJoined struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	TotalUsers int    `json:"totalUsers"`
	Message    string `json:"message"`
}

// ReceiveMessage is the relay envelope. Timestamp is in Unix milliseconds.
type ReceiveMessage struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	Message     string `json:"message"`
	Timestamp   int64  `json:"timestamp"`
	ReplyTo     string `json:"replyTo,omitempty"`
	ReplyToUser string `json:"replyToUser,omitempty"`
}

// UserLeft tells the remaining members that someone left or dropped.
type UserLeft struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	TotalUsers int    `json:"totalUsers"`
	Message    string `json:"message"`
}

// RoomsList answers get-rooms.
type RoomsList struct {
	Rooms []RoomSummary `json:"rooms"`
}

// Error reports a failed request to its sender.
type Error struct {
	Message string `json:"message"`
}

func (RoomCreated) EventName() string    { return EventRoomCreated }
func (RoomJoined) EventName() string     { return EventRoomJoined }
func (UserJoined) EventName() string     { return EventUserJoined }
func (ReceiveMessage) EventName() string { return EventReceiveMessage }
func (UserLeft) EventName() string       { return EventUserLeft }
func (RoomsList) EventName() string      { return EventRoomsList }
func (Error) EventName() string          { return EventError }
