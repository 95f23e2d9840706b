package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/test/testhelpers"
)

// TestStudyGroupConversation drives two browser sessions through create,
// join, relay, disconnect and leave.
func TestStudyGroupConversation(t *testing.T) {
	srv, ts := testhelpers.StartServer(t, nil)
	wsURL := testhelpers.WebSocketURL(ts.URL)

	alice := testhelpers.MustConnect(t, wsURL)
	bob := testhelpers.MustConnect(t, wsURL)

	testhelpers.SendEvent(t, alice, protocol.EventCreateRoom, map[string]string{
		"roomName": "Study Group", "userId": "u1", "userName": "Alice",
	})
	var created protocol.RoomCreated
	testhelpers.ExpectEvent(t, alice, protocol.EventRoomCreated).Decode(t, &created)
	assert.Equal(t, "study-group", created.RoomID)
	assert.Equal(t, "Room 'Study Group' created successfully!", created.Message)

	testhelpers.SendEvent(t, alice, protocol.EventJoinRoom, map[string]string{
		"roomId": "study-group", "userId": "u1", "userName": "Alice",
	})
	var aliceJoined protocol.RoomJoined
	testhelpers.ExpectEvent(t, alice, protocol.EventRoomJoined).Decode(t, &aliceJoined)
	assert.Empty(t, aliceJoined.Users)
	assert.Zero(t, aliceJoined.TotalUsers)

	testhelpers.SendEvent(t, bob, protocol.EventJoinRoom, map[string]string{
		"roomId": "study-group", "userId": "u2", "userName": "Bob",
	})
	var bobJoined protocol.RoomJoined
	testhelpers.ExpectEvent(t, bob, protocol.EventRoomJoined).Decode(t, &bobJoined)
	assert.Equal(t, []protocol.User{{UserID: "u1", UserName: "Alice"}}, bobJoined.Users)
	assert.Equal(t, 1, bobJoined.TotalUsers)

	var userJoined protocol.UserJoined
	testhelpers.ExpectEvent(t, alice, protocol.EventUserJoined).Decode(t, &userJoined)
	assert.Equal(t, protocol.UserJoined{UserID: "u2", UserName: "Bob", TotalUsers: 2, Message: "Bob joined the room"}, userJoined)

	before := time.Now().UnixMilli()
	testhelpers.SendEvent(t, alice, protocol.EventSendMessage, map[string]string{
		"roomId": "study-group", "message": "hi", "userId": "u1", "userName": "Alice",
	})
	var relayed protocol.ReceiveMessage
	testhelpers.ExpectEvent(t, bob, protocol.EventReceiveMessage).Decode(t, &relayed)
	assert.Equal(t, "u1", relayed.UserID)
	assert.Equal(t, "Alice", relayed.UserName)
	assert.Equal(t, "hi", relayed.Message)
	assert.GreaterOrEqual(t, relayed.Timestamp, before)
	assert.Empty(t, relayed.ReplyTo)

	testhelpers.SendEvent(t, bob, protocol.EventSendMessage, map[string]string{
		"roomId": "study-group", "message": "hey", "userId": "u2", "userName": "Bob",
		"replyTo": "hi", "replyToUser": "Alice",
	})
	var reply protocol.ReceiveMessage
	// Alice never sees her own "hi"; the next frame is Bob's reply.
	testhelpers.ExpectEvent(t, alice, protocol.EventReceiveMessage).Decode(t, &reply)
	assert.Equal(t, "hey", reply.Message)
	assert.Equal(t, "hi", reply.ReplyTo)
	assert.Equal(t, "Alice", reply.ReplyToUser)

	require.NoError(t, testhelpers.CloseWebSocket(bob))
	var left protocol.UserLeft
	testhelpers.ExpectEvent(t, alice, protocol.EventUserLeft).Decode(t, &left)
	assert.Equal(t, protocol.UserLeft{UserID: "u2", UserName: "Bob", TotalUsers: 1, Message: "Bob disconnected"}, left)

	testhelpers.SendEvent(t, alice, protocol.EventLeaveRoom, map[string]string{
		"roomId": "study-group", "userId": "u1", "userName": "Alice",
	})
	testhelpers.Eventually(t, func() bool {
		_, ok := srv.Coordinator().Room("study-group")
		return !ok
	}, "room should be deleted once empty")

	var missing map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/rooms/study-group", &missing))
}

func TestJoinUnknownRoomReportsError(t *testing.T) {
	srv, ts := testhelpers.StartServer(t, nil)
	conn := testhelpers.MustConnect(t, testhelpers.WebSocketURL(ts.URL))

	testhelpers.SendEvent(t, conn, protocol.EventJoinRoom, map[string]string{
		"roomId": "ghost-town", "userId": "u1", "userName": "Ana",
	})
	var errEv protocol.Error
	testhelpers.ExpectEvent(t, conn, protocol.EventError).Decode(t, &errEv)
	assert.Equal(t, "Room does not exist!", errEv.Message)

	testhelpers.SendEvent(t, conn, protocol.EventSendMessage, map[string]string{
		"roomId": "ghost-town", "message": "anyone?", "userId": "u1", "userName": "Ana",
	})
	testhelpers.ExpectEvent(t, conn, protocol.EventError).Decode(t, &errEv)
	assert.Equal(t, "Room does not exist!", errEv.Message)

	// The connection stays usable after errors.
	testhelpers.SendEvent(t, conn, protocol.EventGetRooms, nil)
	var list protocol.RoomsList
	testhelpers.ExpectEvent(t, conn, protocol.EventRoomsList).Decode(t, &list)
	assert.Empty(t, list.Rooms)
	assert.Zero(t, srv.Coordinator().Stats().Rooms)
}

func TestMalformedFramesAreAnswered(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)
	conn := testhelpers.MustConnect(t, testhelpers.WebSocketURL(ts.URL))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var errEv protocol.Error
	testhelpers.ExpectEvent(t, conn, protocol.EventError).Decode(t, &errEv)
	assert.Equal(t, "Malformed event", errEv.Message)

	testhelpers.SendEvent(t, conn, "dance", map[string]string{})
	testhelpers.ExpectEvent(t, conn, protocol.EventError).Decode(t, &errEv)
	assert.Equal(t, "Unknown event", errEv.Message)

	testhelpers.SendEvent(t, conn, protocol.EventCreateRoom, map[string]string{"roomName": "Still Here"})
	testhelpers.ExpectEvent(t, conn, protocol.EventRoomCreated)
}

func TestNumericIdentityFieldsAreAccepted(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)
	wsURL := testhelpers.WebSocketURL(ts.URL)
	a := testhelpers.MustConnect(t, wsURL)
	b := testhelpers.MustConnect(t, wsURL)

	testhelpers.SendEvent(t, a, protocol.EventCreateRoom, map[string]interface{}{"roomName": "Numbers"})
	testhelpers.ExpectEvent(t, a, protocol.EventRoomCreated)
	testhelpers.SendEvent(t, a, protocol.EventJoinRoom, map[string]interface{}{"roomId": "numbers", "userId": 42, "userName": "Deep"})
	testhelpers.ExpectEvent(t, a, protocol.EventRoomJoined)
	testhelpers.SendEvent(t, b, protocol.EventJoinRoom, map[string]interface{}{"roomId": "numbers", "userId": 7, "userName": "Lucky"})

	var joined protocol.RoomJoined
	testhelpers.ExpectEvent(t, b, protocol.EventRoomJoined).Decode(t, &joined)
	assert.Equal(t, []protocol.User{{UserID: "42", UserName: "Deep"}}, joined.Users)
}

func TestSameUserInTwoTabsIsHiddenFromSnapshot(t *testing.T) {
	_, ts := testhelpers.StartServer(t, nil)
	wsURL := testhelpers.WebSocketURL(ts.URL)
	tab1 := testhelpers.MustConnect(t, wsURL)
	tab2 := testhelpers.MustConnect(t, wsURL)

	testhelpers.SendEvent(t, tab1, protocol.EventCreateRoom, map[string]string{"roomName": "Tabs"})
	testhelpers.ExpectEvent(t, tab1, protocol.EventRoomCreated)
	testhelpers.SendEvent(t, tab1, protocol.EventJoinRoom, map[string]string{"roomId": "tabs", "userId": "same", "userName": "Sam"})
	testhelpers.ExpectEvent(t, tab1, protocol.EventRoomJoined)

	testhelpers.SendEvent(t, tab2, protocol.EventJoinRoom, map[string]string{"roomId": "tabs", "userId": "same", "userName": "Sam"})
	var joined protocol.RoomJoined
	testhelpers.ExpectEvent(t, tab2, protocol.EventRoomJoined).Decode(t, &joined)
	assert.Empty(t, joined.Users)
	assert.Zero(t, joined.TotalUsers)

	testhelpers.ExpectEvent(t, tab1, protocol.EventUserJoined)
}
