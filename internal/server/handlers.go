// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, room inspection, and the built-in test page.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebSocketHandler upgrades the request to a WebSocket, creates a new Client
// and hands it to the hub, which launches the pump goroutines.
func (s *Server) WebSocketHandler(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Info("WebSocket upgrade failed", zap.String("addr", c.Request.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, s.hub, c.Request.RemoteAddr)
	if !s.hub.Register(client) {
		s.logger.Warn("hub is shutting down; refusing connection", zap.String("addr", client.addr))
		_ = conn.Close()
	}
}

// HealthHandler reports liveness together with registry totals.
func (s *Server) HealthHandler(c *gin.Context) {
	stats := s.coordinator.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"rooms":       stats.Rooms,
		"members":     stats.Members,
		"connections": s.hub.ConnectionCount(),
	})
}

// ListRoomsHandler returns every room with its member count.
func (s *Server) ListRoomsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.coordinator.ListRooms()})
}

// GetRoomHandler returns one room's members.
func (s *Server) GetRoomHandler(c *gin.Context) {
	info, ok := s.coordinator.Room(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

// TestPageHandler serves an HTML page for driving the room protocol by hand.
func TestPageHandler(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(testPageHTML))
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>roomchat WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { width: 200px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
            margin-right: 5px;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>roomchat WebSocket Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="userName" placeholder="Your name">
        <input type="text" id="room" placeholder="Room name or id">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <button onclick="emit('create-room', {roomName: val('room'), userId: userId, userName: val('userName')})">Create</button>
        <button onclick="emit('join-room', {roomId: val('room'), userId: userId, userName: val('userName')})">Join</button>
        <button onclick="emit('leave-room', {roomId: val('room'), userId: userId, userName: val('userName')})">Leave</button>
        <button onclick="emit('get-rooms', {})">Rooms</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        const userId = 'user-' + Math.random().toString(36).slice(2, 10);
        const eventsDiv = document.getElementById('events');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function val(id) { return document.getElementById(id).value.trim(); }

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.color = color || 'gray';
            line.textContent = text;
            eventsDiv.appendChild(line);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected as ' + userId : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function emit(event, data) {
            if (!ws || ws.readyState !== WebSocket.OPEN) {
                addLine('not connected');
                return;
            }
            ws.send(JSON.stringify({event: event, data: data}));
            addLine('> ' + event + ' ' + JSON.stringify(data), 'blue');
        }

        function sendMessage() {
            const message = val('messageInput');
            if (!message) return;
            emit('send-message', {roomId: val('room'), message: message, userId: userId, userName: val('userName')});
            document.getElementById('messageInput').value = '';
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = function() { updateStatus(true); };
            ws.onmessage = function(event) { addLine('< ' + event.data, 'green'); };
            ws.onclose = function() { addLine('connection closed'); updateStatus(false); ws = null; };
            ws.onerror = function() { addLine('connection error'); };
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
