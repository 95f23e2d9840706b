package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// attach registers a socketless client directly, bypassing the pumps.
func attach(h *Hub) *Client {
	c := NewClient(nil, h, "test")
	h.addClient(c)
	return c
}

// nextFrame returns the frame already queued for c.
func nextFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var f frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	default:
		t.Fatalf("no frame queued for %s", c.id)
		return frame{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected frame for %s: %s", c.id, raw)
		}
	default:
	}
}

type countingObserver struct {
	opened, closed atomic.Int32
}

func (o *countingObserver) ConnectionOpened() { o.opened.Add(1) }
func (o *countingObserver) ConnectionClosed() { o.closed.Add(1) }

// TestNewHub tests the hub creation function.
func TestNewHub(t *testing.T) {
	hub := NewHub(nil)
	require.NotNil(t, hub)
	assert.Zero(t, hub.ConnectionCount())
	assert.Equal(t, defaultSendBufferSize, hub.cfg.SendBufferSize)
}

// TestNewClient checks clients take limits from the hub and get unique ids.
func TestNewClient(t *testing.T) {
	cfg := NewConfig()
	cfg.SendBufferSize = 4
	hub := NewHub(cfg)

	a := NewClient(nil, hub, "127.0.0.1:1")
	b := NewClient(nil, hub, "127.0.0.1:2")

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 4, cap(a.send))
	assert.Equal(t, cfg.MaxMessageSize, a.maxMessageSize)
	assert.Nil(t, a.rateLimiter, "rate limiting is off by default")
	assert.True(t, a.checkRateLimit())
}

func TestNewClientWithRateLimit(t *testing.T) {
	cfg := NewConfig()
	cfg.RateLimit = RateLimitConfig{Burst: 2, RefillInterval: time.Hour}
	c := NewClient(nil, NewHub(cfg), "127.0.0.1:1")

	require.NotNil(t, c.rateLimiter)
	assert.True(t, c.checkRateLimit())
	assert.True(t, c.checkRateLimit())
	assert.False(t, c.checkRateLimit())
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub(nil)
	a, b, c := attach(hub), attach(hub), attach(hub)
	outsider := attach(hub)

	for _, cl := range []*Client{a, b, c} {
		hub.AddToGroup(cl.id, "lobby")
	}
	assert.Equal(t, 3, hub.GroupSize("lobby"))

	hub.Broadcast("lobby", protocol.UserJoined{UserID: "u", UserName: "U", TotalUsers: 3, Message: "U joined the room"}, a.id)

	assertNoFrame(t, a)
	for _, cl := range []*Client{b, c} {
		f := nextFrame(t, cl)
		assert.Equal(t, protocol.EventUserJoined, f.Event)
		assert.JSONEq(t, `{"userId":"u","userName":"U","totalUsers":3,"message":"U joined the room"}`, string(f.Data))
	}
	assertNoFrame(t, outsider)
}

func TestHubBroadcastToUnknownGroupIsNoop(t *testing.T) {
	hub := NewHub(nil)
	a := attach(hub)

	hub.Broadcast("nobody-here", protocol.RoomsList{}, "")
	assertNoFrame(t, a)
}

func TestHubSend(t *testing.T) {
	hub := NewHub(nil)
	a, b := attach(hub), attach(hub)

	hub.Send(a.id, protocol.Error{Message: "Room does not exist!"})
	f := nextFrame(t, a)
	assert.Equal(t, protocol.EventError, f.Event)
	assertNoFrame(t, b)

	hub.Send("missing", protocol.Error{Message: "x"})
}

func TestHubRemoveFromGroup(t *testing.T) {
	hub := NewHub(nil)
	a, b := attach(hub), attach(hub)
	hub.AddToGroup(a.id, "g")
	hub.AddToGroup(b.id, "g")

	hub.RemoveFromGroup(a.id, "g")
	hub.Broadcast("g", protocol.RoomsList{}, "")

	assertNoFrame(t, a)
	nextFrame(t, b)

	hub.RemoveFromGroup(b.id, "g")
	assert.Zero(t, hub.GroupSize("g"))
}

func TestHubAddToGroupIgnoresUnknownConnection(t *testing.T) {
	hub := NewHub(nil)
	hub.AddToGroup("ghost", "g")
	assert.Zero(t, hub.GroupSize("g"))
}

func TestHubEvictsSlowClient(t *testing.T) {
	cfg := NewConfig()
	cfg.SendBufferSize = 1
	hub := NewHub(cfg)
	slow, fast := attach(hub), attach(hub)
	hub.AddToGroup(slow.id, "g")
	hub.AddToGroup(fast.id, "g")

	hub.Broadcast("g", protocol.RoomsList{}, "")
	nextFrame(t, fast)
	hub.Broadcast("g", protocol.RoomsList{}, "")

	// slow now holds the first frame and a closed channel.
	nextFrame(t, slow)
	_, ok := <-slow.send
	assert.False(t, ok, "slow client should be evicted")
	nextFrame(t, fast)

	// Eviction leaves the client registered until its pumps unregister it.
	assert.Equal(t, 2, hub.ConnectionCount())
	hub.Broadcast("g", protocol.RoomsList{}, "")
	nextFrame(t, fast)
}

func TestHubRemoveClient(t *testing.T) {
	hub := NewHub(nil)
	a := attach(hub)
	hub.AddToGroup(a.id, "g1")
	hub.AddToGroup(a.id, "g2")

	count, ok := hub.removeClient(a)
	assert.True(t, ok)
	assert.Zero(t, count)
	assert.Zero(t, hub.GroupSize("g1"))
	assert.Zero(t, hub.GroupSize("g2"))
	_, open := <-a.send
	assert.False(t, open)

	_, ok = hub.removeClient(a)
	assert.False(t, ok, "second removal must be a no-op")
}

func TestHubUnregisterFiresDisconnectOnce(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(nil, WithConnectionObserver(obs))

	var mu sync.Mutex
	var disconnected []string
	hub.SetDisconnectHandler(func(connID string) {
		mu.Lock()
		defer mu.Unlock()
		disconnected = append(disconnected, connID)
	})

	go hub.Run()
	a := attach(hub)
	hub.AddToGroup(a.id, "g")

	hub.unregisterClient(a)
	hub.unregisterClient(a)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(disconnected) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{a.id}, disconnected)
	assert.EqualValues(t, 1, obs.closed.Load())
	assert.Zero(t, hub.GroupSize("g"))

	require.NoError(t, hub.Shutdown(time.Second))
}

func TestHubDisconnectHandlerPanicDoesNotStopRun(t *testing.T) {
	hub := NewHub(nil)
	var calls atomic.Int32
	hub.SetDisconnectHandler(func(string) {
		calls.Add(1)
		panic("boom")
	})

	go hub.Run()
	a, b := attach(hub), attach(hub)
	hub.unregisterClient(a)
	hub.unregisterClient(b)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, hub.Shutdown(time.Second))
}

// TestHubShutdownDisconnectsClients checks clients left at shutdown still
// get their disconnect cleanup.
func TestHubShutdownDisconnectsClients(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(nil, WithConnectionObserver(obs))
	var calls atomic.Int32
	hub.SetDisconnectHandler(func(string) { calls.Add(1) })

	go hub.Run()
	a, b := attach(hub), attach(hub)
	hub.AddToGroup(a.id, "g")

	require.NoError(t, hub.Shutdown(time.Second))

	assert.EqualValues(t, 2, calls.Load())
	assert.EqualValues(t, 2, obs.closed.Load())
	assert.Zero(t, hub.ConnectionCount())
	assert.Zero(t, hub.GroupSize("g"))
	for _, cl := range []*Client{a, b} {
		_, open := <-cl.send
		assert.False(t, open)
	}
	assert.False(t, hub.Register(attach(NewHub(nil))), "register after shutdown must not block")
}

func TestHubRegisterIgnoresNil(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	assert.True(t, hub.Register(nil))
	assert.Zero(t, hub.ConnectionCount())
	require.NoError(t, hub.Shutdown(time.Second))
}

func TestHubConcurrentGroupOperations(t *testing.T) {
	hub := NewHub(nil)
	clients := make([]*Client, 20)
	for i := range clients {
		clients[i] = attach(hub)
	}

	var wg sync.WaitGroup
	for _, cl := range clients {
		wg.Add(1)
		go func(cl *Client) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				hub.AddToGroup(cl.id, "busy")
				hub.Broadcast("busy", protocol.RoomsList{}, cl.id)
				hub.RemoveFromGroup(cl.id, "busy")
			}
		}(cl)
	}
	wg.Wait()
	assert.Zero(t, hub.GroupSize("busy"))
}
