// Package server coordinates client registration, room-scoped fan-out, and
// connection cleanup for the roomchat WebSocket system via the Hub type.
package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/protocol"
)

// Hub manages all WebSocket client connections and the named groups used for
// room broadcasts. It implements room.Groups. Group sends never block: a
// client whose buffer is full is evicted.
type Hub struct {
	clients    map[string]*Client
	groups     map[string]map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	cfg          Config
	logger       *zap.Logger
	handler      FrameHandler
	onDisconnect func(connID string)
	observer     ConnectionObserver
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub's logger.
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) { h.logger = logging.OrNop(l) }
}

// WithConnectionObserver reports socket opens and closes to o.
func WithConnectionObserver(o ConnectionObserver) HubOption {
	return func(h *Hub) { h.observer = o }
}

// NewHub creates and initializes a new Hub instance. Client limits come from
// cfg; nil means defaults.
func NewHub(cfg *Config, opts ...HubOption) *Hub {
	base := defaultConfig()
	if cfg != nil {
		base = *cfg
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		cfg:        sanitizeConfig(base),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetFrameHandler installs the consumer of inbound frames. Call before Run.
func (h *Hub) SetFrameHandler(handler FrameHandler) {
	h.handler = handler
}

// SetDisconnectHandler installs the callback fired once per connection after
// it is unregistered. Call before Run.
func (h *Hub) SetDisconnectHandler(fn func(connID string)) {
	h.onDisconnect = fn
}

// Register hands a client to the run loop. It returns false if the hub is
// shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. This method should be called in a separate goroutine
// as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}

			clientCount := h.addClient(client)
			h.logger.Info("client registered",
				zap.String("conn", client.id),
				zap.String("addr", client.addr),
				zap.Int("total_clients", clientCount))
			if h.observer != nil {
				h.observer.ConnectionOpened()
			}

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if client == nil {
				continue
			}
			if clientCount, ok := h.removeClient(client); ok {
				h.logger.Info("client unregistered",
					zap.String("conn", client.id),
					zap.String("addr", client.addr),
					zap.Int("total_clients", clientCount))
				if h.observer != nil {
					h.observer.ConnectionClosed()
				}
				h.disconnected(client.id)
			}
		}
	}
}

// disconnected runs the disconnect callback, shielding the run loop from it.
func (h *Hub) disconnected(connID string) {
	if h.onDisconnect == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("disconnect handler panicked", zap.String("conn", connID), zap.Any("panic", r))
		}
	}()
	h.onDisconnect(connID)
}

func (h *Hub) addClient(client *Client) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	client.closed = false
	h.clients[client.id] = client
	return len(h.clients)
}

// removeClient drops client from the hub and every group and closes its
// send channel. It reports false if the client was not registered.
func (h *Hub) removeClient(client *Client) (int, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if current, ok := h.clients[client.id]; !ok || current != client {
		return len(h.clients), false
	}
	delete(h.clients, client.id)
	for group := range client.groups {
		h.leaveGroupLocked(client.id, group)
	}
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	return len(h.clients), true
}

// AddToGroup puts a registered connection into group.
func (h *Hub) AddToGroup(connID, group string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		h.logger.Debug("add to group for unknown connection", zap.String("conn", connID), zap.String("group", group))
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*Client)
		h.groups[group] = members
	}
	members[connID] = client
	client.groups[group] = struct{}{}
}

// RemoveFromGroup takes a connection out of group.
func (h *Hub) RemoveFromGroup(connID, group string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.leaveGroupLocked(connID, group)
}

func (h *Hub) leaveGroupLocked(connID, group string) {
	if members, ok := h.groups[group]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	if client, ok := h.clients[connID]; ok {
		delete(client.groups, group)
	}
}

// Broadcast sends ev to every connection in group except excludeConnID.
func (h *Hub) Broadcast(group string, ev protocol.Outbound, excludeConnID string) {
	payload, err := protocol.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode broadcast", zap.String("group", group), zap.Error(err))
		return
	}

	h.mutex.RLock()
	targets := make([]*Client, 0, len(h.groups[group]))
	for connID, client := range h.groups[group] {
		if connID == excludeConnID {
			continue
		}
		targets = append(targets, client)
	}

	var clientsToRemove []*Client
	for _, client := range targets {
		if !h.trySendLocked(client, payload) {
			clientsToRemove = append(clientsToRemove, client)
		}
	}
	h.mutex.RUnlock()

	h.logger.Debug("broadcast",
		zap.String("group", group),
		zap.String("event", ev.EventName()),
		zap.Int("targets", len(targets)))
	h.removeFailedClients(clientsToRemove)
}

// Send delivers ev to a single connection.
func (h *Hub) Send(connID string, ev protocol.Outbound) {
	payload, err := protocol.Encode(ev)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("conn", connID), zap.Error(err))
		return
	}

	h.mutex.RLock()
	client, ok := h.clients[connID]
	delivered := ok && h.trySendLocked(client, payload)
	h.mutex.RUnlock()

	if !ok {
		h.logger.Debug("send to unknown connection", zap.String("conn", connID), zap.String("event", ev.EventName()))
		return
	}
	if !delivered {
		h.removeFailedClients([]*Client{client})
	}
}

// trySendLocked must be called with at least the read lock held; send
// channels are only closed under the write lock.
func (h *Hub) trySendLocked(client *Client, payload []byte) bool {
	if client.closed {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// removeFailedClients closes the send channel of clients that could not keep
// up. Their pumps then close the socket and unregister, which triggers the
// regular disconnect path.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, client := range clientsToRemove {
		if current, exists := h.clients[client.id]; exists && current == client && !client.closed {
			client.closed = true
			close(client.send)
			h.logger.Warn("client evicted due to full send buffer",
				zap.String("conn", client.id),
				zap.String("addr", client.addr))
		}
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// GroupSize returns the number of connections in group.
func (h *Hub) GroupSize(group string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.groups[group])
}

// shutdownClients gracefully closes all active client connections. Pumps
// can no longer unregister once the run loop stops, so every client is
// dropped and disconnected here.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for id, client := range h.clients {
		clients = append(clients, client)
		if !client.closed {
			client.closed = true
			close(client.send)
		}
		delete(h.clients, id)
	}
	h.groups = make(map[string]map[string]*Client)
	h.mutex.Unlock()

	for _, client := range clients {
		if h.observer != nil {
			h.observer.ConnectionClosed()
		}
		h.disconnected(client.id)
	}

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					h.logger.Warn("error closing client connection", zap.String("addr", client.addr), zap.Error(err))
				}
			}
		}
	}

	h.logger.Info("closed client connections", zap.Int("count", len(clients)))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
