package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/lifecycle"
	"github.com/Tyrowin/roomchat/internal/logging"
	"github.com/Tyrowin/roomchat/internal/protocol"
)

// ErrRoomNotFound is returned by Join and SendMessage for unknown slugs.
var ErrRoomNotFound = errors.New("room not found")

// roomNotFoundMessage is the text clients receive in the error event.
const roomNotFoundMessage = "Room does not exist!"

// Groups is the fan-out surface the coordinator needs from the transport.
// Implementations must not block: delivery is fire-and-forget.
type Groups interface {
	AddToGroup(connID, group string)
	RemoveFromGroup(connID, group string)
	Broadcast(group string, ev protocol.Outbound, excludeConnID string)
	Send(connID string, ev protocol.Outbound)
}

// Notifier receives lifecycle transitions. Notify is called with the
// registry lock held and must not block.
type Notifier interface {
	Notify(ev lifecycle.Event)
}

// Outgoing is a message a member wants relayed to the rest of a room.
type Outgoing struct {
	UserID      string
	UserName    string
	Body        string
	ReplyTo     string
	ReplyToUser string
}

// Stats are registry totals.
type Stats struct {
	Rooms   int `json:"rooms"`
	Members int `json:"members"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier routes lifecycle transitions to n.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

// WithLogger sets the coordinator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = logging.OrNop(l) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator owns the room registry. Every operation runs under one mutex,
// so no two events interleave on registry state. A connection may be a
// member of several rooms at once.
type Coordinator struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	order   []string
	byConn  map[string]map[string]struct{}
	members int

	groups   Groups
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewCoordinator returns an empty registry that fans out through groups.
func NewCoordinator(groups Groups, opts ...Option) *Coordinator {
	c := &Coordinator{
		rooms:  make(map[string]*Room),
		byConn: make(map[string]map[string]struct{}),
		groups: groups,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create ensures a room for roomName exists and confirms to the caller.
// It never fails and never touches existing membership. The caller is not
// joined.
func (c *Coordinator) Create(connID, roomName, userID, userName string) string {
	slug := Slugify(roomName)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rooms[slug]; !ok {
		r := newRoom(slug, c.now())
		c.rooms[slug] = r
		c.order = append(c.order, slug)
		c.logger.Info("room created",
			zap.String("room", slug),
			zap.String("user_id", userID),
			zap.String("user_name", userName))
		c.notify(lifecycle.Event{Kind: lifecycle.RoomCreated, Room: slug, ConnID: connID, UserID: userID, UserName: userName})
	}

	c.groups.Send(connID, protocol.RoomCreated{
		RoomID:  slug,
		Message: fmt.Sprintf("Room '%s' created successfully!", roomName),
	})
	return slug
}

// Join binds connID to the user inside slug. Existing members hear about it
// first; then the caller gets the other members, filtered by user id.
func (c *Coordinator) Join(connID, slug, userID, userName string) ([]protocol.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[slug]
	if !ok {
		c.groups.Send(connID, protocol.Error{Message: roomNotFoundMessage})
		return nil, errors.Wrapf(ErrRoomNotFound, "join %q", slug)
	}

	if r.put(Member{ConnID: connID, UserID: userID, UserName: userName}) {
		c.members++
	}
	c.index(connID, slug)
	c.groups.AddToGroup(connID, slug)

	total := r.len()
	c.logger.Info("user joined room",
		zap.String("room", slug),
		zap.String("conn", connID),
		zap.String("user_id", userID),
		zap.String("user_name", userName),
		zap.Int("total_users", total))

	c.groups.Broadcast(slug, protocol.UserJoined{
		UserID:     userID,
		UserName:   userName,
		TotalUsers: total,
		Message:    fmt.Sprintf("%s joined the room", userName),
	}, connID)

	others := r.usersExcept(userID)
	c.groups.Send(connID, protocol.RoomJoined{
		RoomID:     slug,
		Users:      others,
		TotalUsers: len(others),
	})

	c.notify(lifecycle.Event{Kind: lifecycle.MemberJoined, Room: slug, ConnID: connID, UserID: userID, UserName: userName, TotalUsers: total})
	return others, nil
}

// SendMessage relays msg to every other connection in slug. Nothing is
// stored; the sender renders its own copy.
func (c *Coordinator) SendMessage(connID, slug string, msg Outgoing) (protocol.ReceiveMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.rooms[slug]; !ok {
		c.groups.Send(connID, protocol.Error{Message: roomNotFoundMessage})
		return protocol.ReceiveMessage{}, errors.Wrapf(ErrRoomNotFound, "send to %q", slug)
	}

	envelope := protocol.ReceiveMessage{
		UserID:      msg.UserID,
		UserName:    msg.UserName,
		Message:     msg.Body,
		Timestamp:   c.now().UnixMilli(),
		ReplyTo:     msg.ReplyTo,
		ReplyToUser: msg.ReplyToUser,
	}
	c.logger.Debug("relaying message",
		zap.String("room", slug),
		zap.String("conn", connID),
		zap.String("user_name", msg.UserName))
	c.groups.Broadcast(slug, envelope, connID)

	c.notify(lifecycle.Event{Kind: lifecycle.MessageRelayed, Room: slug, ConnID: connID, UserID: msg.UserID, UserName: msg.UserName})
	return envelope, nil
}

// Leave removes connID from slug and tells everyone still there. The room is
// deleted once empty. Unknown slugs are ignored.
func (c *Coordinator) Leave(connID, slug, userID, userName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.rooms[slug]
	if !ok {
		return
	}

	_, removed := r.remove(connID)
	if removed {
		c.members--
	}
	c.unindex(connID, slug)
	c.groups.RemoveFromGroup(connID, slug)

	total := r.len()
	c.logger.Info("user left room",
		zap.String("room", slug),
		zap.String("conn", connID),
		zap.String("user_name", userName),
		zap.Int("remaining", total))

	c.groups.Broadcast(slug, protocol.UserLeft{
		UserID:     userID,
		UserName:   userName,
		TotalUsers: total,
		Message:    fmt.Sprintf("%s left the room", userName),
	}, "")

	if removed {
		c.notify(lifecycle.Event{Kind: lifecycle.MemberLeft, Room: slug, ConnID: connID, UserID: userID, UserName: userName, Reason: lifecycle.ReasonLeft, TotalUsers: total})
	}
	if total == 0 {
		c.deleteRoom(slug)
	}
}

// Disconnect drops connID from every room it belongs to. Each room is
// cleaned independently: a failure while notifying one room does not stop
// the others.
func (c *Coordinator) Disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	joined := c.byConn[connID]
	if len(joined) == 0 {
		return
	}

	slugs := make([]string, 0, len(joined))
	for _, slug := range c.order {
		if _, ok := joined[slug]; ok {
			slugs = append(slugs, slug)
		}
	}
	delete(c.byConn, connID)

	for _, slug := range slugs {
		c.dropFromRoom(connID, slug)
	}
}

func (c *Coordinator) dropFromRoom(connID, slug string) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("disconnect cleanup failed",
				zap.String("room", slug),
				zap.String("conn", connID),
				zap.Any("panic", rec))
		}
	}()

	r, ok := c.rooms[slug]
	if !ok {
		return
	}
	m, removed := r.remove(connID)
	if !removed {
		return
	}
	c.members--
	total := r.len()
	if total == 0 {
		defer c.deleteRoom(slug)
	}

	c.logger.Info("user disconnected from room",
		zap.String("room", slug),
		zap.String("conn", connID),
		zap.String("user_name", m.UserName),
		zap.Int("remaining", total))

	c.notify(lifecycle.Event{Kind: lifecycle.MemberLeft, Room: slug, ConnID: connID, UserID: m.UserID, UserName: m.UserName, Reason: lifecycle.ReasonDisconnected, TotalUsers: total})
	c.groups.RemoveFromGroup(connID, slug)
	c.groups.Broadcast(slug, protocol.UserLeft{
		UserID:     m.UserID,
		UserName:   m.UserName,
		TotalUsers: total,
		Message:    fmt.Sprintf("%s disconnected", m.UserName),
	}, "")
}

// ListRooms returns every room with its member count, oldest room first.
func (c *Coordinator) ListRooms() []protocol.RoomSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]protocol.RoomSummary, 0, len(c.order))
	for _, slug := range c.order {
		out = append(out, protocol.RoomSummary{RoomID: slug, TotalUsers: c.rooms[slug].len()})
	}
	return out
}

// GetRooms answers a get-rooms request on connID.
func (c *Coordinator) GetRooms(connID string) {
	c.groups.Send(connID, protocol.RoomsList{Rooms: c.ListRooms()})
}

// Room returns a snapshot of one room.
func (c *Coordinator) Room(slug string) (Info, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	r, ok := c.rooms[slug]
	if !ok {
		return Info{}, false
	}
	return r.info(), true
}

// Stats returns registry totals.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Rooms: len(c.rooms), Members: c.members}
}

func (c *Coordinator) index(connID, slug string) {
	set, ok := c.byConn[connID]
	if !ok {
		set = make(map[string]struct{})
		c.byConn[connID] = set
	}
	set[slug] = struct{}{}
}

func (c *Coordinator) unindex(connID, slug string) {
	set, ok := c.byConn[connID]
	if !ok {
		return
	}
	delete(set, slug)
	if len(set) == 0 {
		delete(c.byConn, connID)
	}
}

// deleteRoom must be called with c.mu held.
func (c *Coordinator) deleteRoom(slug string) {
	if _, ok := c.rooms[slug]; !ok {
		return
	}
	delete(c.rooms, slug)
	for i, s := range c.order {
		if s == slug {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.logger.Info("room deleted (empty)", zap.String("room", slug))
	c.notify(lifecycle.Event{Kind: lifecycle.RoomDeleted, Room: slug})
}

// notify stamps registry totals on ev. Must be called with c.mu held.
func (c *Coordinator) notify(ev lifecycle.Event) {
	if c.notifier == nil {
		return
	}
	ev.Rooms = len(c.rooms)
	ev.Members = c.members
	if ev.At.IsZero() {
		ev.At = c.now()
	}
	c.notifier.Notify(ev)
}
