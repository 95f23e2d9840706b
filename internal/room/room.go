// Package room implements the room coordinator: the in-memory registry of
// rooms and their members, and the create/join/send/leave/disconnect/list
// operations that mutate it and fan events out to peers.
package room

import (
	"regexp"
	"strings"
	"time"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

var whitespaceRun = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF}]+`)

// Slugify derives a room key from a display name: each whitespace run
// becomes a single hyphen and the result is lower-cased.
func Slugify(name string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(name, "-"))
}

// Member binds one connection to a claimed user identity.
type Member struct {
	ConnID   string
	UserID   string
	UserName string
}

// Room holds the members of one slug. Members keep their join order.
type Room struct {
	slug      string
	createdAt time.Time
	members   map[string]Member
	order     []string
}

func newRoom(slug string, createdAt time.Time) *Room {
	return &Room{
		slug:      slug,
		createdAt: createdAt,
		members:   make(map[string]Member),
	}
}

// put inserts or replaces the member for m.ConnID and reports whether the
// connection was new to the room.
func (r *Room) put(m Member) bool {
	_, exists := r.members[m.ConnID]
	r.members[m.ConnID] = m
	if !exists {
		r.order = append(r.order, m.ConnID)
	}
	return !exists
}

func (r *Room) remove(connID string) (Member, bool) {
	m, ok := r.members[connID]
	if !ok {
		return Member{}, false
	}
	delete(r.members, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return m, true
}

func (r *Room) len() int { return len(r.members) }

func (r *Room) snapshot() []Member {
	out := make([]Member, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.members[id])
	}
	return out
}

// usersExcept lists members whose user id differs from userID.
func (r *Room) usersExcept(userID string) []protocol.User {
	users := make([]protocol.User, 0, len(r.order))
	for _, id := range r.order {
		m := r.members[id]
		if m.UserID == userID {
			continue
		}
		users = append(users, protocol.User{UserID: m.UserID, UserName: m.UserName})
	}
	return users
}

// Info is a read-only view of a room.
type Info struct {
	RoomID     string          `json:"roomId"`
	CreatedAt  time.Time       `json:"createdAt"`
	TotalUsers int             `json:"totalUsers"`
	Users      []protocol.User `json:"users"`
}

func (r *Room) info() Info {
	members := r.snapshot()
	users := make([]protocol.User, 0, len(members))
	for _, m := range members {
		users = append(users, protocol.User{UserID: m.UserID, UserName: m.UserName})
	}
	return Info{
		RoomID:     r.slug,
		CreatedAt:  r.createdAt,
		TotalUsers: len(members),
		Users:      users,
	}
}
