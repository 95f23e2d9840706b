// Package presence mirrors room membership into Redis so collaborators that
// do not speak the socket protocol (the media widget backend, dashboards)
// can see who sits in which room.
//
// Layout: one hash per room, "<prefix>:room:<slug>", field = connection id,
// value = JSON {"userId","userName"}. Every write renews the key TTL, so a
// crashed process leaves nothing behind for longer than the TTL.
package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/roomchat/internal/lifecycle"
)

// DefaultPrefix namespaces presence keys.
const DefaultPrefix = "roomchat:presence"

// Entry is one mirrored member.
type Entry struct {
	ConnID   string `json:"-"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Store is a lifecycle sink backed by Redis.
type Store struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewStore returns a Store. A non-positive ttl means one hour.
func NewStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Name implements lifecycle.Sink.
func (s *Store) Name() string { return "presence" }

func (s *Store) roomKey(slug string) string { return s.prefix + ":room:" + slug }

// Handle implements lifecycle.Sink.
func (s *Store) Handle(ctx context.Context, ev lifecycle.Event) error {
	switch ev.Kind {
	case lifecycle.MemberJoined:
		return s.join(ctx, ev)
	case lifecycle.MemberLeft:
		if err := s.rdb.HDel(ctx, s.roomKey(ev.Room), ev.ConnID).Err(); err != nil {
			return errors.Wrapf(err, "presence leave %s", ev.Room)
		}
	case lifecycle.RoomDeleted:
		if err := s.rdb.Del(ctx, s.roomKey(ev.Room)).Err(); err != nil {
			return errors.Wrapf(err, "presence drop %s", ev.Room)
		}
	case lifecycle.MessageRelayed:
		// activity keeps the mirror alive
		if err := s.rdb.Expire(ctx, s.roomKey(ev.Room), s.ttl).Err(); err != nil {
			return errors.Wrapf(err, "presence touch %s", ev.Room)
		}
	}
	return nil
}

func (s *Store) join(ctx context.Context, ev lifecycle.Event) error {
	value, err := json.Marshal(Entry{UserID: ev.UserID, UserName: ev.UserName})
	if err != nil {
		return errors.Wrap(err, "encode presence entry")
	}

	key := s.roomKey(ev.Room)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, ev.ConnID, value)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "presence join %s", ev.Room)
	}
	return nil
}

// Members returns the mirrored members of slug. The order is unspecified.
func (s *Store) Members(ctx context.Context, slug string) ([]Entry, error) {
	fields, err := s.rdb.HGetAll(ctx, s.roomKey(slug)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "presence members %s", slug)
	}

	out := make([]Entry, 0, len(fields))
	for connID, raw := range fields {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, errors.Wrapf(err, "decode presence entry %s/%s", slug, connID)
		}
		e.ConnID = connID
		out = append(out, e)
	}
	return out, nil
}

// Connect dials Redis and checks the connection.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", addr)
	}
	return rdb, nil
}
