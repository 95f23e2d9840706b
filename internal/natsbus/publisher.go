// Package natsbus publishes room lifecycle events to NATS for outside
// observers. It is a notification feed, not a chat relay: message bodies
// never leave the process.
package natsbus

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/Tyrowin/roomchat/internal/lifecycle"
)

// DefaultPrefix is the subject root.
const DefaultPrefix = "roomchat"

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is a lifecycle sink that publishes each event as JSON on
// "<prefix>.rooms.<slug>.<kind>".
type Publisher struct {
	conn   Conn
	prefix string
}

// NewPublisher wraps an established connection.
func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// Name implements lifecycle.Sink.
func (p *Publisher) Name() string { return "nats" }

// Subject returns the subject ev is published on.
func (p *Publisher) Subject(ev lifecycle.Event) string {
	return p.prefix + ".rooms." + subjectToken(ev.Room) + "." + string(ev.Kind)
}

// Handle implements lifecycle.Sink.
func (p *Publisher) Handle(_ context.Context, ev lifecycle.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode lifecycle event")
	}
	subject := p.Subject(ev)
	if err := p.conn.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	return nil
}

// subjectToken makes a slug safe to use as one subject token.
func subjectToken(slug string) string {
	if slug == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, slug)
}

// Connect dials NATS with reconnect settings suited to a long-running server.
func Connect(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(500*time.Millisecond),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(3*time.Second),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats at %s", url)
	}
	return nc, nil
}
