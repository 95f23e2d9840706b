// Package lifecycle carries room lifecycle events from the coordinator to
// side-channel sinks (presence directory, bus publisher, metrics) on a single
// ordered worker, so sinks doing network I/O never hold up the registry.
package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/roomchat/internal/logging"
)

// Kind names a lifecycle transition.
type Kind string

// Lifecycle kinds.
const (
	RoomCreated    Kind = "room_created"
	RoomDeleted    Kind = "room_deleted"
	MemberJoined   Kind = "member_joined"
	MemberLeft     Kind = "member_left"
	MessageRelayed Kind = "message_relayed"
)

// Leave reasons carried on MemberLeft events.
const (
	ReasonLeft         = "left"
	ReasonDisconnected = "disconnected"
)

// Event describes one transition. Rooms and Members are the registry totals
// right after the transition.
type Event struct {
	Kind       Kind      `json:"kind"`
	Room       string    `json:"room"`
	ConnID     string    `json:"connId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	UserName   string    `json:"userName,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	TotalUsers int       `json:"totalUsers"`
	Rooms      int       `json:"rooms"`
	Members    int       `json:"members"`
	At         time.Time `json:"at"`
}

// Sink consumes lifecycle events.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("lifecycle dispatcher closed")

// Dispatcher queues events and hands them to every sink in order on one
// goroutine. Notify never blocks; a full queue drops the event.
type Dispatcher struct {
	queue   chan Event
	sinks   []Sink
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher with room for size pending events.
func NewDispatcher(size int, logger *zap.Logger, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = 1024
	}
	return &Dispatcher{
		queue:   make(chan Event, size),
		sinks:   sinks,
		logger:  logging.OrNop(logger).Named("lifecycle"),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

// Notify enqueues ev.
func (d *Dispatcher) Notify(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.dropped.Add(1)
		d.logger.Warn("lifecycle queue full; dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.String("room", ev.Room))
	}
}

// Run delivers queued events until Close drains the queue.
func (d *Dispatcher) Run() {
	defer close(d.done)
	for ev := range d.queue {
		for _, sink := range d.sinks {
			d.deliver(sink, ev)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("lifecycle sink panicked",
				zap.String("sink", sink.Name()),
				zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := sink.Handle(ctx, ev); err != nil {
		d.logger.Warn("lifecycle sink failed",
			zap.String("sink", sink.Name()),
			zap.String("kind", string(ev.Kind)),
			zap.String("room", ev.Room),
			zap.Error(err))
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits for Run to deliver what is queued.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "drain lifecycle queue")
	}
}
