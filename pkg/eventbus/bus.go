// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"ntcpanel/pkg/logger"
)

const (
	// PayloadSize is the fixed payload capacity of an Event.
	PayloadSize = 4

	DefaultCapacity       = 10
	DefaultPublishTimeout = 100 * time.Millisecond
)

var (
	ErrQueueFull = errors.New("eventbus: queue full")
	ErrClosed    = errors.New("eventbus: closed")
)

type Kind uint8

// Event is a small value type: a kind plus up to PayloadSize bytes.
type Event struct {
	Kind    Kind
	Payload [PayloadSize]byte
	Len     uint8
}

// NewEvent builds an event, keeping at most PayloadSize payload bytes.
func NewEvent(kind Kind, payload ...byte) Event {
	ev := Event{Kind: kind}
	ev.Len = uint8(copy(ev.Payload[:], payload))
	return ev
}

// Data returns the used part of the payload.
func (e Event) Data() []byte {
	return e.Payload[:e.Len]
}

// Handler receives dispatched events. Handle runs on the bus dispatch
// goroutine and must return quickly.
type Handler interface {
	Handle(ev Event)
}

type HandlerFunc func(ev Event)

func (f HandlerFunc) Handle(ev Event) { f(ev) }

type Stats struct {
	Published  int64
	Dispatched int64
	Dropped    int64
	Unhandled  int64
	Calls      int64
	Panics     int64
}

type Option func(*Bus)

// WithPublishTimeout bounds how long Publish waits for queue space.
func WithPublishTimeout(d time.Duration) Option {
	return func(b *Bus) { b.publishTimeout = d }
}

// Bus is a bounded FIFO of events drained by a single dispatch loop (Run).
// Events are delivered in publish order to the handlers subscribed to their
// kind, in subscription order.
type Bus struct {
	queue          chan Event
	done           chan struct{}
	publishTimeout time.Duration

	// subs slices are never mutated in place, so a slice read under mu
	// is a stable snapshot for one dispatch.
	mu   sync.Mutex
	subs map[Kind][]Handler

	closed    atomic.Bool
	closeOnce sync.Once
	log       *logger.Logger

	published  atomic.Int64
	dispatched atomic.Int64
	dropped    atomic.Int64
	unhandled  atomic.Int64
	calls      atomic.Int64
	panics     atomic.Int64
}

// New returns a bus whose queue holds capacity events.
func New(capacity int, opts ...Option) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Bus{
		queue:          make(chan Event, capacity),
		done:           make(chan struct{}),
		publishTimeout: DefaultPublishTimeout,
		subs:           make(map[Kind][]Handler),
		log:            logger.New("EventBus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// TryPublish enqueues ev without blocking. It takes no locks and does not
// allocate, so it is safe from the GPIO edge path and timer callbacks.
func (b *Bus) TryPublish(ev Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	select {
	case b.queue <- ev:
		b.published.Add(1)
		return nil
	default:
		b.dropped.Add(1)
		return ErrQueueFull
	}
}

// Publish enqueues ev, waiting at most the publish timeout for space.
func (b *Bus) Publish(ev Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.publishTimeout)
	defer cancel()
	return b.PublishContext(ctx, ev)
}

// PublishContext enqueues ev, waiting for space until ctx is done.
func (b *Bus) PublishContext(ctx context.Context, ev Event) error {
	if b.closed.Load() {
		return ErrClosed
	}
	select {
	case b.queue <- ev:
		b.published.Add(1)
		return nil
	default:
	}

	select {
	case b.queue <- ev:
		b.published.Add(1)
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		b.dropped.Add(1)
		return fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	}
}

// Subscribe appends h to the handlers of kind. It may be called from
// inside a handler; the running dispatch does not see the new handler.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.subs[kind]
	next := make([]Handler, len(cur), len(cur)+1)
	copy(next, cur)
	b.subs[kind] = append(next, h)
}

// SubscribeFunc is Subscribe for plain functions.
func (b *Bus) SubscribeFunc(kind Kind, fn func(Event)) {
	b.Subscribe(kind, HandlerFunc(fn))
}

// Unsubscribe removes the first handler of kind matching h.
// Unknown pairs are ignored.
func (b *Bus) Unsubscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.subs[kind]
	for i, sub := range cur {
		if !sameHandler(sub, h) {
			continue
		}
		next := make([]Handler, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		if len(next) == 0 {
			delete(b.subs, kind)
		} else {
			b.subs[kind] = next
		}
		return
	}
}

// Handlers returns the current handlers of kind in dispatch order.
func (b *Bus) Handlers(kind Kind) []Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs[kind]
}

// Pending is the number of queued, not yet dispatched events.
func (b *Bus) Pending() int {
	return len(b.queue)
}

// Run is the single dispatch loop. It returns when ctx is done or the bus
// is closed.
func (b *Bus) Run(ctx context.Context) {
	b.log.Info("Running...")
	defer b.log.Info("Stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case ev := <-b.queue:
			b.dispatch(ev)
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.dispatched.Add(1)

	handlers := b.Handlers(ev.Kind)
	if len(handlers) == 0 {
		b.unhandled.Add(1)
		b.log.Debug("no handlers for kind %d", ev.Kind)
		return
	}
	for _, h := range handlers {
		b.call(h, ev)
	}
}

func (b *Bus) call(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.log.Error("handler for kind %d panicked: %v", ev.Kind, r)
		}
	}()
	b.calls.Add(1)
	h.Handle(ev)
}

// Close stops the dispatch loop. Later publishes return ErrClosed.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)
	})
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published:  b.published.Load(),
		Dispatched: b.dispatched.Load(),
		Dropped:    b.dropped.Load(),
		Unhandled:  b.unhandled.Load(),
		Calls:      b.calls.Load(),
		Panics:     b.panics.Load(),
	}
}

func (b *Bus) PrintStats() {
	s := b.Stats()
	b.log.Info("published: %d, dispatched: %d, dropped: %d, unhandled: %d, handler calls: %d, panics: %d",
		s.Published, s.Dispatched, s.Dropped, s.Unhandled, s.Calls, s.Panics)
}

// sameHandler compares handlers by identity. Functions are not comparable
// in Go, so HandlerFunc values match when they share the same code pointer.
func sameHandler(a, b Handler) bool {
	if a == nil || b == nil {
		return a == b
	}
	fa, okA := a.(HandlerFunc)
	fb, okB := b.(HandlerFunc)
	if okA || okB {
		return okA && okB && reflect.ValueOf(fa).Pointer() == reflect.ValueOf(fb).Pointer()
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
