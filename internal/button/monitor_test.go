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

package button

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntcpanel/internal/events"
	"ntcpanel/pkg/eventbus"
	"ntcpanel/pkg/gpio"
)

type fakePub struct {
	mu   sync.Mutex
	evs  []eventbus.Event
	full bool
}

func (p *fakePub) Publish(ev eventbus.Event) error { return p.TryPublish(ev) }

func (p *fakePub) TryPublish(ev eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return eventbus.ErrQueueFull
	}
	p.evs = append(p.evs, ev)
	return nil
}

func (p *fakePub) setFull(full bool) {
	p.mu.Lock()
	p.full = full
	p.mu.Unlock()
}

func (p *fakePub) kinds() []eventbus.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]eventbus.Kind, 0, len(p.evs))
	for _, ev := range p.evs {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	m    *Monitor
	line *gpio.SimLine
	pub  *fakePub
	clk  *fakeClock
}

// newHarness drives the monitor by hand: the tick interval is long enough
// that the real timer never fires during a test.
func newHarness(cfg Config) *harness {
	cfg.Tick = time.Hour
	h := &harness{
		line: gpio.NewSimLine(),
		pub:  &fakePub{},
		clk:  &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	h.m = New(h.line, h.pub, cfg)
	h.m.now = h.clk.now
	h.m.epoch = h.clk.now()
	return h
}

// edgeAt sets the line level after d and reports a raw edge.
func (h *harness) edgeAt(d time.Duration, pressed bool) {
	h.clk.advance(d)
	h.line.Set(pressed)
	h.m.HandleEdge()
}

// bounceAt reports a raw edge after d whose sampled level is not the level
// the line settles at.
func (h *harness) bounceAt(d time.Duration, sampled, settled bool) {
	h.clk.advance(d)
	h.line.Set(sampled)
	h.m.HandleEdge()
	h.line.Set(settled)
}

func (h *harness) drain() {
	for {
		select {
		case e := <-h.m.edges:
			h.m.process(e)
		default:
			return
		}
	}
}

func (h *harness) tick(d time.Duration) {
	h.clk.advance(d)
	h.m.mu.Lock()
	gen := h.m.gen
	h.m.mu.Unlock()
	h.m.tick(gen)
}

func TestShortPress(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.drain()
	assert.Equal(t, Held, h.m.State())

	h.edgeAt(200*time.Millisecond, false)
	h.drain()

	assert.Equal(t, []eventbus.Kind{events.ButtonShortPress}, h.pub.kinds())
	assert.Equal(t, Idle, h.m.State())
}

func TestBouncesCollapseIntoOneEdge(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.edgeAt(10*time.Millisecond, false)
	h.edgeAt(10*time.Millisecond, true)
	h.edgeAt(69*time.Millisecond, true)

	s := h.m.Stats()
	assert.Equal(t, int64(1), s.Accepted)
	assert.Equal(t, int64(3), s.Bounced)

	// exactly 90ms after the accepted press passes the gate
	h.edgeAt(time.Millisecond, false)
	assert.Equal(t, int64(2), h.m.Stats().Accepted)

	h.drain()
	assert.Equal(t, []eventbus.Kind{events.ButtonShortPress}, h.pub.kinds())
}

func TestLongPressFiresOnceWhileHeld(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.drain()

	h.tick(2900 * time.Millisecond)
	assert.Empty(t, h.pub.kinds())

	h.tick(100 * time.Millisecond)
	assert.Equal(t, []eventbus.Kind{events.ButtonLongPress}, h.pub.kinds())
	assert.Equal(t, LongFired, h.m.State())

	h.tick(100 * time.Millisecond)
	h.tick(100 * time.Millisecond)

	h.edgeAt(2*time.Second, false)
	h.drain()

	assert.Equal(t, []eventbus.Kind{events.ButtonLongPress}, h.pub.kinds())
	assert.Equal(t, int64(1), h.m.Stats().Long)
	assert.Equal(t, Idle, h.m.State())
}

func TestLongPressOnReleaseWithoutTick(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.edgeAt(3500*time.Millisecond, false)
	h.drain()

	assert.Equal(t, []eventbus.Kind{events.ButtonLongPress}, h.pub.kinds())
}

func TestLongPressRetriedWhenQueueFull(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.drain()

	h.pub.setFull(true)
	h.tick(3 * time.Second)
	assert.Equal(t, Held, h.m.State())

	h.pub.setFull(false)
	h.tick(100 * time.Millisecond)
	assert.Equal(t, []eventbus.Kind{events.ButtonLongPress}, h.pub.kinds())
	assert.Equal(t, LongFired, h.m.State())
}

func TestMissedReleaseShorterThanDebounceIsNoise(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.drain()

	// release lands inside the debounce window and is discarded
	h.edgeAt(50*time.Millisecond, false)
	assert.Equal(t, int64(1), h.m.Stats().Bounced)

	h.tick(50 * time.Millisecond)
	assert.Empty(t, h.pub.kinds())
	assert.Equal(t, Idle, h.m.State())
	assert.Equal(t, int64(1), h.m.Stats().Noise)
}

func TestClassificationBoundaries(t *testing.T) {
	tests := []struct {
		name string
		hold time.Duration
		want eventbus.Kind
	}{
		{"debounce is short", 90 * time.Millisecond, events.ButtonShortPress},
		{"just under long is short", 2999 * time.Millisecond, events.ButtonShortPress},
		{"long press threshold", 3 * time.Second, events.ButtonLongPress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(DefaultConfig())
			defer h.m.stopTimer()

			h.edgeAt(0, true)
			h.drain()
			h.edgeAt(tt.hold, false)
			h.drain()

			assert.Equal(t, []eventbus.Kind{tt.want}, h.pub.kinds())
			assert.Equal(t, Idle, h.m.State())
		})
	}
}

func TestReleaseSampledPressedKeepsHold(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.drain()

	// the release edge reads the line before it drops, the real drop
	// lands inside the debounce window
	h.bounceAt(time.Second, true, true)
	h.edgeAt(10*time.Millisecond, false)
	h.drain()
	assert.Equal(t, Held, h.m.State())

	h.tick(100 * time.Millisecond)
	assert.Equal(t, []eventbus.Kind{events.ButtonShortPress}, h.pub.kinds())
	assert.Equal(t, Idle, h.m.State())
	s := h.m.Stats()
	assert.Equal(t, int64(1), s.Short)
	assert.Zero(t, s.Noise)
}

func TestReleaseSampledPressedDuringLongHold(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.drain()
	h.tick(3 * time.Second)
	require.Equal(t, LongFired, h.m.State())

	h.bounceAt(time.Second, true, false)
	h.drain()
	h.tick(100 * time.Millisecond)

	assert.Equal(t, []eventbus.Kind{events.ButtonLongPress}, h.pub.kinds())
	assert.Equal(t, Idle, h.m.State())
}

func TestPressSampledReleasedIsNotLost(t *testing.T) {
	tests := []struct {
		name       string
		drainEarly bool
	}{
		{"worker keeps up", true},
		{"worker behind", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(DefaultConfig())
			defer h.m.stopTimer()

			h.bounceAt(0, false, true)
			if tt.drainEarly {
				h.drain()
				assert.Equal(t, Held, h.m.State())
				h.tick(100 * time.Millisecond)
				assert.Equal(t, Held, h.m.State())
				h.edgeAt(400*time.Millisecond, false)
			} else {
				h.edgeAt(500*time.Millisecond, false)
			}
			h.drain()

			assert.Equal(t, []eventbus.Kind{events.ButtonShortPress}, h.pub.kinds())
			assert.Equal(t, Idle, h.m.State())
		})
	}
}

func TestPressSampledReleasedStillFiresLong(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.bounceAt(0, false, true)
	h.drain()
	h.tick(3 * time.Second)
	assert.Equal(t, []eventbus.Kind{events.ButtonLongPress}, h.pub.kinds())

	h.edgeAt(time.Second, false)
	h.drain()
	assert.Equal(t, []eventbus.Kind{events.ButtonLongPress}, h.pub.kinds())
}

func TestReleaseChatterIsNoise(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.edgeAt(200*time.Millisecond, false)
	h.drain()
	require.Equal(t, []eventbus.Kind{events.ButtonShortPress}, h.pub.kinds())

	// contact chatter just past the debounce window, line stays low
	h.clk.advance(95 * time.Millisecond)
	h.m.HandleEdge()
	h.drain()
	assert.Equal(t, Held, h.m.State())

	h.tick(100 * time.Millisecond)
	assert.Equal(t, []eventbus.Kind{events.ButtonShortPress}, h.pub.kinds())
	assert.Equal(t, Idle, h.m.State())
	assert.Equal(t, int64(1), h.m.Stats().Noise)
}

func TestStaleTickIsIgnored(t *testing.T) {
	h := newHarness(DefaultConfig())
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.drain()
	h.m.mu.Lock()
	stale := h.m.gen
	h.m.mu.Unlock()

	h.edgeAt(200*time.Millisecond, false)
	h.drain()
	h.edgeAt(200*time.Millisecond, true)
	h.drain()

	h.clk.advance(3 * time.Second)
	h.m.tick(stale)
	assert.Equal(t, []eventbus.Kind{events.ButtonShortPress}, h.pub.kinds())
	assert.Equal(t, Held, h.m.State())
}

func TestEdgeQueueFullDropsEdges(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EdgeQueue = 1
	h := newHarness(cfg)
	defer h.m.stopTimer()

	h.edgeAt(0, true)
	h.edgeAt(100*time.Millisecond, false)
	h.edgeAt(100*time.Millisecond, true)

	s := h.m.Stats()
	assert.Equal(t, int64(1), s.Accepted)
	assert.Equal(t, int64(2), s.Dropped)

	h.m.reportDrops()
	assert.Equal(t, int64(2), h.m.reportedDrops)
}

func TestRunClassifiesRealEdges(t *testing.T) {
	line := gpio.NewSimLine()
	pub := &fakePub{}
	m := New(line, pub, Config{
		Debounce:  5 * time.Millisecond,
		LongPress: 80 * time.Millisecond,
		Tick:      5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { m.Run(ctx) })
	wg.Go(func() { _ = m.Watch(ctx, line) })
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(t, line.Watched, time.Second, time.Millisecond)

	line.Set(true)
	time.Sleep(20 * time.Millisecond)
	line.Set(false)
	require.Eventually(t, func() bool { return len(pub.kinds()) == 1 }, time.Second, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	line.Set(true)
	require.Eventually(t, func() bool { return len(pub.kinds()) == 2 }, time.Second, time.Millisecond)
	line.Set(false)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []eventbus.Kind{events.ButtonShortPress, events.ButtonLongPress}, pub.kinds())
}
