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
	"sync/atomic"
	"time"

	"ntcpanel/internal/events"
	"ntcpanel/pkg/eventbus"
	"ntcpanel/pkg/gpio"
	"ntcpanel/pkg/logger"
)

type State int

const (
	Idle State = iota
	Held
	LongFired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Held:
		return "held"
	case LongFired:
		return "long-fired"
	default:
		return "unknown"
	}
}

// Publisher is the part of the event bus the monitor needs.
type Publisher interface {
	Publish(ev eventbus.Event) error
	TryPublish(ev eventbus.Event) error
}

type Config struct {
	Debounce  time.Duration
	LongPress time.Duration
	Tick      time.Duration
	// EdgeQueue is the capacity of the edge hand-off queue.
	EdgeQueue int
}

func DefaultConfig() Config {
	return Config{
		Debounce:  90 * time.Millisecond,
		LongPress: 3 * time.Second,
		Tick:      100 * time.Millisecond,
		EdgeQueue: 10,
	}
}

type Stats struct {
	Accepted int64
	Bounced  int64
	Dropped  int64
	Short    int64
	Long     int64
	Noise    int64
}

type edge struct {
	at      time.Time
	pressed bool
}

// Monitor turns raw edges of one input line into ButtonShortPress and
// ButtonLongPress events.
//
// HandleEdge runs in the edge path: it only does atomic operations and a
// non-blocking channel send. Run classifies edges on a worker goroutine,
// and a RepeatingTimer armed for each hold detects long presses while the
// button is still down.
type Monitor struct {
	cfg  Config
	line gpio.Line
	pub  Publisher
	log  *logger.Logger

	now   func() time.Time
	epoch time.Time

	edges chan edge
	// nanoseconds since epoch, plus one so zero means "never"
	lastEdge atomic.Int64
	lastRaw  atomic.Int64

	mu         sync.Mutex
	state      State
	pressStart time.Time
	gen        uint64
	timer      *RepeatingTimer

	accepted atomic.Int64
	bounced  atomic.Int64
	dropped  atomic.Int64
	short    atomic.Int64
	long     atomic.Int64
	noise    atomic.Int64

	reportedDrops int64
}

func New(line gpio.Line, pub Publisher, cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.LongPress <= 0 {
		cfg.LongPress = def.LongPress
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.EdgeQueue <= 0 {
		cfg.EdgeQueue = def.EdgeQueue
	}
	m := &Monitor{
		cfg:   cfg,
		line:  line,
		pub:   pub,
		log:   logger.New("Button"),
		now:   time.Now,
		edges: make(chan edge, cfg.EdgeQueue),
	}
	m.epoch = m.now()
	return m
}

func (m *Monitor) since(t time.Time) int64 {
	return int64(t.Sub(m.epoch)) + 1
}

// HandleEdge records one raw edge. Edges closer than the debounce window
// to the last accepted edge are discarded; accepted edges are handed to
// the worker, or counted as dropped when its queue is full.
func (m *Monitor) HandleEdge() {
	now := m.now()
	pressed := m.line.Asserted()
	t := m.since(now)
	m.lastRaw.Store(t)

	for {
		last := m.lastEdge.Load()
		if last != 0 && time.Duration(t-last) < m.cfg.Debounce {
			m.bounced.Add(1)
			return
		}
		if m.lastEdge.CompareAndSwap(last, t) {
			break
		}
	}

	select {
	case m.edges <- edge{at: now, pressed: pressed}:
		m.accepted.Add(1)
	default:
		m.dropped.Add(1)
	}
}

// Watch feeds edges of src into the monitor until ctx is done.
func (m *Monitor) Watch(ctx context.Context, src gpio.EdgeSource) error {
	return src.Watch(ctx, m.HandleEdge)
}

// Run is the worker loop.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("Running... debounce: %v, long press: %v", m.cfg.Debounce, m.cfg.LongPress)
	defer m.log.Info("Stopped")
	defer m.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-m.edges:
			m.reportDrops()
			m.process(e)
		}
	}
}

func (m *Monitor) reportDrops() {
	d := m.dropped.Load()
	if d > m.reportedDrops {
		m.log.Warn("edge queue full, %d edges dropped", d-m.reportedDrops)
		m.reportedDrops = d
	}
}

// process classifies one accepted edge. The sampled level may be a bounce,
// so an edge is read as the transition the state expects: a press while
// idle, a release while held. A release sampled while idle starts a hold
// on trial that the timer ends as noise if the line is in fact released.
func (m *Monitor) process(e edge) {
	var ev eventbus.Event
	var ok bool

	m.mu.Lock()
	switch {
	case m.state == Idle:
		if !e.pressed {
			m.log.Debug("press edge sampled released, holding on trial")
		}
		m.startHoldLocked(e.at)
	case e.pressed:
		m.log.Debug("release edge sampled pressed while %v, keeping hold", m.state)
	default:
		ev, ok = m.finishLocked(e.at)
	}
	m.mu.Unlock()

	if ok {
		if err := m.pub.Publish(ev); err != nil {
			m.log.Warn("publish %s: %v", events.Name(ev.Kind), err)
		}
	}
}

func (m *Monitor) startHoldLocked(at time.Time) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.state = Held
	m.pressStart = at
	m.gen++
	gen := m.gen
	m.timer = NewRepeatingTimer(m.cfg.Tick, func() { m.tick(gen) })
	m.timer.Start()
}

// finishLocked ends the current hold at the release time and classifies
// it. ok is false when the hold produces no event.
func (m *Monitor) finishLocked(at time.Time) (ev eventbus.Event, ok bool) {
	if m.state == Idle {
		return ev, false
	}
	fired := m.state == LongFired
	d := at.Sub(m.pressStart)

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = Idle
	m.gen++

	switch {
	case fired:
		return ev, false
	case d >= m.cfg.LongPress:
		m.long.Add(1)
		return events.NewButtonLongPress(), true
	case d >= m.cfg.Debounce:
		m.short.Add(1)
		return events.NewButtonShortPress(), true
	default:
		m.noise.Add(1)
		m.log.Debug("ignoring %v press", d)
		return ev, false
	}
}

// tick runs on the timer goroutine for hold gen.
func (m *Monitor) tick(gen uint64) {
	now := m.now()
	asserted := m.line.Asserted()

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state == Idle {
		return
	}

	if !asserted {
		// the release edge was debounced away; end the hold at the last
		// raw edge. With no raw edge after the start the line never
		// moved, and the hold is noise.
		at := m.pressStart
		if raw := m.lastRaw.Load(); raw != 0 {
			if t := m.epoch.Add(time.Duration(raw - 1)); t.After(m.pressStart) {
				at = t
			}
		}
		if ev, ok := m.finishLocked(at); ok {
			if err := m.pub.TryPublish(ev); err != nil {
				m.log.Warn("publish %s: %v", events.Name(ev.Kind), err)
			}
		}
		return
	}

	if m.state != Held || now.Sub(m.pressStart) < m.cfg.LongPress {
		return
	}
	if err := m.pub.TryPublish(events.NewButtonLongPress()); err != nil {
		// retried on the next tick
		m.log.Warn("publish long press: %v", err)
		return
	}
	m.state = LongFired
	m.long.Add(1)
}

func (m *Monitor) stopTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) Stats() Stats {
	return Stats{
		Accepted: m.accepted.Load(),
		Bounced:  m.bounced.Load(),
		Dropped:  m.dropped.Load(),
		Short:    m.short.Load(),
		Long:     m.long.Load(),
		Noise:    m.noise.Load(),
	}
}
