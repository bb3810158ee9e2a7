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

package display

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"ntcpanel/internal/events"
	"ntcpanel/pkg/adc"
	"ntcpanel/pkg/eventbus"
	"ntcpanel/pkg/logger"
)

const (
	DefaultRefresh = 500 * time.Millisecond
	bannerDuration = 3 * time.Second
)

// Source is the consume-on-read channel reader, usually an
// *adc.Aggregator.
type Source interface {
	ReadAndReset(ch int) (int, error)
}

// Renderer puts a finished frame on a device.
type Renderer interface {
	Render(lines []string) error
}

// Reading is the last displayed value of one channel.
type Reading struct {
	Channel int
	Celsius float32
	Valid   bool
}

type Config struct {
	Refresh   time.Duration
	Converter adc.Converter
}

// Display polls the aggregator, keeps the last value of each channel and
// renders the selected screen. It subscribes to the event bus for screen
// cycling and network status.
type Display struct {
	src       Source
	renderers []Renderer
	refresh   time.Duration
	conv      adc.Converter
	log       *logger.Logger
	now       func() time.Time
	started   time.Time

	wake chan struct{}

	mu          sync.Mutex
	temps       [adc.NumChannels]float32
	screen      Screen
	net         NetworkStatus
	banner      string
	bannerUntil time.Time
	cnt         counters
	frame       []string
}

func New(src Source, cfg Config, renderers ...Renderer) *Display {
	if cfg.Refresh <= 0 {
		cfg.Refresh = DefaultRefresh
	}
	if cfg.Converter == (adc.Converter{}) {
		cfg.Converter = adc.DefaultNTC
	}
	d := &Display{
		src:       src,
		renderers: renderers,
		refresh:   cfg.Refresh,
		conv:      cfg.Converter,
		log:       logger.New("Display"),
		now:       time.Now,
		wake:      make(chan struct{}, 1),
	}
	for i := range d.temps {
		d.temps[i] = math32.NaN()
	}
	d.started = d.now()
	return d
}

// Subscribe registers the display for every event kind it reacts to.
func (d *Display) Subscribe(bus *eventbus.Bus) {
	for _, kind := range events.All {
		bus.Subscribe(kind, d)
	}
}

// Handle runs on the bus dispatch goroutine; it only updates state and
// wakes Run.
func (d *Display) Handle(ev eventbus.Event) {
	d.mu.Lock()
	switch ev.Kind {
	case events.ButtonShortPress:
		d.cnt.shortPress++
		if d.banner != "" {
			d.banner = ""
		} else {
			d.screen = d.screen.Next()
		}
	case events.ButtonLongPress:
		d.cnt.longPress++
		d.banner = "Network mode change"
		d.bannerUntil = d.now().Add(bannerDuration)
	case events.WifiConnected:
		d.net.Known, d.net.Connected = true, true
		if ip, ok := events.IP(ev); ok {
			d.net.IP = ip.String()
		}
	case events.WifiDisconnected:
		d.cnt.disconnects++
		d.net.Known, d.net.Connected, d.net.IP = true, false, ""
		if reason, ok := events.Reason(ev); ok {
			d.net.Reason = events.ReasonText(reason)
		}
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Display) Run(ctx context.Context) {
	d.log.Info("Running... refresh every %v", d.refresh)
	defer d.log.Info("Stopped")

	ticker := time.NewTicker(d.refresh)
	defer ticker.Stop()

	d.poll()
	d.render()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.poll()
			d.render()
		case <-d.wake:
			d.render()
		}
	}
}

// poll consumes the averages of every channel. Channels without new
// samples keep their last value.
func (d *Display) poll() {
	var fresh [adc.NumChannels]float32
	var ok [adc.NumChannels]bool
	for ch := range adc.NumChannels {
		raw, err := d.src.ReadAndReset(ch)
		switch {
		case err == nil:
			fresh[ch], ok[ch] = d.conv.Celsius(raw), true
		case errors.Is(err, adc.ErrNoData):
		default:
			d.log.Error("channel %d: %v", ch, err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range adc.NumChannels {
		if ok[ch] {
			d.temps[ch] = fresh[ch]
		}
	}
}

func (d *Display) render() {
	lines := d.compose()
	for _, r := range d.renderers {
		if err := r.Render(lines); err != nil {
			d.log.Error("render: %v", err)
		}
	}
}

func (d *Display) compose() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	b := NewBuffer()
	switch {
	case d.banner != "" && now.Before(d.bannerUntil):
		drawBanner(b, d.banner)
	default:
		d.banner = ""
		switch d.screen {
		case ScreenNetwork:
			drawNetwork(b, d.net)
		case ScreenStatus:
			c := d.cnt
			c.uptime = now.Sub(d.started)
			drawStatus(b, c)
		default:
			drawTemperatures(b, d.temps)
		}
	}
	d.frame = b.Lines()
	return d.frame
}

// Latest returns the last value of every channel.
func (d *Display) Latest() []Reading {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Reading, adc.NumChannels)
	for ch, t := range d.temps {
		out[ch] = Reading{Channel: ch, Celsius: t, Valid: !math32.IsNaN(t)}
	}
	return out
}

// Frame returns the last rendered lines.
func (d *Display) Frame() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.frame...)
}

func (d *Display) Screen() Screen {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screen
}

// LogRenderer writes changed frames to the debug log.
type LogRenderer struct {
	log  *logger.Logger
	last string
}

func NewLogRenderer() *LogRenderer {
	return &LogRenderer{log: logger.New("LCD")}
}

func (r *LogRenderer) Render(lines []string) error {
	frame := strings.Join(lines, "|")
	if frame == r.last {
		return nil
	}
	r.last = frame
	r.log.Debug("|%s|", frame)
	return nil
}
