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

package statusled

import (
	"context"
	"sync"
	"time"

	"ntcpanel/internal/events"
	"ntcpanel/pkg/eventbus"
	"ntcpanel/pkg/gpio"
	"ntcpanel/pkg/logger"
)

type Mode int

const (
	ModeOK Mode = iota
	ModeFastBlink
	ModeSlowBlink
	ModeOff
	ModeError
	ModeThreeBlink
	numModes
)

// patterns are played LSB first, one bit per tick.
var patterns = [numModes]uint16{
	ModeOK:         0xFFFF,
	ModeFastBlink:  0xAAAA,
	ModeSlowBlink:  0xCCCC,
	ModeOff:        0x0000,
	ModeError:      0xCC00,
	ModeThreeBlink: 0xA800,
}

// Tick plays a full pattern once per second.
const Tick = time.Second / 16

func (m Mode) String() string {
	switch m {
	case ModeOK:
		return "ok"
	case ModeFastBlink:
		return "fast-blink"
	case ModeSlowBlink:
		return "slow-blink"
	case ModeOff:
		return "off"
	case ModeError:
		return "error"
	case ModeThreeBlink:
		return "three-blink"
	default:
		return "invalid"
	}
}

// Pattern returns the bit pattern of m; unknown modes are off.
func Pattern(m Mode) uint16 {
	if m < 0 || m >= numModes {
		return patterns[ModeOff]
	}
	return patterns[m]
}

type Indicator struct {
	pin  gpio.Pin
	tick time.Duration
	log  *logger.Logger

	mu   sync.Mutex
	mode Mode
	bit  int
}

func New(pin gpio.Pin) *Indicator {
	return &Indicator{
		pin:  pin,
		tick: Tick,
		log:  logger.New("StatusLED"),
		mode: ModeOff,
	}
}

// Set selects the pattern; unknown modes select off.
func (ind *Indicator) Set(m Mode) {
	if m < 0 || m >= numModes {
		m = ModeOff
	}
	ind.mu.Lock()
	if ind.mode != m {
		ind.log.Debug("%v -> %v", ind.mode, m)
	}
	ind.mode = m
	ind.mu.Unlock()
}

func (ind *Indicator) Mode() Mode {
	ind.mu.Lock()
	defer ind.mu.Unlock()
	return ind.mode
}

func (ind *Indicator) Subscribe(bus *eventbus.Bus) {
	for _, kind := range events.All {
		bus.Subscribe(kind, ind)
	}
}

func (ind *Indicator) Handle(ev eventbus.Event) {
	switch ev.Kind {
	case events.WifiConnected:
		ind.Set(ModeOK)
	case events.WifiDisconnected:
		ind.Set(ModeError)
	case events.ButtonShortPress:
		if ind.Mode() == ModeSlowBlink {
			ind.Set(ModeFastBlink)
		} else {
			ind.Set(ModeSlowBlink)
		}
	case events.ButtonLongPress:
		ind.Set(ModeThreeBlink)
	}
}

// step drives the pin with the next bit of the current pattern.
func (ind *Indicator) step() error {
	ind.mu.Lock()
	on := (Pattern(ind.mode)>>ind.bit)&1 == 1
	ind.bit = (ind.bit + 1) % 16
	ind.mu.Unlock()
	return ind.pin.Set(on)
}

func (ind *Indicator) Run(ctx context.Context) {
	ind.log.Info("Running...")
	defer ind.log.Info("Stopped")
	defer ind.pin.Set(false)

	ticker := time.NewTicker(ind.tick)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := ind.step()
			if err != nil && !failing {
				ind.log.Error("set pin: %v", err)
			}
			failing = err != nil
		}
	}
}
