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
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntcpanel/internal/events"
	"ntcpanel/pkg/gpio"
)

// play returns the levels of one full pattern period.
func play(t *testing.T, ind *Indicator, pin *gpio.MemPin) []bool {
	t.Helper()
	pin.History()
	for range 16 {
		require.NoError(t, ind.step())
	}
	return pin.History()
}

func levels(pattern uint16) []bool {
	out := make([]bool, 16)
	for i := range out {
		out[i] = pattern>>i&1 == 1
	}
	return out
}

func TestPatterns(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), Pattern(ModeOK))
	assert.Equal(t, uint16(0xAAAA), Pattern(ModeFastBlink))
	assert.Equal(t, uint16(0xCCCC), Pattern(ModeSlowBlink))
	assert.Equal(t, uint16(0x0000), Pattern(ModeOff))
	assert.Equal(t, uint16(0xCC00), Pattern(ModeError))
	assert.Equal(t, uint16(0xA800), Pattern(ModeThreeBlink))
	assert.Equal(t, uint16(0), Pattern(Mode(42)))
	assert.Equal(t, uint16(0), Pattern(Mode(-1)))
}

func TestStepPlaysPatternLSBFirst(t *testing.T) {
	pin := &gpio.MemPin{}
	ind := New(pin)

	ind.Set(ModeThreeBlink)
	got := play(t, ind, pin)
	assert.Equal(t, levels(0xA800), got)
	// three pulses at the end of the period
	assert.Equal(t, []bool{true, false, true, false, true}, got[11:])

	ind.Set(Mode(99))
	assert.Equal(t, ModeOff, ind.Mode())
	assert.Equal(t, levels(0), play(t, ind, pin))
}

func TestEventMapping(t *testing.T) {
	ind := New(&gpio.MemPin{})
	assert.Equal(t, ModeOff, ind.Mode())

	ind.Handle(events.NewButtonShortPress())
	assert.Equal(t, ModeSlowBlink, ind.Mode())
	ind.Handle(events.NewButtonShortPress())
	assert.Equal(t, ModeFastBlink, ind.Mode())
	ind.Handle(events.NewButtonShortPress())
	assert.Equal(t, ModeSlowBlink, ind.Mode())

	ind.Handle(events.NewButtonLongPress())
	assert.Equal(t, ModeThreeBlink, ind.Mode())
	ind.Handle(events.NewButtonShortPress())
	assert.Equal(t, ModeSlowBlink, ind.Mode())

	ind.Handle(events.NewWifiConnected(netip.MustParseAddr("192.168.1.2")))
	assert.Equal(t, ModeOK, ind.Mode())
	ind.Handle(events.NewWifiDisconnected(events.ReasonAuthFail))
	assert.Equal(t, ModeError, ind.Mode())
}

func TestRunDrivesPin(t *testing.T) {
	pin := &gpio.MemPin{}
	ind := New(pin)
	ind.tick = time.Millisecond
	ind.Set(ModeOK)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { ind.Run(ctx) })

	require.Eventually(t, pin.Level, time.Second, time.Millisecond)
	cancel()
	wg.Wait()
	assert.False(t, pin.Level(), "led left on after stop")
}
