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
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ntcpanel/internal/events"
	"ntcpanel/pkg/adc"
	"ntcpanel/pkg/eventbus"
)

// fakeSource hands out queued raw values per channel, once.
type fakeSource struct {
	mu   sync.Mutex
	next map[int]int
}

func (s *fakeSource) set(ch, raw int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next == nil {
		s.next = map[int]int{}
	}
	s.next[ch] = raw
}

func (s *fakeSource) ReadAndReset(ch int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.next[ch]
	if !ok {
		return 0, adc.ErrNoData
	}
	delete(s.next, ch)
	return v, nil
}

type captureRenderer struct {
	mu     sync.Mutex
	frames [][]string
}

func (c *captureRenderer) Render(lines []string) error {
	c.mu.Lock()
	c.frames = append(c.frames, lines)
	c.mu.Unlock()
	return nil
}

func (c *captureRenderer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func TestTemperatureScreenLayout(t *testing.T) {
	b := NewBuffer()
	nan := math32.NaN()
	drawTemperatures(b, [adc.NumChannels]float32{21.25, 20.75, 23.5, 22, nan, 19.5})

	assert.Equal(t, []string{
		"T1: 21.2C  T4: 22.0C",
		"T2: 20.7C  T5: --.-C",
		"T3: 23.5C  T6: 19.5C",
		" 19.5C< 21.4C< 23.5C",
	}, b.Lines())

	drawTemperatures(b, [adc.NumChannels]float32{nan, nan, nan, nan, nan, nan})
	assert.Equal(t, " --.-C< --.-C< --.-C", b.Line(3))
}

func TestPollKeepsLastValue(t *testing.T) {
	src := &fakeSource{}
	d := New(src, Config{})

	src.set(0, 2048)
	d.poll()
	first := d.Latest()
	assert.True(t, first[0].Valid)
	assert.InDelta(t, 41.47, first[0].Celsius, 0.1)
	assert.False(t, first[1].Valid)

	// no new data: value retained
	d.poll()
	assert.Equal(t, first[0], d.Latest()[0])

	src.set(0, 1000)
	d.poll()
	assert.InDelta(t, 22.3, d.Latest()[0].Celsius, 0.1)

	lines := d.compose()
	assert.True(t, strings.HasPrefix(lines[0], "T1: 22.3C"), lines[0])
	assert.Equal(t, lines, d.Frame())
}

func TestShortPressCyclesScreens(t *testing.T) {
	d := New(&fakeSource{}, Config{})
	assert.Equal(t, ScreenTemperatures, d.Screen())

	d.Handle(events.NewButtonShortPress())
	assert.Equal(t, ScreenNetwork, d.Screen())
	assert.Equal(t, "WiFi: waiting", strings.TrimSpace(d.compose()[1]))

	d.Handle(events.NewButtonShortPress())
	assert.Equal(t, ScreenStatus, d.Screen())
	assert.Contains(t, d.compose()[2], "Press S:2 L:0")

	d.Handle(events.NewButtonShortPress())
	assert.Equal(t, ScreenTemperatures, d.Screen())
}

func TestLongPressBanner(t *testing.T) {
	d := New(&fakeSource{}, Config{})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	d.Handle(events.NewButtonLongPress())
	assert.Equal(t, "Network mode change", strings.TrimSpace(d.compose()[1]))

	now = now.Add(bannerDuration)
	assert.Equal(t, "T1: --.-C  T4: --.-C", d.compose()[0])

	// a short press dismisses the banner without changing screen
	d.Handle(events.NewButtonLongPress())
	d.Handle(events.NewButtonShortPress())
	assert.Equal(t, ScreenTemperatures, d.Screen())
	assert.Equal(t, "T1: --.-C  T4: --.-C", d.compose()[0])
}

func TestNetworkScreenFollowsWifiEvents(t *testing.T) {
	d := New(&fakeSource{}, Config{})
	d.Handle(events.NewButtonShortPress())

	d.Handle(events.NewWifiConnected(netip.MustParseAddr("10.0.0.7")))
	lines := d.compose()
	assert.Equal(t, "WiFi: connected", strings.TrimSpace(lines[1]))
	assert.Equal(t, "IP: 10.0.0.7", strings.TrimSpace(lines[2]))

	d.Handle(events.NewWifiDisconnected(events.ReasonNoAPFound))
	lines = d.compose()
	assert.Equal(t, "WiFi: disconnected", strings.TrimSpace(lines[1]))
	assert.Equal(t, "SSID not found", strings.TrimSpace(lines[2]))
}

func TestRunRendersOnEventsAndTicks(t *testing.T) {
	bus := eventbus.New(4)
	src := &fakeSource{}
	src.set(2, 2048)
	cr := &captureRenderer{}
	d := New(src, Config{Refresh: time.Hour}, cr)
	d.Subscribe(bus)
	assert.Len(t, bus.Handlers(events.ButtonShortPress), 1)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Go(func() { bus.Run(ctx) })
	wg.Go(func() { d.Run(ctx) })
	defer func() {
		cancel()
		wg.Wait()
	}()

	require.Eventually(t, func() bool { return cr.count() == 1 }, time.Second, time.Millisecond)
	assert.True(t, d.Latest()[2].Valid)

	require.NoError(t, bus.Publish(events.NewButtonShortPress()))
	require.Eventually(t, func() bool { return cr.count() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, ScreenNetwork, d.Screen())
}

func TestWebRendererBroadcasts(t *testing.T) {
	wr := NewWebRenderer()
	srv := httptest.NewServer(wr.Handler())
	defer srv.Close()

	require.NoError(t, wr.Render([]string{"a", "b", "c", "d"}))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var msg frameMessage
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, []string{"a", "b", "c", "d"}, msg.Lines)

	require.Eventually(t, func() bool { return wr.clients.count() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, wr.Render([]string{"e", "f", "g", "h"}))
	require.NoError(t, ws.ReadJSON(&msg))
	assert.Equal(t, []string{"e", "f", "g", "h"}, msg.Lines)
}
