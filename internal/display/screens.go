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
	"fmt"
	"time"

	"github.com/chewxy/math32"

	"ntcpanel/pkg/adc"
)

type Screen int

const (
	ScreenTemperatures Screen = iota
	ScreenNetwork
	ScreenStatus
	numScreens
)

func (s Screen) String() string {
	switch s {
	case ScreenTemperatures:
		return "temperatures"
	case ScreenNetwork:
		return "network"
	case ScreenStatus:
		return "status"
	default:
		return fmt.Sprintf("Screen(%d)", int(s))
	}
}

// Next cycles through the screens.
func (s Screen) Next() Screen {
	return (s + 1) % numScreens
}

// drawTemperatures lays out six channels in two columns and a
// min<avg<max row over the channels that have a value.
//
//	T1: 21.3C  T4: 22.0C
//	T2: 20.9C  T5: --.-C
//	T3: 23.1C  T6: 19.8C
//	 19.8C< 21.4C< 23.1C
func drawTemperatures(b *Buffer, temps [adc.NumChannels]float32) {
	b.Clear()
	for row := range 3 {
		b.CopyAt(fmt.Sprintf("T%d:     C  T%d:     C", row+1, row+4), 0, row)
	}
	b.CopyAt("     C<     C<     C", 0, 3)

	minT, maxT, sum := math32.Inf(1), math32.Inf(-1), float32(0)
	n := 0
	for i, t := range temps {
		col := 3
		if i >= 3 {
			col = 14
		}
		b.CopyAt(FormatTemperature(t), col, i%3)
		if math32.IsNaN(t) {
			continue
		}
		minT = math32.Min(minT, t)
		maxT = math32.Max(maxT, t)
		sum += t
		n++
	}

	avg := math32.NaN()
	if n == 0 {
		minT, maxT = math32.NaN(), math32.NaN()
	} else {
		avg = sum / float32(n)
	}
	b.CopyAt(FormatTemperature(minT), 0, 3)
	b.CopyAt(FormatTemperature(avg), 7, 3)
	b.CopyAt(FormatTemperature(maxT), 14, 3)
}

// NetworkStatus is what the display knows about the network from events.
type NetworkStatus struct {
	Known     bool
	Connected bool
	IP        string
	Reason    string
}

func drawNetwork(b *Buffer, st NetworkStatus) {
	b.Clear()
	b.CopyAt("Network", 0, 0)
	switch {
	case !st.Known:
		b.CopyAt("WiFi: waiting", 0, 1)
	case st.Connected:
		b.CopyAt("WiFi: connected", 0, 1)
		b.CopyAt("IP: "+st.IP, 0, 2)
	default:
		b.CopyAt("WiFi: disconnected", 0, 1)
		b.CopyAt(st.Reason, 0, 2)
	}
	b.CopyAt("hold 3s: setup mode", 0, 3)
}

type counters struct {
	uptime      time.Duration
	shortPress  int
	longPress   int
	disconnects int
}

func drawStatus(b *Buffer, c counters) {
	b.Clear()
	b.CopyAt("Status", 0, 0)
	b.CopyAt("Up: "+formatUptime(c.uptime), 0, 1)
	b.CopyAt(fmt.Sprintf("Press S:%d L:%d", c.shortPress, c.longPress), 0, 2)
	b.CopyAt(fmt.Sprintf("WiFi drops: %d", c.disconnects), 0, 3)
}

func drawBanner(b *Buffer, text string) {
	b.Clear()
	b.CopyAt(text, 0, 1)
}

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d / (24 * time.Hour))
	d -= time.Duration(days) * 24 * time.Hour
	h, m, s := int(d/time.Hour), int(d/time.Minute)%60, int(d/time.Second)%60
	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, h, m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
