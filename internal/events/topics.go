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

package events

import (
	"fmt"
	"net/netip"

	"ntcpanel/pkg/eventbus"
)

const (
	WifiConnected eventbus.Kind = iota
	WifiDisconnected
	ButtonShortPress
	ButtonLongPress
)

// All lists every kind, in taxonomy order.
var All = []eventbus.Kind{WifiConnected, WifiDisconnected, ButtonShortPress, ButtonLongPress}

// Disconnect reason codes carried by WifiDisconnected.
const (
	ReasonUnspecified uint8 = 1
	ReasonAuthFail    uint8 = 202
	ReasonNoAPFound   uint8 = 201
	ReasonAssocFail   uint8 = 203
)

func Name(kind eventbus.Kind) string {
	switch kind {
	case WifiConnected:
		return "WifiConnected"
	case WifiDisconnected:
		return "WifiDisconnected"
	case ButtonShortPress:
		return "ButtonShortPress"
	case ButtonLongPress:
		return "ButtonLongPress"
	default:
		return fmt.Sprintf("Kind(%d)", kind)
	}
}

func ReasonText(reason uint8) string {
	switch reason {
	case ReasonNoAPFound:
		return "SSID not found"
	case ReasonAuthFail:
		return "auth failed"
	case ReasonAssocFail:
		return "assoc failed"
	default:
		return fmt.Sprintf("reason %d", reason)
	}
}

// NewWifiConnected carries an IPv4 address; other addresses give an
// empty payload.
func NewWifiConnected(ip netip.Addr) eventbus.Event {
	ip = ip.Unmap()
	if !ip.Is4() {
		return eventbus.NewEvent(WifiConnected)
	}
	a := ip.As4()
	return eventbus.NewEvent(WifiConnected, a[:]...)
}

func NewWifiDisconnected(reason uint8) eventbus.Event {
	return eventbus.NewEvent(WifiDisconnected, reason)
}

func NewButtonShortPress() eventbus.Event {
	return eventbus.NewEvent(ButtonShortPress)
}

func NewButtonLongPress() eventbus.Event {
	return eventbus.NewEvent(ButtonLongPress)
}

// IP decodes the address of a WifiConnected event.
func IP(ev eventbus.Event) (netip.Addr, bool) {
	if ev.Kind != WifiConnected || ev.Len != 4 {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4(ev.Payload), true
}

// Reason decodes the reason code of a WifiDisconnected event.
func Reason(ev eventbus.Event) (uint8, bool) {
	if ev.Kind != WifiDisconnected || ev.Len != 1 {
		return 0, false
	}
	return ev.Payload[0], true
}
