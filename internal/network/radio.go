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

package network

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"

	"ntcpanel/internal/events"
)

// Radio brings the WiFi interface up as a station or an access point.
type Radio interface {
	// ConnectStation joins ssid and returns the leased address.
	ConnectStation(ctx context.Context, ssid, pass string) (netip.Addr, error)
	// Status reports the station address, or a *DisconnectError.
	Status(ctx context.Context) (netip.Addr, error)
	StartAccessPoint(ctx context.Context, ssid, pass string, channel int) error
	StopAccessPoint(ctx context.Context) error
}

// DisconnectError is a station failure with its reason code.
type DisconnectError struct {
	Reason uint8
	Err    error
}

func (e *DisconnectError) Error() string {
	if e.Err == nil {
		return "wifi disconnected: " + events.ReasonText(e.Reason)
	}
	return fmt.Sprintf("wifi disconnected: %s: %v", events.ReasonText(e.Reason), e.Err)
}

func (e *DisconnectError) Unwrap() error { return e.Err }

// ReasonOf extracts the reason code of err, ReasonUnspecified when err
// carries none.
func ReasonOf(err error) uint8 {
	var de *DisconnectError
	if errors.As(err, &de) {
		return de.Reason
	}
	return events.ReasonUnspecified
}

// SimRadio is an in-memory radio for tests and hosts without WiFi. A
// station connect succeeds when ssid and pass match a known network.
type SimRadio struct {
	mu       sync.Mutex
	networks map[string]string
	addr     netip.Addr
	joined   string
	dropped  uint8
	apSSID   string
	apOn     bool
	apChan   int
}

func NewSimRadio(addr netip.Addr) *SimRadio {
	return &SimRadio{networks: map[string]string{}, addr: addr}
}

// AddNetwork makes ssid joinable with pass.
func (r *SimRadio) AddNetwork(ssid, pass string) {
	r.mu.Lock()
	r.networks[ssid] = pass
	r.mu.Unlock()
}

// Drop disconnects the station with reason.
func (r *SimRadio) Drop(reason uint8) {
	r.mu.Lock()
	r.joined = ""
	r.dropped = reason
	r.mu.Unlock()
}

func (r *SimRadio) ConnectStation(ctx context.Context, ssid, pass string) (netip.Addr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return netip.Addr{}, err
	}
	want, ok := r.networks[ssid]
	switch {
	case !ok:
		return netip.Addr{}, &DisconnectError{Reason: events.ReasonNoAPFound}
	case want != pass:
		return netip.Addr{}, &DisconnectError{Reason: events.ReasonAuthFail}
	}
	r.joined = ssid
	r.dropped = 0
	return r.addr, nil
}

func (r *SimRadio) Status(ctx context.Context) (netip.Addr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.joined == "" {
		reason := r.dropped
		if reason == 0 {
			reason = events.ReasonUnspecified
		}
		return netip.Addr{}, &DisconnectError{Reason: reason}
	}
	return r.addr, nil
}

func (r *SimRadio) StartAccessPoint(ctx context.Context, ssid, pass string, channel int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apOn, r.apSSID, r.apChan = true, ssid, channel
	return nil
}

func (r *SimRadio) StopAccessPoint(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apOn = false
	return nil
}

// AccessPoint reports the running access point, if any.
func (r *SimRadio) AccessPoint() (ssid string, channel int, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.apSSID, r.apChan, r.apOn
}
