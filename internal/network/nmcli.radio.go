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
	"fmt"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"

	"ntcpanel/internal/events"
	"ntcpanel/pkg/logger"
)

type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMCLIRadio drives NetworkManager through the nmcli command line.
type NMCLIRadio struct {
	iface  string
	apConn string
	apAddr netip.Prefix
	run    runner
	log    *logger.Logger
}

func NewNMCLIRadio(iface string, apAddr netip.Prefix) *NMCLIRadio {
	return &NMCLIRadio{
		iface:  iface,
		apConn: "ntcpanel-ap",
		apAddr: apAddr,
		run:    execRunner,
		log:    logger.New("NMCLI"),
	}
}

func (r *NMCLIRadio) nmcli(ctx context.Context, args ...string) (string, error) {
	r.log.Debug("nmcli %s", strings.Join(args, " "))
	out, err := r.run(ctx, "nmcli", args...)
	text := strings.TrimSpace(string(out))
	if err != nil {
		return text, fmt.Errorf("nmcli %s: %w: %s", args[0], err, text)
	}
	return text, nil
}

func (r *NMCLIRadio) ConnectStation(ctx context.Context, ssid, pass string) (netip.Addr, error) {
	args := []string{"--wait", "30", "device", "wifi", "connect", ssid}
	if pass != "" {
		args = append(args, "password", pass)
	}
	args = append(args, "ifname", r.iface)
	out, err := r.nmcli(ctx, args...)
	if err != nil {
		return netip.Addr{}, &DisconnectError{Reason: classify(out), Err: err}
	}
	return r.Status(ctx)
}

// classify maps nmcli failure text to a disconnect reason.
func classify(out string) uint8 {
	lower := strings.ToLower(out)
	switch {
	case strings.Contains(lower, "no network with ssid"):
		return events.ReasonNoAPFound
	case strings.Contains(lower, "secrets were required"),
		strings.Contains(lower, "invalid password"),
		strings.Contains(lower, "802-11-wireless-security"):
		return events.ReasonAuthFail
	case strings.Contains(lower, "association"):
		return events.ReasonAssocFail
	default:
		return events.ReasonUnspecified
	}
}

func (r *NMCLIRadio) Status(ctx context.Context) (netip.Addr, error) {
	out, err := r.nmcli(ctx, "-g", "GENERAL.STATE,IP4.ADDRESS", "device", "show", r.iface)
	if err != nil {
		return netip.Addr{}, &DisconnectError{Reason: events.ReasonUnspecified, Err: err}
	}
	return parseDeviceShow(out)
}

// parseDeviceShow reads the terse output of
// "nmcli -g GENERAL.STATE,IP4.ADDRESS device show", e.g.
//
//	100 (connected)
//	192.168.1.42/24
func parseDeviceShow(out string) (netip.Addr, error) {
	lines := strings.Split(out, "\n")
	state, _, _ := strings.Cut(strings.TrimSpace(lines[0]), " ")
	code, err := strconv.Atoi(state)
	if err != nil || code != 100 {
		return netip.Addr{}, &DisconnectError{Reason: events.ReasonUnspecified}
	}
	if len(lines) < 2 {
		return netip.Addr{}, &DisconnectError{Reason: events.ReasonUnspecified, Err: fmt.Errorf("no ipv4 address")}
	}
	first, _, _ := strings.Cut(strings.TrimSpace(lines[1]), "|")
	prefix, err := netip.ParsePrefix(strings.TrimSpace(first))
	if err != nil {
		return netip.Addr{}, &DisconnectError{Reason: events.ReasonUnspecified, Err: err}
	}
	return prefix.Addr(), nil
}

func (r *NMCLIRadio) StartAccessPoint(ctx context.Context, ssid, pass string, channel int) error {
	args := []string{"device", "wifi", "hotspot", "ifname", r.iface, "con-name", r.apConn,
		"ssid", ssid, "band", "bg", "channel", strconv.Itoa(channel)}
	if pass != "" {
		args = append(args, "password", pass)
	}
	if _, err := r.nmcli(ctx, args...); err != nil {
		return err
	}
	if _, err := r.nmcli(ctx, "connection", "modify", r.apConn,
		"ipv4.method", "shared", "ipv4.addresses", r.apAddr.String()); err != nil {
		return err
	}
	_, err := r.nmcli(ctx, "connection", "up", r.apConn)
	return err
}

func (r *NMCLIRadio) StopAccessPoint(ctx context.Context) error {
	_, err := r.nmcli(ctx, "connection", "down", r.apConn)
	return err
}
