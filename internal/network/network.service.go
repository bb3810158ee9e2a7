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
	"sync"
	"time"

	"ntcpanel/internal/events"
	"ntcpanel/pkg/eventbus"
	"ntcpanel/pkg/kvstore"
	"ntcpanel/pkg/logger"
)

type Mode int

const (
	ModeStation Mode = iota
	ModeAccessPoint
)

func (m Mode) String() string {
	switch m {
	case ModeStation:
		return "station"
	case ModeAccessPoint:
		return "access point"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Store is the persistent settings store, usually a *kvstore.Store.
type Store interface {
	Settings
	EnsureString(key, def string) (string, error)
	EnsureInt32(key string, def int32) (int32, error)
}

type Publisher interface {
	Publish(ev eventbus.Event) error
}

type Config struct {
	APAddr           netip.Prefix
	DNSAddr          string
	PortalAddr       string
	RetryDelay       time.Duration
	RestartDelay     time.Duration
	StatusPoll       time.Duration
	DefaultAPSSID    string
	DefaultAPPass    string
	DefaultAPChannel int32
}

func DefaultConfig() Config {
	return Config{
		APAddr:           netip.MustParsePrefix("192.168.4.1/24"),
		DNSAddr:          ":53",
		PortalAddr:       ":80",
		RetryDelay:       5 * time.Second,
		RestartDelay:     5 * time.Second,
		StatusPoll:       5 * time.Second,
		DefaultAPSSID:    "NTC-Panel",
		DefaultAPChannel: 1,
	}
}

// Status is a snapshot of the manager state.
type Status struct {
	Mode   Mode
	IP     netip.Addr
	Reason uint8
}

// Manager keeps the station connected and switches to a configuration
// access point with a captive portal on a long button press. A second
// long press leaves the access point and asks for a restart.
type Manager struct {
	radio   Radio
	store   Store
	pub     Publisher
	cfg     Config
	restart func()
	log     *logger.Logger

	toggle chan struct{}

	mu     sync.Mutex
	mode   Mode
	ip     netip.Addr
	reason uint8

	portalCancel context.CancelFunc
	portalWG     sync.WaitGroup
}

func NewManager(radio Radio, store Store, pub Publisher, cfg Config, restart func()) *Manager {
	def := DefaultConfig()
	if !cfg.APAddr.IsValid() {
		cfg.APAddr = def.APAddr
	}
	if cfg.DNSAddr == "" {
		cfg.DNSAddr = def.DNSAddr
	}
	if cfg.PortalAddr == "" {
		cfg.PortalAddr = def.PortalAddr
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if cfg.StatusPoll <= 0 {
		cfg.StatusPoll = def.StatusPoll
	}
	if cfg.DefaultAPSSID == "" {
		cfg.DefaultAPSSID = def.DefaultAPSSID
	}
	cfg.DefaultAPChannel = ValidChannel(int(cfg.DefaultAPChannel))
	if restart == nil {
		restart = func() {}
	}
	return &Manager{
		radio:   radio,
		store:   store,
		pub:     pub,
		cfg:     cfg,
		restart: restart,
		log:     logger.New("Network"),
		toggle:  make(chan struct{}, 1),
		reason:  events.ReasonUnspecified,
	}
}

func (m *Manager) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(events.ButtonLongPress, m)
}

// Handle runs on the bus dispatch goroutine and only signals Run.
func (m *Manager) Handle(ev eventbus.Event) {
	if ev.Kind != events.ButtonLongPress {
		return
	}
	select {
	case m.toggle <- struct{}{}:
	default:
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Mode: m.mode, IP: m.ip, Reason: m.reason}
}

func (m *Manager) Run(ctx context.Context) {
	m.log.Info("Running...")
	defer m.log.Info("Stopped")

	m.ensureDefaults()

	for {
		if !m.runStation(ctx) {
			return
		}
		if err := m.startAccessPoint(ctx); err != nil {
			m.log.Error("access point: %v", err)
			continue
		}

		select {
		case <-ctx.Done():
			m.stopAccessPoint()
			return
		case <-m.toggle:
		}

		m.log.Info("Configuration done, restarting in %v", m.cfg.RestartDelay)
		m.stopAccessPoint()
		if !sleep(ctx, m.cfg.RestartDelay) {
			return
		}
		m.restart()
		return
	}
}

// ensureDefaults writes the access point defaults for absent keys.
func (m *Manager) ensureDefaults() {
	if _, err := m.store.EnsureString(kvstore.KeyAPSSID, m.cfg.DefaultAPSSID); err != nil {
		m.log.Error("store: %v", err)
	}
	if _, err := m.store.EnsureString(kvstore.KeyAPPass, m.cfg.DefaultAPPass); err != nil {
		m.log.Error("store: %v", err)
	}
	if _, err := m.store.EnsureInt32(kvstore.KeyAPChannel, m.cfg.DefaultAPChannel); err != nil {
		m.log.Error("store: %v", err)
	}
}

// runStation keeps the station connected until a toggle (true) or until
// ctx is done (false).
func (m *Manager) runStation(ctx context.Context) bool {
	staCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.station(staCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case <-ctx.Done():
		return false
	case <-m.toggle:
		return true
	}
}

func (m *Manager) station(ctx context.Context) {
	m.setMode(ModeStation)
	for ctx.Err() == nil {
		ssid := m.store.String(kvstore.KeySTASSID, "")
		if ssid == "" {
			m.log.Warn("No station credentials, hold the button to configure")
			m.disconnected(&DisconnectError{Reason: events.ReasonNoAPFound})
			if !sleep(ctx, m.cfg.RetryDelay) {
				return
			}
			continue
		}

		m.log.Info("Connecting to %q", ssid)
		ip, err := m.radio.ConnectStation(ctx, ssid, m.store.String(kvstore.KeySTAPass, ""))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.disconnected(err)
			if !sleep(ctx, m.cfg.RetryDelay) {
				return
			}
			continue
		}
		m.connected(ip)

		m.watch(ctx)
		if !sleep(ctx, m.cfg.RetryDelay) {
			return
		}
	}
}

// watch polls the station until it drops or ctx is done.
func (m *Manager) watch(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.StatusPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		ip, err := m.radio.Status(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			m.disconnected(err)
			return
		}
		m.mu.Lock()
		changed := ip != m.ip
		m.mu.Unlock()
		if changed {
			m.connected(ip)
		}
	}
}

func (m *Manager) connected(ip netip.Addr) {
	m.mu.Lock()
	m.ip, m.reason = ip, 0
	m.mu.Unlock()
	m.log.Info("Connected, ip %s", ip)
	m.publish(events.NewWifiConnected(ip))
}

func (m *Manager) disconnected(err error) {
	reason := ReasonOf(err)
	m.mu.Lock()
	m.ip, m.reason = netip.Addr{}, reason
	m.mu.Unlock()
	m.log.Warn("%v", err)
	m.publish(events.NewWifiDisconnected(reason))
}

func (m *Manager) publish(ev eventbus.Event) {
	if err := m.pub.Publish(ev); err != nil {
		m.log.Error("publish %s: %v", events.Name(ev.Kind), err)
	}
}

func (m *Manager) setMode(mode Mode) {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
}

func (m *Manager) startAccessPoint(ctx context.Context) error {
	ssid := m.store.String(kvstore.KeyAPSSID, m.cfg.DefaultAPSSID)
	pass := m.store.String(kvstore.KeyAPPass, m.cfg.DefaultAPPass)
	channel := ValidChannel(int(m.store.Int32(kvstore.KeyAPChannel, m.cfg.DefaultAPChannel)))

	m.log.Info("Starting access point %q on channel %d", ssid, channel)
	if err := m.radio.StartAccessPoint(ctx, ssid, pass, int(channel)); err != nil {
		return err
	}
	if err := m.startPortal(ctx); err != nil {
		if stopErr := m.radio.StopAccessPoint(context.Background()); stopErr != nil {
			m.log.Error("stop access point: %v", stopErr)
		}
		return err
	}

	m.mu.Lock()
	m.mode, m.ip = ModeAccessPoint, m.cfg.APAddr.Addr()
	m.mu.Unlock()
	return nil
}

func (m *Manager) startPortal(ctx context.Context) error {
	apAddr := m.cfg.APAddr.Addr()
	dns := NewDNSResponder(m.cfg.DNSAddr, apAddr)
	if err := dns.Listen(); err != nil {
		return err
	}
	portal := NewPortal(m.cfg.PortalAddr, "http://"+apAddr.String()+"/", m.store)
	if err := portal.Listen(); err != nil {
		dns.Close()
		return err
	}

	portalCtx, cancel := context.WithCancel(ctx)
	m.portalCancel = cancel
	m.portalWG.Go(func() {
		if err := dns.Serve(portalCtx); err != nil {
			m.log.Error("dns: %v", err)
		}
	})
	m.portalWG.Go(func() {
		if err := portal.Serve(portalCtx); err != nil {
			m.log.Error("portal: %v", err)
		}
	})
	return nil
}

func (m *Manager) stopAccessPoint() {
	if m.portalCancel != nil {
		m.portalCancel()
		m.portalWG.Wait()
		m.portalCancel = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.radio.StopAccessPoint(ctx); err != nil {
		m.log.Error("stop access point: %v", err)
	}
}

// sleep waits d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
