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

package main

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"

	"ntcpanel/internal/button"
	"ntcpanel/internal/config"
	"ntcpanel/internal/display"
	"ntcpanel/internal/emoncms"
	"ntcpanel/internal/network"
	"ntcpanel/internal/statusled"
	"ntcpanel/pkg/adc"
	"ntcpanel/pkg/appctx"
	"ntcpanel/pkg/eventbus"
	"ntcpanel/pkg/gpio"
	"ntcpanel/pkg/kvstore"
	"ntcpanel/pkg/logger"
	"ntcpanel/pkg/modbus"
	"ntcpanel/pkg/rootserv"
	"ntcpanel/pkg/service"
	"ntcpanel/pkg/sysmon"
)

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}
	inRoot := func(path string) string {
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(rootdir, path)
	}

	if err := logger.Init(inRoot("var/logs/ntcpanel.log")); err != nil {
		fmt.Fprintf(os.Stderr, "log file: %v\n", err)
	}
	log := logger.New("Main")

	appConf := config.LoadFile(inRoot("var/config/ntcpanel.json"))
	store, err := kvstore.Open(inRoot(appConf.KVStore))
	if err != nil {
		log.Fatal("kvstore: %v", err)
	}

	ctx, ctxCancel := appctx.New()

	bus := eventbus.New(appConf.EventQueue)
	var closers []io.Closer

	// button line, virtual unless a gpio is configured
	var line gpio.EdgeSource
	var sim *gpio.SimLine
	if appConf.Button.GPIO < 0 {
		sim = gpio.NewSimLine()
		line = sim
	} else {
		l, c, err := openButtonLine(appConf)
		if err != nil {
			log.Fatal("button: %v", err)
		}
		line = l
		closers = append(closers, c)
	}

	var ledPin gpio.Pin = &gpio.MemPin{}
	if appConf.StatusLED.GPIO >= 0 {
		p, c, err := openLEDPin(appConf)
		if err != nil {
			log.Fatal("status led: %v", err)
		}
		ledPin = p
		closers = append(closers, c)
	}

	drv, err := openADC(ctx, appConf, inRoot)
	if err != nil {
		log.Fatal("adc: %v", err)
	}

	// init services
	aggregator := adc.NewAggregator(drv, adc.WithReadTimeout(appConf.ADC.ReadTimeout()))
	closers = append(closers, aggregator)

	buttonMonitor := button.New(line, bus, button.Config{
		Debounce:  appConf.Button.Debounce(),
		LongPress: appConf.Button.LongPress(),
		Tick:      appConf.Button.Tick(),
		EdgeQueue: appConf.Button.EdgeQueue,
	})
	buttonWatcher := service.RunnableFunc(func(ctx context.Context) {
		if err := buttonMonitor.Watch(ctx, line); err != nil {
			log.Fatal("button: %v", err)
		}
	})

	webDisplay := display.NewWebRenderer()
	displayService := display.New(aggregator, display.Config{Refresh: appConf.Display.Refresh()},
		display.NewLogRenderer(), webDisplay)
	displayService.Subscribe(bus)

	statusLED := statusled.New(ledPin)
	statusLED.Subscribe(bus)

	netManager := network.NewManager(openRadio(appConf, store), store, bus, networkConfig(appConf), func() {
		ctxCancel(appctx.ErrRestart)
	})
	netManager.Subscribe(bus)

	dataLoggerService := emoncms.New(displayService, appConf)

	sysMonitorService := sysmon.New(inRoot("var"))
	sysMonitorService.Register("eventbus", func() any { return bus.Stats() })
	sysMonitorService.Register("button", func() any { return buttonMonitor.Stats() })
	sysMonitorService.Register("adc", func() any { return aggregator.Stats() })
	sysMonitorService.Register("network", func() any {
		st := netManager.Status()
		return map[string]any{"mode": st.Mode.String(), "ip": st.IP, "reason": st.Reason}
	})

	// attach web handler enabled services
	server := rootserv.New(appConf.HTTPAddr)
	server.Attach("/display", "Live LCD mirror", webDisplay.Handler())
	server.Attach("/button", "Button state and virtual button", buttonMonitor.WebService(sim))
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, []service.Runnable{
		bus,
		buttonMonitor,
		buttonWatcher,
		aggregator,
		displayService,
		statusLED,
		netManager,
		dataLoggerService,
		server,
	})

	// waits for all services to stop
	code := <-exitCh
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Error("close: %v", err)
		}
	}
	bus.PrintStats()
	code = appctx.ExitCode(ctx, code)
	log.Info("Exit code %d", code)
	logger.Close()
	os.Exit(code)
}

func openADC(ctx context.Context, conf *config.Config, inRoot func(string) string) (adc.Driver, error) {
	switch conf.ADC.Driver {
	case "serial":
		return adc.OpenSerial(conf.ADC.SerialPort, conf.ADC.SerialBaud)
	case "modbus":
		modbusConf, err := modbus.LoadConfig(inRoot(conf.ADC.ModbusMap))
		if err != nil {
			return nil, err
		}
		return modbus.NewADCDriver(ctx, modbusConf)
	default:
		mockConf := adc.DefaultMockConfig()
		if conf.ADC.MockNoise > 0 {
			mockConf.Noise = uint16(conf.ADC.MockNoise)
		}
		return adc.NewMockDriver(mockConf), nil
	}
}

func openRadio(conf *config.Config, store *kvstore.Store) network.Radio {
	if conf.Network.Radio == "nmcli" {
		return network.NewNMCLIRadio(conf.Network.Interface, apPrefix(conf))
	}
	// the simulated station joins whatever network is configured
	radio := network.NewSimRadio(netip.MustParseAddr("10.0.0.2"))
	if ssid := store.String(kvstore.KeySTASSID, ""); ssid != "" {
		radio.AddNetwork(ssid, store.String(kvstore.KeySTAPass, ""))
	}
	return radio
}

func apPrefix(conf *config.Config) netip.Prefix {
	prefix, err := netip.ParsePrefix(conf.Network.APAddr)
	if err != nil {
		logger.New("Main").Fatal("network ap_addr: %v", err)
	}
	return prefix
}

func networkConfig(conf *config.Config) network.Config {
	return network.Config{
		APAddr:           apPrefix(conf),
		DNSAddr:          conf.Network.DNSAddr,
		PortalAddr:       conf.Network.PortalAddr,
		RetryDelay:       conf.Network.RetryDelay(),
		RestartDelay:     conf.Network.RestartDelay(),
		DefaultAPSSID:    conf.Network.DefaultAPSSID,
		DefaultAPPass:    conf.Network.DefaultAPPass,
		DefaultAPChannel: int32(conf.Network.DefaultAPChannel),
	}
}
