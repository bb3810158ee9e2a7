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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"
)

type ButtonConfig struct {
	// GPIO line number, negative for the virtual button
	GPIO        int  `json:"gpio"`
	ActiveLow   bool `json:"active_low"`
	DebounceMS  int  `json:"debounce_ms"`
	LongPressMS int  `json:"long_press_ms"`
	TickMS      int  `json:"tick_ms"`
	EdgeQueue   int  `json:"edge_queue"`
}

type StatusLEDConfig struct {
	// GPIO line number, negative to keep the LED in memory only
	GPIO int `json:"gpio"`
}

type ADCConfig struct {
	// Driver is one of "mock", "serial" or "modbus"
	Driver        string `json:"driver"`
	SerialPort    string `json:"serial_port"`
	SerialBaud    int    `json:"serial_baud"`
	ModbusMap     string `json:"modbus_map"`
	ReadTimeoutMS int    `json:"read_timeout_ms"`
	MockNoise     int    `json:"mock_noise"`
}

type DisplayConfig struct {
	RefreshMS int `json:"refresh_ms"`
}

type NetworkConfig struct {
	// Radio is "sim" or "nmcli"
	Radio               string `json:"radio"`
	Interface           string `json:"interface"`
	APAddr              string `json:"ap_addr"`
	DNSAddr             string `json:"dns_addr"`
	PortalAddr          string `json:"portal_addr"`
	RetryDelaySeconds   int    `json:"retry_delay_seconds"`
	RestartDelaySeconds int    `json:"restart_delay_seconds"`
	DefaultAPSSID       string `json:"default_ap_ssid"`
	DefaultAPPass       string `json:"default_ap_pass"`
	DefaultAPChannel    int    `json:"default_ap_channel"`
}

type DataLoggerConfig struct {
	EmonCMSAddr     string `json:"emoncms_addr"`
	EmonCMSApiKey   string `json:"emoncms_apikey"`
	IntervalSeconds int    `json:"interval_seconds"`
}

type Config struct {
	HTTPAddr   string           `json:"http_addr"`
	EventQueue int              `json:"event_queue"`
	SysfsRoot  string           `json:"sysfs_root"`
	KVStore    string           `json:"kvstore"`
	Button     ButtonConfig     `json:"button"`
	StatusLED  StatusLEDConfig  `json:"status_led"`
	ADC        ADCConfig        `json:"adc"`
	Display    DisplayConfig    `json:"display"`
	Network    NetworkConfig    `json:"network"`
	DataLogger DataLoggerConfig `json:"datalogger"`
}

// Default is the configuration used for absent keys and missing files.
func Default() *Config {
	c := &Config{
		Button:    ButtonConfig{GPIO: -1},
		StatusLED: StatusLEDConfig{GPIO: -1},
	}
	c.applyDefaults()
	return c
}

// Load reads path and applies defaults. A missing file yields Default.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	c := Config{
		Button:    ButtonConfig{GPIO: -1},
		StatusLED: StatusLEDConfig{GPIO: -1},
	}
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func LoadFile(path string) *Config {
	c, err := Load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return c
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.EventQueue == 0 {
		c.EventQueue = 10
	}
	if c.SysfsRoot == "" {
		c.SysfsRoot = "/sys/class/gpio"
	}
	if c.KVStore == "" {
		c.KVStore = "var/nvs/device.yaml"
	}
	if c.Button.DebounceMS == 0 {
		c.Button.DebounceMS = 90
	}
	if c.Button.LongPressMS == 0 {
		c.Button.LongPressMS = 3000
	}
	if c.Button.TickMS == 0 {
		c.Button.TickMS = 100
	}
	if c.Button.EdgeQueue == 0 {
		c.Button.EdgeQueue = 10
	}
	if c.ADC.Driver == "" {
		c.ADC.Driver = "mock"
	}
	if c.ADC.SerialBaud == 0 {
		c.ADC.SerialBaud = 115200
	}
	if c.ADC.ModbusMap == "" {
		c.ADC.ModbusMap = "var/config/adc.modbus.yml"
	}
	if c.ADC.ReadTimeoutMS == 0 {
		c.ADC.ReadTimeoutMS = 1000
	}
	if c.Display.RefreshMS == 0 {
		c.Display.RefreshMS = 500
	}
	if c.Network.Radio == "" {
		c.Network.Radio = "sim"
	}
	if c.Network.Interface == "" {
		c.Network.Interface = "wlan0"
	}
	if c.Network.APAddr == "" {
		c.Network.APAddr = "192.168.4.1/24"
	}
	if c.Network.DNSAddr == "" {
		c.Network.DNSAddr = ":53"
	}
	if c.Network.PortalAddr == "" {
		c.Network.PortalAddr = ":80"
	}
	if c.Network.RetryDelaySeconds == 0 {
		c.Network.RetryDelaySeconds = 5
	}
	if c.Network.RestartDelaySeconds == 0 {
		c.Network.RestartDelaySeconds = 5
	}
	if c.Network.DefaultAPSSID == "" {
		c.Network.DefaultAPSSID = "NTC-Panel"
	}
	if c.Network.DefaultAPChannel == 0 {
		c.Network.DefaultAPChannel = 1
	}
	if c.DataLogger.IntervalSeconds == 0 {
		c.DataLogger.IntervalSeconds = 60
	}
}

func (c *Config) validate() error {
	switch c.ADC.Driver {
	case "mock", "modbus":
	case "serial":
		if c.ADC.SerialPort == "" {
			return fmt.Errorf("adc driver serial needs serial_port")
		}
	default:
		return fmt.Errorf("unknown adc driver %q", c.ADC.Driver)
	}
	switch c.Network.Radio {
	case "sim", "nmcli":
	default:
		return fmt.Errorf("unknown network radio %q", c.Network.Radio)
	}
	if c.EventQueue < 1 {
		return fmt.Errorf("event_queue must be positive, got %d", c.EventQueue)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func (b ButtonConfig) Debounce() time.Duration  { return ms(b.DebounceMS) }
func (b ButtonConfig) LongPress() time.Duration { return ms(b.LongPressMS) }
func (b ButtonConfig) Tick() time.Duration      { return ms(b.TickMS) }

func (a ADCConfig) ReadTimeout() time.Duration { return ms(a.ReadTimeoutMS) }

func (d DisplayConfig) Refresh() time.Duration { return ms(d.RefreshMS) }

func (n NetworkConfig) RetryDelay() time.Duration {
	return time.Duration(n.RetryDelaySeconds) * time.Second
}

func (n NetworkConfig) RestartDelay() time.Duration {
	return time.Duration(n.RestartDelaySeconds) * time.Second
}
