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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ntcpanel.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 10, c.EventQueue)
	assert.Equal(t, -1, c.Button.GPIO)
	assert.Equal(t, -1, c.StatusLED.GPIO)
	assert.Equal(t, 90*time.Millisecond, c.Button.Debounce())
	assert.Equal(t, 3*time.Second, c.Button.LongPress())
	assert.Equal(t, 100*time.Millisecond, c.Button.Tick())
	assert.Equal(t, "mock", c.ADC.Driver)
	assert.Equal(t, 500*time.Millisecond, c.Display.Refresh())
	assert.Equal(t, "sim", c.Network.Radio)
	assert.Equal(t, 5*time.Second, c.Network.RetryDelay())
	assert.Equal(t, "NTC-Panel", c.Network.DefaultAPSSID)
	assert.Empty(t, c.DataLogger.EmonCMSAddr)
	assert.Equal(t, 60, c.DataLogger.IntervalSeconds)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"http_addr": ":9000",
		"button": {"gpio": 17, "active_low": true, "long_press_ms": 2000},
		"adc": {"driver": "serial", "serial_port": "/dev/ttyUSB0"},
		"network": {"radio": "nmcli", "interface": "wlp2s0"},
		"datalogger": {"emoncms_addr": "http://emoncms.local", "emoncms_apikey": "k"}
	}`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.HTTPAddr)
	assert.Equal(t, 17, c.Button.GPIO)
	assert.True(t, c.Button.ActiveLow)
	assert.Equal(t, 2*time.Second, c.Button.LongPress())
	assert.Equal(t, 90*time.Millisecond, c.Button.Debounce())
	assert.Equal(t, "/dev/ttyUSB0", c.ADC.SerialPort)
	assert.Equal(t, 115200, c.ADC.SerialBaud)
	assert.Equal(t, "wlp2s0", c.Network.Interface)
	assert.Equal(t, -1, c.StatusLED.GPIO)
	assert.Equal(t, "http://emoncms.local", c.DataLogger.EmonCMSAddr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown driver":   `{"adc": {"driver": "spi"}}`,
		"serial sans port": `{"adc": {"driver": "serial"}}`,
		"unknown radio":    `{"network": {"radio": "ble"}}`,
		"negative queue":   `{"event_queue": -2}`,
		"bad json":         `{"adc": `,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
