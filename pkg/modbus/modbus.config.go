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

package modbus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ntcpanel/pkg/adc"
)

type Config struct {
	Modbus   ModbusConfig `yaml:"modbus"`
	Sampling Sampling     `yaml:"sampling"`
	Channels []ChannelDef `yaml:"channels"`
}

type ModbusConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	SlaveID byte   `yaml:"slave_id"`
	Timeout int    `yaml:"timeout"` // seconds
}

type Sampling struct {
	// Reads is the number of register scans folded into one batch.
	Reads    int `yaml:"reads"`
	PeriodMS int `yaml:"period_ms"`
}

// ChannelDef maps one thermistor channel to a 16 bit register holding
// the raw conversion count.
type ChannelDef struct {
	Channel     uint8  `yaml:"channel"`
	Address     uint16 `yaml:"address"`
	Type        string `yaml:"type"`  // "input" (default) or "holding"
	Shift       uint8  `yaml:"shift"` // right shift to bring wider counts down to 12 bit
	Description string `yaml:"description"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read modbus config: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse modbus config: %w", err)
	}
	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Modbus.Port == 0 {
		c.Modbus.Port = 502
	}
	if c.Modbus.SlaveID == 0 {
		c.Modbus.SlaveID = 1
	}
	if c.Modbus.Timeout == 0 {
		c.Modbus.Timeout = 2
	}
	if c.Sampling.Reads <= 0 {
		c.Sampling.Reads = 4
	}
	if c.Sampling.PeriodMS <= 0 {
		c.Sampling.PeriodMS = 100
	}
	for i := range c.Channels {
		if c.Channels[i].Type == "" {
			c.Channels[i].Type = "input"
		}
	}
}

func (c *Config) validate() error {
	if c.Modbus.Host == "" {
		return fmt.Errorf("modbus config: host is required")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("modbus config: no channels mapped")
	}
	seen := map[uint8]bool{}
	for _, ch := range c.Channels {
		if seen[ch.Channel] {
			return fmt.Errorf("modbus config: channel %d mapped twice", ch.Channel)
		}
		seen[ch.Channel] = true
		if int(ch.Channel) >= adc.NumChannels {
			return fmt.Errorf("modbus config: channel %d out of range", ch.Channel)
		}
		if ch.Type != "input" && ch.Type != "holding" {
			return fmt.Errorf("modbus config: channel %d: unsupported register type %q", ch.Channel, ch.Type)
		}
	}
	return nil
}
