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

//go:build linux

package main

import (
	"io"

	"ntcpanel/internal/config"
	"ntcpanel/pkg/gpio"
)

func openButtonLine(conf *config.Config) (gpio.EdgeSource, io.Closer, error) {
	line, err := gpio.OpenLine(conf.SysfsRoot, conf.Button.GPIO, conf.Button.ActiveLow)
	if err != nil {
		return nil, nil, err
	}
	return line, line, nil
}

func openLEDPin(conf *config.Config) (gpio.Pin, io.Closer, error) {
	pin, err := gpio.OpenPin(conf.SysfsRoot, conf.StatusLED.GPIO)
	if err != nil {
		return nil, nil, err
	}
	return pin, pin, nil
}
