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

//go:build !linux

package main

import (
	"fmt"
	"io"

	"ntcpanel/internal/config"
	"ntcpanel/pkg/gpio"
)

func openButtonLine(conf *config.Config) (gpio.EdgeSource, io.Closer, error) {
	return nil, nil, fmt.Errorf("%w: gpio%d: sysfs gpio needs linux", gpio.ErrHardware, conf.Button.GPIO)
}

func openLEDPin(conf *config.Config) (gpio.Pin, io.Closer, error) {
	return nil, nil, fmt.Errorf("%w: gpio%d: sysfs gpio needs linux", gpio.ErrHardware, conf.StatusLED.GPIO)
}
