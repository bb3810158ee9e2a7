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

package adc

import "github.com/chewxy/math32"

// Converter turns a raw reading of a divider with the thermistor on the
// supply side and a fixed resistor to ground into degrees Celsius, using
// the beta model. The reading rises with temperature.
type Converter struct {
	MaxRaw     float32 // full scale count
	VRefMV     float32 // input voltage at full scale
	VSupplyMV  float32 // divider supply
	RFixed     float32 // ohms
	R25        float32 // thermistor resistance at T0, ohms
	Beta       float32
	T0         float32 // kelvin
	KelvinZero float32
}

// DefaultNTC is a 100k B3950 thermistor over a 10k fixed resistor on a
// 3.3V supply, read by a 12-bit converter with 1.1V full scale.
var DefaultNTC = Converter{
	MaxRaw:     4095,
	VRefMV:     1100,
	VSupplyMV:  3300,
	RFixed:     10_000,
	R25:        100_000,
	Beta:       3950,
	T0:         298.15,
	KelvinZero: 273.15,
}

// Celsius converts raw to degrees. Non-positive raw values have no
// meaningful temperature and return NaN.
func (c Converter) Celsius(raw int) float32 {
	if raw <= 0 {
		return math32.NaN()
	}
	v := float32(raw) * c.VRefMV / c.MaxRaw
	r := c.RFixed * (c.VSupplyMV/v - 1)
	if r <= 0 {
		return math32.NaN()
	}
	invT := 1/c.T0 + math32.Log(r/c.R25)/c.Beta
	return 1/invT - c.KelvinZero
}

// RawToCelsius converts with DefaultNTC.
func RawToCelsius(raw int) float32 {
	return DefaultNTC.Celsius(raw)
}
