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

package display

import "github.com/chewxy/math32"

// NoReading is shown for a channel without a value.
const NoReading = " --.-"

// FormatTemperature renders t in exactly five characters with one
// truncated decimal: " 23.4", "-12.5", "105.0", "- 3.2". Hundreds wrap
// past 999.9. NaN renders as NoReading.
func FormatTemperature(t float32) string {
	if math32.IsNaN(t) || math32.IsInf(t, 0) {
		return NoReading
	}
	var out [5]byte
	if t < 0 {
		out[0] = '-'
		t = -t
	} else if t >= 100 {
		out[0] = byte(int(t/100)%10) + '0'
	} else {
		out[0] = ' '
	}
	if t < 10 {
		out[1] = ' '
	} else {
		out[1] = byte(int(t/10)%10) + '0'
	}
	out[2] = byte(int(t)%10) + '0'
	out[3] = '.'
	out[4] = byte(int(t*10)%10) + '0'
	return string(out[:])
}
