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

package emoncms

import (
	"fmt"
	"time"
)

const (
	minPlausibleC = -40.0
	maxPlausibleC = 125.0

	// a probe in free air or in a tank does not move this much between posts
	maxChangeC      = 15.0
	maxChangeWithin = 8 * time.Minute
)

type posted struct {
	value float64
	at    time.Time
}

// plausibility rejects readings an attached NTC probe cannot produce, such
// as the rail values of an open or shorted probe.
type plausibility struct {
	last map[string]posted
}

func newPlausibility() *plausibility {
	return &plausibility{last: make(map[string]posted)}
}

func (p *plausibility) check(key string, tempC float64, now time.Time) error {
	if tempC < minPlausibleC {
		return fmt.Errorf("temp too low (%.1f°C), probe open?", tempC)
	}
	if tempC > maxPlausibleC {
		return fmt.Errorf("temp too high (%.1f°C), probe shorted?", tempC)
	}

	prev, ok := p.last[key]
	if !ok {
		return nil
	}
	delta := tempC - prev.value
	if delta < 0 {
		delta = -delta
	}
	if dt := now.Sub(prev.at); dt < maxChangeWithin && delta > maxChangeC {
		return fmt.Errorf("temp changed too fast: Δ%.1f°C in %v", delta, dt.Truncate(time.Second))
	}
	return nil
}

// filter drops the implausible entries of data and remembers the rest.
func (p *plausibility) filter(data map[string]float64, now time.Time, reject func(key string, err error)) {
	for key, v := range data {
		if err := p.check(key, v, now); err != nil {
			reject(key, err)
			delete(data, key)
			continue
		}
		p.last[key] = posted{value: v, at: now}
	}
}
