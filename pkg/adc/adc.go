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

import (
	"context"
	"errors"
	"time"
)

// NumChannels is the number of thermistor inputs.
const NumChannels = 6

var (
	ErrNoData         = errors.New("adc: no samples since last read")
	ErrInvalidChannel = errors.New("adc: invalid channel")
	ErrTimeout        = errors.New("adc: read timeout")
	ErrClosed         = errors.New("adc: driver closed")
)

// Sample is one conversion result.
type Sample struct {
	Channel uint8
	Raw     uint16
}

// Driver delivers conversion results in batches. ReadBatch blocks until
// a batch is available, timeout elapses (ErrTimeout) or ctx is done.
type Driver interface {
	ReadBatch(ctx context.Context, timeout time.Duration) ([]Sample, error)
	Close() error
}

// waitTimeout returns a timer channel, or nil for a non-positive timeout.
func waitTimeout(timeout time.Duration) (<-chan time.Time, func() bool) {
	if timeout <= 0 {
		return nil, func() bool { return false }
	}
	t := time.NewTimer(timeout)
	return t.C, t.Stop
}
