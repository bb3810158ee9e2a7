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

package button

import (
	"sync"
	"time"
)

// RepeatingTimer calls fn every interval from its own goroutine until
// stopped. Stop does not wait for a running fn, so fn may be called once
// after Stop returns; callers guard against stale ticks themselves.
type RepeatingTimer struct {
	interval time.Duration
	fn       func()

	mu   sync.Mutex
	stop chan struct{}
}

func NewRepeatingTimer(interval time.Duration, fn func()) *RepeatingTimer {
	return &RepeatingTimer{interval: interval, fn: fn}
}

// Start arms the timer, restarting it when already running.
func (t *RepeatingTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		close(t.stop)
	}
	stop := make(chan struct{})
	t.stop = stop

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.fn()
			}
		}
	}()
}

// Stop is idempotent.
func (t *RepeatingTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *RepeatingTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}
