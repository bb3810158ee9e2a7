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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepeatingTimer(t *testing.T) {
	var n atomic.Int32
	tm := NewRepeatingTimer(2*time.Millisecond, func() { n.Add(1) })

	tm.Start()
	assert.True(t, tm.Running())
	require.Eventually(t, func() bool { return n.Load() >= 3 }, time.Second, time.Millisecond)

	tm.Stop()
	tm.Stop()
	assert.False(t, tm.Running())

	// at most one in-flight call after Stop
	time.Sleep(5 * time.Millisecond)
	stopped := n.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, n.Load())
}
