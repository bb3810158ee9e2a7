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
	"math/rand/v2"
	"sync"
	"time"
)

const maxRaw = 4095

type MockConfig struct {
	// Base raw value per channel.
	Base [NumChannels]uint16
	// Noise is the maximum deviation added to each sample.
	Noise uint16
	// BatchSize is the number of samples per batch, spread round robin
	// across the channels.
	BatchSize int
	Period    time.Duration
	Seed      uint64
}

// DefaultMockConfig yields roughly 22 to 33 degrees across the channels.
func DefaultMockConfig() MockConfig {
	return MockConfig{
		Base:      [NumChannels]uint16{1000, 1100, 1200, 1300, 1400, 1500},
		Noise:     8,
		BatchSize: 64 * NumChannels,
		Period:    50 * time.Millisecond,
		Seed:      1,
	}
}

// MockDriver synthesizes noisy batches around configurable base values.
type MockDriver struct {
	period time.Duration
	batch  int
	noise  uint16

	mu     sync.Mutex
	base   [NumChannels]uint16
	rng    *rand.Rand
	ticker *time.Ticker
	closed chan struct{}
	once   sync.Once
}

var _ Driver = (*MockDriver)(nil)

func NewMockDriver(cfg MockConfig) *MockDriver {
	def := DefaultMockConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	return &MockDriver{
		period: cfg.Period,
		batch:  cfg.BatchSize,
		noise:  cfg.Noise,
		base:   cfg.Base,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		ticker: time.NewTicker(cfg.Period),
		closed: make(chan struct{}),
	}
}

// SetBase changes the value a channel is synthesized around.
func (m *MockDriver) SetBase(ch int, raw uint16) {
	if ch < 0 || ch >= NumChannels {
		return
	}
	m.mu.Lock()
	m.base[ch] = raw
	m.mu.Unlock()
}

func (m *MockDriver) ReadBatch(ctx context.Context, timeout time.Duration) ([]Sample, error) {
	expired, stop := waitTimeout(timeout)
	defer stop()

	select {
	case <-m.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, ErrTimeout
	case <-m.ticker.C:
	}
	return m.generate(), nil
}

func (m *MockDriver) generate() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Sample, m.batch)
	for i := range out {
		ch := i % NumChannels
		v := int(m.base[ch])
		if m.noise > 0 {
			v += m.rng.IntN(2*int(m.noise)+1) - int(m.noise)
		}
		out[i] = Sample{Channel: uint8(ch), Raw: uint16(min(max(v, 0), maxRaw))}
	}
	return out
}

func (m *MockDriver) Close() error {
	m.once.Do(func() {
		m.ticker.Stop()
		close(m.closed)
	})
	return nil
}
