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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptDriver returns queued results, then ErrTimeout.
type scriptDriver struct {
	mu      sync.Mutex
	results []result
	closed  bool
}

type result struct {
	batch []Sample
	err   error
}

func (d *scriptDriver) push(batch []Sample, err error) {
	d.mu.Lock()
	d.results = append(d.results, result{batch, err})
	d.mu.Unlock()
}

func (d *scriptDriver) ReadBatch(ctx context.Context, timeout time.Duration) ([]Sample, error) {
	d.mu.Lock()
	if len(d.results) > 0 {
		r := d.results[0]
		d.results = d.results[1:]
		d.mu.Unlock()
		return r.batch, r.err
	}
	d.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

func (d *scriptDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func batchOf(ch uint8, raws ...uint16) []Sample {
	out := make([]Sample, len(raws))
	for i, r := range raws {
		out[i] = Sample{Channel: ch, Raw: r}
	}
	return out
}

func TestReadAndResetConsumes(t *testing.T) {
	a := NewAggregator(&scriptDriver{})

	for range 5 {
		a.Ingest(batchOf(2, 1999, 2000, 2001, 2000))
	}
	v, err := a.ReadAndReset(2)
	require.NoError(t, err)
	assert.InDelta(t, 2000, v, 1)

	_, err = a.ReadAndReset(2)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestReadAndResetAveragesBatchMeans(t *testing.T) {
	a := NewAggregator(&scriptDriver{})

	// batch means 100 and 301 (300.5 rounded up)
	a.Ingest(batchOf(0, 100, 100))
	a.Ingest(batchOf(0, 300, 301))

	v, err := a.ReadAndReset(0)
	require.NoError(t, err)
	assert.Equal(t, 201, v)
}

func TestIngestKeepsChannelsApart(t *testing.T) {
	a := NewAggregator(&scriptDriver{})

	batch := append(batchOf(0, 10, 20), batchOf(5, 4000)...)
	batch = append(batch, Sample{Channel: 6, Raw: 1}, Sample{Channel: 200, Raw: 1})
	a.Ingest(batch)

	assert.Equal(t, [NumChannels]int64{1, 0, 0, 0, 0, 1}, a.Pending())
	assert.Equal(t, int64(2), a.Stats().Skipped)

	v, err := a.ReadAndReset(0)
	require.NoError(t, err)
	assert.Equal(t, 15, v)

	v, err = a.ReadAndReset(5)
	require.NoError(t, err)
	assert.Equal(t, 4000, v)

	_, err = a.ReadAndReset(3)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestReadAndResetInvalidChannel(t *testing.T) {
	a := NewAggregator(&scriptDriver{})
	for _, ch := range []int{-1, NumChannels, 99} {
		_, err := a.ReadAndReset(ch)
		assert.ErrorIs(t, err, ErrInvalidChannel, "channel %d", ch)
	}
}

func TestRunIngestsAndSurvivesErrors(t *testing.T) {
	drv := &scriptDriver{}
	drv.push(batchOf(1, 500), nil)
	drv.push(nil, errors.New("crc mismatch"))
	drv.push(batchOf(1, 700), nil)

	a := NewAggregator(drv, WithReadTimeout(5*time.Millisecond), WithRetryDelay(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return a.Stats().Batches == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return a.Stats().Timeouts > 0 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int64(1), a.Stats().Errors)
	v, err := a.ReadAndReset(1)
	require.NoError(t, err)
	assert.Equal(t, 600, v)
}

func TestConcurrentIngestAndRead(t *testing.T) {
	a := NewAggregator(&scriptDriver{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	var total, reads int
	for range 4 {
		wg.Go(func() {
			for range 200 {
				a.Ingest(batchOf(3, 1000))
			}
		})
	}
	wg.Go(func() {
		for range 200 {
			if v, err := a.ReadAndReset(3); err == nil {
				mu.Lock()
				total += v
				reads++
				mu.Unlock()
			}
		}
	})
	wg.Wait()

	if v, err := a.ReadAndReset(3); err == nil {
		total += v
		reads++
	}
	require.NotZero(t, reads)
	assert.Equal(t, 1000*reads, total)
}
