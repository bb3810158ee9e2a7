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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ntcpanel/pkg/logger"
)

const DefaultReadTimeout = time.Second

// channelAcc accumulates batch means of one channel between reads.
type channelAcc struct {
	sum   int64
	count int64
}

type Option func(*Aggregator)

// WithReadTimeout bounds each ReadBatch call of Run.
func WithReadTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.readTimeout = d }
}

// WithRetryDelay is the pause after a driver error other than ErrTimeout.
func WithRetryDelay(d time.Duration) Option {
	return func(a *Aggregator) { a.retryDelay = d }
}

type AggregatorStats struct {
	Batches  int64
	Samples  int64
	Skipped  int64
	Timeouts int64
	Errors   int64
}

// Aggregator folds driver batches into per-channel averages that are
// consumed by ReadAndReset.
type Aggregator struct {
	drv         Driver
	readTimeout time.Duration
	retryDelay  time.Duration
	log         *logger.Logger

	mu  sync.Mutex
	acc [NumChannels]channelAcc

	batches  atomic.Int64
	samples  atomic.Int64
	skipped  atomic.Int64
	timeouts atomic.Int64
	errs     atomic.Int64
}

func NewAggregator(drv Driver, opts ...Option) *Aggregator {
	a := &Aggregator{
		drv:         drv,
		readTimeout: DefaultReadTimeout,
		retryDelay:  100 * time.Millisecond,
		log:         logger.New("ADC"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run reads batches from the driver until ctx is done.
func (a *Aggregator) Run(ctx context.Context) {
	a.log.Info("Running...")
	defer a.log.Info("Stopped")

	for ctx.Err() == nil {
		batch, err := a.drv.ReadBatch(ctx, a.readTimeout)
		switch {
		case err == nil:
			a.Ingest(batch)
		case errors.Is(err, ErrTimeout):
			a.timeouts.Add(1)
			a.log.Debug("no batch within %v", a.readTimeout)
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrClosed):
			a.log.Error("driver closed, stopping")
			return
		default:
			a.errs.Add(1)
			a.log.Error("read batch: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.retryDelay):
			}
		}
	}
}

// Ingest folds the per-channel mean of batch into the accumulators.
// Samples with an out-of-range channel are skipped.
func (a *Aggregator) Ingest(batch []Sample) {
	var sums, counts [NumChannels]int64
	for _, s := range batch {
		if int(s.Channel) >= NumChannels {
			a.skipped.Add(1)
			continue
		}
		sums[s.Channel] += int64(s.Raw)
		counts[s.Channel]++
	}
	a.batches.Add(1)
	a.samples.Add(int64(len(batch)))

	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range NumChannels {
		if counts[ch] == 0 {
			continue
		}
		a.acc[ch].sum += roundDiv(sums[ch], counts[ch])
		a.acc[ch].count++
	}
}

// ReadAndReset returns the average of the batch means accumulated on ch
// since the previous call and clears them.
func (a *Aggregator) ReadAndReset(ch int) (int, error) {
	if ch < 0 || ch >= NumChannels {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}

	a.mu.Lock()
	acc := a.acc[ch]
	a.acc[ch] = channelAcc{}
	a.mu.Unlock()

	if acc.count == 0 {
		return 0, ErrNoData
	}
	return int(roundDiv(acc.sum, acc.count)), nil
}

// Pending reports how many batch means each channel holds, without
// consuming them.
func (a *Aggregator) Pending() [NumChannels]int64 {
	var out [NumChannels]int64
	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range NumChannels {
		out[ch] = a.acc[ch].count
	}
	return out
}

func (a *Aggregator) Stats() AggregatorStats {
	return AggregatorStats{
		Batches:  a.batches.Load(),
		Samples:  a.samples.Load(),
		Skipped:  a.skipped.Load(),
		Timeouts: a.timeouts.Load(),
		Errors:   a.errs.Load(),
	}
}

func (a *Aggregator) Close() error {
	return a.drv.Close()
}

// roundDiv divides non-negative sum by count, rounding half up.
func roundDiv(sum, count int64) int64 {
	return (sum + count/2) / count
}
