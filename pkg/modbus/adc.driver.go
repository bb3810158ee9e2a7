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

package modbus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"ntcpanel/pkg/adc"
	"ntcpanel/pkg/logger"
)

// registerReader is the part of Client the ADC driver uses.
type registerReader interface {
	ReadRegisters(ctx context.Context, regType string, addr, quantity uint16) ([]byte, error)
	Close() error
}

// ADCDriver scans the mapped registers of a Modbus analog input module.
// One batch holds Sampling.Reads scans of every channel.
type ADCDriver struct {
	regs     registerReader
	channels []ChannelDef
	reads    int
	period   time.Duration
	log      *logger.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

var _ adc.Driver = (*ADCDriver)(nil)

// NewADCDriver dials the module described by config.
func NewADCDriver(ctx context.Context, config *Config) (*ADCDriver, error) {
	client, err := Dial(ctx, config)
	if err != nil {
		return nil, err
	}
	return newADCDriver(client, config), nil
}

func newADCDriver(regs registerReader, config *Config) *ADCDriver {
	return &ADCDriver{
		regs:     regs,
		channels: config.Channels,
		reads:    config.Sampling.Reads,
		period:   time.Duration(config.Sampling.PeriodMS) * time.Millisecond,
		log:      logger.New("ADCModbus"),
		closed:   make(chan struct{}),
	}
}

func (d *ADCDriver) ReadBatch(ctx context.Context, timeout time.Duration) ([]adc.Sample, error) {
	scanCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	batch := make([]adc.Sample, 0, d.reads*len(d.channels))
	for i := range d.reads {
		if i > 0 {
			if err := d.wait(scanCtx); err != nil {
				return d.partial(ctx, batch, err)
			}
		}
		for _, ch := range d.channels {
			raw, err := d.readChannel(scanCtx, ch)
			if err != nil {
				return d.partial(ctx, batch, err)
			}
			batch = append(batch, adc.Sample{Channel: ch.Channel, Raw: raw})
		}
	}
	return batch, nil
}

// partial keeps the scans completed before the read timeout; any other
// error discards the batch.
func (d *ADCDriver) partial(ctx context.Context, batch []adc.Sample, err error) ([]adc.Sample, error) {
	select {
	case <-d.closed:
		return nil, adc.ErrClosed
	default:
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !isTimeout(err) {
		return nil, err
	}
	// only whole scans count, so every channel weighs the same
	batch = batch[:len(batch)-len(batch)%len(d.channels)]
	if len(batch) == 0 {
		return nil, adc.ErrTimeout
	}
	return batch, nil
}

func (d *ADCDriver) wait(ctx context.Context) error {
	select {
	case <-d.closed:
		return adc.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.period):
		return nil
	}
}

func (d *ADCDriver) readChannel(ctx context.Context, ch ChannelDef) (uint16, error) {
	raw, err := d.regs.ReadRegisters(ctx, ch.Type, ch.Address, 1)
	if err != nil {
		return 0, fmt.Errorf("channel %d register %d: %w", ch.Channel, ch.Address, err)
	}
	if len(raw) < 2 {
		return 0, fmt.Errorf("channel %d register %d: short response", ch.Channel, ch.Address)
	}
	return binary.BigEndian.Uint16(raw) >> ch.Shift, nil
}

func (d *ADCDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.closed)
		err = d.regs.Close()
	})
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr interface{ Timeout() bool }
	return errors.As(err, &nerr) && nerr.Timeout()
}
