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
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"ntcpanel/pkg/logger"
)

const (
	DefaultBaudRate = 115200
	frameBuffer     = 16
)

// SerialDriver reads frames from an ADC front-end MCU. Each line is one
// batch of space separated "channel:raw" pairs, e.g.
//
//	0:2048 1:2050 2:1999 0:2047
type SerialDriver struct {
	name string
	port io.ReadCloser
	log  *logger.Logger

	frames chan []Sample
	done   chan struct{}
	once   sync.Once
	err    atomic.Value // error that stopped the reader

	badLines atomic.Int64
	overruns atomic.Int64
}

var _ Driver = (*SerialDriver)(nil)

// OpenSerial opens the named port at baud (DefaultBaudRate when zero).
func OpenSerial(name string, baud int) (*SerialDriver, error) {
	if baud == 0 {
		baud = DefaultBaudRate
	}
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return NewSerialDriver(name, port), nil
}

// SerialPorts lists the serial ports of the host.
func SerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// NewSerialDriver reads frames from r, which the driver owns.
func NewSerialDriver(name string, r io.ReadCloser) *SerialDriver {
	d := &SerialDriver{
		name:   name,
		port:   r,
		log:    logger.New("ADCSerial"),
		frames: make(chan []Sample, frameBuffer),
		done:   make(chan struct{}),
	}
	go d.readFrames()
	return d
}

func (d *SerialDriver) readFrames() {
	defer close(d.frames)

	scanner := bufio.NewScanner(d.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		batch, err := ParseFrame(line)
		if err != nil {
			d.badLines.Add(1)
			d.log.Warn("%s: dropping line %q: %v", d.name, line, err)
			continue
		}
		select {
		case d.frames <- batch:
		case <-d.done:
			return
		default:
			d.overruns.Add(1)
			d.log.Debug("%s: frame buffer full, frame dropped", d.name)
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case <-d.done:
		default:
			d.err.Store(err)
			d.log.Error("%s: read: %v", d.name, err)
		}
	}
}

func (d *SerialDriver) ReadBatch(ctx context.Context, timeout time.Duration) ([]Sample, error) {
	expired, stop := waitTimeout(timeout)
	defer stop()

	select {
	case batch, ok := <-d.frames:
		if !ok {
			if err, _ := d.err.Load().(error); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return nil, ErrClosed
		}
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, ErrTimeout
	}
}

// BadLines is the number of lines that failed to parse.
func (d *SerialDriver) BadLines() int64 {
	return d.badLines.Load()
}

func (d *SerialDriver) Close() error {
	var err error
	d.once.Do(func() {
		close(d.done)
		err = d.port.Close()
	})
	return err
}

// ParseFrame parses one "ch:raw ch:raw ..." line.
func ParseFrame(line string) ([]Sample, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty frame")
	}
	out := make([]Sample, 0, len(fields))
	for _, f := range fields {
		chStr, rawStr, ok := strings.Cut(f, ":")
		if !ok {
			return nil, fmt.Errorf("field %q: missing ':'", f)
		}
		ch, err := strconv.ParseUint(chStr, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("field %q: channel: %w", f, err)
		}
		raw, err := strconv.ParseUint(rawStr, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("field %q: raw: %w", f, err)
		}
		if raw > maxRaw {
			return nil, fmt.Errorf("field %q: raw %d above %d", f, raw, maxRaw)
		}
		out = append(out, Sample{Channel: uint8(ch), Raw: uint16(raw)})
	}
	return out, nil
}
