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

package gpio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultSysfsRoot is the legacy sysfs GPIO class directory.
const DefaultSysfsRoot = "/sys/class/gpio"

// pollInterval bounds how long Watch blocks in poll(2) before checking ctx.
const pollInterval = 250 * time.Millisecond

func export(root string, num int) (string, error) {
	dir := filepath.Join(root, fmt.Sprintf("gpio%d", num))
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(num)), 0o200)
	if err != nil && !errors.Is(err, unix.EBUSY) {
		return "", fmt.Errorf("%w: export gpio%d: %v", ErrHardware, num, err)
	}
	// udev needs a moment to create the attribute files
	for range 20 {
		if _, err := os.Stat(filepath.Join(dir, "value")); err == nil {
			return dir, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return "", fmt.Errorf("%w: gpio%d did not appear", ErrHardware, num)
}

func writeAttr(dir, name, value string) error {
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value), 0o644); err != nil {
		return fmt.Errorf("%w: %s=%s: %v", ErrHardware, filepath.Join(dir, name), value, err)
	}
	return nil
}

// SysfsLine is an input line with both-edge interrupts, waited on with
// poll(2) POLLPRI.
type SysfsLine struct {
	num       int
	activeLow bool
	fd        int
}

// OpenLine exports gpio num under root as an input reporting both edges.
func OpenLine(root string, num int, activeLow bool) (*SysfsLine, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	dir, err := export(root, num)
	if err != nil {
		return nil, err
	}
	if err := writeAttr(dir, "direction", "in"); err != nil {
		return nil, err
	}
	if err := writeAttr(dir, "edge", "both"); err != nil {
		return nil, err
	}
	fd, err := unix.Open(filepath.Join(dir, "value"), unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open gpio%d value: %v", ErrHardware, num, err)
	}
	return &SysfsLine{num: num, activeLow: activeLow, fd: fd}, nil
}

func (l *SysfsLine) read() (bool, error) {
	var buf [2]byte
	n, err := unix.Pread(l.fd, buf[:], 0)
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("gpio%d: empty value", l.num)
	}
	return buf[0] == '1', nil
}

func (l *SysfsLine) Asserted() bool {
	high, err := l.read()
	if err != nil {
		return false
	}
	return high != l.activeLow
}

// Watch calls onEdge from this goroutine for every edge the kernel
// reports. onEdge runs in the edge path and must not block.
func (l *SysfsLine) Watch(ctx context.Context, onEdge func()) error {
	// the first poll always reports; consume the current value
	_, _ = l.read()

	fds := []unix.PollFd{{Fd: int32(l.fd), Events: unix.POLLPRI | unix.POLLERR}}
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := unix.Poll(fds, int(pollInterval/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("%w: poll gpio%d: %v", ErrHardware, l.num, err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&unix.POLLPRI != 0 {
			// re-read to re-arm the interrupt
			_, _ = l.read()
			onEdge()
		}
	}
}

func (l *SysfsLine) Close() error {
	return unix.Close(l.fd)
}

// SysfsPin is an output line.
type SysfsPin struct {
	num int
	fd  int
}

// OpenPin exports gpio num under root as an output, driven low.
func OpenPin(root string, num int) (*SysfsPin, error) {
	if root == "" {
		root = DefaultSysfsRoot
	}
	dir, err := export(root, num)
	if err != nil {
		return nil, err
	}
	if err := writeAttr(dir, "direction", "low"); err != nil {
		return nil, err
	}
	fd, err := unix.Open(filepath.Join(dir, "value"), unix.O_WRONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open gpio%d value: %v", ErrHardware, num, err)
	}
	return &SysfsPin{num: num, fd: fd}, nil
}

func (p *SysfsPin) Set(on bool) error {
	v := []byte{'0'}
	if on {
		v[0] = '1'
	}
	if _, err := unix.Pwrite(p.fd, v, 0); err != nil {
		return fmt.Errorf("gpio%d: %w", p.num, err)
	}
	return nil
}

func (p *SysfsPin) Close() error {
	return unix.Close(p.fd)
}
