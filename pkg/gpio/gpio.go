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
	"sync"
	"sync/atomic"
)

// ErrHardware wraps every pin configuration failure. Callers treat it as
// fatal at startup.
var ErrHardware = errors.New("gpio: hardware fault")

// Line is a digital input. Asserted reports the logical level, after
// active-low inversion.
type Line interface {
	Asserted() bool
}

// EdgeSource is a Line that can wait for level changes and report them.
// Watch blocks until ctx is done, calling onEdge for every edge.
type EdgeSource interface {
	Line
	Watch(ctx context.Context, onEdge func()) error
}

// Pin is a digital output.
type Pin interface {
	Set(on bool) error
}

// SimLine is an in-memory EdgeSource, driven by Set. It backs the
// virtual button of the web UI and the tests.
type SimLine struct {
	level  atomic.Bool
	mu     sync.Mutex
	onEdge func()
}

func NewSimLine() *SimLine {
	return &SimLine{}
}

func (l *SimLine) Asserted() bool {
	return l.level.Load()
}

// Set changes the level and reports an edge when it differs.
func (l *SimLine) Set(asserted bool) {
	if l.level.Swap(asserted) == asserted {
		return
	}
	l.mu.Lock()
	fn := l.onEdge
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (l *SimLine) Watch(ctx context.Context, onEdge func()) error {
	l.mu.Lock()
	l.onEdge = onEdge
	l.mu.Unlock()

	<-ctx.Done()

	l.mu.Lock()
	l.onEdge = nil
	l.mu.Unlock()
	return nil
}

// Watched reports whether a Watch call is active.
func (l *SimLine) Watched() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.onEdge != nil
}

// MemPin records the levels written to it.
type MemPin struct {
	mu      sync.Mutex
	level   bool
	history []bool
}

func (p *MemPin) Set(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = on
	p.history = append(p.history, on)
	return nil
}

func (p *MemPin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// History returns the written levels and clears them.
func (p *MemPin) History() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	h := p.history
	p.history = nil
	return h
}
