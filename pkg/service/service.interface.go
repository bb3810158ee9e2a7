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

package service

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"ntcpanel/pkg/logger"
)

// Runnable is the common interface for all long-lived workers:
// the event dispatcher, the button worker, the sampler and the
// collaborator services.
type Runnable interface {
	Run(ctx context.Context)
}

// RunnableFunc adapts a plain function to Runnable.
type RunnableFunc func(ctx context.Context)

func (f RunnableFunc) Run(ctx context.Context) { f(ctx) }

// Start runs every service in its own goroutine. A panicking service is
// logged, cancels the shared context and turns the exit code to -1.
// The returned channel yields the exit code once all services stopped.
func Start(ctx context.Context, ctxCancel context.CancelCauseFunc, services []Runnable) <-chan int {
	wg := &sync.WaitGroup{}

	var exitCode atomic.Int32
	exitCh := make(chan int, 1)

	log := logger.New("Panic")

	for _, s := range services {
		service := s
		wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("%v\n%s", r, debug.Stack())
					exitCode.Store(-1)
					ctxCancel(nil)
				}
			}()
			service.Run(ctx)
		})
	}

	go func() {
		// wait for all services to stop
		wg.Wait()
		exitCh <- int(exitCode.Load())
	}()

	return exitCh
}
