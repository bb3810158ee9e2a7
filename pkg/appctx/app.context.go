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

package appctx

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"ntcpanel/pkg/logger"
)

// ErrRestart is the cancel cause used when the device asks to be restarted
// (for example after the captive portal configuration is done).
var ErrRestart = errors.New("restart requested")

// ExitRestart is the process exit code the supervisor treats as "start me again".
const ExitRestart = 3

// New returns a context that is canceled when SIGINT or SIGTERM is received.
// The returned cancel function records its cause, see ExitCode.
func New() (context.Context, context.CancelCauseFunc) {
	ctx, cancel := context.WithCancelCause(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log := logger.New("SigHandler")
		select {
		case sig := <-sigs:
			log.Info("Received signal: %s", sig)
			cancel(nil)
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()

	return ctx, cancel
}

// ExitCode maps the cancel cause of ctx onto a process exit code,
// falling back to code when no restart was requested.
func ExitCode(ctx context.Context, code int) int {
	if errors.Is(context.Cause(ctx), ErrRestart) {
		return ExitRestart
	}
	return code
}
