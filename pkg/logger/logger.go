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

package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

type Logger struct {
	prefix string
}

var (
	baseMu       sync.RWMutex
	baseLogger   = log.New(os.Stdout, "", log.LstdFlags)
	logFile      *os.File
	once         sync.Once
	debugEnabled bool
	debugMu      sync.RWMutex
)

// Init adds a log file next to stdout.
// Debug is enabled at startup when the DEBUG env var is set.
func Init(logPath string) error {
	var err error
	once.Do(func() {
		if dir := filepath.Dir(logPath); dir != "" {
			_ = os.MkdirAll(dir, 0755)
		}
		var f *os.File
		f, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return
		}

		baseMu.Lock()
		logFile = f
		baseLogger = newBaseLogger(io.MultiWriter(os.Stdout, logFile))
		baseMu.Unlock()

		if os.Getenv("DEBUG") != "" {
			EnableDebug(true)
		}
	})
	return err
}

// Close cleans up the log file (call on shutdown)
func Close() {
	baseMu.Lock()
	defer baseMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
		baseLogger = newBaseLogger(os.Stdout)
	}
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	debugMu.Lock()
	debugEnabled = on
	debugMu.Unlock()
}

// IsDebug returns current debug state
func IsDebug() bool {
	debugMu.RLock()
	defer debugMu.RUnlock()
	return debugEnabled
}

// New returns a logger that tags every line with prefix.
// Lines go to stdout until Init attaches a log file.
func New(prefix string) *Logger {
	return &Logger{prefix: prefix}
}

func (l *Logger) output(level string, fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	baseMu.RLock()
	out := baseLogger
	baseMu.RUnlock()
	out.Printf("[%s] %s: %v", l.prefix, level, formatted)
}

func (l *Logger) outputCaller(level string, fmtstr string, v ...any) string {
	formatted := fmt.Sprintf(fmtstr, v...)
	baseMu.RLock()
	out := baseLogger
	baseMu.RUnlock()
	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
		out.Printf("[%s] %s: (%s:%d) %s", l.prefix, level, file, line, formatted)
	} else {
		out.Printf("[%s] %s: %v", l.prefix, level, formatted)
	}
	return formatted
}

func (l *Logger) Info(fmtstr string, v ...any) {
	l.output("INFO", fmtstr, v...)
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	l.output("WARN", fmtstr, v...)
}

func (l *Logger) Error(fmtstr string, v ...any) {
	l.outputCaller("ERROR", fmtstr, v...)
}

// Fatal logs and panics. Services started with service.Start turn the
// panic into a non-zero exit code.
func (l *Logger) Fatal(fmtstr string, v ...any) {
	formatted := l.outputCaller("FATAL", fmtstr, v...)
	panic(formatted)
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if !IsDebug() {
		return
	}
	l.output("DEBUG", fmtstr, v...)
}
