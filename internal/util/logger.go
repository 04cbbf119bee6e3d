// Package util provides helper functions for logging events and managing
// virtual serial links.
package util

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
	"time"
)

// Logf is the sink used by Info, Warn, Error and Debug. It defaults to
// log.Printf; SetLogger replaces it.
var Logf func(format string, v ...any) = log.Printf

var verbose atomic.Bool

// SetLogger replaces the sink. Passing nil mutes all output.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// SetupLogger configures the standard logger. When file is set, output is
// written to both stderr and the file; the returned closer releases it.
func SetupLogger(file string, debug bool) (io.Closer, error) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	verbose.Store(debug)
	if file == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", file, err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f, nil
}

// Info prints general system information messages with timestamp.
func Info(msg string, args ...any) {
	Logf("[INFO] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Warn prints recoverable problems.
func Warn(msg string, args ...any) {
	Logf("[WARN] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Error prints error messages with timestamp.
func Error(msg string, args ...any) {
	Logf("[ERROR] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}

// Debug prints per-tick detail when verbose logging is enabled.
func Debug(msg string, args ...any) {
	if !verbose.Load() {
		return
	}
	Logf("[DEBUG] %s | %s", time.Now().Format(time.RFC3339), fmt.Sprintf(msg, args...))
}
