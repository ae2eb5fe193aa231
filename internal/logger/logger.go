// Package logger provides verbose diagnostics on top of the standard log
// package. Regular operational messages go straight to log.Printf with a
// bracketed component tag. Debug prints only in verbose mode, keeping
// per-sample chatter out of normal output; Info and Warn carry relayed
// messages at their own level.
package logger

import (
	"io"
	"log"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	std     = log.New(os.Stderr, "", log.LstdFlags)
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the writer for all helpers. Lines carry the same date and
// time prefix as the standard logger. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std = log.New(w, "", log.LstdFlags)
}

// Debug prints a message tagged with a component if verbose mode is enabled.
func Debug(tag, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		std.Printf("[DEBUG] ["+tag+"] "+format, args...)
	}
}

// Info prints a tagged message regardless of verbose mode.
func Info(tag, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	std.Printf("[INFO] ["+tag+"] "+format, args...)
}

// Warn prints a tagged warning regardless of verbose mode.
func Warn(tag, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	std.Printf("[WARN] ["+tag+"] "+format, args...)
}
