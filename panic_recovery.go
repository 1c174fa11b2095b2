// panic_recovery.go: Panic recovery around host collaborator calls
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"runtime"
)

// withStackRecover returns a panic recovery function that logs panic details
// including the stack trace.
//
// Example usage:
//
//	go func() {
//	    defer withStackRecover(logger)()
//	    // potentially panicking code
//	}()
func withStackRecover(logger Logger) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered in goroutine",
				"panic", r,
				"stack", captureStack())
		}
	}
}

// recoverInto converts a panic into a structured error stored in *errp. The
// returned function must be deferred.
func recoverInto(logger Logger, where string, errp *error) func() {
	return func() {
		if r := recover(); r != nil {
			logger.Error("Panic recovered",
				"where", where,
				"panic", r,
				"stack", captureStack())
			*errp = NewPanicRecoveredError(where, r)
		}
	}
}

func captureStack() string {
	buf := make([]byte, 64<<10)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// SafeGo executes fn in a new goroutine with automatic panic recovery.
func SafeGo(logger Logger, fn func()) {
	go func() {
		defer withStackRecover(logger)()
		fn()
	}()
}
