// errors.go: structured error definitions for the search plugin repair engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	stderrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for go-searchrepair
const (
	// Configuration errors (1700-1799)
	ErrCodeConfigNotFound        = "CONFIG_1701"
	ErrCodeConfigParseError      = "CONFIG_1702"
	ErrCodeConfigValidationError = "CONFIG_1703"
	ErrCodeConfigWatcherError    = "CONFIG_1704"
	ErrCodeConfigPathError       = "CONFIG_1705"
	ErrCodeConfigFileError       = "CONFIG_1706"

	// Stream errors (2100-2199)
	ErrCodeStreamRead  = "STREAM_2101"
	ErrCodeStreamClose = "STREAM_2102"

	// Install errors (2200-2299)
	ErrCodeInstallFailed    = "INSTALL_2201"
	ErrCodeInstallAbandoned = "INSTALL_2202"

	// Filesystem errors (2300-2399)
	ErrCodeDirectoryRead = "FS_2301"
	ErrCodeFileCopy      = "FS_2302"
	ErrCodeFileRemove    = "FS_2303"
	ErrCodeFileStat      = "FS_2304"

	// Registry errors (2400-2499)
	ErrCodeRegistryMutation = "REGISTRY_2401"
	ErrCodeSubmission       = "REGISTRY_2402"
	ErrCodePanicRecovered   = "REGISTRY_2403"
	ErrCodeReconcilerClosed = "REGISTRY_2404"

	// Window errors (2500-2599)
	ErrCodeWindowMutation = "WINDOW_2501"
	ErrCodeLocaleLookup   = "WINDOW_2502"
	ErrCodeObserverState  = "WINDOW_2503"
)

// wrapOrNew keeps the cause chain when there is one.
func wrapOrNew(cause error, code errors.ErrorCode, message string) *errors.Error {
	if cause == nil {
		return errors.New(code, message)
	}
	return errors.Wrap(cause, code, message)
}

// Configuration error constructors

func NewConfigNotFoundError(path string) *errors.Error {
	return errors.New(ErrCodeConfigNotFound, "Configuration file not found").
		WithUserMessage("The specified configuration file does not exist").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigParseError(path string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeConfigParseError, "Configuration parse error").
		WithUserMessage("Failed to parse configuration file").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigValidationError(message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeConfigValidationError, "Configuration validation error: "+message).
		WithUserMessage("Configuration validation failed").
		WithSeverity("error")
}

func NewConfigWatcherError(message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeConfigWatcherError, "Configuration watcher error: "+message).
		WithUserMessage("Configuration monitoring failed").
		WithSeverity("error")
}

func NewConfigPathError(path string, message string) *errors.Error {
	return errors.New(ErrCodeConfigPathError, "Configuration path error: "+message).
		WithUserMessage("Invalid configuration file path").
		WithContext("config_path", path).
		WithSeverity("error")
}

func NewConfigFileError(path string, message string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeConfigFileError, "Configuration file error: "+message).
		WithUserMessage("Configuration file access failed").
		WithContext("config_path", path).
		WithSeverity("error")
}

// Stream error constructors

func NewStreamReadError(cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeStreamRead, "Failed to read submission body").
		WithUserMessage("Search engine request body could not be read").
		WithSeverity("error")
}

func NewStreamCloseError(cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeStreamClose, "Failed to close submission body").
		WithUserMessage("Search engine request body could not be released").
		WithSeverity("error")
}

// Install error constructors

func NewInstallFailedError(spec string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeInstallFailed, "Search engine installation failed").
		WithUserMessage("The search engine could not be installed").
		WithContext("spec", spec).
		WithSeverity("warning")
}

func NewInstallAbandonedError(spec string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeInstallAbandoned, "Search engine installation abandoned").
		WithUserMessage("The search engine installation did not complete").
		WithContext("spec", spec).
		WithSeverity("warning")
}

// Filesystem error constructors

func NewDirectoryReadError(dir string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeDirectoryRead, "Failed to read plugin directory").
		WithUserMessage("Search plugin directory could not be scanned").
		WithContext("directory", dir).
		WithSeverity("error")
}

func NewFileCopyError(src, dst string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeFileCopy, "Failed to copy plugin file").
		WithUserMessage("Search plugin file could not be copied").
		WithContext("source", src).
		WithContext("destination", dst).
		WithSeverity("error")
}

func NewFileRemoveError(path string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeFileRemove, "Failed to remove plugin file").
		WithUserMessage("Search plugin file could not be removed").
		WithContext("path", path).
		WithSeverity("error")
}

func NewFileStatError(path string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeFileStat, "Failed to stat plugin file").
		WithUserMessage("Search plugin file could not be inspected").
		WithContext("path", path).
		WithSeverity("error")
}

// Registry error constructors

func NewRegistryMutationError(operation, engine string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeRegistryMutation, "Search engine registry update failed: "+operation).
		WithUserMessage("The search engine list could not be updated").
		WithContext("operation", operation).
		WithContext("engine", engine).
		WithSeverity("error")
}

func NewSubmissionError(engine string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeSubmission, "Failed to build engine submission").
		WithUserMessage("Search engine request could not be generated").
		WithContext("engine", engine).
		WithSeverity("error")
}

func NewPanicRecoveredError(where string, recovered any) *errors.Error {
	return errors.New(ErrCodePanicRecovered, "Panic recovered in "+where).
		WithUserMessage("An internal error occurred while repairing search plugins").
		WithContext("panic", recovered).
		WithSeverity("critical")
}

func NewReconcilerClosedError() *errors.Error {
	return errors.New(ErrCodeReconcilerClosed, "Reconciler is closed").
		WithUserMessage("Search plugin repair has been shut down").
		WithSeverity("warning")
}

// Window error constructors

func NewWindowMutationError(operation string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeWindowMutation, "Window document update failed: "+operation).
		WithUserMessage("The context menu entry could not be updated").
		WithContext("operation", operation).
		WithSeverity("error")
}

func NewLocaleLookupError(key string, cause error) *errors.Error {
	return wrapOrNew(cause, ErrCodeLocaleLookup, "Locale string lookup failed").
		WithUserMessage("A localized label is missing").
		WithContext("key", key).
		WithSeverity("warning")
}

func NewObserverStateError(message string) *errors.Error {
	return errors.New(ErrCodeObserverState, "Window observer state error: "+message).
		WithUserMessage("Window tracking is in an unexpected state").
		WithSeverity("warning")
}

// ErrorCodeOf returns the structured code carried by err, or "" when err is
// not a go-errors value.
func ErrorCodeOf(err error) errors.ErrorCode {
	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return structured.ErrorCode()
	}
	return ""
}

// IsFilesystemFault reports whether err is one of the FS_23xx errors.
func IsFilesystemFault(err error) bool {
	switch ErrorCodeOf(err) {
	case ErrCodeDirectoryRead, ErrCodeFileCopy, ErrCodeFileRemove, ErrCodeFileStat:
		return true
	}
	return false
}
