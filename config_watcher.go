// config_watcher.go: Hot reload of the repair configuration with Argus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// ConfigApplyFunc receives every successfully loaded configuration.
type ConfigApplyFunc func(config Config) error

// ConfigWatcherOptions configures a ConfigWatcher.
type ConfigWatcherOptions struct {
	// How often Argus polls the file
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// How long Argus caches stat results
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`

	// Audit trail for configuration changes
	AuditConfig argus.AuditConfig `json:"audit_config" yaml:"audit_config"`

	// Custom error handler for file watching errors
	ErrorHandler func(error, string) `json:"-" yaml:"-"`
}

// DefaultConfigWatcherOptions returns polling defaults with auditing off.
func DefaultConfigWatcherOptions() ConfigWatcherOptions {
	return ConfigWatcherOptions{
		PollInterval: 5 * time.Second,
		CacheTTL:     2 * time.Second,
		AuditConfig: argus.AuditConfig{
			Enabled:       false,
			MinLevel:      argus.AuditInfo,
			BufferSize:    100,
			FlushInterval: 5 * time.Second,
		},
	}
}

// ConfigWatcher reloads the configuration file when it changes and hands
// each valid version to an apply function. Invalid versions are logged and
// the previous configuration stays in effect.
//
// Usage example:
//
//	watcher, err := NewConfigWatcher("/etc/searchrepair.yaml", service.ApplyConfig,
//	    DefaultConfigWatcherOptions(), logger)
//	if err != nil {
//	    return err
//	}
//	if err := watcher.Start(ctx); err != nil {
//	    return err
//	}
//	defer watcher.Stop()
type ConfigWatcher struct {
	path    string
	apply   ConfigApplyFunc
	logger  Logger
	options ConfigWatcherOptions

	watcher     *argus.Watcher
	auditLogger *argus.AuditLogger

	current atomic.Pointer[Config]

	enabled  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	mutex    sync.Mutex
}

// NewConfigWatcher creates a watcher for path.
func NewConfigWatcher(path string, apply ConfigApplyFunc, options ConfigWatcherOptions, logger any) (*ConfigWatcher, error) {
	internalLogger := NewLogger(logger)

	cleanPath, err := validateConfigPath(path)
	if err != nil {
		return nil, err
	}

	var auditLogger *argus.AuditLogger
	if options.AuditConfig.Enabled {
		auditLogger, err = argus.NewAuditLogger(options.AuditConfig)
		if err != nil {
			return nil, NewConfigWatcherError("failed to create audit logger", err)
		}
	}

	return &ConfigWatcher{
		path:        cleanPath,
		apply:       apply,
		logger:      internalLogger,
		options:     options,
		watcher:     argus.New(createArgusConfig(options, internalLogger)),
		auditLogger: auditLogger,
	}, nil
}

func createArgusConfig(options ConfigWatcherOptions, logger Logger) argus.Config {
	return argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      1,
		Audit:                options.AuditConfig,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			if options.ErrorHandler != nil {
				options.ErrorHandler(err, filepath)
			} else {
				logger.Error("Config file watching error", "error", err, "file", filepath)
			}
		},
	}
}

// Start loads and applies the current file, then begins watching it.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if cw.stopped.Load() {
		return NewConfigWatcherError("config watcher has been stopped and cannot be restarted", nil)
	}

	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if !cw.enabled.CompareAndSwap(false, true) {
		return NewConfigWatcherError("config watcher is already running", nil)
	}

	if err := ctx.Err(); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("context done before start", err)
	}

	initial, err := LoadConfig(cw.path)
	if err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to load initial configuration", err)
	}
	if cw.apply != nil {
		if err := cw.apply(initial); err != nil {
			cw.enabled.Store(false)
			return NewConfigWatcherError("failed to apply initial configuration", err)
		}
	}
	cw.current.Store(&initial)
	cw.auditEvent("configuration_loaded", map[string]interface{}{
		"path":             cw.path,
		"plugin_directory": initial.PluginDirectory,
	})

	if err := cw.watcher.Watch(cw.path, cw.handleConfigChange); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to watch config file", err)
	}
	if err := cw.watcher.Start(); err != nil {
		cw.enabled.Store(false)
		return NewConfigWatcherError("failed to start Argus watcher", err)
	}

	cw.logger.Info("Config watcher started",
		"config_path", cw.path,
		"poll_interval", cw.options.PollInterval)
	return nil
}

// Stop ends watching. A stopped watcher cannot be restarted.
func (cw *ConfigWatcher) Stop() error {
	if cw.stopped.Load() {
		return NewConfigWatcherError("config watcher is already stopped", nil)
	}

	var stopErr error
	cw.stopOnce.Do(func() {
		cw.mutex.Lock()
		defer cw.mutex.Unlock()

		if !cw.enabled.CompareAndSwap(true, false) {
			stopErr = NewConfigWatcherError("config watcher is not running", nil)
			return
		}
		cw.stopped.Store(true)

		if err := cw.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop Argus watcher", err)
			return
		}

		cw.auditEvent("config_watcher_stopped", map[string]interface{}{
			"config_path": cw.path,
		})
		if cw.auditLogger != nil {
			if err := cw.auditLogger.Close(); err != nil {
				cw.logger.Warn("Failed to close audit logger", "error", err)
			}
		}

		cw.logger.Info("Config watcher stopped")
	})

	return stopErr
}

// IsRunning reports whether the watcher is active.
func (cw *ConfigWatcher) IsRunning() bool {
	return cw.enabled.Load() && !cw.stopped.Load()
}

// Current returns the configuration last applied, or nil before Start.
func (cw *ConfigWatcher) Current() *Config {
	return cw.current.Load()
}

func (cw *ConfigWatcher) handleConfigChange(event argus.ChangeEvent) {
	cw.reload(event.Path, event.IsDelete)
}

// reload is the body of the Argus callback.
func (cw *ConfigWatcher) reload(path string, deleted bool) {
	if deleted {
		cw.logger.Warn("Config file was deleted, keeping current configuration", "path", path)
		cw.auditEvent("config_file_deleted", map[string]interface{}{"path": path})
		return
	}

	next, err := LoadConfig(path)
	if err != nil {
		cw.logger.Error("Failed to load changed configuration", "error", err, "path", path)
		cw.auditEvent("config_load_failed", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return
	}

	if cw.apply != nil {
		if err := cw.apply(next); err != nil {
			cw.logger.Error("Failed to apply changed configuration", "error", err)
			cw.auditEvent("config_apply_failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			return
		}
	}

	previous := cw.current.Swap(&next)
	previousDir := ""
	if previous != nil {
		previousDir = previous.PluginDirectory
	}

	cw.logger.Info("Configuration reloaded", "plugin_directory", next.PluginDirectory)
	cw.auditEvent("configuration_changed", map[string]interface{}{
		"path":                 path,
		"old_plugin_directory": previousDir,
		"new_plugin_directory": next.PluginDirectory,
	})
}

func (cw *ConfigWatcher) auditEvent(eventType string, context map[string]interface{}) {
	if cw.auditLogger != nil {
		cw.auditLogger.LogSecurityEvent(eventType, "Search repair configuration change", context)
	}
}
