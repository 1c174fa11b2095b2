// service.go: Activation lifecycle of the search plugin repair
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"context"
	"sync"
)

// Host groups the collaborators the embedding browser provides.
type Host struct {
	// Required
	Registry SearchEngineRegistry

	// Optional; without it no menu item is injected
	Windows WindowRegistry

	// Optional; defaults to OSFileSystem
	FileSystem FileSystem

	// Optional listener for the injected menu item's command event
	Command EventListener

	// Optional; defaults to a DefaultMetricsCollector
	Metrics MetricsCollector
}

// Service ties the scanner, the reconciler and the window observer to one
// activation of the extension.
//
// Activate scans the plugin directory once, queues every orphan and starts
// injecting windows. Deactivate removes the injected affordance and stops the
// reconciler. Both are idempotent.
//
// Example:
//
//	service, err := NewService(config, Host{Registry: registry, Windows: windows}, logger)
//	if err != nil {
//	    return err
//	}
//	if err := service.Activate(ctx); err != nil {
//	    logger.Warn("Startup scan incomplete", "error", err)
//	}
//	defer service.Deactivate()
type Service struct {
	host    Host
	logger  Logger
	metrics MetricsCollector

	mu         sync.Mutex
	config     Config
	active     bool
	reconciler *Reconciler
	observer   *WindowLifecycleObserver
	handlers   []ReconcileEventHandler
}

// NewService validates config and creates an inactive service.
func NewService(config Config, host Host, logger any) (*Service, error) {
	if host.Registry == nil {
		return nil, NewConfigValidationError("search engine registry is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if host.FileSystem == nil {
		host.FileSystem = NewOSFileSystem()
	}
	if host.Metrics == nil {
		host.Metrics = NewDefaultMetricsCollector()
	}

	return &Service{
		host:    host,
		logger:  NewLogger(logger),
		metrics: host.Metrics,
		config:  config,
	}, nil
}

// Config returns the configuration the next activation will use.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// Metrics returns the service metrics sink.
func (s *Service) Metrics() MetricsCollector {
	return s.metrics
}

// IsActive reports whether the service is activated.
func (s *Service) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// AddEventHandler registers a reconciliation report handler. It applies to
// the current activation and every later one.
func (s *Service) AddEventHandler(handler ReconcileEventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
	if s.reconciler != nil {
		s.reconciler.AddEventHandler(handler)
	}
}

// Activate starts the window observer and queues every orphan found in the
// plugin directory. A scan failure is returned after the service became
// active; orphans found before the failure are still reconciled.
func (s *Service) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return nil
	}

	config := s.config
	reconciler := NewReconciler(s.host.Registry, s.host.FileSystem,
		config.ReconcilerOptions(s.metrics), s.logger)
	for _, handler := range s.handlers {
		reconciler.AddEventHandler(handler)
	}

	var observer *WindowLifecycleObserver
	if s.host.Windows != nil {
		observer = NewWindowLifecycleObserver(s.host.Windows,
			config.WindowObserverOptions(s.host.Command, s.metrics), s.logger)
	}

	s.reconciler = reconciler
	s.observer = observer
	s.active = true
	s.mu.Unlock()

	reconciler.Start(context.WithoutCancel(ctx))
	if observer != nil {
		observer.Start()
	}

	s.logger.Info("Search plugin repair activated", "plugin_directory", config.PluginDirectory)

	_, err := s.scan(ctx, reconciler, config)
	return err
}

// Rescan runs another pass over the plugin directory of the active
// configuration and returns how many orphans were queued.
func (s *Service) Rescan(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return 0, NewObserverStateError("service is not active")
	}
	reconciler := s.reconciler
	config := s.config
	s.mu.Unlock()

	return s.scan(ctx, reconciler, config)
}

func (s *Service) scan(ctx context.Context, reconciler *Reconciler, config Config) (int, error) {
	scanner := NewPluginScanner(s.host.FileSystem, config.PluginDirectory,
		config.SentinelExtension, s.logger)

	queued := 0
	scan := scanner.Scan(ctx)
	for scan.Next() {
		if err := reconciler.Enqueue(scan.File()); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, scan.Err()
}

// Wait blocks until every queued orphan has been processed.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	reconciler := s.reconciler
	s.mu.Unlock()

	if reconciler == nil {
		return nil
	}
	return reconciler.Wait(ctx)
}

// Deactivate removes the affordance from every window and stops the
// reconciler. Orphans still queued are picked up by the next activation.
func (s *Service) Deactivate() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	reconciler := s.reconciler
	observer := s.observer
	s.mu.Unlock()

	if observer != nil {
		observer.Stop()
	}
	err := reconciler.Close()

	s.logger.Info("Search plugin repair deactivated")
	return err
}

// ApplyConfig replaces the configuration. It takes effect on the next
// activation; an invalid configuration is rejected and the old one kept.
func (s *Service) ApplyConfig(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
	s.logger.Info("Search plugin repair configuration updated",
		"plugin_directory", config.PluginDirectory,
		"active", s.active)
	return nil
}
