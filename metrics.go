// metrics.go: Counters and histograms for reconciliation and window injection
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Metric names
const (
	MetricOrphansFound        = "searchrepair_orphans_found_total"
	MetricReconciliations     = "searchrepair_reconciliations_total"
	MetricReconcileErrors     = "searchrepair_reconcile_errors_total"
	MetricReconcileDurationMs = "searchrepair_reconcile_duration_ms"
	MetricWindowsInjected     = "searchrepair_windows_injected_total"
	MetricWindowsUninjected   = "searchrepair_windows_uninjected_total"
)

// MetricsCollector defines the interface for collecting metrics.
//
// Hosts can plug Prometheus or any other backend in; the default collector
// keeps everything in memory.
type MetricsCollector interface {
	// Counter metrics
	IncrementCounter(name string, labels map[string]string, value int64)

	// Gauge metrics
	SetGauge(name string, labels map[string]string, value float64)

	// Histogram metrics
	RecordHistogram(name string, labels map[string]string, value float64)

	// Get current metrics snapshot
	GetMetrics() map[string]interface{}
}

// DefaultMetricsCollector provides a basic in-memory MetricsCollector.
type DefaultMetricsCollector struct {
	metrics map[string]interface{}
	mu      sync.RWMutex
}

// NewDefaultMetricsCollector creates a new default metrics collector
func NewDefaultMetricsCollector() *DefaultMetricsCollector {
	return &DefaultMetricsCollector{
		metrics: make(map[string]interface{}),
	}
}

func (dmc *DefaultMetricsCollector) IncrementCounter(name string, labels map[string]string, value int64) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()
	key := MetricKey(name, labels)
	if current, exists := dmc.metrics[key]; exists {
		if counter, ok := current.(int64); ok {
			dmc.metrics[key] = counter + value
		}
	} else {
		dmc.metrics[key] = value
	}
}

func (dmc *DefaultMetricsCollector) SetGauge(name string, labels map[string]string, value float64) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()
	dmc.metrics[MetricKey(name, labels)] = value
}

func (dmc *DefaultMetricsCollector) RecordHistogram(name string, labels map[string]string, value float64) {
	dmc.mu.Lock()
	defer dmc.mu.Unlock()
	key := MetricKey(name, labels)
	if current, exists := dmc.metrics[key]; exists {
		if histogram, ok := current.([]float64); ok {
			dmc.metrics[key] = append(histogram, value)
		}
	} else {
		dmc.metrics[key] = []float64{value}
	}
}

func (dmc *DefaultMetricsCollector) GetMetrics() map[string]interface{} {
	dmc.mu.RLock()
	defer dmc.mu.RUnlock()
	result := make(map[string]interface{}, len(dmc.metrics))
	for k, v := range dmc.metrics {
		result[k] = v
	}
	return result
}

// Counter returns the current value of a counter, 0 if unset.
func (dmc *DefaultMetricsCollector) Counter(name string, labels map[string]string) int64 {
	dmc.mu.RLock()
	defer dmc.mu.RUnlock()
	if v, ok := dmc.metrics[MetricKey(name, labels)].(int64); ok {
		return v
	}
	return 0
}

// MetricKey renders name{k=v,...} with labels sorted.
func MetricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s{%s}", name, strings.Join(parts, ","))
}

// noOpMetrics discards everything.
type noOpMetrics struct{}

func (noOpMetrics) IncrementCounter(string, map[string]string, int64)  {}
func (noOpMetrics) SetGauge(string, map[string]string, float64)        {}
func (noOpMetrics) RecordHistogram(string, map[string]string, float64) {}
func (noOpMetrics) GetMetrics() map[string]interface{}                 { return map[string]interface{}{} }
