// config.go: Configuration of the repair service
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

const maxConfigFileSize = 1 << 20

// Config holds every tunable of the repair service.
//
// Example YAML:
//
//	plugin_directory: ${HOME}/.mozilla/firefox/default/searchplugins
//	sentinel_extension: undefined
//	recognized_extension: xml
//	engine_type: mozsearch
//	window:
//	  kind: navigator:browser
//	  marker_id: context-searchfield
//	locale:
//	  addAsSearchEngine.label: Add as Search Engine...
//	  addAsSearchEngine.accesskey: S
type Config struct {
	PluginDirectory     string `json:"plugin_directory" yaml:"plugin_directory"`
	SentinelExtension   string `json:"sentinel_extension" yaml:"sentinel_extension"`
	RecognizedExtension string `json:"recognized_extension" yaml:"recognized_extension"`

	EngineType  string `json:"engine_type" yaml:"engine_type"`
	IconURI     string `json:"icon_uri,omitempty" yaml:"icon_uri,omitempty"`
	MustConfirm bool   `json:"must_confirm" yaml:"must_confirm"`

	Window WindowConfig      `json:"window" yaml:"window"`
	Locale map[string]string `json:"locale" yaml:"locale"`
}

// WindowConfig holds the ids the window observer relies on.
type WindowConfig struct {
	Kind           string `json:"kind" yaml:"kind"`
	ContextMenuID  string `json:"context_menu_id" yaml:"context_menu_id"`
	MarkerID       string `json:"marker_id" yaml:"marker_id"`
	InsertBeforeID string `json:"insert_before_id" yaml:"insert_before_id"`
	StylesheetHref string `json:"stylesheet_href" yaml:"stylesheet_href"`
}

// DefaultConfig returns the browser defaults with English labels.
func DefaultConfig() Config {
	return Config{
		SentinelExtension:   DefaultSentinelExtension,
		RecognizedExtension: DefaultRecognizedExtension,
		EngineType:          EngineTypeMozSearch.String(),
		Window: WindowConfig{
			Kind:           DefaultWindowKind,
			ContextMenuID:  DefaultContextMenuID,
			MarkerID:       DefaultMarkerID,
			InsertBeforeID: DefaultInsertBeforeID,
			StylesheetHref: DefaultStylesheetHref,
		},
		Locale: map[string]string{
			LabelKey:     "Add as Search Engine...",
			AccessKeyKey: "S",
		},
	}
}

// Validate checks the configuration for missing or unsafe values.
func (c Config) Validate() error {
	if c.PluginDirectory == "" {
		return NewConfigValidationError("plugin_directory is required", nil)
	}
	if strings.Contains(c.PluginDirectory, "\x00") {
		return NewConfigValidationError("plugin_directory contains a null byte", nil)
	}
	if err := validateExtension("sentinel_extension", c.SentinelExtension); err != nil {
		return err
	}
	if err := validateExtension("recognized_extension", c.RecognizedExtension); err != nil {
		return err
	}
	if foldExtension(c.SentinelExtension) == foldExtension(c.RecognizedExtension) {
		return NewConfigValidationError("sentinel and recognized extensions must differ", nil)
	}
	if _, err := ParseEngineType(c.EngineType); err != nil {
		return err
	}
	if c.Window.MarkerID == "" || c.Window.ContextMenuID == "" {
		return NewConfigValidationError("window marker_id and context_menu_id are required", nil)
	}
	if c.Window.StylesheetHref == "" {
		return NewConfigValidationError("window stylesheet_href is required", nil)
	}
	for _, key := range []string{LabelKey, AccessKeyKey} {
		if _, ok := c.Locale[key]; !ok {
			return NewConfigValidationError("missing locale string "+key, nil)
		}
	}
	return nil
}

func validateExtension(field, ext string) error {
	if ext == "" {
		return NewConfigValidationError(field+" is required", nil)
	}
	if strings.ContainsAny(ext, `./\`) {
		return NewConfigValidationError(field+" must be a bare extension", nil).
			WithContext("value", ext)
	}
	return nil
}

// ParseEngineType converts a config string to an EngineType.
func ParseEngineType(s string) (EngineType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mozsearch":
		return EngineTypeMozSearch, nil
	case "opensearch":
		return EngineTypeOpenSearch, nil
	default:
		return 0, NewConfigValidationError("unsupported engine_type", nil).
			WithContext("engine_type", s)
	}
}

// InstallOptions derives the AddEngine options.
func (c Config) InstallOptions() InstallOptions {
	engineType, err := ParseEngineType(c.EngineType)
	if err != nil {
		engineType = EngineTypeMozSearch
	}
	return InstallOptions{
		Type:        engineType,
		IconURI:     c.IconURI,
		MustConfirm: c.MustConfirm,
	}
}

// ReconcilerOptions derives the reconciler options.
func (c Config) ReconcilerOptions(metrics MetricsCollector) ReconcilerOptions {
	return ReconcilerOptions{
		RecognizedExtension: c.RecognizedExtension,
		Install:             c.InstallOptions(),
		Metrics:             metrics,
	}
}

// WindowObserverOptions derives the window observer options.
func (c Config) WindowObserverOptions(command EventListener, metrics MetricsCollector) WindowObserverOptions {
	return WindowObserverOptions{
		WindowKind:     c.Window.Kind,
		ContextMenuID:  c.Window.ContextMenuID,
		MarkerID:       c.Window.MarkerID,
		InsertBeforeID: c.Window.InsertBeforeID,
		StylesheetHref: c.Window.StylesheetHref,
		Locale:         MapBundle(c.Locale),
		Command:        command,
		Metrics:        metrics,
	}
}

// LoadConfig reads a JSON or YAML configuration file. Missing fields keep
// their DefaultConfig values, and ${VAR} references in plugin_directory are
// expanded from the environment.
func LoadConfig(path string) (Config, error) {
	cleanPath, err := validateConfigPath(path)
	if err != nil {
		return Config{}, err
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, NewConfigNotFoundError(path)
		}
		return Config{}, NewConfigFileError(path, "cannot access config file", err)
	}
	if !info.Mode().IsRegular() || info.Size() > maxConfigFileSize {
		return Config{}, NewConfigFileError(path, "config file invalid or too large", nil)
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path validated above
	if err != nil {
		return Config{}, NewConfigFileError(path, "failed to read config file", err)
	}
	if len(data) == 0 {
		return Config{}, NewConfigFileError(path, "config file is empty", nil)
	}

	config, err := ParseConfig(data, argus.DetectFormat(cleanPath))
	if err != nil {
		return Config{}, NewConfigParseError(path, err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// ParseConfig decodes data on top of DefaultConfig.
func ParseConfig(data []byte, format argus.ConfigFormat) (Config, error) {
	config := DefaultConfig()

	var err error
	switch format {
	case argus.FormatJSON:
		err = json.Unmarshal(data, &config)
	case argus.FormatYAML:
		err = yaml.Unmarshal(data, &config)
	default:
		return Config{}, NewConfigValidationError("unsupported config format: "+format.String(), nil)
	}
	if err != nil {
		return Config{}, err
	}

	config.PluginDirectory = os.ExpandEnv(config.PluginDirectory)
	return config, nil
}

func validateConfigPath(path string) (string, error) {
	if path == "" {
		return "", NewConfigPathError(path, "empty config file path")
	}
	if strings.Contains(path, "..") {
		return "", NewConfigPathError(path, "invalid or unsafe config file path")
	}
	return filepath.Clean(path), nil
}
