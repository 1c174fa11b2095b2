// matcher.go: Identity and duplicate lookups against the live engine registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

// EngineMatcher answers the two questions reconciliation asks the registry.
// The lookups are independent and never combined in one pass.
type EngineMatcher struct {
	registry SearchEngineRegistry
	fs       FileSystem
	logger   Logger
	newProbe func() string
}

// NewEngineMatcher creates a matcher over registry, using fs for file
// identity checks.
func NewEngineMatcher(registry SearchEngineRegistry, fs FileSystem, logger Logger) *EngineMatcher {
	return &EngineMatcher{
		registry: registry,
		fs:       fs,
		logger:   NewLogger(logger),
		newProbe: NewProbeQuery,
	}
}

// ByFileIdentity returns the first registry engine whose backing file is the
// same file as path, or nil. Identity is decided by the file system, not by
// comparing path strings.
func (m *EngineMatcher) ByFileIdentity(path string) Engine {
	for _, engine := range m.registry.Engines() {
		backing := engine.File()
		if backing == "" {
			continue
		}
		if m.fs.SameFile(backing, path) {
			m.logger.Debug("Found an engine by file", "engine", engine.Name(), "path", path)
			return engine
		}
	}

	m.logger.Debug("Found no engine by file", "path", path)
	return nil
}

// FindDuplicate returns the first registry engine, other than engine itself,
// whose submission for a shared random probe matches engine's. Registry order
// decides between several matches.
func (m *EngineMatcher) FindDuplicate(engine Engine) (Engine, error) {
	probe := m.newProbe()

	want, err := Fingerprint(engine, probe)
	if err != nil {
		return nil, err
	}

	for _, candidate := range m.registry.Engines() {
		if SameEngine(candidate, engine) {
			continue
		}

		got, err := Fingerprint(candidate, probe)
		if err != nil {
			return nil, err
		}

		if got.Matches(want) {
			m.logger.Debug("Found a duplicate engine",
				"engine", engine.Name(),
				"duplicate", candidate.Name())
			return candidate, nil
		}
	}

	m.logger.Debug("Found no duplicate engine", "engine", engine.Name())
	return nil, nil
}
