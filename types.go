// types.go: Core data types shared by the reconciliation and window components
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"io"
	"time"
)

// Contract constants. The marker id and the stylesheet text are the only
// signals window teardown uses to find what injection inserted.
const (
	DefaultSentinelExtension   = "undefined"
	DefaultRecognizedExtension = "xml"
	DefaultWindowKind          = "navigator:browser"

	DefaultContextMenuID  = "contentAreaContextMenu"
	DefaultMarkerID       = "context-searchfield"
	DefaultInsertBeforeID = "context-keywordfield"
	DefaultStylesheetHref = "chrome://addtosearchbox/skin/browser.css"

	StylesheetTarget  = "xml-stylesheet"
	WindowTypeAttr    = "windowtype"
	WindowOpenedTopic = "domwindowopened"

	LabelKey     = "addAsSearchEngine.label"
	AccessKeyKey = "addAsSearchEngine.accesskey"

	drainChunkSize = 4096
)

// EngineType identifies the descriptor format handed to the installer.
type EngineType int

const (
	EngineTypeMozSearch EngineType = iota + 1
	EngineTypeOpenSearch
)

// String returns the string representation of the engine type.
func (t EngineType) String() string {
	switch t {
	case EngineTypeMozSearch:
		return "mozsearch"
	case EngineTypeOpenSearch:
		return "opensearch"
	default:
		return "unknown"
	}
}

// PluginFile is one entry of the search plugin directory.
type PluginFile struct {
	Path      string `json:"path" yaml:"path"`
	Name      string `json:"name" yaml:"name"`
	Size      int64  `json:"size" yaml:"size"`
	Hidden    bool   `json:"hidden" yaml:"hidden"`
	Extension string `json:"extension" yaml:"extension"` // case-folded, without the dot
	IsDir     bool   `json:"is_dir" yaml:"is_dir"`
}

// IsOrphan reports whether the file is a descriptor left behind by an
// interrupted install.
func (f PluginFile) IsOrphan(sentinel string) bool {
	return !f.IsDir && f.Size > 0 && !f.Hidden && f.Extension == foldExtension(sentinel)
}

// Submission is the request an engine would issue for a query.
type Submission struct {
	URI      string
	PostData io.ReadCloser // nil for GET engines
}

// SubmissionFingerprint is the comparable form of a Submission.
type SubmissionFingerprint struct {
	URI     string
	Body    string
	HasBody bool
}

// Matches reports whether both fingerprints describe the same request.
func (f SubmissionFingerprint) Matches(other SubmissionFingerprint) bool {
	return f.URI == other.URI && f.HasBody == other.HasBody && f.Body == other.Body
}

// ReconciliationOutcome records which branch a reconciliation took.
type ReconciliationOutcome int

const (
	OutcomeUnresolved ReconciliationOutcome = iota
	OutcomeRecreatedKnownEngine
	OutcomeDeduplicatedNewEngine
	OutcomeAcceptedNewEngine
)

// String returns the string representation of the outcome.
func (o ReconciliationOutcome) String() string {
	switch o {
	case OutcomeRecreatedKnownEngine:
		return "recreated_known_engine"
	case OutcomeDeduplicatedNewEngine:
		return "deduplicated_new_engine"
	case OutcomeAcceptedNewEngine:
		return "accepted_new_engine"
	default:
		return "unresolved"
	}
}

// ReconciliationReport describes what happened to one orphan file.
type ReconciliationReport struct {
	ID            string                `json:"id"`
	File          PluginFile            `json:"file"`
	Outcome       ReconciliationOutcome `json:"outcome"`
	KnownEngine   string                `json:"known_engine,omitempty"`
	Installed     string                `json:"installed,omitempty"`
	Removed       string                `json:"removed,omitempty"`
	ActiveChanged bool                  `json:"active_changed"`
	OrphanRemoved bool                  `json:"orphan_removed"`
	StartedAt     time.Time             `json:"started_at"`
	FinishedAt    time.Time             `json:"finished_at"`
	Err           error                 `json:"-"`
}

// Duration returns how long the reconciliation took.
func (r ReconciliationReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
