// host.go: Interfaces of the host collaborators the repair engine drives
//
// The repair engine never talks to a concrete browser. Search engine storage,
// the installer, the plugin directory, locale strings and window documents
// are all reached through the interfaces below, which hosts implement.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"sort"
)

// Engine is an opaque search engine entry owned by the host registry.
type Engine interface {
	// Name returns the display name of the engine
	Name() string

	// File returns the path of the descriptor backing the engine, or ""
	// for engines without one. Paths are compared by file identity.
	File() string

	// Submission builds the request the engine would issue for query
	Submission(query string) (Submission, error)
}

// engineUnwrapper is implemented by host wrappers around a shared engine
// object, so identity checks see through them.
type engineUnwrapper interface {
	Unwrap() Engine
}

// SameEngine reports whether a and b are the same underlying registry object.
func SameEngine(a, b Engine) bool {
	a, b = unwrapEngine(a), unwrapEngine(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

func unwrapEngine(e Engine) Engine {
	for e != nil {
		u, ok := e.(engineUnwrapper)
		if !ok {
			return e
		}
		inner := u.Unwrap()
		if inner == nil {
			return e
		}
		e = inner
	}
	return e
}

// InstallOptions are forwarded verbatim to the installer.
type InstallOptions struct {
	Type        EngineType
	IconURI     string
	MustConfirm bool
}

// InstallCallback receives the single asynchronous completion of AddEngine.
// Exactly one of the methods is called, possibly from another goroutine.
type InstallCallback interface {
	OnSuccess(engine Engine)
	OnError(err error)
}

// SearchEngineRegistry is the host's live list of search engines.
type SearchEngineRegistry interface {
	Engines() []Engine
	AddEngine(spec string, options InstallOptions, callback InstallCallback)
	RemoveEngine(engine Engine) error
	ActiveEngine() Engine
	SetActiveEngine(engine Engine) error
}

// FileSystem is the subset of file operations reconciliation needs.
type FileSystem interface {
	// OpenDir starts a lazy enumeration of dir
	OpenDir(dir string) (DirReader, error)

	// Stat describes a single path
	Stat(path string) (PluginFile, error)

	// Copy copies src into dir under name and returns the new path
	Copy(src, dir, name string) (string, error)

	// Remove deletes a single file
	Remove(path string) error

	// Exists reports whether path exists
	Exists(path string) (bool, error)

	// SameFile reports whether both paths denote the same file
	SameFile(a, b string) bool
}

// DirReader yields directory entries in batches. ReadEntries returns io.EOF
// once the directory is exhausted.
type DirReader interface {
	ReadEntries(n int) ([]PluginFile, error)
	Close() error
}

// LocaleBundle resolves localized strings.
type LocaleBundle interface {
	String(key string) (string, error)
}

// MapBundle is a LocaleBundle backed by a map, usually fed from Config.
type MapBundle map[string]string

// String implements LocaleBundle.
func (b MapBundle) String(key string) (string, error) {
	value, ok := b[key]
	if !ok {
		return "", NewLocaleLookupError(key, nil)
	}
	return value, nil
}

// Keys returns the bundle keys in sorted order.
func (b MapBundle) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EventListener handles DOM events. Listeners are removed by the same
// reference they were added with, so implementations must be comparable
// (pointer receivers).
type EventListener interface {
	HandleEvent(event Event)
}

// EventTarget accepts event listeners.
type EventTarget interface {
	AddEventListener(eventType string, listener EventListener)
	RemoveEventListener(eventType string, listener EventListener)
}

// Event is a dispatched DOM event.
type Event interface {
	Type() string
	Target() Node
	CurrentTarget() Node
}

// Node is a node of a window document.
type Node interface {
	NodeName() string
	NodeValue() string
	ParentNode() Node
	PreviousSibling() Node
	OwnerDocument() Document
}

// Element is an element node.
type Element interface {
	Node
	EventTarget
	ID() string
	Attribute(name string) string
	SetAttribute(name, value string)
	InsertBefore(child, ref Node) error
	RemoveChild(child Node) error
}

// Document is the document of a host window.
type Document interface {
	Node
	DocumentElement() Element
	ElementByID(id string) Element
	CreateElement(tag string) Element
	CreateProcessingInstruction(target, data string) Node
	FirstChild() Node
	InsertBefore(child, ref Node) error
	RemoveChild(child Node) error
	DefaultView() Window
}

// ContextMenuState is the host's per-window context menu controller. It
// only exists while a context menu is open.
type ContextMenuState interface {
	OnTextInput() bool
	ShowItem(id string, show bool)
}

// Window is a host window.
type Window interface {
	EventTarget
	Document() Document
	ContextMenu() ContextMenuState
}

// WindowObserver receives window notifications.
type WindowObserver interface {
	Observe(window Window, topic string)
}

// WindowRegistry enumerates open windows and publishes window-open
// notifications.
type WindowRegistry interface {
	OpenWindows(kind string) []Window
	RegisterNotification(observer WindowObserver)
	UnregisterNotification(observer WindowObserver)
}
