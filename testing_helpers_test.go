// testing_helpers_test.go: In-memory host doubles shared by the tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Engines and registry
// ---------------------------------------------------------------------------

// fakeEngine builds submissions from templates containing {searchTerms}.
type fakeEngine struct {
	name          string
	file          string
	uri           string
	post          string
	hasPost       bool
	submissionErr error
	closeErr      error
}

func (e *fakeEngine) Name() string { return e.name }
func (e *fakeEngine) File() string { return e.file }

func (e *fakeEngine) Submission(query string) (Submission, error) {
	if e.submissionErr != nil {
		return Submission{}, e.submissionErr
	}
	sub := Submission{URI: strings.ReplaceAll(e.uri, "{searchTerms}", url.QueryEscape(query))}
	if e.hasPost {
		body := strings.ReplaceAll(e.post, "{searchTerms}", query)
		sub.PostData = &trackedBody{Reader: strings.NewReader(body), closeErr: e.closeErr}
	}
	return sub, nil
}

// wrappedEngine is a second handle on the same engine.
type wrappedEngine struct {
	inner Engine
}

func (w *wrappedEngine) Name() string                            { return w.inner.Name() }
func (w *wrappedEngine) File() string                            { return w.inner.File() }
func (w *wrappedEngine) Submission(q string) (Submission, error) { return w.inner.Submission(q) }
func (w *wrappedEngine) Unwrap() Engine                          { return w.inner }

// trackedBody records whether it was closed.
type trackedBody struct {
	io.Reader
	closeErr error
	closed   bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return b.closeErr
}

// writeDescriptor writes a test descriptor. The format is one key=value per
// line with keys name, uri and optionally post.
func writeDescriptor(t *testing.T, path, name, uri string) {
	t.Helper()
	content := fmt.Sprintf("name=%s\nuri=%s\n", name, uri)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func parseDescriptor(path string) (*fakeEngine, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	engine := &fakeEngine{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "name":
			engine.name = value
		case "uri":
			engine.uri = value
		case "post":
			engine.post = value
			engine.hasPost = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if engine.name == "" || engine.uri == "" {
		return nil, errors.New("invalid search engine descriptor")
	}
	return engine, nil
}

// fakeRegistry is an in-memory search service. Installs read the descriptor
// behind the file:// URI and store a copy in storeDir, the way the browser
// keeps its own copy of installed engines.
type fakeRegistry struct {
	mu       sync.Mutex
	engines  []Engine
	active   Engine
	storeDir string

	// async completes installs on another goroutine
	async bool
	// hold parks completions until releaseHeld is called
	hold bool
	held []func()

	installErr   error
	removeErr    error
	setActiveErr error
	// removeErrFor fails removal of selected engines only
	removeErrFor func(Engine) error

	addCalls    []string
	addOptions  []InstallOptions
	removeCalls []string
}

func newFakeRegistry(t *testing.T) *fakeRegistry {
	return &fakeRegistry{storeDir: t.TempDir()}
}

func (r *fakeRegistry) add(engines ...Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines = append(r.engines, engines...)
}

func (r *fakeRegistry) Engines() []Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Engine, len(r.engines))
	copy(out, r.engines)
	return out
}

func (r *fakeRegistry) AddEngine(spec string, options InstallOptions, callback InstallCallback) {
	r.mu.Lock()
	r.addCalls = append(r.addCalls, spec)
	r.addOptions = append(r.addOptions, options)
	async, hold := r.async, r.hold
	r.mu.Unlock()

	complete := func() {
		engine, err := r.install(spec)
		if err != nil {
			callback.OnError(err)
			return
		}
		callback.OnSuccess(engine)
	}

	switch {
	case hold:
		r.mu.Lock()
		r.held = append(r.held, complete)
		r.mu.Unlock()
	case async:
		go complete()
	default:
		complete()
	}
}

func (r *fakeRegistry) install(spec string) (Engine, error) {
	r.mu.Lock()
	installErr := r.installErr
	r.mu.Unlock()
	if installErr != nil {
		return nil, installErr
	}

	u, err := url.Parse(spec)
	if err != nil {
		return nil, err
	}
	engine, err := parseDescriptor(u.Path)
	if err != nil {
		return nil, err
	}

	stored := filepath.Join(r.storeDir, strings.ReplaceAll(engine.name, " ", "_")+".xml")
	data, err := os.ReadFile(filepath.Clean(u.Path))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(stored, data, 0o600); err != nil {
		return nil, err
	}
	engine.file = stored

	r.add(engine)
	return engine, nil
}

func (r *fakeRegistry) releaseHeld() {
	r.mu.Lock()
	held := r.held
	r.held = nil
	r.mu.Unlock()
	for _, complete := range held {
		complete()
	}
}

func (r *fakeRegistry) heldCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.held)
}

func (r *fakeRegistry) RemoveEngine(engine Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeCalls = append(r.removeCalls, engine.Name())
	if r.removeErr != nil {
		return r.removeErr
	}
	if r.removeErrFor != nil {
		if err := r.removeErrFor(engine); err != nil {
			return err
		}
	}
	for i, e := range r.engines {
		if SameEngine(e, engine) {
			r.engines = append(r.engines[:i], r.engines[i+1:]...)
			if SameEngine(r.active, engine) {
				r.active = nil
				if len(r.engines) > 0 {
					r.active = r.engines[0]
				}
			}
			return nil
		}
	}
	return errors.New("engine not registered")
}

func (r *fakeRegistry) ActiveEngine() Engine {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *fakeRegistry) SetActiveEngine(engine Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setActiveErr != nil {
		return r.setActiveErr
	}
	r.active = engine
	return nil
}

func (r *fakeRegistry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.engines))
	for _, e := range r.engines {
		names = append(names, e.Name())
	}
	return names
}

func (r *fakeRegistry) addCallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.addCalls)
}

// ---------------------------------------------------------------------------
// File system fault injection
// ---------------------------------------------------------------------------

// faultyFS wraps a FileSystem and fails selected operations.
type faultyFS struct {
	FileSystem

	mu          sync.Mutex
	openErr     error
	copyErr     error
	removeErr   map[string]error
	readErr     error
	readBatches int
	closeErr    error
}

func newFaultyFS() *faultyFS {
	return &faultyFS{FileSystem: NewOSFileSystem(), removeErr: map[string]error{}}
}

func (f *faultyFS) OpenDir(dir string) (DirReader, error) {
	f.mu.Lock()
	openErr, readErr, batches, closeErr := f.openErr, f.readErr, f.readBatches, f.closeErr
	f.mu.Unlock()

	if openErr != nil {
		return nil, NewDirectoryReadError(dir, openErr)
	}
	reader, err := f.FileSystem.OpenDir(dir)
	if err != nil {
		return nil, err
	}
	return &faultyDirReader{DirReader: reader, dir: dir, readErr: readErr, okBatches: batches, closeErr: closeErr}, nil
}

func (f *faultyFS) Copy(src, dir, name string) (string, error) {
	f.mu.Lock()
	copyErr := f.copyErr
	f.mu.Unlock()
	if copyErr != nil {
		return "", NewFileCopyError(src, filepath.Join(dir, name), copyErr)
	}
	return f.FileSystem.Copy(src, dir, name)
}

func (f *faultyFS) Remove(path string) error {
	f.mu.Lock()
	removeErr := f.removeErr[filepath.Base(path)]
	f.mu.Unlock()
	if removeErr != nil {
		return NewFileRemoveError(path, removeErr)
	}
	return f.FileSystem.Remove(path)
}

// faultyDirReader fails after okBatches successful reads when readErr is set.
type faultyDirReader struct {
	DirReader
	dir       string
	readErr   error
	okBatches int
	reads     int
	closeErr  error
}

func (r *faultyDirReader) ReadEntries(n int) ([]PluginFile, error) {
	r.reads++
	if r.readErr != nil && r.reads > r.okBatches {
		return nil, NewDirectoryReadError(r.dir, r.readErr)
	}
	return r.DirReader.ReadEntries(n)
}

func (r *faultyDirReader) Close() error {
	err := r.DirReader.Close()
	if r.closeErr != nil {
		return r.closeErr
	}
	return err
}

// writeFile creates a file of size bytes in dir.
func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o600))
	return path
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// ---------------------------------------------------------------------------
// DOM
// ---------------------------------------------------------------------------

type listenerSet struct {
	listeners map[string][]EventListener
}

func (s *listenerSet) AddEventListener(eventType string, listener EventListener) {
	if s.listeners == nil {
		s.listeners = map[string][]EventListener{}
	}
	for _, l := range s.listeners[eventType] {
		if l == listener {
			return
		}
	}
	s.listeners[eventType] = append(s.listeners[eventType], listener)
}

func (s *listenerSet) RemoveEventListener(eventType string, listener EventListener) {
	list := s.listeners[eventType]
	for i, l := range list {
		if l == listener {
			s.listeners[eventType] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (s *listenerSet) count(eventType string) int {
	return len(s.listeners[eventType])
}

func (s *listenerSet) snapshot(eventType string) []EventListener {
	list := s.listeners[eventType]
	out := make([]EventListener, len(list))
	copy(out, list)
	return out
}

type fakeEvent struct {
	eventType string
	target    Node
	current   Node
}

func (e fakeEvent) Type() string        { return e.eventType }
func (e fakeEvent) Target() Node        { return e.target }
func (e fakeEvent) CurrentTarget() Node { return e.current }

// parentable is implemented by every fake node.
type parentable interface {
	setParent(parent Node)
}

type fakeElement struct {
	listenerSet
	tag      string
	attrs    map[string]string
	doc      *fakeDocument
	parent   Node
	children []Node
}

func (e *fakeElement) NodeName() string        { return e.tag }
func (e *fakeElement) NodeValue() string       { return "" }
func (e *fakeElement) ParentNode() Node        { return e.parent }
func (e *fakeElement) PreviousSibling() Node   { return previousSibling(e.parent, e) }
func (e *fakeElement) OwnerDocument() Document { return e.doc }
func (e *fakeElement) ID() string              { return e.attrs["id"] }
func (e *fakeElement) Attribute(name string) string {
	return e.attrs[name]
}
func (e *fakeElement) SetAttribute(name, value string) { e.attrs[name] = value }
func (e *fakeElement) setParent(parent Node)           { e.parent = parent }

func (e *fakeElement) InsertBefore(child, ref Node) error {
	children, err := insertBefore(e.children, child, ref)
	if err != nil {
		return err
	}
	e.children = children
	child.(parentable).setParent(e)
	return nil
}

func (e *fakeElement) RemoveChild(child Node) error {
	children, err := removeChild(e.children, child)
	if err != nil {
		return err
	}
	e.children = children
	child.(parentable).setParent(nil)
	return nil
}

// dispatch fires eventType at e with e as target, then bubbles to the parent
// elements.
func (e *fakeElement) dispatch(eventType string) {
	var node Node = e
	for node != nil {
		elem, ok := node.(*fakeElement)
		if !ok {
			return
		}
		for _, l := range elem.snapshot(eventType) {
			l.HandleEvent(fakeEvent{eventType: eventType, target: e, current: elem})
		}
		node = elem.parent
	}
}

type fakePI struct {
	target string
	data   string
	doc    *fakeDocument
	parent Node
}

func (p *fakePI) NodeName() string        { return p.target }
func (p *fakePI) NodeValue() string       { return p.data }
func (p *fakePI) ParentNode() Node        { return p.parent }
func (p *fakePI) PreviousSibling() Node   { return previousSibling(p.parent, p) }
func (p *fakePI) OwnerDocument() Document { return p.doc }
func (p *fakePI) setParent(parent Node)   { p.parent = parent }

type fakeDocument struct {
	children []Node
	view     *fakeWindow

	failInsert bool
}

func (d *fakeDocument) NodeName() string        { return "#document" }
func (d *fakeDocument) NodeValue() string       { return "" }
func (d *fakeDocument) ParentNode() Node        { return nil }
func (d *fakeDocument) PreviousSibling() Node   { return nil }
func (d *fakeDocument) OwnerDocument() Document { return nil }

func (d *fakeDocument) DocumentElement() Element {
	for _, child := range d.children {
		if elem, ok := child.(*fakeElement); ok {
			return elem
		}
	}
	return nil
}

func (d *fakeDocument) ElementByID(id string) Element {
	var find func(nodes []Node) *fakeElement
	find = func(nodes []Node) *fakeElement {
		for _, n := range nodes {
			elem, ok := n.(*fakeElement)
			if !ok {
				continue
			}
			if elem.ID() == id {
				return elem
			}
			if found := find(elem.children); found != nil {
				return found
			}
		}
		return nil
	}
	if found := find(d.children); found != nil {
		return found
	}
	return nil
}

func (d *fakeDocument) CreateElement(tag string) Element {
	return &fakeElement{tag: tag, attrs: map[string]string{}, doc: d}
}

func (d *fakeDocument) CreateProcessingInstruction(target, data string) Node {
	return &fakePI{target: target, data: data, doc: d}
}

func (d *fakeDocument) FirstChild() Node {
	if len(d.children) == 0 {
		return nil
	}
	return d.children[0]
}

func (d *fakeDocument) InsertBefore(child, ref Node) error {
	if d.failInsert {
		return errors.New("document is read-only")
	}
	children, err := insertBefore(d.children, child, ref)
	if err != nil {
		return err
	}
	d.children = children
	child.(parentable).setParent(d)
	return nil
}

func (d *fakeDocument) RemoveChild(child Node) error {
	children, err := removeChild(d.children, child)
	if err != nil {
		return err
	}
	d.children = children
	child.(parentable).setParent(nil)
	return nil
}

func (d *fakeDocument) DefaultView() Window {
	if d.view == nil {
		return nil
	}
	return d.view
}

// stylesheets returns the data of every xml-stylesheet processing
// instruction at the top level.
func (d *fakeDocument) stylesheets() []string {
	var out []string
	for _, child := range d.children {
		if pi, ok := child.(*fakePI); ok && pi.target == StylesheetTarget {
			out = append(out, pi.data)
		}
	}
	return out
}

// countID counts elements carrying id anywhere in the tree.
func (d *fakeDocument) countID(id string) int {
	var count func(nodes []Node) int
	count = func(nodes []Node) int {
		n := 0
		for _, node := range nodes {
			if elem, ok := node.(*fakeElement); ok {
				if elem.ID() == id {
					n++
				}
				n += count(elem.children)
			}
		}
		return n
	}
	return count(d.children)
}

func insertBefore(children []Node, child, ref Node) ([]Node, error) {
	if ref == nil {
		return append(children, child), nil
	}
	for i, c := range children {
		if c == ref {
			out := make([]Node, 0, len(children)+1)
			out = append(out, children[:i]...)
			out = append(out, child)
			return append(out, children[i:]...), nil
		}
	}
	return nil, errors.New("reference node is not a child")
}

func removeChild(children []Node, child Node) ([]Node, error) {
	for i, c := range children {
		if c == child {
			return append(children[:i], children[i+1:]...), nil
		}
	}
	return nil, errors.New("node is not a child")
}

func previousSibling(parent, node Node) Node {
	var siblings []Node
	switch p := parent.(type) {
	case *fakeElement:
		siblings = p.children
	case *fakeDocument:
		siblings = p.children
	default:
		return nil
	}
	for i, s := range siblings {
		if s == node {
			if i == 0 {
				return nil
			}
			return siblings[i-1]
		}
	}
	return nil
}

type fakeMenuState struct {
	onTextInput bool
	shown       map[string]bool
}

func (m *fakeMenuState) OnTextInput() bool { return m.onTextInput }

func (m *fakeMenuState) ShowItem(id string, show bool) {
	if m.shown == nil {
		m.shown = map[string]bool{}
	}
	m.shown[id] = show
}

type fakeWindow struct {
	listenerSet
	doc  *fakeDocument
	menu *fakeMenuState
}

func (w *fakeWindow) Document() Document {
	if w.doc == nil {
		return nil
	}
	return w.doc
}

func (w *fakeWindow) ContextMenu() ContextMenuState {
	if w.menu == nil {
		return nil
	}
	return w.menu
}

func (w *fakeWindow) fire(eventType string) {
	for _, l := range w.snapshot(eventType) {
		l.HandleEvent(fakeEvent{eventType: eventType})
	}
}

func (w *fakeWindow) contextMenu() *fakeElement {
	return w.doc.ElementByID(DefaultContextMenuID).(*fakeElement)
}

// newBrowserWindow builds a window document with a content context menu
// holding three items, one of them the keyword field item.
func newBrowserWindow(t *testing.T, kind string) *fakeWindow {
	t.Helper()
	doc := &fakeDocument{}
	root := doc.CreateElement("window")
	root.SetAttribute(WindowTypeAttr, kind)
	require.NoError(t, doc.InsertBefore(root, nil))

	menu := doc.CreateElement("menupopup")
	menu.SetAttribute("id", DefaultContextMenuID)
	require.NoError(t, root.InsertBefore(menu, nil))

	for _, id := range []string{"context-copy", DefaultInsertBeforeID, "context-selectall"} {
		item := doc.CreateElement(menuItemTag)
		item.SetAttribute("id", id)
		require.NoError(t, menu.InsertBefore(item, nil))
	}

	win := &fakeWindow{doc: doc, menu: &fakeMenuState{}}
	doc.view = win
	return win
}

type fakeWindowRegistry struct {
	mu        sync.Mutex
	windows   []*fakeWindow
	observers []WindowObserver
}

func (r *fakeWindowRegistry) OpenWindows(kind string) []Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Window
	for _, w := range r.windows {
		if kind == "" || w.doc.DocumentElement().Attribute(WindowTypeAttr) == kind {
			out = append(out, w)
		}
	}
	return out
}

func (r *fakeWindowRegistry) RegisterNotification(observer WindowObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, observer)
}

func (r *fakeWindowRegistry) UnregisterNotification(observer WindowObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.observers {
		if o == observer {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// open adds a window and notifies observers. The caller fires "load".
func (r *fakeWindowRegistry) open(win *fakeWindow) {
	r.mu.Lock()
	r.windows = append(r.windows, win)
	observers := make([]WindowObserver, len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, o := range observers {
		o.Observe(win, WindowOpenedTopic)
	}
}

func (r *fakeWindowRegistry) observerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observers)
}

// countingListener counts handled events.
type countingListener struct {
	mu    sync.Mutex
	count int
}

func (c *countingListener) HandleEvent(Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
}
