// window_observer.go: Injecting the context menu affordance into host windows
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

import (
	"sync"
)

const (
	loadEvent    = "load"
	commandEvent = "command"
	menuItemTag  = "menuitem"
)

// WindowObserverOptions configures a WindowLifecycleObserver.
type WindowObserverOptions struct {
	// Windows whose document root has a different windowtype are skipped.
	// Empty disables the check.
	WindowKind string

	ContextMenuID  string
	MarkerID       string
	InsertBeforeID string
	StylesheetHref string

	// Source of the label and access key of the menu item
	Locale LocaleBundle

	// Optional listener attached to the item's command event
	Command EventListener

	Metrics MetricsCollector
}

// DefaultWindowObserverOptions returns the ids used by the browser host.
func DefaultWindowObserverOptions() WindowObserverOptions {
	return WindowObserverOptions{
		WindowKind:     DefaultWindowKind,
		ContextMenuID:  DefaultContextMenuID,
		MarkerID:       DefaultMarkerID,
		InsertBeforeID: DefaultInsertBeforeID,
		StylesheetHref: DefaultStylesheetHref,
	}
}

// StylesheetData returns the exact processing instruction text inserted for
// href. Teardown matches on it byte for byte.
func StylesheetData(href string) string {
	return `href="` + href + `" type="text/css"`
}

// WindowLifecycleObserver keeps the menu item and stylesheet present on every
// open window while started, and removes them from every window on Stop.
//
// Each window is either injected or not; the state is read from the document
// by looking for the marker element, so injection and removal are both
// idempotent. Windows opened while started are injected once their first
// load event fires.
type WindowLifecycleObserver struct {
	windows        WindowRegistry
	options        WindowObserverOptions
	logger         Logger
	metrics        MetricsCollector
	gate           *ContextMenuGate
	stylesheetData string

	mu      sync.Mutex
	active  bool
	tracked []Window
	loads   []*loadHandler
}

// NewWindowLifecycleObserver creates an observer. It does nothing until
// Start is called.
func NewWindowLifecycleObserver(windows WindowRegistry, options WindowObserverOptions, logger Logger) *WindowLifecycleObserver {
	defaults := DefaultWindowObserverOptions()
	if options.ContextMenuID == "" {
		options.ContextMenuID = defaults.ContextMenuID
	}
	if options.MarkerID == "" {
		options.MarkerID = defaults.MarkerID
	}
	if options.InsertBeforeID == "" {
		options.InsertBeforeID = defaults.InsertBeforeID
	}
	if options.StylesheetHref == "" {
		options.StylesheetHref = defaults.StylesheetHref
	}
	if options.Locale == nil {
		options.Locale = MapBundle{}
	}

	var metrics MetricsCollector = noOpMetrics{}
	if options.Metrics != nil {
		metrics = options.Metrics
	}

	return &WindowLifecycleObserver{
		windows:        windows,
		options:        options,
		logger:         NewLogger(logger),
		metrics:        metrics,
		gate:           NewContextMenuGate(options.MarkerID),
		stylesheetData: StylesheetData(options.StylesheetHref),
	}
}

// Gate returns the popup listener registered on every context menu.
func (o *WindowLifecycleObserver) Gate() *ContextMenuGate {
	return o.gate
}

// Active reports whether the observer is started.
func (o *WindowLifecycleObserver) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Start injects every open window and subscribes to window-open
// notifications. Starting an active observer is a no-op.
func (o *WindowLifecycleObserver) Start() {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return
	}
	o.active = true
	o.mu.Unlock()

	for _, win := range o.windows.OpenWindows(o.options.WindowKind) {
		o.track(win)
		if err := o.InjectWindow(win); err != nil {
			o.logger.Error("Failed to inject window", "error", err)
		}
	}

	o.windows.RegisterNotification(o)
	o.logger.Info("Window observer started", "kind", o.options.WindowKind)
}

// Stop unsubscribes and removes the affordance from every open and every
// tracked window. Stopping an inactive observer is a no-op.
func (o *WindowLifecycleObserver) Stop() {
	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	o.active = false
	tracked := o.tracked
	loads := o.loads
	o.tracked = nil
	o.loads = nil
	o.mu.Unlock()

	o.windows.UnregisterNotification(o)

	for _, h := range loads {
		h.window.RemoveEventListener(loadEvent, h)
	}

	windows := o.windows.OpenWindows(o.options.WindowKind)
	for _, win := range tracked {
		if !containsWindow(windows, win) {
			windows = append(windows, win)
		}
	}

	for _, win := range windows {
		if err := o.uninjectRecovered(win); err != nil {
			o.logger.Error("Failed to uninject window", "error", err)
		}
	}

	o.logger.Info("Window observer stopped", "windows", len(windows))
}

// uninjectRecovered uninjects win, turning a panic from a document the host
// already tore down into an error so the remaining windows are still cleaned.
func (o *WindowLifecycleObserver) uninjectRecovered(win Window) (err error) {
	defer recoverInto(o.logger, "uninject_window", &err)()
	return o.UninjectWindow(win)
}

// Observe implements WindowObserver. Injection of a newly opened window waits
// for its load event.
func (o *WindowLifecycleObserver) Observe(window Window, topic string) {
	if topic != WindowOpenedTopic || window == nil {
		return
	}

	o.mu.Lock()
	if !o.active {
		o.mu.Unlock()
		return
	}
	handler := &loadHandler{observer: o, window: window}
	o.loads = append(o.loads, handler)
	o.mu.Unlock()

	window.AddEventListener(loadEvent, handler)
}

// loadHandler is the one-shot load listener of a newly opened window. It
// removes itself by its own reference before injecting.
type loadHandler struct {
	observer *WindowLifecycleObserver
	window   Window
}

// HandleEvent implements EventListener.
func (h *loadHandler) HandleEvent(Event) {
	h.window.RemoveEventListener(loadEvent, h)
	h.observer.windowLoaded(h)
}

func (o *WindowLifecycleObserver) windowLoaded(h *loadHandler) {
	o.mu.Lock()
	for i, pending := range o.loads {
		if pending == h {
			o.loads = append(o.loads[:i], o.loads[i+1:]...)
			break
		}
	}
	active := o.active
	o.mu.Unlock()

	if !active {
		return
	}

	o.track(h.window)
	if err := o.InjectWindow(h.window); err != nil {
		o.logger.Error("Failed to inject loaded window", "error", err)
	}
}

func (o *WindowLifecycleObserver) track(win Window) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !containsWindow(o.tracked, win) {
		o.tracked = append(o.tracked, win)
	}
}

// TrackedWindows returns the windows injected since Start.
func (o *WindowLifecycleObserver) TrackedWindows() []Window {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Window, len(o.tracked))
	copy(out, o.tracked)
	return out
}

// IsInjected reports whether win carries the marker element.
func (o *WindowLifecycleObserver) IsInjected(win Window) bool {
	doc := win.Document()
	return doc != nil && doc.ElementByID(o.options.MarkerID) != nil
}

// InjectWindow adds the menu item, the popup gate and the stylesheet
// processing instruction to win. Windows of another kind and windows that
// already carry the marker are left alone.
func (o *WindowLifecycleObserver) InjectWindow(win Window) error {
	doc := win.Document()
	if doc == nil {
		return nil
	}
	root := doc.DocumentElement()
	if root == nil {
		return nil
	}
	if o.options.WindowKind != "" && root.Attribute(WindowTypeAttr) != o.options.WindowKind {
		return nil
	}
	if doc.ElementByID(o.options.MarkerID) != nil {
		return nil
	}

	menu := doc.ElementByID(o.options.ContextMenuID)
	if menu == nil {
		return NewWindowMutationError("find_context_menu", nil).
			WithContext("menu_id", o.options.ContextMenuID)
	}

	label, err := o.options.Locale.String(LabelKey)
	if err != nil {
		return err
	}
	accessKey, err := o.options.Locale.String(AccessKeyKey)
	if err != nil {
		return err
	}

	item := doc.CreateElement(menuItemTag)
	item.SetAttribute("id", o.options.MarkerID)
	item.SetAttribute("label", label)
	item.SetAttribute("accesskey", accessKey)

	var ref Node
	if sibling := doc.ElementByID(o.options.InsertBeforeID); sibling != nil {
		ref = sibling
	}
	if err := menu.InsertBefore(item, ref); err != nil {
		return NewWindowMutationError("insert_menu_item", err)
	}

	if o.options.Command != nil {
		item.AddEventListener(commandEvent, o.options.Command)
	}
	menu.AddEventListener(PopupShowingEvent, o.gate)

	style := doc.CreateProcessingInstruction(StylesheetTarget, o.stylesheetData)
	if err := doc.InsertBefore(style, doc.FirstChild()); err != nil {
		// leave the window clean so the next attempt starts over
		menu.RemoveEventListener(PopupShowingEvent, o.gate)
		if o.options.Command != nil {
			item.RemoveEventListener(commandEvent, o.options.Command)
		}
		_ = menu.RemoveChild(item)
		return NewWindowMutationError("insert_stylesheet", err)
	}

	o.metrics.IncrementCounter(MetricWindowsInjected, nil, 1)
	o.logger.Debug("Injected search engine menu item", "marker", o.options.MarkerID)
	return nil
}

// UninjectWindow removes what InjectWindow added. A window without the
// marker or stylesheet is left untouched.
func (o *WindowLifecycleObserver) UninjectWindow(win Window) error {
	doc := win.Document()
	if doc == nil {
		return nil
	}

	removed := false
	if elem := doc.ElementByID(o.options.MarkerID); elem != nil {
		if parent, ok := elem.ParentNode().(Element); ok && parent != nil {
			parent.RemoveEventListener(PopupShowingEvent, o.gate)
			if o.options.Command != nil {
				elem.RemoveEventListener(commandEvent, o.options.Command)
			}
			if err := parent.RemoveChild(elem); err != nil {
				return NewWindowMutationError("remove_menu_item", err)
			}
			removed = true
		}
	}

	if root := doc.DocumentElement(); root != nil {
		for node := root.PreviousSibling(); node != nil; node = node.PreviousSibling() {
			if node.NodeName() == StylesheetTarget && node.NodeValue() == o.stylesheetData {
				if err := doc.RemoveChild(node); err != nil {
					return NewWindowMutationError("remove_stylesheet", err)
				}
				removed = true
				break
			}
		}
	}

	if removed {
		o.metrics.IncrementCounter(MetricWindowsUninjected, nil, 1)
		o.logger.Debug("Removed search engine menu item", "marker", o.options.MarkerID)
	}
	return nil
}

func containsWindow(windows []Window, win Window) bool {
	for _, w := range windows {
		if w == win {
			return true
		}
	}
	return false
}
