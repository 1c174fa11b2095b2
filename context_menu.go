// context_menu.go: Visibility of the injected "Add as Search Engine" menu item
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package searchrepair

// PopupShowingEvent is the event the gate listens for on the context menu.
const PopupShowingEvent = "popupshowing"

// ContextMenuGate shows the marker item only when the context menu was opened
// on a text input. One gate is shared by every window so that teardown can
// remove it by reference.
type ContextMenuGate struct {
	markerID string
}

// NewContextMenuGate creates a gate for the menu item with id markerID.
func NewContextMenuGate(markerID string) *ContextMenuGate {
	if markerID == "" {
		markerID = DefaultMarkerID
	}
	return &ContextMenuGate{markerID: markerID}
}

// HandleEvent implements EventListener. Events bubbling up from nested
// submenus are ignored.
func (g *ContextMenuGate) HandleEvent(event Event) {
	current := event.CurrentTarget()
	if current == nil || event.Target() != current {
		return
	}

	doc := current.OwnerDocument()
	if doc == nil {
		return
	}
	win := doc.DefaultView()
	if win == nil {
		return
	}
	state := win.ContextMenu()
	if state == nil {
		return
	}

	state.ShowItem(g.markerID, inputAddable(state))
}

// inputAddable reports whether the menu target can become a search engine.
func inputAddable(state ContextMenuState) bool {
	return state.OnTextInput()
}
