// Package host describes the browser capabilities finguard depends on:
// extension management, tab state, popup windows and the push events the
// browser delivers. Implementations live elsewhere (nativemsg bridges them
// over stdio); tests use in-memory fakes.
package host

import "context"

// ExtensionInfo is a snapshot of one installed extension.
type ExtensionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Enabled bool   `json:"enabled"`
}

// Tab is the subset of browser tab state finguard reads.
type Tab struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
	ID     int    `json:"id"`
	Active bool   `json:"active,omitempty"`
}

// Tab loading states reported by tab-updated events.
const (
	TabStatusLoading  = "loading"
	TabStatusComplete = "complete"
)

// PopupOptions describes a popup window to open.
type PopupOptions struct {
	URL     string `json:"url"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Top     int    `json:"top,omitempty"`
	Focused bool   `json:"focused,omitempty"`
}

// ExtensionLister enumerates installed extensions.
type ExtensionLister interface {
	ListExtensions(ctx context.Context) ([]ExtensionInfo, error)
}

// ExtensionToggler enables or disables a single extension.
// Setting an extension to the state it is already in must be a no-op.
type ExtensionToggler interface {
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

// TabReader fetches the current state of a tab.
type TabReader interface {
	GetTab(ctx context.Context, tabID int) (Tab, error)
}

// PopupOpener opens an extension-owned popup window.
type PopupOpener interface {
	OpenPopup(ctx context.Context, opts PopupOptions) error
}

// Management groups the extension management capabilities.
type Management interface {
	ExtensionLister
	ExtensionToggler
}

// Platform is everything the coordinator needs from the browser.
type Platform interface {
	Management
	TabReader
	PopupOpener
}
