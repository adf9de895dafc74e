// Package hosttest provides an in-memory browser for tests.
package hosttest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/reglet-dev/finguard/host"
)

var (
	// ErrNotInstalled is returned by SetEnabled for unknown ids.
	ErrNotInstalled = errors.New("extension not installed")
	// ErrNoTab is returned by GetTab for unknown tab ids.
	ErrNoTab = errors.New("no such tab")
)

var _ host.Platform = (*Browser)(nil)

// ToggleCall records one SetEnabled invocation.
type ToggleCall struct {
	ID      string
	Enabled bool
}

// Browser is a fake host.Platform backed by memory. Toggling an extension
// to the state it is already in succeeds without effect, as real browsers do.
type Browser struct {
	// ListErr, when set, is returned by ListExtensions.
	ListErr error
	// TabErr, when set, is returned by GetTab.
	TabErr error

	mu         sync.Mutex
	extensions []host.ExtensionInfo
	tabs       map[int]host.Tab
	toggleErrs map[string]error
	calls      []ToggleCall
	popups     []host.PopupOptions
	lists      int
}

// NewBrowser creates a fake browser with the given extensions installed.
func NewBrowser(exts ...host.ExtensionInfo) *Browser {
	return &Browser{
		extensions: slices.Clone(exts),
		tabs:       make(map[int]host.Tab),
		toggleErrs: make(map[string]error),
	}
}

func (b *Browser) ListExtensions(ctx context.Context) ([]host.ExtensionInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists++
	if b.ListErr != nil {
		return nil, b.ListErr
	}
	return slices.Clone(b.extensions), nil
}

func (b *Browser) SetEnabled(ctx context.Context, id string, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, ToggleCall{ID: id, Enabled: enabled})
	if err := b.toggleErrs[id]; err != nil {
		return err
	}
	i := b.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotInstalled, id)
	}
	b.extensions[i].Enabled = enabled
	return nil
}

func (b *Browser) GetTab(ctx context.Context, tabID int) (host.Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.TabErr != nil {
		return host.Tab{}, b.TabErr
	}
	tab, ok := b.tabs[tabID]
	if !ok {
		return host.Tab{}, fmt.Errorf("%w: %d", ErrNoTab, tabID)
	}
	return tab, nil
}

func (b *Browser) OpenPopup(ctx context.Context, opts host.PopupOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.popups = append(b.popups, opts)
	return nil
}

// Install adds or replaces an extension.
func (b *Browser) Install(ext host.ExtensionInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexOf(ext.ID); i >= 0 {
		b.extensions[i] = ext
		return
	}
	b.extensions = append(b.extensions, ext)
}

// Uninstall removes an extension.
func (b *Browser) Uninstall(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexOf(id); i >= 0 {
		b.extensions = slices.Delete(b.extensions, i, i+1)
	}
}

// Extension returns the current state of an installed extension.
func (b *Browser) Extension(id string) (host.ExtensionInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexOf(id); i >= 0 {
		return b.extensions[i], true
	}
	return host.ExtensionInfo{}, false
}

// SetTab adds or replaces a tab.
func (b *Browser) SetTab(tab host.Tab) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tabs[tab.ID] = tab
}

// FailToggle makes every SetEnabled call for id return err. A nil err
// clears the failure.
func (b *Browser) FailToggle(id string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.toggleErrs, id)
		return
	}
	b.toggleErrs[id] = err
}

// ToggleCalls returns every SetEnabled call so far, in call order.
func (b *Browser) ToggleCalls() []ToggleCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.calls)
}

// ResetCalls forgets recorded SetEnabled calls.
func (b *Browser) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// Popups returns every popup opened so far.
func (b *Browser) Popups() []host.PopupOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.popups)
}

// ListCount returns how many times ListExtensions was called.
func (b *Browser) ListCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lists
}

func (b *Browser) indexOf(id string) int {
	return slices.IndexFunc(b.extensions, func(e host.ExtensionInfo) bool { return e.ID == id })
}
