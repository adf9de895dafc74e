package quarantine

import (
	"context"
	"net/url"

	"github.com/reglet-dev/finguard/danger"
	"github.com/reglet-dev/finguard/host"
)

// Popup window geometry used by PopupNotifier.
const (
	PopupWidth  = 400
	PopupHeight = 600
	PopupTop    = 100
)

// Notifier tells the user that an extension was quarantined.
type Notifier interface {
	Notify(ctx context.Context, info host.ExtensionInfo, report danger.Report) error
}

var (
	_ Notifier = (*PopupNotifier)(nil)
	_ Notifier = NopNotifier{}
)

// PopupNotifier opens the extension's review page in a focused popup
// window, passing the quarantined id as the "id" query parameter.
type PopupNotifier struct {
	Opener host.PopupOpener
	// Path is the extension page to open, for example /popup.html.
	Path string
}

func (n *PopupNotifier) Notify(ctx context.Context, info host.ExtensionInfo, report danger.Report) error {
	return n.Opener.OpenPopup(ctx, PopupFor(n.Path, info.ID))
}

// PopupFor builds the popup options for reviewing id.
func PopupFor(path, id string) host.PopupOptions {
	return host.PopupOptions{
		URL:     path + "?" + url.Values{"id": {id}}.Encode(),
		Width:   PopupWidth,
		Height:  PopupHeight,
		Top:     PopupTop,
		Focused: true,
	}
}

// NopNotifier does nothing.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, info host.ExtensionInfo, report danger.Report) error {
	return nil
}
