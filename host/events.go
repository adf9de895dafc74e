package host

// EventKind names a browser push event.
type EventKind string

const (
	EventTabUpdated         EventKind = "tabs.onUpdated"
	EventTabActivated       EventKind = "tabs.onActivated"
	EventExtensionInstalled EventKind = "management.onInstalled"
	EventExtensionRemoved   EventKind = "management.onUninstalled"
	EventExtensionEnabled   EventKind = "management.onEnabled"
	EventExtensionDisabled  EventKind = "management.onDisabled"
	EventRuntimeStartup     EventKind = "runtime.onStartup"
	EventRuntimeInstalled   EventKind = "runtime.onInstalled"

	// Sent by the quarantine popup with the user's decision.
	EventQuarantineRelease EventKind = "quarantine.release"
	EventQuarantineConfirm EventKind = "quarantine.confirm"
)

// Event is a single push event from the browser. Which fields are set
// depends on Kind:
//   - tabs.onUpdated: TabID, Status (changeInfo.status) and Tab
//   - tabs.onActivated: TabID
//   - management.*: Extension (onUninstalled carries only the id)
//   - runtime.onInstalled: Reason ("install", "update", ...)
//   - quarantine.*: Extension (only the id is required)
type Event struct {
	Kind      EventKind      `json:"kind"`
	Status    string         `json:"status,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Tab       *Tab           `json:"tab,omitempty"`
	Extension *ExtensionInfo `json:"extension,omitempty"`
	TabID     int            `json:"tabId,omitempty"`
}

// IsExtensionLifecycle reports whether the event changes the set or state
// of installed extensions.
func (e Event) IsExtensionLifecycle() bool {
	switch e.Kind {
	case EventExtensionInstalled, EventExtensionRemoved, EventExtensionEnabled, EventExtensionDisabled:
		return true
	}
	return false
}
