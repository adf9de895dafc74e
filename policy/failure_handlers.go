package policy

import "log/slog"

// FailureHandler is called when enabling or disabling an extension fails.
// Failures are isolated to one extension and never abort a transition.
type FailureHandler interface {
	OnToggleFailure(id string, enabled bool, err error)
}

// Ensure implementations satisfy the interface.
var (
	_ FailureHandler = (*LogFailureHandler)(nil)
	_ FailureHandler = (*NopFailureHandler)(nil)
)

// LogFailureHandler logs failures through slog.
type LogFailureHandler struct {
	Logger *slog.Logger
}

func (h *LogFailureHandler) OnToggleFailure(id string, enabled bool, err error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("extension toggle failed", "extension", id, "enabled", enabled, "error", err)
}

// NopFailureHandler does nothing.
type NopFailureHandler struct{}

func (h *NopFailureHandler) OnToggleFailure(id string, enabled bool, err error) {}
