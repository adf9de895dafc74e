package policy

import (
	"log/slog"
	"time"

	"github.com/reglet-dev/finguard/matchpattern"
	"github.com/reglet-dev/finguard/statestore"
)

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets where the suppressed set is persisted.
func WithStore(s statestore.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithFinancialSites sets the patterns that trigger suppression.
func WithFinancialSites(sites *matchpattern.Set) Option {
	return func(e *Engine) { e.sites = sites }
}

// WithWhitelist exempts extension ids from suppression.
func WithWhitelist(ids ...string) Option {
	return func(e *Engine) {
		for _, id := range ids {
			e.whitelist[id] = struct{}{}
		}
	}
}

// WithOwnID sets the id of the running extension, which is never suppressed.
func WithOwnID(id string) Option {
	return func(e *Engine) { e.ownID = id }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithFailureHandler sets the handler called for each failed toggle.
func WithFailureHandler(h FailureHandler) Option {
	return func(e *Engine) { e.onFailure = h }
}

// WithTopUp makes a financial evaluation during suppression also disable
// extensions that became enabled after suppression started.
func WithTopUp(enabled bool) Option {
	return func(e *Engine) { e.topUp = enabled }
}

// WithRetry retries a failed toggle up to retries more times with
// exponential backoff starting at interval. Zero retries (the default)
// means failures are only reported.
func WithRetry(retries int, interval time.Duration) Option {
	return func(e *Engine) {
		if retries >= 0 {
			e.retries = retries
		}
		if interval > 0 {
			e.retryInterval = interval
		}
	}
}

// WithMaxConcurrency bounds how many toggles run at once within one
// transition. Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxConcurrency = n
		}
	}
}
