// Package coordinator routes browser events to the registry cache, the
// policy engine and the quarantine gatekeeper.
//
// Events are taken from a single queue and each is handled in its own
// goroutine, so several transitions may be in flight at once. The engine
// is safe for that; no event waits for another.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/reglet-dev/finguard/host"
	"github.com/reglet-dev/finguard/policy"
	"github.com/reglet-dev/finguard/quarantine"
)

// Refresher reloads the installed extension snapshot.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Coordinator dispatches events. Create it with New.
type Coordinator struct {
	tabs       host.TabReader
	registry   Refresher
	engine     *policy.Engine
	gatekeeper *quarantine.Gatekeeper
	logger     *slog.Logger
	middleware []Middleware

	handler Handler
	wg      sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGatekeeper enables quarantine of dangerous installs.
func WithGatekeeper(g *quarantine.Gatekeeper) Option {
	return func(c *Coordinator) { c.gatekeeper = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMiddleware adds handler middleware. It runs inside the built-in
// panic recovery and logging layers.
func WithMiddleware(mws ...Middleware) Option {
	return func(c *Coordinator) { c.middleware = append(c.middleware, mws...) }
}

// New creates a coordinator. tabs resolves tab ids for activation events
// and registry is refreshed on every extension lifecycle event.
func New(tabs host.TabReader, registry Refresher, engine *policy.Engine, opts ...Option) *Coordinator {
	c := &Coordinator{
		tabs:     tabs,
		registry: registry,
		engine:   engine,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	mws := append([]Middleware{PanicRecoveryMiddleware(), LoggingMiddleware(c.logger)}, c.middleware...)
	c.handler = Chain(c.route, mws...)
	return c
}

// Run handles events until the channel closes or ctx is canceled, then
// waits for in-flight handlers. Handler errors are logged, never returned.
func (c *Coordinator) Run(ctx context.Context, events <-chan host.Event) error {
	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				_ = c.handler(ctx, evt)
			}()
		}
	}
}

// Handle processes one event synchronously through the middleware chain.
func (c *Coordinator) Handle(ctx context.Context, evt host.Event) error {
	return c.handler(ctx, evt)
}

// Boot brings a freshly started process in line with persisted state: it
// loads the extension snapshot, restores anything a previous process left
// suppressed and applies releases recorded while offline.
func (c *Coordinator) Boot(ctx context.Context) error {
	return c.handler(ctx, host.Event{Kind: host.EventRuntimeStartup})
}

func (c *Coordinator) route(ctx context.Context, evt host.Event) error {
	if evt.IsExtensionLifecycle() {
		return c.onExtensionLifecycle(ctx, evt)
	}
	switch evt.Kind {
	case host.EventTabUpdated:
		return c.onTabUpdated(ctx, evt)
	case host.EventTabActivated:
		return c.onTabActivated(ctx, evt)
	case host.EventRuntimeStartup:
		return c.onStartup(ctx)
	case host.EventRuntimeInstalled:
		return c.onInstalled(ctx, evt)
	case host.EventQuarantineRelease, host.EventQuarantineConfirm:
		return c.onQuarantineDecision(ctx, evt)
	default:
		c.logger.Debug("ignoring event", "kind", evt.Kind)
		return nil
	}
}

func (c *Coordinator) onTabUpdated(ctx context.Context, evt host.Event) error {
	if evt.Status != host.TabStatusLoading && evt.Status != host.TabStatusComplete {
		return nil
	}
	if evt.Tab != nil && evt.Tab.URL != "" {
		return c.engine.Evaluate(ctx, evt.Tab.URL)
	}
	return c.evaluateTab(ctx, evt.TabID)
}

func (c *Coordinator) onTabActivated(ctx context.Context, evt host.Event) error {
	return c.evaluateTab(ctx, evt.TabID)
}

// evaluateTab fetches the tab's URL and evaluates it. A tab that cannot be
// read is evaluated as an empty URL, which restores extensions.
func (c *Coordinator) evaluateTab(ctx context.Context, tabID int) error {
	tab, err := c.tabs.GetTab(ctx, tabID)
	if err != nil {
		c.logger.Warn("could not read tab, treating as non-financial", "tab", tabID, "error", err)
		return c.engine.Evaluate(ctx, "")
	}
	return c.engine.Evaluate(ctx, tab.URL)
}

func (c *Coordinator) onExtensionLifecycle(ctx context.Context, evt host.Event) error {
	var errs []error

	if evt.Kind == host.EventExtensionInstalled && evt.Extension != nil && c.gatekeeper != nil {
		report, err := c.gatekeeper.Inspect(ctx, *evt.Extension)
		if err != nil {
			errs = append(errs, fmt.Errorf("quarantine: %w", err))
		}
		// A quarantined extension stays disabled until reviewed, so a
		// restore pass must not re-enable it.
		if report.Dangerous() {
			if err := c.engine.Forget(ctx, evt.Extension.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if evt.Kind == host.EventExtensionRemoved && evt.Extension != nil && c.gatekeeper != nil {
		if err := c.gatekeeper.Forget(ctx, evt.Extension.ID); err != nil {
			errs = append(errs, fmt.Errorf("quarantine: %w", err))
		}
	}

	if err := c.registry.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("refreshing extensions: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Coordinator) onStartup(ctx context.Context) error {
	var errs []error
	if err := c.registry.Refresh(ctx); err != nil {
		errs = append(errs, fmt.Errorf("refreshing extensions: %w", err))
	}
	if err := c.engine.RecoverAfterRestart(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.gatekeeper != nil {
		if err := c.gatekeeper.ApplyReleased(ctx); err != nil {
			errs = append(errs, fmt.Errorf("quarantine: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) onInstalled(ctx context.Context, evt host.Event) error {
	c.logger.Info("extension installed or updated", "reason", evt.Reason)
	return c.engine.Restore(ctx)
}

func (c *Coordinator) onQuarantineDecision(ctx context.Context, evt host.Event) error {
	if c.gatekeeper == nil {
		return nil
	}
	if evt.Extension == nil || evt.Extension.ID == "" {
		return fmt.Errorf("%s: missing extension id", evt.Kind)
	}
	if evt.Kind == host.EventQuarantineRelease {
		return c.gatekeeper.Release(ctx, evt.Extension.ID)
	}
	return c.gatekeeper.Confirm(ctx, evt.Extension.ID)
}
