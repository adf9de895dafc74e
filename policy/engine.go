// Package policy implements the suppression state machine: it disables
// every non-exempt extension while a financial site is open and restores
// exactly the extensions it disabled once the user navigates away.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/elliotchance/orderedmap/v2"
	"github.com/reglet-dev/finguard/host"
	"github.com/reglet-dev/finguard/matchpattern"
	"github.com/reglet-dev/finguard/statestore"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// State is the engine's coarse state.
type State int

const (
	// Normal means no extension is suppressed.
	Normal State = iota
	// Suppressing means at least one extension is suppressed.
	Suppressing
)

func (s State) String() string {
	if s == Suppressing {
		return "suppressing"
	}
	return "normal"
}

// Snapshotter provides the current list of installed extensions.
// registry.Cache implements it.
type Snapshotter interface {
	Current() []host.ExtensionInfo
}

// Engine owns the suppressed set. It is safe for concurrent use: the set
// is only mutated under mu, never across a browser call, so overlapping
// transitions interleave at call boundaries and rely on toggles being
// idempotent rather than on mutual exclusion.
type Engine struct {
	toggler   host.ExtensionToggler
	snapshot  Snapshotter
	store     statestore.Store
	sites     *matchpattern.Set
	logger    *slog.Logger
	onFailure FailureHandler
	whitelist map[string]struct{}
	ownID     string

	topUp          bool
	retries        int
	retryInterval  time.Duration
	maxConcurrency int

	mu sync.Mutex
	// suppressed maps id to name in the order extensions were disabled.
	suppressed *orderedmap.OrderedMap[string, string]
	// disabling maps ids with a disable call in flight to a channel that
	// is closed once the call returns.
	disabling map[string]chan struct{}

	// persistMu orders snapshot-and-write pairs so the last write always
	// carries the newest set.
	persistMu sync.Mutex
}

// NewEngine creates an engine that toggles extensions through toggler and
// reads installed extensions from snapshot.
func NewEngine(toggler host.ExtensionToggler, snapshot Snapshotter, opts ...Option) *Engine {
	e := &Engine{
		toggler:       toggler,
		snapshot:      snapshot,
		whitelist:     make(map[string]struct{}),
		retryInterval: 500 * time.Millisecond,
		suppressed:    orderedmap.NewOrderedMap[string, string](),
		disabling:     make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.store == nil {
		e.store = statestore.NewMemoryStore()
	}
	if e.sites == nil {
		e.sites = matchpattern.NewSet(nil)
	}
	if e.onFailure == nil {
		e.onFailure = &LogFailureHandler{Logger: e.logger}
	}
	return e
}

// Evaluate runs the transition for a navigation to rawURL. An empty or
// unparsable URL is treated as non-financial, so uncertainty restores
// extensions rather than suppressing them.
func (e *Engine) Evaluate(ctx context.Context, rawURL string) error {
	if p, ok := e.sites.Match(rawURL); ok {
		e.logger.Debug("financial site detected", "url", matchpattern.Redact(rawURL), "pattern", p.String())
		return e.Suppress(ctx)
	}
	return e.Restore(ctx)
}

// DisableList returns the installed extensions a suppression would
// disable: enabled, not whitelisted and not the running extension.
func (e *Engine) DisableList() []host.ExtensionInfo {
	return lo.Filter(e.snapshot.Current(), func(ext host.ExtensionInfo, _ int) bool {
		return ext.Enabled && !e.IsExempt(ext.ID)
	})
}

// IsExempt reports whether id can never be suppressed.
func (e *Engine) IsExempt(id string) bool {
	if id == e.ownID {
		return true
	}
	_, ok := e.whitelist[id]
	return ok
}

// Suppress disables every extension in DisableList. While already
// suppressing it is a no-op unless top-up is enabled, in which case only
// extensions not yet suppressed are disabled.
//
// The new ids are persisted before any extension is disabled, so a crash
// mid-transition can only leave recorded ids behind, which the next
// restore pass re-enables harmlessly. If persisting fails nothing is
// disabled. Ids a concurrent Restore claimed while the write was pending
// are not disabled.
func (e *Engine) Suppress(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	if e.suppressed.Len() > 0 && !e.topUp {
		e.mu.Unlock()
		return nil
	}
	targets := lo.Filter(e.DisableList(), func(ext host.ExtensionInfo, _ int) bool {
		_, already := e.suppressed.Get(ext.ID)
		return !already
	})
	if len(targets) == 0 {
		e.mu.Unlock()
		return nil
	}
	for _, ext := range targets {
		e.suppressed.Set(ext.ID, ext.Name)
	}
	e.mu.Unlock()

	if err := e.persist(ctx); err != nil {
		e.mu.Lock()
		for _, ext := range targets {
			e.suppressed.Delete(ext.ID)
		}
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	targets = lo.Filter(targets, func(ext host.ExtensionInfo, _ int) bool {
		_, still := e.suppressed.Get(ext.ID)
		return still
	})
	done := make(chan struct{})
	for _, ext := range targets {
		e.disabling[ext.ID] = done
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		for _, ext := range targets {
			if e.disabling[ext.ID] == done {
				delete(e.disabling, ext.ID)
			}
		}
		e.mu.Unlock()
		close(done)
	}()

	if len(targets) == 0 {
		return nil
	}
	return e.toggleAll(ctx, targets, false)
}

// Restore re-enables every suppressed extension and clears the set. With
// an empty set it makes no browser calls and no writes.
//
// Ids are claimed from the set before any browser call, so overlapping
// restores enable each id exactly once. A claimed id whose disable call
// is still in flight is enabled only after that call returns. The emptied
// set is persisted even when some enables fail: an id that cannot be
// enabled (typically because it was uninstalled) must not be retried
// forever.
func (e *Engine) Restore(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	e.mu.Lock()
	if e.suppressed.Len() == 0 {
		e.mu.Unlock()
		return nil
	}
	targets := make([]host.ExtensionInfo, 0, e.suppressed.Len())
	var pending []chan struct{}
	for el := e.suppressed.Front(); el != nil; el = el.Next() {
		targets = append(targets, host.ExtensionInfo{ID: el.Key, Name: el.Value})
		if ch, ok := e.disabling[el.Key]; ok && !slices.Contains(pending, ch) {
			pending = append(pending, ch)
		}
	}
	e.suppressed = orderedmap.NewOrderedMap[string, string]()
	e.mu.Unlock()

	for _, ch := range pending {
		<-ch
	}

	toggleErr := e.toggleAll(ctx, targets, true)
	if err := e.persist(ctx); err != nil {
		return errors.Join(toggleErr, err)
	}
	return toggleErr
}

// Forget drops id from the suppressed set without enabling it, so no
// restore pass re-enables it. The coordinator calls it for a suppressed
// extension that gets quarantined.
func (e *Engine) Forget(ctx context.Context, id string) error {
	e.mu.Lock()
	removed := e.suppressed.Delete(id)
	e.mu.Unlock()
	if !removed {
		return nil
	}
	e.logger.Info("dropped extension from suppressed set", "extension", id)
	return e.persist(context.WithoutCancel(ctx))
}

// Rehydrate loads the persisted set into memory, keeping anything already
// suppressed by this process.
func (e *Engine) Rehydrate(ctx context.Context) error {
	ids, _, err := e.store.Get(ctx, statestore.KeySuppressed)
	if err != nil {
		return fmt.Errorf("loading suppressed extensions: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		if _, ok := e.suppressed.Get(id); !ok {
			e.suppressed.Set(id, "")
		}
	}
	if len(ids) > 0 {
		e.logger.Info("rehydrated suppressed extensions", "count", len(ids))
	}
	return nil
}

// RecoverAfterRestart rehydrates the persisted set and unconditionally
// restores it, so a crash or reload never leaves extensions disabled.
func (e *Engine) RecoverAfterRestart(ctx context.Context) error {
	if err := e.Rehydrate(ctx); err != nil {
		return err
	}
	return e.Restore(ctx)
}

// Suppressed returns the suppressed ids in the order they were disabled.
func (e *Engine) Suppressed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.suppressedIDs()
}

// State returns Suppressing when any extension is suppressed.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.suppressed.Len() > 0 {
		return Suppressing
	}
	return Normal
}

// suppressedIDs must be called with mu held.
func (e *Engine) suppressedIDs() []string {
	ids := make([]string, 0, e.suppressed.Len())
	for el := e.suppressed.Front(); el != nil; el = el.Next() {
		ids = append(ids, el.Key)
	}
	return ids
}

func (e *Engine) persist(ctx context.Context) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	ids := e.suppressedIDs()
	e.mu.Unlock()

	if err := e.store.Set(ctx, statestore.KeySuppressed, ids); err != nil {
		return fmt.Errorf("persisting suppressed extensions: %w", err)
	}
	return nil
}

// toggleAll sets every target to enabled concurrently. Each toggle
// succeeds or fails on its own; failures are reported to the failure
// handler and returned joined.
func (e *Engine) toggleAll(ctx context.Context, targets []host.ExtensionInfo, enabled bool) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}

	for _, ext := range targets {
		g.Go(func() error {
			if err := e.toggle(ctx, ext.ID, enabled); err != nil {
				e.onFailure.OnToggleFailure(ext.ID, enabled, err)
				mu.Lock()
				errs = append(errs, &ToggleError{ID: ext.ID, Enabled: enabled, Err: err})
				mu.Unlock()
				return nil
			}
			if enabled {
				e.logger.Info("re-enabled extension", "extension", ext.ID, "name", ext.Name)
			} else {
				e.logger.Info("disabled extension", "extension", ext.ID, "name", ext.Name)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (e *Engine) toggle(ctx context.Context, id string, enabled bool) error {
	if e.retries == 0 {
		return e.toggler.SetEnabled(ctx, id, enabled)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInterval
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, e.toggler.SetEnabled(ctx, id, enabled)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.retries+1)),
	)
	return err
}
