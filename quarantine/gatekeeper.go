// Package quarantine handles newly installed extensions that match a
// dangerous signature: it disables them at once, records them in a
// persistent ledger and asks the user whether to keep them disabled.
package quarantine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/reglet-dev/finguard/danger"
	"github.com/reglet-dev/finguard/host"
	"github.com/reglet-dev/finguard/statestore"
)

// ErrNotQuarantined is returned by Release and Confirm for ids that are
// not awaiting review.
var ErrNotQuarantined = errors.New("extension is not quarantined")

// Gatekeeper inspects installs and keeps the quarantine ledger.
type Gatekeeper struct {
	toggler    host.ExtensionToggler
	classifier *danger.Classifier
	notifier   Notifier
	store      statestore.Store
	logger     *slog.Logger

	// mu serializes read-modify-write cycles on the ledger.
	mu sync.Mutex
}

// Option configures a Gatekeeper.
type Option func(*Gatekeeper)

// WithClassifier sets the classifier used by Inspect.
func WithClassifier(c *danger.Classifier) Option {
	return func(g *Gatekeeper) { g.classifier = c }
}

// WithNotifier sets how the user is told about a quarantined extension.
func WithNotifier(n Notifier) Option {
	return func(g *Gatekeeper) { g.notifier = n }
}

// WithStore sets where the ledger is persisted.
func WithStore(s statestore.Store) Option {
	return func(g *Gatekeeper) { g.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gatekeeper) { g.logger = l }
}

// NewGatekeeper creates a gatekeeper that disables and re-enables
// extensions through toggler. Without a classifier nothing is dangerous.
func NewGatekeeper(toggler host.ExtensionToggler, opts ...Option) *Gatekeeper {
	g := &Gatekeeper{toggler: toggler}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.store == nil {
		g.store = statestore.NewMemoryStore()
	}
	if g.notifier == nil {
		g.notifier = NopNotifier{}
	}
	return g
}

// Inspect classifies a newly installed extension. A dangerous one is
// disabled immediately, added to the ledger and reported to the notifier.
// The user is notified even if disabling fails, so the install never goes
// unnoticed.
func (g *Gatekeeper) Inspect(ctx context.Context, info host.ExtensionInfo) (danger.Report, error) {
	report := g.classifier.Classify(info)
	if !report.Dangerous() {
		if report.Level > danger.RiskNone {
			g.logger.Info("extension resembles a dangerous signature",
				"extension", info.ID, "name", info.Name, "risk", report.Level.String())
		}
		return report, nil
	}

	ctx = context.WithoutCancel(ctx)
	g.logger.Warn("quarantining dangerous extension",
		"extension", info.ID, "name", info.Name, "version", info.Version, "risk", report.Level.String())

	var errs []error
	if err := g.toggler.SetEnabled(ctx, info.ID, false); err != nil {
		errs = append(errs, fmt.Errorf("disabling %s: %w", info.ID, err))
	}
	if err := g.record(ctx, info.ID); err != nil {
		errs = append(errs, err)
	}
	if err := g.notifier.Notify(ctx, info, report); err != nil {
		errs = append(errs, fmt.Errorf("notifying about %s: %w", info.ID, err))
	}
	return report, errors.Join(errs...)
}

// Pending returns the ids awaiting review, oldest first.
func (g *Gatekeeper) Pending(ctx context.Context) ([]string, error) {
	ids, _, err := g.store.Get(ctx, statestore.KeyQuarantined)
	if err != nil {
		return nil, fmt.Errorf("loading quarantine ledger: %w", err)
	}
	return ids, nil
}

// Release re-enables a quarantined extension the user trusts and removes
// it from the ledger. The ledger entry is kept if enabling fails.
func (g *Gatekeeper) Release(ctx context.Context, id string) error {
	ctx = context.WithoutCancel(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()

	ids, err := g.pendingLocked(ctx, id)
	if err != nil {
		return err
	}
	if err := g.toggler.SetEnabled(ctx, id, true); err != nil {
		return fmt.Errorf("enabling %s: %w", id, err)
	}
	if err := g.save(ctx, slices.DeleteFunc(ids, func(v string) bool { return v == id })); err != nil {
		return err
	}
	g.logger.Info("released quarantined extension", "extension", id)
	return nil
}

// Confirm keeps a quarantined extension disabled and removes it from the
// ledger.
func (g *Gatekeeper) Confirm(ctx context.Context, id string) error {
	ctx = context.WithoutCancel(ctx)
	g.mu.Lock()
	defer g.mu.Unlock()

	ids, err := g.pendingLocked(ctx, id)
	if err != nil {
		return err
	}
	if err := g.save(ctx, slices.DeleteFunc(ids, func(v string) bool { return v == id })); err != nil {
		return err
	}
	g.logger.Info("confirmed quarantine", "extension", id)
	return nil
}

// Forget drops id from the ledger without touching the extension. It is
// used when a quarantined extension is uninstalled.
func (g *Gatekeeper) Forget(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids, err := g.Pending(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, id) {
		return nil
	}
	return g.save(ctx, slices.DeleteFunc(ids, func(v string) bool { return v == id }))
}

func (g *Gatekeeper) record(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ids, err := g.Pending(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return g.save(ctx, append(ids, id))
}

// pendingLocked loads the ledger and checks that id is in it.
func (g *Gatekeeper) pendingLocked(ctx context.Context, id string) ([]string, error) {
	ids, err := g.Pending(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(ids, id) {
		return nil, fmt.Errorf("%w: %s", ErrNotQuarantined, id)
	}
	return ids, nil
}

func (g *Gatekeeper) save(ctx context.Context, ids []string) error {
	if err := g.store.Set(ctx, statestore.KeyQuarantined, ids); err != nil {
		return fmt.Errorf("saving quarantine ledger: %w", err)
	}
	return nil
}
