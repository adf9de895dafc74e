package quarantine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/reglet-dev/finguard/host"
	"github.com/reglet-dev/finguard/statestore"
)

// ReviewSummary lists the outcome of a review session.
type ReviewSummary struct {
	Released  []string
	Confirmed []string
	Skipped   []string
}

// Review walks the ledger and applies the prompter's decision for each
// pending extension. describe fills in what is known about an id; it may
// be nil.
func (g *Gatekeeper) Review(ctx context.Context, p Prompter, describe func(id string) host.ExtensionInfo) (*ReviewSummary, error) {
	pending, err := g.Pending(ctx)
	if err != nil {
		return nil, err
	}
	summary := &ReviewSummary{}
	if len(pending) == 0 {
		return summary, nil
	}
	if !p.IsInteractive() {
		return nil, p.FormatNonInteractiveError(pending)
	}

	for _, id := range pending {
		info := host.ExtensionInfo{ID: id}
		if describe != nil {
			info = describe(id)
			info.ID = id
		}

		decision, err := p.PromptForDecision(info)
		if err != nil {
			return summary, err
		}
		switch decision {
		case DecisionRelease:
			if err := g.Release(ctx, id); err != nil {
				return summary, err
			}
			summary.Released = append(summary.Released, id)
		case DecisionKeep:
			if err := g.Confirm(ctx, id); err != nil {
				return summary, err
			}
			summary.Confirmed = append(summary.Confirmed, id)
		default:
			summary.Skipped = append(summary.Skipped, id)
		}
	}
	return summary, nil
}

var _ host.ExtensionToggler = (*DeferredToggler)(nil)

// DeferredToggler records enables in a store instead of performing them.
// It lets a review run while the browser is not connected; the recorded
// ids are enabled by ApplyReleased on the next start. Disables are
// no-ops, since a quarantined extension is already disabled.
type DeferredToggler struct {
	Store statestore.Store

	mu sync.Mutex
}

func (d *DeferredToggler) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if !enabled {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	ids, _, err := d.Store.Get(ctx, statestore.KeyReleased)
	if err != nil {
		return fmt.Errorf("loading released extensions: %w", err)
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return d.Store.Set(ctx, statestore.KeyReleased, append(ids, id))
}

// ApplyReleased enables every id recorded by a DeferredToggler and clears
// the record. Ids that fail to enable (typically uninstalled meanwhile)
// are dropped and reported in the returned error.
func (g *Gatekeeper) ApplyReleased(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	ids, _, err := g.store.Get(ctx, statestore.KeyReleased)
	if err != nil {
		return fmt.Errorf("loading released extensions: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	var errs []error
	for _, id := range ids {
		if err := g.toggler.SetEnabled(ctx, id, true); err != nil {
			errs = append(errs, fmt.Errorf("enabling released %s: %w", id, err))
			continue
		}
		g.logger.Info("re-enabled released extension", "extension", id)
	}
	if err := g.store.Set(ctx, statestore.KeyReleased, nil); err != nil {
		errs = append(errs, fmt.Errorf("clearing released extensions: %w", err))
	}
	return errors.Join(errs...)
}
