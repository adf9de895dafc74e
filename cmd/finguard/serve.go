package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/reglet-dev/finguard/config"
	"github.com/reglet-dev/finguard/coordinator"
	"github.com/reglet-dev/finguard/danger"
	"github.com/reglet-dev/finguard/matchpattern"
	"github.com/reglet-dev/finguard/nativemsg"
	"github.com/reglet-dev/finguard/policy"
	"github.com/reglet-dev/finguard/quarantine"
	"github.com/reglet-dev/finguard/registry"
	"github.com/reglet-dev/finguard/statestore"
)

// runServe speaks the native messaging protocol on stdin/stdout until the
// browser closes the pipe or ctx is canceled. launchID is the calling
// extension's id when the browser supplied one.
func runServe(ctx context.Context, opts globalOptions, launchID string, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	cfg, err := loadConfig(opts.configPath, logger)
	if err != nil {
		return err
	}
	if cfg.OwnID == "" {
		cfg.OwnID = launchID
	}

	bridge := nativemsg.NewBridge(stdin, stdout, nativemsg.WithLogger(logger))
	store := stateStore(cfg, bridge)

	sites := matchpattern.NewSet(cfg.SitePatterns())
	for _, err := range sites.Invalid() {
		logger.Warn("skipping financial site pattern", "error", err)
	}
	classifier, err := danger.NewClassifier(cfg.DangerousExtensions)
	if err != nil {
		return fmt.Errorf("dangerous extensions: %w", err)
	}

	cache := registry.New(bridge, registry.WithLogger(logger))
	engine := policy.NewEngine(bridge, cache,
		policy.WithStore(store),
		policy.WithFinancialSites(sites),
		policy.WithWhitelist(cfg.WhitelistIDs()...),
		policy.WithOwnID(cfg.OwnID),
		policy.WithTopUp(cfg.Suppression.TopUp),
		policy.WithRetry(cfg.Suppression.Retries, cfg.Suppression.RetryInterval.Std()),
		policy.WithMaxConcurrency(cfg.Suppression.MaxConcurrency),
		policy.WithFailureHandler(&policy.LogFailureHandler{Logger: logger}),
		policy.WithLogger(logger),
	)
	gatekeeper := quarantine.NewGatekeeper(bridge,
		quarantine.WithClassifier(classifier),
		quarantine.WithStore(store),
		quarantine.WithNotifier(&quarantine.PopupNotifier{Opener: bridge, Path: cfg.PopupPath()}),
		quarantine.WithLogger(logger),
	)
	coord := coordinator.New(bridge, cache, engine,
		coordinator.WithGatekeeper(gatekeeper),
		coordinator.WithLogger(logger),
	)

	logger.Info("native host starting",
		"version", version,
		"own_id", cfg.OwnID,
		"financial_sites", sites.Len(),
		"whitelist", len(cfg.Whitelist))

	bridgeErr := make(chan error, 1)
	go func() { bridgeErr <- bridge.Run(ctx) }()

	// Boot needs responses from the bridge, so it must not hold up the
	// event loop that drains the bridge's queue.
	go func() { _ = coord.Boot(ctx) }()

	runErr := coord.Run(ctx, bridge.Events())
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	err = <-bridgeErr
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("native host stopped")
	return errors.Join(runErr, err)
}

// stateStore picks where suppression and quarantine state is persisted.
func stateStore(cfg *config.Config, bridge *nativemsg.Bridge) statestore.Store {
	if cfg.StatePath == config.StateBrowser {
		return bridge
	}
	return statestore.NewFileStore(statestore.WithPath(cfg.StatePath))
}
