package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/reglet-dev/finguard/config"
	"github.com/reglet-dev/finguard/danger"
	"github.com/reglet-dev/finguard/host"
	"github.com/reglet-dev/finguard/matchpattern"
	"github.com/reglet-dev/finguard/quarantine"
	"github.com/reglet-dev/finguard/statestore"
)

// loadConfig reads path, or returns the built-in configuration when path
// is empty. Warnings are logged; errors fail the load.
func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, result, err := config.Load(path)
	if result != nil {
		for _, w := range result.Warnings {
			logger.Warn("configuration warning", "path", w.Path, "message", w.Message)
		}
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func runMatch(opts globalOptions, urls []string, stdout io.Writer) error {
	if len(urls) == 0 {
		return errors.New("expected at least one URL")
	}
	cfg, err := loadConfig(opts.configPath, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	sites := matchpattern.NewSet(cfg.SitePatterns())
	for _, u := range urls {
		if p, ok := sites.Match(u); ok {
			fmt.Fprintf(stdout, "%s\t%s\n", u, p)
		} else {
			fmt.Fprintf(stdout, "%s\t-\n", u)
		}
	}
	return nil
}

func runCheckConfig(opts globalOptions, stdout io.Writer) error {
	var (
		result *config.Result
		err    error
	)
	if opts.configPath == "" {
		result = config.Validate(config.Default())
	} else {
		_, result, err = config.Load(opts.configPath)
		if result == nil {
			return err
		}
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(stdout, "error: %s\n", e)
	}
	if err != nil {
		return err
	}
	if err := result.Err(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "configuration is valid")
	return nil
}

func runSchema(stdout io.Writer) error {
	schema, err := config.Schema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(schema))
	return err
}

// offlineStore opens the state file for commands that run outside the
// browser.
func offlineStore(cfg *config.Config) (*statestore.FileStore, error) {
	if cfg.StatePath == config.StateBrowser {
		return nil, errors.New("state is kept in browser storage; use the extension popup instead")
	}
	return statestore.NewFileStore(statestore.WithPath(cfg.StatePath)), nil
}

// runReview prompts for every quarantined extension. Releases cannot reach
// the browser from here; they are recorded and applied when the native
// host next starts.
func runReview(ctx context.Context, opts globalOptions, stdout io.Writer, logger *slog.Logger) error {
	cfg, err := loadConfig(opts.configPath, logger)
	if err != nil {
		return err
	}
	store, err := offlineStore(cfg)
	if err != nil {
		return err
	}
	classifier, err := danger.NewClassifier(cfg.DangerousExtensions)
	if err != nil {
		return fmt.Errorf("dangerous extensions: %w", err)
	}

	gatekeeper := quarantine.NewGatekeeper(&quarantine.DeferredToggler{Store: store},
		quarantine.WithClassifier(classifier),
		quarantine.WithStore(store),
		quarantine.WithLogger(logger),
	)
	summary, err := gatekeeper.Review(ctx, quarantine.NewTerminalPrompter(), describeFrom(cfg.DangerousExtensions))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "released: %d, kept disabled: %d, skipped: %d\n",
		len(summary.Released), len(summary.Confirmed), len(summary.Skipped))
	if len(summary.Released) > 0 {
		fmt.Fprintln(stdout, "released extensions are enabled the next time the browser starts finguard")
	}
	return nil
}

// describeFrom names quarantined ids from the signature list, the only
// source of names available offline.
func describeFrom(signatures []danger.Signature) func(id string) host.ExtensionInfo {
	names := make(map[string]string, len(signatures))
	for _, sig := range signatures {
		names[sig.ID] = sig.Name
	}
	return func(id string) host.ExtensionInfo {
		return host.ExtensionInfo{ID: id, Name: names[id]}
	}
}

func runStatus(ctx context.Context, opts globalOptions, stdout io.Writer) error {
	cfg, err := loadConfig(opts.configPath, slog.New(slog.DiscardHandler))
	if err != nil {
		return err
	}
	store, err := offlineStore(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "state file: %s\n", store.Path())
	for _, section := range []struct{ title, key string }{
		{"suppressed", statestore.KeySuppressed},
		{"quarantined", statestore.KeyQuarantined},
		{"released, pending restart", statestore.KeyReleased},
	} {
		ids, _, err := store.Get(ctx, section.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", section.key, err)
		}
		if len(ids) == 0 {
			fmt.Fprintf(stdout, "%s: none\n", section.title)
			continue
		}
		fmt.Fprintf(stdout, "%s: %s\n", section.title, strings.Join(ids, ", "))
	}
	return nil
}
