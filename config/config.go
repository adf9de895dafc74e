// Package config loads and validates finguard's configuration: the
// financial site patterns, the whitelist, the dangerous extension
// signatures and the tuning knobs of the policy engine.
package config

import (
	"fmt"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/reglet-dev/finguard/danger"
	"github.com/samber/lo"
)

// DefaultPopupPath is the extension page opened for quarantine review.
const DefaultPopupPath = "/popup.html"

// StateBrowser as state_path keeps state in the extension's local storage
// instead of a file.
const StateBrowser = "browser"

// Config is the complete finguard configuration.
type Config struct {
	FinancialSites      []Site             `json:"financial_sites,omitempty" yaml:"financial_sites,omitempty"`
	Whitelist           []WhitelistEntry   `json:"whitelist,omitempty" yaml:"whitelist,omitempty"`
	DangerousExtensions []danger.Signature `json:"dangerous_extensions,omitempty" yaml:"dangerous_extensions,omitempty"`
	// Include lists doublestar globs, relative to the config file, of
	// extra files whose lists are appended to this one.
	Include     []string    `json:"include,omitempty" yaml:"include,omitempty"`
	StatePath   string      `json:"state_path,omitempty" yaml:"state_path,omitempty"`
	OwnID       string      `json:"own_id,omitempty" yaml:"own_id,omitempty"`
	Suppression Suppression `json:"suppression,omitempty" yaml:"suppression,omitempty"`
	Quarantine  Quarantine  `json:"quarantine,omitempty" yaml:"quarantine,omitempty"`
}

// Site is a financial site pattern. Examples are URLs the pattern must
// match; they document the pattern and are checked by Validate.
type Site struct {
	Match    string   `json:"match" yaml:"match"`
	Examples []string `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// WhitelistEntry is an extension that is never suppressed.
type WhitelistEntry struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	ID   string `json:"id" yaml:"id"`
}

// Suppression tunes the policy engine.
type Suppression struct {
	TopUp          bool     `json:"top_up,omitempty" yaml:"top_up,omitempty"`
	Retries        int      `json:"retries,omitempty" yaml:"retries,omitempty" jsonschema:"minimum=0"`
	RetryInterval  Duration `json:"retry_interval,omitempty" yaml:"retry_interval,omitempty"`
	MaxConcurrency int      `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty" jsonschema:"minimum=0"`
}

// Quarantine configures the review prompt.
type Quarantine struct {
	PopupPath string `json:"popup_path,omitempty" yaml:"popup_path,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("500ms").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// JSONSchema describes Duration as a string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, for example 500ms",
	}
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SitePatterns returns the match pattern of every financial site.
func (c *Config) SitePatterns() []string {
	return lo.Map(c.FinancialSites, func(s Site, _ int) string { return s.Match })
}

// WhitelistIDs returns the id of every whitelisted extension.
func (c *Config) WhitelistIDs() []string {
	return lo.Map(c.Whitelist, func(w WhitelistEntry, _ int) string { return w.ID })
}

// PopupPath returns the quarantine popup path, defaulting to /popup.html.
func (c *Config) PopupPath() string {
	if c.Quarantine.PopupPath == "" {
		return DefaultPopupPath
	}
	return c.Quarantine.PopupPath
}

// merge appends the lists of other to c. Scalars of other are ignored.
func (c *Config) merge(other *Config) {
	c.FinancialSites = append(c.FinancialSites, other.FinancialSites...)
	c.Whitelist = append(c.Whitelist, other.Whitelist...)
	c.DangerousExtensions = append(c.DangerousExtensions, other.DangerousExtensions...)
}

// Default returns the built-in configuration.
//
// The three *.tld bank patterns are kept as published by the upstream
// list they come from; they are malformed and are skipped with a warning.
func Default() *Config {
	return &Config{
		Whitelist: []WhitelistEntry{
			{Name: "uBlock Origin", ID: "cjpalhdlnbpafiamejdnhcphjbkeiagm"},
		},
		FinancialSites: []Site{
			{
				Match: "*://*.binance.com/*",
				Examples: []string{
					"https://www.binance.com/en/trade/BTC_USDT",
					"https://www.binance.com/en/trade/ETH_BTC",
				},
			},
			{Match: "*://*.coinbase.com/*", Examples: []string{"https://www.coinbase.com/"}},
			{Match: "*://*.kraken.com/*", Examples: []string{"https://www.kraken.com/"}},
			{
				Match:    "*://*.paypal.com/*",
				Examples: []string{"https://www.paypal.com/", "https://www.paypal.com/c2/home"},
			},
			{
				Match: "*://*.stripe.com/*",
				Examples: []string{
					"https://stripe.com/",
					"https://dashboard.stripe.com/login",
					"https://dashboard.stripe.com/payments",
				},
			},
			{Match: "*://plusone.google.com/*/fastbutton*"},
			{Match: "*://platform.twitter.com/widgets/*"},
			{Match: "https://*bankamerica.tld/*"},
			{Match: "https://*deutsche-bank-24.tld/*"},
			{Match: "https://*bankofamerica.tld/*"},
			{Match: "*://www.facebook.com/plugins/*"},
		},
	}
}
