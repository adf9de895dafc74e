package matchpattern_test

import (
	"testing"

	"github.com/reglet-dev/finguard/matchpattern"
)

func FuzzMatches(f *testing.F) {
	patterns := []string{
		"*://*.binance.com/*",
		"*://plusone.google.com/*/fastbutton*",
		"*paypal.com/*",
	}
	f.Add("https://www.binance.com/en/trade/BTC_USDT")
	f.Add("https://www.example.org/")
	f.Add("https://%zz")
	f.Add("")

	f.Fuzz(func(t *testing.T, rawURL string) {
		// We just ensure it doesn't panic
		matchpattern.Matches(rawURL, patterns)
	})
}

func FuzzParse(f *testing.F) {
	f.Add("*://*.example.com/*")
	f.Add("https://*bankamerica.tld/*")
	f.Add("*://")
	f.Add("a://b/[")

	f.Fuzz(func(t *testing.T, raw string) {
		p, err := matchpattern.Parse(raw)
		if err == nil {
			p.Match("https://www.example.com/path?q=1")
		}
	})
}
