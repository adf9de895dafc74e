package matchpattern

import "net/url"

// Redact returns rawURL without credentials, query or fragment, for
// logging. Financial sites routinely carry session tokens in both.
// Unparsable input is replaced entirely.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparsable url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}
