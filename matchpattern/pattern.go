// Package matchpattern implements browser-extension match patterns
// ("<scheme>://<host>/<path>") and URL membership tests against them.
package matchpattern

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// ErrMalformedPattern is returned by Parse for patterns that cannot be
// split into scheme, host and path or that use wildcards illegally.
var ErrMalformedPattern = errors.New("malformed match pattern")

const schemeSeparator = "://"

// Pattern is a parsed match pattern.
type Pattern struct {
	raw    string
	scheme string
	host   string
	path   glob.Glob
	// subdomains is set for "*.suffix" hosts; host then holds the suffix.
	subdomains bool
	anyHost    bool
}

// Parse compiles a match pattern such as "*://*.example.com/*".
//
// Scheme "*" stands for http or https. The host may be "*", "*.suffix"
// (suffix or any subdomain of it) or a literal host. In the path "*"
// matches any run of characters, including "/".
func Parse(raw string) (*Pattern, error) {
	idx := strings.Index(raw, schemeSeparator)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q has no scheme separator", ErrMalformedPattern, raw)
	}
	scheme := strings.ToLower(raw[:idx])
	if scheme == "" {
		return nil, fmt.Errorf("%w: %q has an empty scheme", ErrMalformedPattern, raw)
	}
	if scheme != "*" && strings.Contains(scheme, "*") {
		return nil, fmt.Errorf("%w: %q has a partial scheme wildcard", ErrMalformedPattern, raw)
	}

	rest := raw[idx+len(schemeSeparator):]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return nil, fmt.Errorf("%w: %q has no path", ErrMalformedPattern, raw)
	}

	p := &Pattern{raw: raw, scheme: scheme}
	if err := p.parseHost(strings.ToLower(rest[:slash])); err != nil {
		return nil, fmt.Errorf("%w: %q: %s", ErrMalformedPattern, raw, err)
	}

	path, err := compilePath(rest[slash:])
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %s", ErrMalformedPattern, raw, err)
	}
	p.path = path
	return p, nil
}

// MustParse is like Parse but panics on error.
func MustParse(raw string) *Pattern {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) parseHost(host string) error {
	switch {
	case host == "*":
		p.anyHost = true
	case strings.HasPrefix(host, "*."):
		suffix := host[2:]
		if suffix == "" || strings.Contains(suffix, "*") {
			return errors.New("invalid subdomain wildcard")
		}
		p.host = suffix
		p.subdomains = true
	case strings.Contains(host, "*"):
		return errors.New("host wildcard must be \"*\" or a leading \"*.\"")
	case host == "" && p.scheme != "file":
		return errors.New("empty host")
	default:
		p.host = host
	}
	return nil
}

// compilePath turns a path pattern into a glob where only "*" is special.
func compilePath(path string) (glob.Glob, error) {
	parts := strings.Split(path, "*")
	for i, part := range parts {
		parts[i] = glob.QuoteMeta(part)
	}
	return glob.Compile(strings.Join(parts, "*"))
}

// String returns the pattern as written.
func (p *Pattern) String() string {
	return p.raw
}

// MatchURL reports whether u satisfies the pattern.
func (p *Pattern) MatchURL(u *url.URL) bool {
	if u == nil {
		return false
	}
	return p.matchScheme(strings.ToLower(u.Scheme)) &&
		p.matchHost(strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")) &&
		p.path.Match(requestPath(u))
}

// Match parses rawURL and reports whether it satisfies the pattern.
// Unparsable URLs never match.
func (p *Pattern) Match(rawURL string) bool {
	u, ok := parseURL(rawURL)
	if !ok {
		return false
	}
	return p.MatchURL(u)
}

func (p *Pattern) matchScheme(scheme string) bool {
	if p.scheme == "*" {
		return scheme == "http" || scheme == "https"
	}
	return p.scheme == scheme
}

func (p *Pattern) matchHost(host string) bool {
	switch {
	case p.anyHost:
		return true
	case p.subdomains:
		return host == p.host || strings.HasSuffix(host, "."+p.host)
	default:
		return host == p.host
	}
}

// requestPath is the part of the URL a path pattern is matched against:
// the path plus the query, if any.
func requestPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

func parseURL(rawURL string) (*url.URL, bool) {
	if rawURL == "" {
		return nil, false
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, false
	}
	if u.Opaque != "" {
		return nil, false
	}
	return u, true
}
