package matchpattern

// Set is an ordered list of compiled patterns. A URL is a member if it
// matches any pattern; evaluation stops at the first match.
type Set struct {
	patterns []*Pattern
	invalid  []error
}

// NewSet compiles patterns, skipping malformed ones. The parse errors of
// skipped patterns are available from Invalid.
func NewSet(patterns []string) *Set {
	s := &Set{patterns: make([]*Pattern, 0, len(patterns))}
	for _, raw := range patterns {
		p, err := Parse(raw)
		if err != nil {
			s.invalid = append(s.invalid, err)
			continue
		}
		s.patterns = append(s.patterns, p)
	}
	return s
}

// Match returns the first pattern rawURL satisfies.
func (s *Set) Match(rawURL string) (*Pattern, bool) {
	if s == nil || len(s.patterns) == 0 {
		return nil, false
	}
	u, ok := parseURL(rawURL)
	if !ok {
		return nil, false
	}
	for _, p := range s.patterns {
		if p.MatchURL(u) {
			return p, true
		}
	}
	return nil, false
}

// Matches reports whether rawURL satisfies any pattern in the set.
func (s *Set) Matches(rawURL string) bool {
	_, ok := s.Match(rawURL)
	return ok
}

// Len returns the number of usable patterns.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

// Invalid returns the errors for patterns that were skipped.
func (s *Set) Invalid() []error {
	if s == nil {
		return nil
	}
	return s.invalid
}

// Matches reports whether rawURL satisfies any of patterns. Malformed
// patterns are skipped and unparsable URLs never match.
func Matches(rawURL string, patterns []string) bool {
	return NewSet(patterns).Matches(rawURL)
}
