// Package route implements host-keyed connector dispatch: a HostMatcher
// of exact and suffix patterns feeding a Connector that picks which
// downstream connector handles each target.
package route

import "regexp"

// HostMatcher resolves a host name to the value attached to the first
// pattern, by insertion order, that matches it. This is a pragmatic,
// linear-scan translation of the original's compiled RE2::Set: each
// pattern becomes its own anchored regexp, scanned in registration
// order so ties break by insertion order rather than by specificity,
// exactly as the original's Set::Match (which returns matches sorted by
// ascending pattern index) does.
type HostMatcher struct {
	patterns []*regexp.Regexp
	values   []int
}

// NewHostMatcher returns an empty matcher ready for Add/AddSuffix.
func NewHostMatcher() *HostMatcher {
	return &HostMatcher{}
}

// Add registers an exact-host pattern `^QuoteMeta(host)$ -> value`.
func (m *HostMatcher) Add(host string, value int) {
	m.patterns = append(m.patterns, regexp.MustCompile("^"+regexp.QuoteMeta(host)+"$"))
	m.values = append(m.values, value)
}

// AddSuffix registers a domain-suffix pattern
// `^(.*\.)?QuoteMeta(suffix)$ -> value`.
func (m *HostMatcher) AddSuffix(suffix string, value int) {
	m.patterns = append(m.patterns, regexp.MustCompile(`^(.*\.)?`+regexp.QuoteMeta(suffix)+`$`))
	m.values = append(m.values, value)
}

// Build is a no-op kept for symmetry with the original's explicit
// compile step; regexp.MustCompile in Add/AddSuffix already compiles
// eagerly.
func (m *HostMatcher) Build() {}

// Match returns the value of the first registered pattern (in insertion
// order) matching host, or (0, false) if none match.
func (m *HostMatcher) Match(host string) (int, bool) {
	for i, p := range m.patterns {
		if p.MatchString(host) {
			return m.values[i], true
		}
	}
	return 0, false
}
