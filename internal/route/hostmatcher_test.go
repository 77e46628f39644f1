package route

import "testing"

// TestHostMatcherExactAndSuffix exercises P8: exact patterns are
// anchored (no accidental substring or subdomain match) and suffix
// patterns match both the bare suffix and any subdomain of it.
func TestHostMatcherExactAndSuffix(t *testing.T) {
	m := NewHostMatcher()
	m.Add("example.com", 1)
	m.AddSuffix("example.net", 2)
	m.Build()

	cases := []struct {
		host  string
		value int
		ok    bool
	}{
		{"example.com", 1, true},
		{"sub.example.com", 0, false}, // exact pattern must not match subdomains
		{"notexample.com", 0, false},
		{"example.net", 2, true},
		{"www.example.net", 2, true},
		{"deep.sub.example.net", 2, true},
		{"examplexnet", 0, false},
		{"unrelated.org", 0, false},
	}
	for _, tc := range cases {
		got, ok := m.Match(tc.host)
		if ok != tc.ok {
			t.Errorf("Match(%q): ok=%v want %v", tc.host, ok, tc.ok)
			continue
		}
		if ok && got != tc.value {
			t.Errorf("Match(%q) = %d, want %d", tc.host, got, tc.value)
		}
	}
}

// TestHostMatcherFirstInsertionOrderWins exercises P9: when multiple
// patterns match the same host, the first one registered wins, even if
// a later, more specific pattern would also match.
func TestHostMatcherFirstInsertionOrderWins(t *testing.T) {
	m := NewHostMatcher()
	m.AddSuffix("example.com", 100) // broad, registered first
	m.Add("www.example.com", 200)   // more specific, registered second
	m.Build()

	got, ok := m.Match("www.example.com")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != 100 {
		t.Fatalf("expected first-registered rule (100) to win regardless of specificity, got %d", got)
	}
}
