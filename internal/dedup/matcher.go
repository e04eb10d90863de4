package dedup

// Matcher decides whether two content hashes are similar enough to share an
// identity, and assigns each hash to a bucket that shares one execution
// budget. The concrete heuristic is a replaceable strategy; PrefixMatcher
// is the default.
type Matcher interface {
	// Match reports whether two content hashes identify near-duplicate
	// content.
	Match(a, b string) bool

	// Bucket maps a content hash to its rate-limit bucket.
	Bucket(hash string) string
}

// PrefixMatcher treats hashes as similar when their first Chars hex
// characters agree. With xxhash-derived hashes this is a coarse but cheap
// heuristic: unrelated content collides with probability 16^-Chars.
type PrefixMatcher struct {
	Chars int
}

// Match reports whether the hash prefixes agree.
func (m PrefixMatcher) Match(a, b string) bool {
	n := m.Chars
	if n <= 0 {
		n = 8
	}
	if len(a) < n || len(b) < n {
		return a == b
	}
	return a[:n] == b[:n]
}

// Bucket returns the hash prefix.
func (m PrefixMatcher) Bucket(hash string) string {
	n := m.Chars
	if n <= 0 {
		n = 8
	}
	if len(hash) < n {
		return hash
	}
	return hash[:n]
}
