package cache

// Similarity scores the overlap between two token sets in [0,1]. The
// concrete function is a replaceable strategy; TokenOverlap is the default.
type Similarity interface {
	Score(a, b map[string]struct{}) float64
}

// TokenOverlap computes Jaccard similarity over normalized content tokens.
type TokenOverlap struct{}

// Score returns intersection size over union size. Two empty sets score
// zero: an empty request should never alias arbitrary cached content.
func (TokenOverlap) Score(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}

	inter := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			inter++
		}
	}

	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
