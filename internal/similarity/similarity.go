// Package similarity scores and orders potential conversation partners.
//
// Scoring is pure: a composite of Jaccard similarity over interest tags
// (explicit profile tags merged with tags derived from recent history) and
// Jaccard similarity over purpose-text word tokens. Nothing computed here is
// persisted.
package similarity

// Weights of the composite score
const (
	InterestWeight = 0.7
	PurposeWeight  = 0.3
)

// Jaccard returns |A∩B| / |A∪B| over the distinct elements of a and b, or 0
// when either is empty.
func Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	inter := 0
	for x := range setA {
		if _, ok := setB[x]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// InterestSimilarity compares two merged tag sets
func InterestSimilarity(a, b []string) float64 {
	return Jaccard(a, b)
}

// PurposeSimilarity compares two free-text purpose fields by word tokens
func PurposeSimilarity(a, b string) float64 {
	return Jaccard(Tokens(a), Tokens(b))
}

// Composite blends the two component similarities
func Composite(interest, purpose float64) float64 {
	return InterestWeight*interest + PurposeWeight*purpose
}

func toSet(xs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		set[x] = struct{}{}
	}
	return set
}
