package embedder

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/knoguchi/insight/internal/vectorstore"
)

// DefaultSparseBuckets is the size of the hashed term space.
const DefaultSparseBuckets = 1 << 20

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

// HashingSparseVectorizer maps text to a keyword vector by hashing each term
// into a fixed number of buckets. Weights are 1+ln(tf). Query and document
// vectors share the same space, so a dot product rewards shared terms.
type HashingSparseVectorizer struct {
	buckets uint64
}

// NewHashingSparseVectorizer creates a vectorizer with the given bucket
// count. buckets <= 0 uses DefaultSparseBuckets.
func NewHashingSparseVectorizer(buckets int) *HashingSparseVectorizer {
	if buckets <= 0 {
		buckets = DefaultSparseBuckets
	}
	return &HashingSparseVectorizer{buckets: uint64(buckets)}
}

// Vectorize returns the sparse vector of text with indices ascending. Text
// without any indexable term yields an empty vector.
func (v *HashingSparseVectorizer) Vectorize(text string) *vectorstore.SparseVector {
	counts := make(map[uint32]int)
	for _, term := range Tokenize(text) {
		counts[uint32(xxhash.Sum64String(term)%v.buckets)]++
	}

	out := &vectorstore.SparseVector{
		Indices: make([]uint32, 0, len(counts)),
		Values:  make([]float32, 0, len(counts)),
	}
	for idx := range counts {
		out.Indices = append(out.Indices, idx)
	}
	sort.Slice(out.Indices, func(i, j int) bool { return out.Indices[i] < out.Indices[j] })
	for _, idx := range out.Indices {
		out.Values = append(out.Values, float32(1+math.Log(float64(counts[idx]))))
	}
	return out
}

// Tokenize lowercases text, splits on anything that is not a letter or digit
// and drops stopwords and single characters.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}
