package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// KeyPrefix namespaces hybrid search entries in the shared store.
const KeyPrefix = "hybrid_search"

const queryHashLen = 12

// DeriveKey builds the cache key for a hybrid search request:
//
//	hybrid_search:<12-hex query hash>:<k>:<alpha>[:graph]
//
// Queries that differ only in case or surrounding whitespace share a key.
func DeriveKey(query string, k int, alpha float64, includeGraph bool) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	sum := md5.Sum([]byte(normalized))
	digest := hex.EncodeToString(sum[:])[:queryHashLen]

	var sb strings.Builder
	sb.WriteString(KeyPrefix)
	sb.WriteByte(':')
	sb.WriteString(digest)
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(k))
	sb.WriteByte(':')
	sb.WriteString(formatAlpha(alpha))
	if includeGraph {
		sb.WriteString(":graph")
	}
	return sb.String()
}

// formatAlpha renders the shortest round-trip form, switching to exponent
// notation below 1e-4, and keeps a fractional part on whole numbers: 1 gives
// "1.0", 0.25 gives "0.25" and 0.00001 gives "1e-05". Keys written by
// earlier deployments use this form.
func formatAlpha(alpha float64) string {
	s := strconv.FormatFloat(alpha, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
