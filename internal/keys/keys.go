// Package keys derives content-addressable identities for optimization
// requests. The cache and the deduplicator share the same derivation but
// apply different retention policies to the resulting keys.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/flipsync/costwise/pkg/types"
)

// Generator derives normalized keys and content fingerprints. The zero
// value is usable; Prefix optionally namespaces generated keys.
type Generator struct {
	// Prefix is prepended to all generated keys.
	Prefix string
}

// NewGenerator creates a key generator with an optional prefix.
func NewGenerator(prefix string) *Generator {
	return &Generator{Prefix: prefix}
}

// NormalizedKey returns the deterministic digest for a request. It covers
// the operation kind, the normalized content, and the whitelisted context
// fields (marketplace and category). Quality requirement and priority are
// deliberately excluded: they gate admission, not identity.
func (g *Generator) NormalizedKey(req *types.OptimizationRequest) string {
	var sb strings.Builder
	sb.WriteString("op:")
	sb.WriteString(string(req.Operation))
	sb.WriteString("|content:")
	sb.WriteString(Normalize(req.Content))
	if req.Context.Marketplace != "" {
		sb.WriteString("|marketplace:")
		sb.WriteString(strings.ToLower(req.Context.Marketplace))
	}
	if req.Context.Category != "" {
		sb.WriteString("|category:")
		sb.WriteString(strings.ToLower(req.Context.Category))
	}

	sum := sha256.Sum256([]byte(sb.String()))
	digest := hex.EncodeToString(sum[:])

	if g.Prefix != "" {
		return g.Prefix + ":" + digest
	}
	return digest
}

// ContentHash returns a fast fingerprint of the normalized content alone,
// used by the deduplicator for near-duplicate detection across contexts.
func (g *Generator) ContentHash(content string) string {
	var h [8]byte
	sum := xxhash.Sum64String(Normalize(content))
	for i := 7; i >= 0; i-- {
		h[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(h[:])
}

// Normalize lowercases content and collapses runs of whitespace so that
// trivially reformatted requests map to the same identity.
func Normalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// Tokens returns the set of normalized content tokens, used by the cache's
// token-overlap similarity fallback.
func Tokens(content string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(content))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
