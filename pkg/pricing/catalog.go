// Package pricing provides per-model token prices: an embedded table, a
// LiteLLM document decoder, and an immutable Snapshot used for lookups.
package pricing

import (
	"sort"
	"strings"

	"github.com/pario-ai/ccmeter/pkg/models"
)

// Catalog looks up prices for a model identifier.
type Catalog interface {
	Lookup(model string) (models.ModelPricing, bool)
}

// Snapshot is an immutable Catalog. It is safe for concurrent use.
type Snapshot struct {
	exact      map[string]models.ModelPricing
	normalized map[string]models.ModelPricing
}

// NewSnapshot copies entries into a new Snapshot. Later entries win over
// earlier ones with the same model name. For a normalized name, an entry
// without a provider prefix wins over prefixed ones.
func NewSnapshot(entries ...models.ModelPricing) *Snapshot {
	s := &Snapshot{
		exact:      make(map[string]models.ModelPricing, len(entries)),
		normalized: make(map[string]models.ModelPricing, len(entries)),
	}
	bare := make(map[string]bool, len(entries))
	for _, e := range entries {
		s.exact[e.Model] = e
		key := normalizeModelName(e.Model)
		isBare := !hasProviderPrefix(e.Model)
		if bare[key] && !isBare {
			continue
		}
		s.normalized[key] = e
		bare[key] = bare[key] || isBare
	}
	return s
}

// Merge returns a new Snapshot holding s's entries overlaid by overrides.
func (s *Snapshot) Merge(overrides ...models.ModelPricing) *Snapshot {
	return NewSnapshot(append(s.Entries(), overrides...)...)
}

// Lookup tries an exact match, then a normalized match with provider
// prefixes stripped.
func (s *Snapshot) Lookup(model string) (models.ModelPricing, bool) {
	if s == nil {
		return models.ModelPricing{}, false
	}
	if p, ok := s.exact[model]; ok {
		return p, true
	}
	p, ok := s.normalized[normalizeModelName(model)]
	return p, ok
}

// Len returns the number of distinct model names in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.exact)
}

// Entries returns all entries sorted by model name.
func (s *Snapshot) Entries() []models.ModelPricing {
	if s == nil {
		return nil
	}
	out := make([]models.ModelPricing, 0, len(s.exact))
	for _, p := range s.exact {
		out = append(out, p)
	}
	sortEntries(out)
	return out
}

// sortEntries orders entries by name so normalized collisions resolve the
// same way on every run.
func sortEntries(entries []models.ModelPricing) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Model < entries[j].Model })
}

var providerPrefixes = []string{"anthropic/", "anthropic.", "bedrock/", "vertex_ai/"}

func hasProviderPrefix(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range providerPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return strings.Contains(name, "/")
}

// normalizeModelName lowercases, strips provider prefixes and separators.
func normalizeModelName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range providerPrefixes {
		name = strings.TrimPrefix(name, p)
	}
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, ".", "")
	return name
}
