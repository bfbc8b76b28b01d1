package pricing

import "github.com/pario-ai/ccmeter/pkg/models"

type tier struct {
	input, output, cacheCreation, cacheRead float64
}

var (
	opus45  = tier{5e-06, 2.5e-05, 6.25e-06, 5e-07}
	opus4   = tier{1.5e-05, 7.5e-05, 1.875e-05, 1.5e-06}
	sonnet  = tier{3e-06, 1.5e-05, 3.75e-06, 3e-07}
	haiku45 = tier{1e-06, 5e-06, 1.25e-06, 1e-07}
	haiku35 = tier{8e-07, 4e-06, 1e-06, 8e-08}
	haiku3  = tier{2.5e-07, 1.25e-06, 3e-07, 3e-08}
)

var embeddedTable = map[string]tier{
	"claude-opus-4-5-20251101":   opus45,
	"claude-opus-4-5":            opus45,
	"claude-opus-4-1-20250805":   opus4,
	"claude-opus-4-1":            opus4,
	"claude-opus-4-20250514":     opus4,
	"claude-4-opus-20250514":     opus4,
	"claude-sonnet-4-5-20250929": sonnet,
	"claude-sonnet-4-5":          sonnet,
	"claude-sonnet-4-20250514":   sonnet,
	"claude-4-sonnet-20250514":   sonnet,
	"claude-3-7-sonnet-20250219": sonnet,
	"claude-3-5-sonnet-20241022": sonnet,
	"claude-3-5-sonnet-20240620": sonnet,
	"claude-haiku-4-5-20251001":  haiku45,
	"claude-haiku-4-5":           haiku45,
	"claude-3-5-haiku-20241022":  haiku35,
	"claude-3-haiku-20240307":    haiku3,
	"claude-3-opus-20240229":     opus4,
}

// Embedded returns a snapshot of the built-in Claude price table, used when
// no network or cached document is available.
func Embedded() *Snapshot {
	entries := make([]models.ModelPricing, 0, len(embeddedTable))
	for name, t := range embeddedTable {
		entries = append(entries, models.ModelPricing{
			Model:                     name,
			InputCostPerToken:         t.input,
			OutputCostPerToken:        t.output,
			CacheCreationCostPerToken: models.Float(t.cacheCreation),
			CacheReadCostPerToken:     models.Float(t.cacheRead),
		})
	}
	sortEntries(entries)
	return NewSnapshot(entries...)
}
