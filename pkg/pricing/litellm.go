package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pario-ai/ccmeter/pkg/logger"
	"github.com/pario-ai/ccmeter/pkg/models"
)

// DefaultURL is the LiteLLM model price document.
const DefaultURL = "https://raw.githubusercontent.com/BerriAI/litellm/main/model_prices_and_context_window.json"

// liteLLMModel is one entry of the LiteLLM price document.
type liteLLMModel struct {
	InputCostPerToken  *float64 `json:"input_cost_per_token"`
	OutputCostPerToken *float64 `json:"output_cost_per_token"`
	CacheCreationCost  *float64 `json:"cache_creation_input_token_cost"`
	CacheReadCost      *float64 `json:"cache_read_input_token_cost"`
	LiteLLMProvider    string   `json:"litellm_provider"`
}

// Decode parses a LiteLLM price document into a Snapshot. Entries without
// both input and output prices are skipped, as is the "sample_spec" entry.
func Decode(data []byte) (*Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode pricing document: %w", err)
	}

	entries := make([]models.ModelPricing, 0, len(raw))
	for name, msg := range raw {
		if name == "sample_spec" {
			continue
		}
		var m liteLLMModel
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}
		if m.InputCostPerToken == nil || m.OutputCostPerToken == nil {
			continue
		}
		entries = append(entries, models.ModelPricing{
			Model:                     name,
			InputCostPerToken:         *m.InputCostPerToken,
			OutputCostPerToken:        *m.OutputCostPerToken,
			CacheCreationCostPerToken: m.CacheCreationCost,
			CacheReadCostPerToken:     m.CacheReadCost,
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("decode pricing document: no priced models")
	}
	sortEntries(entries)
	return NewSnapshot(entries...), nil
}

// Fetch downloads the price document at url.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build pricing request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch pricing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch pricing: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read pricing body: %w", err)
	}
	return body, nil
}

// DocumentCache stores fetched price documents between runs.
type DocumentCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte) error
}

// LoadOptions controls where Load takes prices from.
type LoadOptions struct {
	URL       string
	Offline   bool
	Timeout   time.Duration
	Client    *http.Client
	Cache     DocumentCache
	Overrides []models.ModelPricing
}

// Source names where a loaded snapshot came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceNetwork  Source = "network"
	SourceEmbedded Source = "embedded"
)

// Load builds the snapshot for one reporting pass: cached document, then
// network, then the embedded table. Overrides are applied on top. Load only
// fails if ctx is cancelled.
func Load(ctx context.Context, opts LoadOptions) (*Snapshot, Source, error) {
	snap, src := load(ctx, opts)
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if len(opts.Overrides) > 0 {
		snap = snap.Merge(opts.Overrides...)
	}
	logger.Debug(ctx, "pricing loaded", "source", src, "models", snap.Len())
	return snap, src, nil
}

func load(ctx context.Context, opts LoadOptions) (*Snapshot, Source) {
	if opts.Offline {
		return Embedded(), SourceEmbedded
	}
	url := opts.URL
	if url == "" {
		url = DefaultURL
	}

	if opts.Cache != nil {
		if data, ok := opts.Cache.Get(url); ok {
			if snap, err := Decode(data); err == nil {
				return snap, SourceCache
			}
		}
	}

	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	data, err := Fetch(ctx, client, url)
	if err != nil {
		logger.Warn(ctx, "using embedded pricing", "reason", err)
		return Embedded(), SourceEmbedded
	}
	snap, err := Decode(data)
	if err != nil {
		logger.Warn(ctx, "using embedded pricing", "reason", err)
		return Embedded(), SourceEmbedded
	}
	if opts.Cache != nil {
		if err := opts.Cache.Put(url, data); err != nil {
			logger.Warn(ctx, "pricing cache write failed", "error", err)
		}
	}
	return snap, SourceNetwork
}
