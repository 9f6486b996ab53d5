// Package provider serves the static provider metadata used by the provider
// and comparison specialists.
package provider

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

//go:embed data/providers.json
var defaultProviders []byte

type document struct {
	Providers []contractx.ProviderRecord `json:"providers"`
}

// Catalog is an immutable, ordered provider list.
type Catalog struct {
	records []contractx.ProviderRecord
	byID    map[string]int
}

var _ contractx.ProviderDirectory = (*Catalog)(nil)

// Load reads a providers file, or the bundled data set when path is empty.
func Load(path string) (*Catalog, error) {
	raw := defaultProviders
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read providers file: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode providers: %w", err)
	}

	c := &Catalog{
		records: make([]contractx.ProviderRecord, 0, len(doc.Providers)),
		byID:    make(map[string]int, len(doc.Providers)),
	}
	for _, rec := range doc.Providers {
		id := strings.TrimSpace(rec.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: provider without id", contractx.ErrValidation)
		}
		key := strings.ToLower(id)
		if _, dup := c.byID[key]; dup {
			return nil, fmt.Errorf("%w: duplicate provider id=%s", contractx.ErrValidation, id)
		}
		rec.ID = id
		c.byID[key] = len(c.records)
		c.records = append(c.records, rec)
	}
	return c, nil
}

func (c *Catalog) List(ctx context.Context) ([]contractx.ProviderRecord, error) {
	out := make([]contractx.ProviderRecord, len(c.records))
	copy(out, c.records)
	return out, nil
}

func (c *Catalog) Lookup(ctx context.Context, providerID string) (contractx.ProviderRecord, bool, error) {
	idx, ok := c.byID[strings.ToLower(strings.TrimSpace(providerID))]
	if !ok {
		return contractx.ProviderRecord{}, false, nil
	}
	return c.records[idx], true, nil
}

// IDs returns provider ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.records))
	for _, r := range c.records {
		ids = append(ids, r.ID)
	}
	return ids
}
