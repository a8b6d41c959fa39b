// Package catalog provides the local instrument catalog used for typeahead
// search and display names when no backend is available.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"stockwatch/internal/models"
)

//go:embed default.yaml
var defaultCatalog []byte

// Instrument is one catalog entry.
type Instrument struct {
	Code   string `yaml:"code"`
	Symbol string `yaml:"symbol,omitempty"`
	Name   string `yaml:"name"`
}

type document struct {
	Instruments []Instrument `yaml:"instruments"`
}

// Catalog is an immutable, ordered list of instruments.
type Catalog struct {
	instruments []Instrument
	byCode      map[string]int
}

// Load reads a catalog file. An empty path loads the built-in catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultCatalog)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return New(doc.Instruments), nil
}

// New builds a catalog. Codes are normalized and duplicates after the first are dropped.
func New(instruments []Instrument) *Catalog {
	c := &Catalog{byCode: make(map[string]int, len(instruments))}
	for _, inst := range instruments {
		code, err := models.NormalizeCode(inst.Code)
		if err != nil {
			continue
		}
		if _, dup := c.byCode[code]; dup {
			continue
		}
		inst.Code = code
		if inst.Symbol == "" {
			inst.Symbol = models.SymbolOf(code)
		}
		inst.Name = strings.TrimSpace(inst.Name)
		c.byCode[code] = len(c.instruments)
		c.instruments = append(c.instruments, inst)
	}
	return c
}

// Len returns the number of instruments.
func (c *Catalog) Len() int {
	return len(c.instruments)
}

// Lookup finds an instrument by code.
func (c *Catalog) Lookup(code string) (Instrument, bool) {
	normalized, err := models.NormalizeCode(code)
	if err != nil {
		return Instrument{}, false
	}
	idx, ok := c.byCode[normalized]
	if !ok {
		return Instrument{}, false
	}
	return c.instruments[idx], true
}

// Search does a case-insensitive substring match on code, symbol and name.
// Prefix matches on code or symbol rank first. A limit <= 0 means no limit.
func (c *Catalog) Search(keyword string, limit int) []models.SearchResult {
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return nil
	}

	var prefix, contains []models.SearchResult
	for _, inst := range c.instruments {
		code := strings.ToLower(inst.Code)
		symbol := strings.ToLower(inst.Symbol)
		hit := models.SearchResult{Code: inst.Code, Symbol: inst.Symbol, Name: inst.Name}

		switch {
		case strings.HasPrefix(code, kw) || strings.HasPrefix(symbol, kw):
			prefix = append(prefix, hit)
		case strings.Contains(code, kw) || strings.Contains(strings.ToLower(inst.Name), kw):
			contains = append(contains, hit)
		}
	}

	results := append(prefix, contains...)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
