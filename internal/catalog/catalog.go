// Package catalog provides the repair price catalog: brand/model/issue/price
// queries and fuzzy global search over an in-memory snapshot loaded from a
// JSON configuration file.
//
// The nested shape mirrors the configuration file: Brand -> Model -> Issue -> Price,
// prices in whole rupees. Lookups are pure queries; the catalog may be
// reloaded between turns at defined flow entry points.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/gadgetcare/repairbot/internal/models"
)

// Search scoring tiers. Every (brand, model) pair is scored against the query;
// unmatched pairs are excluded.
const (
	scoreExactFull      = 100 // query equals "brand model"
	scoreExactComponent = 80  // query equals brand or model alone
	scoreSubstringFull  = 60  // query is a substring of "brand model"
	scoreSubstringPart  = 40  // query is a substring of brand or model alone
)

// Table is the raw nested price mapping: brand -> model -> issue -> price.
type Table map[string]map[string]map[string]int

// Catalog holds an in-memory snapshot of the price table. All query methods
// are safe for concurrent use with Reload.
type Catalog struct {
	mu    sync.RWMutex
	path  string
	table Table
}

// New creates a catalog from an already-built table (used by tests and admin tooling).
func New(table Table) *Catalog {
	if table == nil {
		table = Table{}
	}
	return &Catalog{table: table}
}

// NewAtPath creates an empty catalog bound to path. A later Reload picks
// the file up once it exists.
func NewAtPath(path string) *Catalog {
	return &Catalog{path: path, table: Table{}}
}

// Load reads the price table from the JSON file at path.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: path, table: Table{}}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog file. On failure the previous snapshot is kept
// and the error returned, so a bad edit never empties the catalog mid-conversation.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		slog.Error("Catalog reload failed to read file", "error", err, "path", c.path)
		return fmt.Errorf("failed to read catalog file %s: %w", c.path, err)
	}
	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		slog.Error("Catalog reload failed to parse file", "error", err, "path", c.path)
		return fmt.Errorf("failed to parse catalog file %s: %w", c.path, err)
	}
	c.mu.Lock()
	c.table = table
	c.mu.Unlock()
	slog.Debug("Catalog reloaded", "path", c.path, "brands", len(table))
	return nil
}

// ListBrands returns the sorted brand names present in the catalog.
func (c *Catalog) ListBrands() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	brands := make([]string, 0, len(c.table))
	for b := range c.table {
		brands = append(brands, b)
	}
	sort.Strings(brands)
	return brands
}

// ListModels returns the sorted model names under brand, empty if the brand is absent.
func (c *Catalog) ListModels(brand string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ms := c.table[brand]
	modelNames := make([]string, 0, len(ms))
	for m := range ms {
		modelNames = append(modelNames, m)
	}
	sort.Strings(modelNames)
	return modelNames
}

// ListIssues returns the sorted issue names under brand/model, empty if absent.
func (c *Catalog) ListIssues(brand, model string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	issues := make([]string, 0)
	for i := range c.table[brand][model] {
		issues = append(issues, i)
	}
	sort.Strings(issues)
	return issues
}

// HasBrand reports whether brand exists in the catalog.
func (c *Catalog) HasBrand(brand string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.table[brand]
	return ok
}

// HasModel reports whether brand/model exists in the catalog.
func (c *Catalog) HasModel(brand, model string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.table[brand][model]
	return ok
}

// GetPrice returns the price for brand/model/issue. Absence of a match is a
// valid, expected outcome, reported via ok=false rather than an error.
func (c *Catalog) GetPrice(brand, model, issue string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	price, ok := c.table[brand][model][issue]
	return price, ok
}

// SearchGlobally scores every (brand, model) pair against query and returns
// up to limit matches, best first. Ties keep catalog order (sorted by brand
// then model), so identical inputs always yield the same ordered result.
func (c *Catalog) SearchGlobally(query string, limit int) []models.SearchMatch {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil
	}

	c.mu.RLock()
	brands := make([]string, 0, len(c.table))
	for b := range c.table {
		brands = append(brands, b)
	}
	sort.Strings(brands)

	var matches []models.SearchMatch
	for _, brand := range brands {
		modelNames := make([]string, 0, len(c.table[brand]))
		for m := range c.table[brand] {
			modelNames = append(modelNames, m)
		}
		sort.Strings(modelNames)
		for _, model := range modelNames {
			score := scorePair(q, strings.ToLower(brand), strings.ToLower(model))
			if score == 0 {
				continue
			}
			issues := make([]string, 0, len(c.table[brand][model]))
			for i := range c.table[brand][model] {
				issues = append(issues, i)
			}
			sort.Strings(issues)
			matches = append(matches, models.SearchMatch{Brand: brand, Model: model, Issues: issues, Score: score})
		}
	}
	c.mu.RUnlock()

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	slog.Debug("Catalog search completed", "query", q, "matches", len(matches))
	return matches
}

func scorePair(q, brand, model string) int {
	full := brand + " " + model
	switch {
	case q == full:
		return scoreExactFull
	case q == brand || q == model:
		return scoreExactComponent
	case strings.Contains(full, q):
		return scoreSubstringFull
	case strings.Contains(brand, q) || strings.Contains(model, q):
		return scoreSubstringPart
	default:
		return 0
	}
}
