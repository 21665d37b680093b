// Package catalog holds the repair line-item catalog fed into estimate
// generation: per-scope line codes with units, quality-grade multipliers,
// and the overhead-and-profit rate. A default catalog is embedded; a YAML
// file can override it per deployment or per price list.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ridgepoint-claims/claimflow/internal/model"
)

//go:embed default.yaml
var defaultCatalogYAML []byte

// Entry is one catalog line: a code the generator may reference, with its
// canonical description and unit of measure.
type Entry struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
}

// Catalog is the full repair catalog.
type Catalog struct {
	PriceList string                  `yaml:"price_list"`
	OPRate    float64                 `yaml:"op_rate"`
	Grades    map[string]float64      `yaml:"grades"`
	Scopes    map[model.Scope][]Entry `yaml:"scopes"`
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return parse(defaultCatalogYAML)
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return parse(data)
}

func parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal")
	}
	if c.OPRate <= 0 {
		c.OPRate = 0.20
	}
	if len(c.Grades) == 0 {
		c.Grades = map[string]float64{"economy": 0.85, "standard": 1.0, "premium": 1.25}
	}
	return &c, nil
}

// GradeMultiplier returns the pricing multiplier for a quality grade,
// falling back to 1.0 for unknown grades.
func (c *Catalog) GradeMultiplier(grade string) float64 {
	if m, ok := c.Grades[strings.ToLower(strings.TrimSpace(grade))]; ok {
		return m
	}
	return 1.0
}

// KnownCode reports whether code exists anywhere in the catalog.
func (c *Catalog) KnownCode(code string) bool {
	if code == "" {
		return false
	}
	for _, entries := range c.Scopes {
		for _, e := range entries {
			if e.Code == code {
				return true
			}
		}
	}
	return false
}

// PromptContext renders the catalog entries for the given scopes as a text
// block for injection into the estimate generation prompt, so line_code
// values in the output refer to real catalog codes.
func (c *Catalog) PromptContext(scopes []model.Scope) string {
	var b strings.Builder
	for _, s := range scopes {
		entries := c.Scopes[s]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Scope %q line codes:\n", s)
		sorted := make([]Entry, len(entries))
		copy(sorted, entries)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })
		for _, e := range sorted {
			fmt.Fprintf(&b, "  %s: %s (%s)\n", e.Code, e.Description, e.Unit)
		}
	}
	return b.String()
}
