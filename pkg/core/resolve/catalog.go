package resolve

import (
	_ "embed"
	"fmt"
	"os"

	"filing_screener/pkg/core/sheet"

	"gopkg.in/yaml.v2"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog maps a canonical concept to the filer labels it is known under.
type Catalog struct {
	aliases map[string][]string
}

type catalogFile struct {
	Concepts map[string][]string `yaml:"concepts"`
}

// ParseCatalog decodes a YAML alias catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse concept catalog: %w", err)
	}
	c := &Catalog{aliases: make(map[string][]string, len(f.Concepts))}
	for concept, aliases := range f.Concepts {
		c.aliases[sheet.NormalizeLabel(concept)] = aliases
	}
	return c, nil
}

// LoadCatalog reads a catalog file; an empty path yields the built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read concept catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the built-in US-GAAP alias catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Aliases returns the labels registered for concept, in priority order.
func (c *Catalog) Aliases(concept string) []string {
	if c == nil {
		return nil
	}
	return c.aliases[sheet.NormalizeLabel(concept)]
}

// Len returns the number of concepts in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.aliases)
}
