// Package products is the read-only product catalog the assistant
// searches when a customer asks about components and prices.
package products

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Product is one catalog entry.
type Product struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Category    string  `yaml:"category" json:"category"`
	Description string  `yaml:"description" json:"description"`
	Price       float64 `yaml:"price" json:"price"`
	Unit        string  `yaml:"unit" json:"unit"`
}

// Catalog is an immutable product list.
type Catalog struct {
	products []Product
}

// New returns a catalog over products.
func New(products []Product) *Catalog {
	return &Catalog{products: products}
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New([]Product{
		{ID: "pv-400", Name: "Solarmodul 400 Wp Full Black", Category: "Photovoltaik", Description: "Monokristallines Glas-Glas-Modul, 30 Jahre Leistungsgarantie", Price: 189, Unit: "Stück"},
		{ID: "pv-430", Name: "Solarmodul 430 Wp bifazial", Category: "Photovoltaik", Description: "Bifaziales Modul für Flachdach und Carport", Price: 215, Unit: "Stück"},
		{ID: "wr-10", Name: "Hybrid-Wechselrichter 10 kW", Category: "Wechselrichter", Description: "Dreiphasig, zwei MPP-Tracker, speicherfähig", Price: 1890, Unit: "Stück"},
		{ID: "wr-6", Name: "Wechselrichter 6 kW", Category: "Wechselrichter", Description: "Einphasig für kleine Dachanlagen", Price: 980, Unit: "Stück"},
		{ID: "sp-10", Name: "Batteriespeicher 10 kWh", Category: "Speicher", Description: "LFP-Hochvoltspeicher, modular erweiterbar", Price: 5490, Unit: "Stück"},
		{ID: "wb-11", Name: "Wallbox 11 kW", Category: "E-Mobilität", Description: "Wallbox mit PV-Überschussladen und App", Price: 849, Unit: "Stück"},
		{ID: "ms-dach", Name: "Montagesystem Schrägdach", Category: "Montage", Description: "Aluminium-Schienen und Dachhaken für Ziegeldach", Price: 42, Unit: "Modul"},
		{ID: "sv-mont", Name: "Montage PV-Anlage", Category: "Dienstleistung", Description: "Fachgerechte Montage inkl. Gerüst bis 8 m", Price: 95, Unit: "Stunde"},
	})
}

type catalogFile struct {
	Products []Product `yaml:"products"`
}

// Load reads a YAML catalog file of the form
//
//	products:
//	  - id: pv-400
//	    name: Solarmodul 400 Wp
//	    ...
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	for i, p := range f.Products {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("catalog %s: product %d needs id and name", path, i)
		}
	}
	return New(f.Products), nil
}

// All returns every product.
func (c *Catalog) All() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Search returns up to limit products whose name, category or
// description contains query, case-insensitively. Every query word must
// match. limit <= 0 means no limit.
func (c *Catalog) Search(query string, limit int) []Product {
	words := strings.Fields(strings.ToLower(query))
	var out []Product
	for _, p := range c.products {
		hay := strings.ToLower(p.Name + " " + p.Category + " " + p.Description)
		if !matchesAll(hay, words) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func matchesAll(hay string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(hay, w) {
			return false
		}
	}
	return true
}
