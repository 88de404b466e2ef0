package products

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSearch(t *testing.T) {
	c := Default()
	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{"category", "speicher", 0, []string{"wr-10", "sp-10"}},
		{"case insensitive name", "WALLBOX", 0, []string{"wb-11"}},
		{"all words", "wechselrichter einphasig", 0, []string{"wr-6"}},
		{"limit", "solarmodul", 1, []string{"pv-400"}},
		{"no match", "wärmepumpe", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Search(tt.query, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("Search(%q) returned %d products, want %d", tt.query, len(got), len(tt.want))
			}
			for i, p := range got {
				if p.ID != tt.want[i] {
					t.Errorf("Search(%q)[%d] = %s, want %s", tt.query, i, p.ID, tt.want[i])
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `products:
  - id: hp-8
    name: Wärmepumpe 8 kW
    category: Heizung
    description: Luft-Wasser-Wärmepumpe
    price: 9800
    unit: Stück
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got := c.Search("wärmepumpe", 0)
	if len(got) != 1 || got[0].Price != 9800 {
		t.Errorf("Search() = %+v", got)
	}
}

func TestLoad_MissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	os.WriteFile(path, []byte("products:\n  - name: ohne id\n"), 0o644)
	if _, err := Load(path); err == nil {
		t.Error("Load() should reject products without id")
	}
}
