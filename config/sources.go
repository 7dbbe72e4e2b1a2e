package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PriceRange bounds one nekretnine.rs search, in euros.
type PriceRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// NekretnineSource describes how nekretnine.rs is crawled.
type NekretnineSource struct {
	BaseURL string `yaml:"base_url"`
	// ListURL is a fmt template taking min price, max price and page.
	ListURL     string       `yaml:"list_url"`
	PriceRanges []PriceRange `yaml:"price_ranges"`
}

// OglasiSource describes how oglasi.rs is crawled.
type OglasiSource struct {
	BaseURL string `yaml:"base_url"`
	// ListURL is a fmt template taking the page number.
	ListURL string `yaml:"list_url"`
}

// Sources is the optional YAML file pointed to by SOURCES_FILE.
type Sources struct {
	Nekretnine NekretnineSource `yaml:"nekretnine"`
	Oglasi     OglasiSource     `yaml:"oglasi"`
}

// DefaultSources returns the crawl plan used when no sources file is given.
func DefaultSources() *Sources {
	ranges := []PriceRange{{Min: 0, Max: 50000}}
	for lo := 50000; lo < 500000; lo += 25000 {
		ranges = append(ranges, PriceRange{Min: lo, Max: lo + 25000})
	}
	ranges = append(ranges, PriceRange{Min: 500000, Max: 9999999})

	return &Sources{
		Nekretnine: NekretnineSource{
			BaseURL:     "https://www.nekretnine.rs",
			ListURL:     "https://www.nekretnine.rs/stambeni-objekti/izdavanje-prodaja/prodaja/cena/%d_%d/lista/po-stranici/20/stranica/%d/",
			PriceRanges: ranges,
		},
		Oglasi: OglasiSource{
			BaseURL: "https://www.oglasi.rs",
			ListURL: "https://www.oglasi.rs/nekretnine/prodaja-stanova?p=%d",
		},
	}
}

// LoadSources reads a YAML sources file. Sections left out of the file keep
// their defaults.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading sources file: %w", err)
	}

	var file Sources
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("config: parsing sources file %s: %w", path, err)
	}

	s := DefaultSources()
	if file.Nekretnine.BaseURL != "" {
		s.Nekretnine.BaseURL = file.Nekretnine.BaseURL
	}
	if file.Nekretnine.ListURL != "" {
		s.Nekretnine.ListURL = file.Nekretnine.ListURL
	}
	if len(file.Nekretnine.PriceRanges) > 0 {
		s.Nekretnine.PriceRanges = file.Nekretnine.PriceRanges
	}
	if file.Oglasi.BaseURL != "" {
		s.Oglasi.BaseURL = file.Oglasi.BaseURL
	}
	if file.Oglasi.ListURL != "" {
		s.Oglasi.ListURL = file.Oglasi.ListURL
	}

	for i, r := range s.Nekretnine.PriceRanges {
		if r.Min < 0 || r.Max <= r.Min {
			return nil, fmt.Errorf("config: price range %d: invalid bounds %d..%d", i, r.Min, r.Max)
		}
	}
	return s, nil
}
