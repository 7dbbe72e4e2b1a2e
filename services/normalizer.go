package services

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"realestate-scraper/models"
	"realestate-scraper/utils"
)

var (
	// priceStripRegexp removes everything but digits and separators
	priceStripRegexp = regexp.MustCompile(`[^\d,.]`)
	// areaRegexp captures the first integer or decimal token
	areaRegexp = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// Normalizer turns RawListings into typed Listings. The NotAvailable marker
// stops here: a Listing only ever carries nil for missing values.
type Normalizer struct {
	logger *utils.Logger
}

// NewNormalizer creates a Normalizer with the given logger.
func NewNormalizer(logger *utils.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts one raw listing. It returns false when the listing has
// no usable URL and therefore cannot be tracked.
func (n *Normalizer) Normalize(r *models.RawListing) (*models.Listing, bool) {
	url := strings.TrimSpace(r.URL)
	if isMissing(url) {
		return nil, false
	}

	location := optionalText(r.Location)
	city := optionalText(r.City)
	if city == nil && location != nil {
		city = ExtractCity(*location)
	}

	return &models.Listing{
		Source:       r.Source,
		URL:          url,
		Title:        optionalText(r.Title),
		Price:        ParsePrice(r.Price),
		PricePerArea: ParsePrice(r.PricePerArea),
		Location:     location,
		City:         city,
		Area:         ParseArea(r.Area),
		PropertyType: optionalText(r.PropertyType),
		Rooms:        optionalText(r.Rooms),
		Floor:        optionalText(r.Floor),
	}, true
}

// NormalizeBatch converts a batch, dropping listings without a URL and
// repeated URLs. The number of dropped listings is returned alongside.
func (n *Normalizer) NormalizeBatch(raw []*models.RawListing) ([]*models.Listing, int) {
	seen := make(map[string]struct{}, len(raw))
	result := make([]*models.Listing, 0, len(raw))

	for _, r := range raw {
		l, ok := n.Normalize(r)
		if !ok {
			n.logger.Debug("Listing without URL dropped", "title", r.Title, "source", r.Source)
			continue
		}
		if _, dup := seen[l.URL]; dup {
			n.logger.Debug("Duplicate URL skipped", "url", l.URL)
			continue
		}
		seen[l.URL] = struct{}{}
		result = append(result, l)
	}

	if dropped := len(raw) - len(result); dropped > 0 {
		n.logger.Info("Batch normalized",
			"raw", len(raw), "kept", len(result), "dropped", dropped)
	}
	return result, len(raw) - len(result)
}

// ParsePrice reads a price in the sites' locale: "." groups thousands and
// "," marks decimals. "123.456 €" yields 123456.
func ParsePrice(raw string) decimal.NullDecimal {
	if isMissing(raw) {
		return decimal.NullDecimal{}
	}

	cleaned := priceStripRegexp.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ParseArea reads the first number of an area string. "75 m²" yields 75.
func ParseArea(raw string) decimal.NullDecimal {
	if isMissing(raw) {
		return decimal.NullDecimal{}
	}

	match := areaRegexp.FindString(raw)
	if match == "" {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", "."))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// ExtractCity returns the first comma separated segment of a location.
func ExtractCity(location string) *string {
	if isMissing(location) {
		return nil
	}
	first, _, _ := strings.Cut(location, ",")
	return optionalText(first)
}

func isMissing(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == models.NotAvailable
}

func optionalText(s string) *string {
	if isMissing(s) {
		return nil
	}
	t := normaliseText(s)
	if t == "" {
		return nil
	}
	return &t
}

// normaliseText NFC-normalizes s and collapses internal whitespace.
func normaliseText(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
