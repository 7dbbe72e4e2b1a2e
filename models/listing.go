package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotAvailable is the marker parsers put in fields a source does not carry
// or a card did not contain. It never gets past the normalizer.
const NotAvailable = "N/A"

// Source identifies the site a listing was scraped from.
type Source string

const (
	SourceNekretnine Source = "nekretnine.rs"
	SourceOglasi     Source = "oglasi.rs"
)

// Sources lists every supported site in run order.
var Sources = []Source{SourceNekretnine, SourceOglasi}

// Valid reports whether s is one of the supported sites.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// Outcome is the result of applying one listing to the history table.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeChanged   Outcome = "changed"
	OutcomeUnchanged Outcome = "unchanged"
)

// ChangeReason explains why a history row was opened or closed.
type ChangeReason string

const (
	ReasonFirstSeen      ChangeReason = "first_seen"
	ReasonPriceIncreased ChangeReason = "price_increased"
	ReasonPriceDecreased ChangeReason = "price_decreased"
	ReasonDataUpdated    ChangeReason = "data_updated"
	ReasonRemoved        ChangeReason = "removed"
)

// RawListing holds unprocessed scraped data straight from the HTML.
// Missing values are NotAvailable, never empty.
type RawListing struct {
	Source       Source
	URL          string
	Title        string
	Price        string
	PricePerArea string
	Location     string
	City         string // only set by sources that expose the city separately
	Area         string
	PropertyType string
	Rooms        string
	Floor        string
	ScrapedAt    time.Time
}

// Listing is a normalized listing ready for the history table.
type Listing struct {
	Source       Source
	URL          string
	Title        *string
	Price        decimal.NullDecimal
	PricePerArea decimal.NullDecimal
	Location     *string
	City         *string
	Area         decimal.NullDecimal
	PropertyType *string
	Rooms        *string
	Floor        *string
}

// Record is one version of a listing in the history table.
type Record struct {
	Listing

	ID           int64
	Version      int
	ValidFrom    time.Time
	ValidTo      *time.Time
	IsCurrent    bool
	ChangeReason ChangeReason
	UpdatedAt    time.Time
}

// Violation is a single failed integrity check on the history table.
type Violation struct {
	Check  string `json:"check"`
	URL    string `json:"url"`
	Source Source `json:"source"`
	Detail string `json:"detail"`
}
