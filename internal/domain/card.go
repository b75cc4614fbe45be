package domain

import (
	"strings"
	"time"
)

// CardText holds OCR-derived text read off a warped card image.
// Either field may be empty when the corresponding band could not be read.
type CardText struct {
	Name             string  `json:"name,omitempty"`
	CollectorNumber  string  `json:"collectorNumber,omitempty"`
	NameConfidence   float64 `json:"nameConfidence"`
	NumberConfidence float64 `json:"numberConfidence"`
}

// Usable reports whether the text carries at least one field worth querying.
func (t CardText) Usable() bool {
	return t.Name != "" || t.CollectorNumber != ""
}

// MatchesCard reports whether this OCR reading identifies card. Every field
// the reading carries must agree: the collector-number numerator against the
// card's bare number ignoring leading zeros, the name ignoring case. An
// unusable reading matches nothing.
func (t CardText) MatchesCard(card ResolvedCard) bool {
	if !t.Usable() {
		return false
	}
	if t.CollectorNumber != "" && foldNumber(numerator(t.CollectorNumber)) != foldNumber(card.Number) {
		return false
	}
	if t.Name != "" && !strings.EqualFold(strings.TrimSpace(t.Name), strings.TrimSpace(card.Name)) {
		return false
	}
	return true
}

// numerator strips the printed set total from a "num/den" reading.
func numerator(number string) string {
	if idx := strings.Index(number, "/"); idx >= 0 {
		number = number[:idx]
	}
	return strings.TrimSpace(number)
}

// foldNumber normalizes a collector number for comparison: leading zeros and
// case are not significant ("025" prints on the card, the API serves "25").
func foldNumber(s string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(s), "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return strings.ToLower(trimmed)
}

// MatchCandidate is a visual match produced per query. Not persisted.
type MatchCandidate struct {
	CardID        string  `json:"cardId"`
	Distance      float64 `json:"distance"` // cosine distance from ANN search, lower is better
	Inliers       int     `json:"inliers"`  // geometric verification inlier count
	Confidence    float64 `json:"confidence"`
	ReferencePath string  `json:"-"`
}

// ResolvedCard is the canonical identity of a card as returned by the
// Pokemon TCG API. Immutable once constructed for a given query.
type ResolvedCard struct {
	CardID         string            `json:"id"`
	Name           string            `json:"name"`
	Number         string            `json:"number"`
	SetName        string            `json:"setName"`
	SetID          string            `json:"setId"`
	SetReleaseDate string            `json:"setReleaseDate,omitempty"`
	Rarity         string            `json:"rarity,omitempty"`
	Images         map[string]string `json:"images,omitempty"` // small/large
	RawTCGPlayer   map[string]any    `json:"-"`
	RawCardmarket  map[string]any    `json:"-"`
}

// PriceData is the flattened pricing for a card, computed atomically from a
// single raw payload. Fields are "%.2f" formatted strings; "" marks a price
// that was absent from every source, never a silent zero.
type PriceData struct {
	CardID              string   `json:"cardId"`
	TCGPlayerMarketUSD  string   `json:"tcgplayerMarketUsd"`
	CardmarketTrendEUR  string   `json:"cardmarketTrendEur"`
	CardmarketAvg30EUR  string   `json:"cardmarketAvg30Eur"`
	UpdatedAtTCGPlayer  string   `json:"pricingUpdatedAtTcgplayer"`
	UpdatedAtCardmarket string   `json:"pricingUpdatedAtCardmarket"`
	PriceSources        []string `json:"priceSources"`
}

// CachedCard is one durable cache record: identity plus flattened prices
// and the timestamp of the last successful refresh.
type CachedCard struct {
	Card        ResolvedCard
	Price       PriceData
	LastUpdated time.Time
}

// Scan journal statuses.
const (
	ScanStatusNew      = "NEW"
	ScanStatusResolved = "RESOLVED"
	ScanStatusFailed   = "FAILED"
)

// ScanRecord journals one processed frame for diagnostics and batch replay.
type ScanRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	ImagePath string    `json:"imagePath"`
	Text      *CardText `json:"ocr,omitempty"`
	Status    string    `json:"status"` // NEW, RESOLVED, FAILED
}

// IdentifyResult is what the pipeline hands to storage/output collaborators.
// Card and Price are nil when no confident identity was found; Candidates
// always carries the raw visual diagnostics, best first.
type IdentifyResult struct {
	Card       *ResolvedCard    `json:"card,omitempty"`
	Price      *PriceData       `json:"price,omitempty"`
	Candidates []MatchCandidate `json:"candidates,omitempty"`
	Text       *CardText        `json:"ocr,omitempty"`
	FromCache  bool             `json:"fromCache"`
	Visual     bool             `json:"visual"` // identity accepted on visual confidence alone
}
