package domain

import (
	"context"
	"time"
)

// CardCache defines durable memoization of resolved cards and prices.
// Get and GetByText treat records older than maxAge as absent without
// deleting them. GetByText resolves an OCR reading to a cached record via
// CardText.MatchesCard so repeated scans of the same card skip the network.
type CardCache interface {
	Get(ctx context.Context, cardID string, maxAge time.Duration) (*CachedCard, error)
	GetByText(ctx context.Context, text CardText, maxAge time.Duration) (*CachedCard, error)
	Put(ctx context.Context, card ResolvedCard, price PriceData) error
	InsertScan(ctx context.Context, scan ScanRecord) error
	UpdateScanStatus(ctx context.Context, scanID, status string) error
}

// CardAPIClient defines the interface for the external card database.
type CardAPIClient interface {
	SearchCards(ctx context.Context, number, name string) ([]ResolvedCard, error)
	GetCard(ctx context.Context, cardID string) (*ResolvedCard, error)
}

// TextExtractor supplies OCR-derived name/collector-number strings.
// Consumed only when visual confidence is insufficient.
type TextExtractor interface {
	Extract(imagePath string) (CardText, error)
}

// RowWriter receives resolved records for durable output.
type RowWriter interface {
	WriteRow(card ResolvedCard, price PriceData, imagePath string) error
}
