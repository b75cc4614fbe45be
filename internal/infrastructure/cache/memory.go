package cache

import (
	"context"
	"sync"
	"time"

	"github.com/cardlens/scanner/internal/domain"
)

// MemoryCache is a thread-safe in-memory CardCache. It honors the same
// staleness semantics as the durable store but loses everything on restart;
// it backs the pipeline when the SQLite file cannot be opened.
type MemoryCache struct {
	mutex sync.RWMutex
	cards map[string]domain.CachedCard
	scans map[string]domain.ScanRecord
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		cards: make(map[string]domain.CachedCard),
		scans: make(map[string]domain.ScanRecord),
	}
}

// Get retrieves a cached card. Records older than maxAge are reported as
// misses but kept, matching the durable store.
func (c *MemoryCache) Get(ctx context.Context, cardID string, maxAge time.Duration) (*domain.CachedCard, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.cards[cardID]
	if !exists {
		return nil, domain.ErrCacheMiss
	}
	if time.Since(entry.LastUpdated) > maxAge {
		return nil, domain.ErrCacheMiss
	}

	copied := entry
	return &copied, nil
}

// GetByText resolves an OCR reading to the most recently refreshed fresh
// entry it identifies, matching the durable store.
func (c *MemoryCache) GetByText(ctx context.Context, text domain.CardText, maxAge time.Duration) (*domain.CachedCard, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var best *domain.CachedCard
	for _, entry := range c.cards {
		if time.Since(entry.LastUpdated) > maxAge {
			continue
		}
		if !text.MatchesCard(entry.Card) {
			continue
		}
		if best == nil || entry.LastUpdated.After(best.LastUpdated) {
			copied := entry
			best = &copied
		}
	}
	if best == nil {
		return nil, domain.ErrCacheMiss
	}
	return best, nil
}

// Put stores identity and pricing for a card, replacing any prior entry.
func (c *MemoryCache) Put(ctx context.Context, card domain.ResolvedCard, price domain.PriceData) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.cards[card.CardID] = domain.CachedCard{
		Card:        card,
		Price:       price,
		LastUpdated: time.Now().UTC(),
	}
	return nil
}

// InsertScan records a scan journal entry.
func (c *MemoryCache) InsertScan(ctx context.Context, scan domain.ScanRecord) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.scans[scan.ID] = scan
	return nil
}

// UpdateScanStatus updates the status of a journaled scan.
func (c *MemoryCache) UpdateScanStatus(ctx context.Context, scanID, status string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	scan, exists := c.scans[scanID]
	if !exists {
		return domain.ErrCacheIO
	}
	scan.Status = status
	c.scans[scanID] = scan
	return nil
}

// Close exists so MemoryCache can stand in for the durable store.
func (c *MemoryCache) Close() error { return nil }

// Size returns the current number of cached cards (for debugging/monitoring)
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.cards)
}
