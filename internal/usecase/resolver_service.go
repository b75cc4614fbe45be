package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/cardlens/scanner/internal/domain"
)

// PriceMapper flattens a resolved card's raw pricing payloads into PriceData.
type PriceMapper func(domain.ResolvedCard) domain.PriceData

// ResolverConfig holds configuration for the resolver service.
type ResolverConfig struct {
	CacheMaxAge        time.Duration
	EnableDebugLogging bool
}

// ResolverService turns OCR text or a card ID into a canonical card identity
// with flattened pricing, consulting the durable cache before the network.
type ResolverService struct {
	api         domain.CardAPIClient
	cache       domain.CardCache
	mapPrices   PriceMapper
	cacheMaxAge time.Duration
	debug       bool
}

// NewResolverService creates a resolver service. A zero CacheMaxAge means
// cached entries never expire.
func NewResolverService(api domain.CardAPIClient, cache domain.CardCache, mapPrices PriceMapper, config ResolverConfig) *ResolverService {
	maxAge := config.CacheMaxAge
	if maxAge <= 0 {
		maxAge = 100 * 365 * 24 * time.Hour
	}
	return &ResolverService{
		api:         api,
		cache:       cache,
		mapPrices:   mapPrices,
		cacheMaxAge: maxAge,
		debug:       config.EnableDebugLogging,
	}
}

// ResolveTextAndPrice resolves OCR text to identity plus pricing. The cache
// is consulted first, keyed by the text itself, so repeated scans of the same
// card inside the expiry window never reach the network; a cache fault is
// logged and treated as a miss. The second return value reports whether the
// record came from the cache.
func (s *ResolverService) ResolveTextAndPrice(ctx context.Context, text domain.CardText) (*domain.CachedCard, bool, error) {
	if !text.Usable() {
		return nil, false, fmt.Errorf("%w: no usable OCR text", domain.ErrInvalidRequest)
	}

	cached, err := s.cache.GetByText(ctx, text, s.cacheMaxAge)
	if err == nil {
		if s.debug {
			log.Printf("[RESOLVE] text cache hit for name=%q number=%q: %s",
				text.Name, text.CollectorNumber, cached.Card.CardID)
		}
		return cached, true, nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		log.Printf("[RESOLVE] text cache read failed for name=%q number=%q, falling back to API: %v",
			text.Name, text.CollectorNumber, err)
	}

	card, err := s.ResolveByText(ctx, text)
	if err != nil {
		return nil, false, err
	}
	return s.PriceFrom(ctx, *card), false, nil
}

// ResolveByText finds the card best matching the OCR text against the card
// database. Candidates are ranked by exact collector number first, then name
// similarity, then newest set release date as the final tiebreak.
func (s *ResolverService) ResolveByText(ctx context.Context, text domain.CardText) (*domain.ResolvedCard, error) {
	if !text.Usable() {
		return nil, fmt.Errorf("%w: no usable OCR text", domain.ErrInvalidRequest)
	}

	candidates, err := s.api.SearchCards(ctx, text.CollectorNumber, text.Name)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, domain.ErrCardNotFound
	}

	rankCandidates(candidates, text)
	best := candidates[0]

	if s.debug {
		log.Printf("[RESOLVE] %d candidates for name=%q number=%q, best: %s (%s %s)",
			len(candidates), text.Name, text.CollectorNumber, best.CardID, best.Name, best.Number)
	}
	return &best, nil
}

// ResolveAndPrice returns identity plus pricing for a known card ID. The
// cache is consulted first; a cache fault is logged and treated as a miss so
// a corrupt cache degrades to network latency, never to a failed scan. The
// second return value reports whether the record came from the cache.
func (s *ResolverService) ResolveAndPrice(ctx context.Context, cardID string) (*domain.CachedCard, bool, error) {
	if cardID == "" {
		return nil, false, fmt.Errorf("%w: empty card ID", domain.ErrInvalidRequest)
	}

	cached, err := s.cache.Get(ctx, cardID, s.cacheMaxAge)
	if err == nil {
		if s.debug {
			log.Printf("[RESOLVE] cache hit for %s (age %s)", cardID, time.Since(cached.LastUpdated).Round(time.Second))
		}
		return cached, true, nil
	}
	if !errors.Is(err, domain.ErrCacheMiss) {
		log.Printf("[RESOLVE] cache read failed for %s, falling back to API: %v", cardID, err)
	}

	card, err := s.api.GetCard(ctx, cardID)
	if err != nil {
		return nil, false, err
	}

	price := s.mapPrices(*card)
	if err := s.cache.Put(ctx, *card, price); err != nil {
		log.Printf("[RESOLVE] cache write failed for %s: %v", cardID, err)
	}

	return &domain.CachedCard{Card: *card, Price: price, LastUpdated: time.Now()}, false, nil
}

// PriceFrom flattens pricing already embedded in a search payload and writes
// the record through to the cache. Search results carry the same raw pricing
// blocks as a single-card lookup, so no second API round trip is needed.
func (s *ResolverService) PriceFrom(ctx context.Context, card domain.ResolvedCard) *domain.CachedCard {
	price := s.mapPrices(card)
	if err := s.cache.Put(ctx, card, price); err != nil {
		log.Printf("[RESOLVE] cache write failed for %s: %v", card.CardID, err)
	}
	return &domain.CachedCard{Card: card, Price: price, LastUpdated: time.Now()}
}

// rankCandidates sorts candidates in place, best first: exact collector
// number beats everything, then name similarity, then newest release date.
func rankCandidates(cards []domain.ResolvedCard, text domain.CardText) {
	type scored struct {
		card       domain.ResolvedCard
		exact      bool
		similarity float64
	}
	ranked := make([]scored, len(cards))
	for i, card := range cards {
		ranked[i] = scored{
			card:       card,
			exact:      collectorNumberMatches(text.CollectorNumber, card.Number),
			similarity: nameSimilarity(text.Name, card.Name),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].exact != ranked[j].exact {
			return ranked[i].exact
		}
		if ranked[i].similarity != ranked[j].similarity {
			return ranked[i].similarity > ranked[j].similarity
		}
		return ranked[i].card.SetReleaseDate > ranked[j].card.SetReleaseDate
	})

	for i := range ranked {
		cards[i] = ranked[i].card
	}
}

// collectorNumberMatches compares an OCR "num/den" reading against the API's
// bare card number, ignoring leading zeros.
func collectorNumberMatches(ocrNumber, apiNumber string) bool {
	if ocrNumber == "" || apiNumber == "" {
		return false
	}
	text := domain.CardText{CollectorNumber: ocrNumber}
	return text.MatchesCard(domain.ResolvedCard{Number: apiNumber})
}
