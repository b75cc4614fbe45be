package usecase

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cardlens/scanner/internal/domain"
)

// VisualMatcher produces geometrically verified visual candidates for an
// image, nearest first. Nil when no reference index is available.
type VisualMatcher interface {
	Match(imagePath string) ([]domain.MatchCandidate, error)
}

// ConfidencePolicy scores candidates and decides acceptance.
type ConfidencePolicy interface {
	Pick(candidates []domain.MatchCandidate) *domain.MatchCandidate
	Accepts(confidence float64) bool
}

// IdentifyConfig holds configuration for the identification pipeline.
type IdentifyConfig struct {
	EnableDebugLogging bool
}

// IdentifyService drives one frame through the full pipeline: visual match,
// confidence gate, OCR fallback, resolution, pricing. Every stage failure
// degrades to the next stage; only a frame no stage can identify fails.
type IdentifyService struct {
	visual    VisualMatcher
	policy    ConfidencePolicy
	extractor domain.TextExtractor
	resolver  *ResolverService
	cache     domain.CardCache
	debug     bool
}

// NewIdentifyService creates the pipeline. visual and extractor may each be
// nil; at least one must be present for Identify to ever succeed. cache may
// be nil to disable the scan journal.
func NewIdentifyService(
	visual VisualMatcher,
	policy ConfidencePolicy,
	extractor domain.TextExtractor,
	resolver *ResolverService,
	cache domain.CardCache,
	config IdentifyConfig,
) *IdentifyService {
	return &IdentifyService{
		visual:    visual,
		policy:    policy,
		extractor: extractor,
		resolver:  resolver,
		cache:     cache,
		debug:     config.EnableDebugLogging,
	}
}

// Identify resolves the card in the image at imagePath. The returned result
// always carries whatever diagnostics were produced (candidates, OCR text)
// even when identification fails with ErrNoMatch or ErrCardNotFound.
func (s *IdentifyService) Identify(ctx context.Context, imagePath string) (*domain.IdentifyResult, error) {
	if imagePath == "" {
		return nil, fmt.Errorf("%w: empty image path", domain.ErrInvalidRequest)
	}

	scanID := s.journalScan(ctx, imagePath)
	result := &domain.IdentifyResult{}

	// Visual pass: accept on confidence alone, no OCR needed.
	if s.visual != nil {
		candidates, err := s.visual.Match(imagePath)
		if err != nil {
			log.Printf("[IDENTIFY] visual matching failed, falling back to OCR: %v", err)
		} else if len(candidates) > 0 {
			best := s.policy.Pick(candidates)
			sort.SliceStable(candidates, func(i, j int) bool {
				return candidates[i].Confidence > candidates[j].Confidence
			})
			result.Candidates = candidates

			if best != nil && s.policy.Accepts(best.Confidence) {
				if s.debug {
					log.Printf("[IDENTIFY] visual accept %s (confidence %.3f, %d inliers)",
						best.CardID, best.Confidence, best.Inliers)
				}
				cached, fromCache, err := s.resolver.ResolveAndPrice(ctx, best.CardID)
				if err == nil {
					result.Card = &cached.Card
					result.Price = &cached.Price
					result.FromCache = fromCache
					result.Visual = true
					s.finishScan(ctx, scanID, domain.ScanStatusResolved)
					return result, nil
				}
				log.Printf("[IDENTIFY] resolution of visual match %s failed, falling back to OCR: %v",
					best.CardID, err)
			} else if s.debug && best != nil {
				log.Printf("[IDENTIFY] visual best %s below threshold (confidence %.3f)",
					best.CardID, best.Confidence)
			}
		}
	}

	// OCR fallback.
	if s.extractor == nil {
		s.finishScan(ctx, scanID, domain.ScanStatusFailed)
		return result, domain.ErrNoMatch
	}

	text, err := s.extractor.Extract(imagePath)
	if err != nil {
		log.Printf("[IDENTIFY] OCR failed for %s: %v", imagePath, err)
		s.finishScan(ctx, scanID, domain.ScanStatusFailed)
		return result, domain.ErrNoMatch
	}
	result.Text = &text

	if !text.Usable() {
		s.finishScan(ctx, scanID, domain.ScanStatusFailed)
		return result, domain.ErrNoMatch
	}

	// Cache-first: a prior scan of the same card serves identity and pricing
	// without any network call. On a miss the search payload already carries
	// pricing, so resolution flattens and caches in one step.
	cached, fromCache, err := s.resolver.ResolveTextAndPrice(ctx, text)
	if err != nil {
		s.finishScan(ctx, scanID, domain.ScanStatusFailed)
		return result, err
	}
	result.Card = &cached.Card
	result.Price = &cached.Price
	result.FromCache = fromCache
	s.finishScan(ctx, scanID, domain.ScanStatusResolved)
	return result, nil
}

// journalScan records the start of a scan. Journal faults never block the
// pipeline. Returns the scan ID, or "" when journaling is disabled.
func (s *IdentifyService) journalScan(ctx context.Context, imagePath string) string {
	if s.cache == nil {
		return ""
	}
	scan := domain.ScanRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		ImagePath: imagePath,
		Status:    domain.ScanStatusNew,
	}
	if err := s.cache.InsertScan(ctx, scan); err != nil {
		log.Printf("[IDENTIFY] scan journal insert failed: %v", err)
		return ""
	}
	return scan.ID
}

func (s *IdentifyService) finishScan(ctx context.Context, scanID, status string) {
	if s.cache == nil || scanID == "" {
		return
	}
	if err := s.cache.UpdateScanStatus(ctx, scanID, status); err != nil {
		log.Printf("[IDENTIFY] scan journal update failed: %v", err)
	}
}
