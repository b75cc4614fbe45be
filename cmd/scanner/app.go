package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/cardlens/scanner/config"
	"github.com/cardlens/scanner/internal/domain"
	"github.com/cardlens/scanner/internal/infrastructure/cache"
	"github.com/cardlens/scanner/internal/infrastructure/ocr"
	"github.com/cardlens/scanner/internal/infrastructure/poketcg"
	"github.com/cardlens/scanner/internal/infrastructure/store"
	"github.com/cardlens/scanner/internal/match"
	"github.com/cardlens/scanner/internal/usecase"
	"github.com/cardlens/scanner/internal/vision"
)

// cardStore is a closeable CardCache; satisfied by both the SQLite store
// and the in-memory fallback.
type cardStore interface {
	domain.CardCache
	Close() error
}

// app bundles the wired pipeline for one command invocation.
type app struct {
	cfg       *config.Config
	store     cardStore
	resolver  *usecase.ResolverService
	identify  *usecase.IdentifyService
	embedder  *vision.Embedder
	extractor *ocr.Extractor
}

// newApp loads configuration and wires the pipeline. The visual stage is
// optional: a missing encoder model or reference index degrades to an
// OCR-only pipeline with a warning rather than failing startup.
func newApp(withVisual bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	var store cardStore
	store, err = cache.NewStore(cfg.Cache.Path)
	if err != nil {
		log.Printf("durable cache unavailable, falling back to in-memory cache: %v", err)
		store = cache.NewMemoryCache()
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.API.RatePerSec), 1)
	client := poketcg.NewClient(cfg.API.APIKey, cfg.API.BaseURL, limiter)
	if cfg.API.EnableDebug || cfg.Server.Environment == "development" {
		client.SetDebug(true)
	}
	if cfg.API.APIKey == "" {
		log.Printf("WARNING: no API key configured; pokemontcg.io will rate-limit aggressively")
	}

	resolver := usecase.NewResolverService(client, store, poketcg.MapPrices, usecase.ResolverConfig{
		CacheMaxAge:        cfg.Cache.MaxAge,
		EnableDebugLogging: cfg.API.EnableDebug,
	})

	a := &app{cfg: cfg, store: store, resolver: resolver}

	var visual usecase.VisualMatcher
	if withVisual {
		if matcher, err := a.openVisual(); err != nil {
			log.Printf("visual matching disabled: %v", err)
		} else {
			visual = matcher
		}
	}

	extractor, err := ocr.NewExtractor()
	if err != nil {
		log.Printf("OCR disabled: %v", err)
	} else {
		a.extractor = extractor
	}

	if visual == nil && a.extractor == nil {
		a.Close()
		return nil, fmt.Errorf("neither visual matching nor OCR is available")
	}

	scorer := match.NewScorer(match.ScoreConfig{
		DistanceWeight:  cfg.Match.DistanceWeight,
		InlierWeight:    cfg.Match.InlierWeight,
		InlierCeiling:   cfg.Match.InlierCeiling,
		AcceptThreshold: cfg.Match.AcceptThreshold,
	})

	var textExtractor domain.TextExtractor
	if a.extractor != nil {
		textExtractor = a.extractor
	}
	a.identify = usecase.NewIdentifyService(visual, scorer, textExtractor, resolver, store, usecase.IdentifyConfig{
		EnableDebugLogging: cfg.API.EnableDebug,
	})

	return a, nil
}

// openVisual loads the encoder and the reference index.
func (a *app) openVisual() (*vision.Matcher, error) {
	embedder, err := vision.NewEmbedder(a.cfg.Vision.ModelPath)
	if err != nil {
		return nil, err
	}
	a.embedder = embedder

	index, err := match.LoadIndex(a.cfg.Index.Dir, a.cfg.Index.EfSearch)
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) {
			return nil, fmt.Errorf("no reference index at %s (run 'scanner index build' first): %w", a.cfg.Index.Dir, err)
		}
		return nil, err
	}
	log.Printf("loaded reference index: %d embeddings (dim=%d)", index.Len(), index.Dim())

	reranker := match.NewReranker(a.cfg.Index.RerankTopK)
	if a.cfg.API.EnableDebug {
		reranker.SetDebug(true)
	}
	return vision.NewMatcher(embedder, index, reranker, a.cfg.Index.SearchTopK), nil
}

// outputPath returns the CSV destination, rotated per day when configured.
func (a *app) outputPath() string {
	if a.cfg.Output.Daily {
		return store.DailyPath(a.cfg.Output.CSVPath, time.Now())
	}
	return a.cfg.Output.CSVPath
}

// Close releases every resource the app opened.
func (a *app) Close() {
	if a.extractor != nil {
		if err := a.extractor.Close(); err != nil {
			log.Printf("closing OCR client: %v", err)
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			log.Printf("closing encoder: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Printf("closing card cache: %v", err)
		}
	}
}
