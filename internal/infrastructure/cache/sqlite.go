// Package cache provides durable memoization of resolved cards and prices,
// backed by SQLite. Every resolution path consults it before any network
// call; a hit short-circuits all network I/O for that card.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cardlens/scanner/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS cards (
	card_id      TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	set_id       TEXT NOT NULL,
	set_name     TEXT NOT NULL,
	number       TEXT NOT NULL,
	rarity       TEXT,
	release_date TEXT,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS prices (
	card_id                   TEXT PRIMARY KEY,
	updated_at                TEXT NOT NULL,
	tcgplayer_market_usd      TEXT NOT NULL DEFAULT '',
	cardmarket_trend_eur      TEXT NOT NULL DEFAULT '',
	cardmarket_avg30_eur      TEXT NOT NULL DEFAULT '',
	pricing_updated_tcgplayer TEXT NOT NULL DEFAULT '',
	pricing_updated_cardmarket TEXT NOT NULL DEFAULT '',
	sources_json              TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS scans (
	id         TEXT PRIMARY KEY,
	ts         TEXT NOT NULL,
	image_path TEXT NOT NULL,
	ocr_json   TEXT,
	status     TEXT NOT NULL DEFAULT 'NEW'
);
`

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// timeLayout is fixed-width RFC 3339 with nanoseconds. Staleness checks
// compare stored timestamps as strings; RFC3339Nano trims trailing
// fractional zeros, which breaks lexicographic ordering at sub-second
// granularity.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestamp(t time.Time) string { return t.UTC().Format(timeLayout) }

// Store is the durable card/price cache.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the cache database at path.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	log.Printf("[CACHE] Database ready at %s", path)
	return &Store{db: db, path: path}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !isBusy(lastErr) {
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

const selectRecord = `
	SELECT c.card_id, c.name, c.set_id, c.set_name, c.number, c.rarity, c.release_date,
	       p.updated_at, p.tcgplayer_market_usd, p.cardmarket_trend_eur, p.cardmarket_avg30_eur,
	       p.pricing_updated_tcgplayer, p.pricing_updated_cardmarket, p.sources_json
	FROM cards c
	JOIN prices p ON p.card_id = c.card_id`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCached(row rowScanner) (*domain.CachedCard, error) {
	var (
		rec         domain.CachedCard
		rarity      sql.NullString
		releaseDate sql.NullString
		updatedAt   string
		sourcesJSON string
	)
	err := row.Scan(
		&rec.Card.CardID, &rec.Card.Name, &rec.Card.SetID, &rec.Card.SetName,
		&rec.Card.Number, &rarity, &releaseDate,
		&updatedAt,
		&rec.Price.TCGPlayerMarketUSD, &rec.Price.CardmarketTrendEUR, &rec.Price.CardmarketAvg30EUR,
		&rec.Price.UpdatedAtTCGPlayer, &rec.Price.UpdatedAtCardmarket, &sourcesJSON,
	)
	if err != nil {
		return nil, err
	}

	rec.Card.Rarity = rarity.String
	rec.Card.SetReleaseDate = releaseDate.String
	rec.Price.CardID = rec.Card.CardID
	if sourcesJSON != "" {
		if err := json.Unmarshal([]byte(sourcesJSON), &rec.Price.PriceSources); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
	}
	if rec.LastUpdated, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}
	return &rec, nil
}

// Get returns the cached card and pricing for cardID, or ErrCacheMiss when
// the record is absent or older than maxAge. Stale records are ignored but
// never deleted, so staleness stays observable. Storage faults come back as
// ErrCacheIO so callers can degrade to a miss.
func (s *Store) Get(ctx context.Context, cardID string, maxAge time.Duration) (*domain.CachedCard, error) {
	cutoff := timestamp(time.Now().Add(-maxAge))

	row := s.db.QueryRowContext(ctx,
		selectRecord+` WHERE c.card_id = ? AND p.updated_at > ?`,
		cardID, cutoff)

	rec, err := scanCached(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheIO, err)
	}
	return rec, nil
}

// GetByText resolves an OCR reading against the fresh cached records, most
// recently refreshed first, so a repeated scan of the same card inside the
// expiry window never reaches the network.
func (s *Store) GetByText(ctx context.Context, text domain.CardText, maxAge time.Duration) (*domain.CachedCard, error) {
	if !text.Usable() {
		return nil, domain.ErrCacheMiss
	}
	cutoff := timestamp(time.Now().Add(-maxAge))

	rows, err := s.db.QueryContext(ctx,
		selectRecord+` WHERE p.updated_at > ? ORDER BY p.updated_at DESC`,
		cutoff)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheIO, err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanCached(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrCacheIO, err)
		}
		if text.MatchesCard(rec.Card) {
			return rec, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheIO, err)
	}
	return nil, domain.ErrCacheMiss
}

// Put upserts identity and pricing for one card inside a single
// transaction; readers never observe a partially written record. Repeated
// writes for the same card are last-write-wins on the timestamp.
func (s *Store) Put(ctx context.Context, card domain.ResolvedCard, price domain.PriceData) error {
	now := timestamp(time.Now())

	sources, err := json.Marshal(price.PriceSources)
	if err != nil {
		return fmt.Errorf("%w: encode sources: %v", domain.ErrCacheIO, err)
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("%w: begin: %v", domain.ErrCacheIO, err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO cards
				(card_id, name, set_id, set_name, number, rarity, release_date, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			card.CardID, card.Name, card.SetID, card.SetName, card.Number,
			card.Rarity, card.SetReleaseDate, now); err != nil {
			return fmt.Errorf("%w: upsert card: %v", domain.ErrCacheIO, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO prices
				(card_id, updated_at, tcgplayer_market_usd, cardmarket_trend_eur,
				 cardmarket_avg30_eur, pricing_updated_tcgplayer, pricing_updated_cardmarket, sources_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			card.CardID, now, price.TCGPlayerMarketUSD, price.CardmarketTrendEUR,
			price.CardmarketAvg30EUR, price.UpdatedAtTCGPlayer, price.UpdatedAtCardmarket,
			string(sources)); err != nil {
			return fmt.Errorf("%w: upsert prices: %v", domain.ErrCacheIO, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("%w: commit: %v", domain.ErrCacheIO, err)
		}
		return nil
	})
}

// InsertScan journals a processed frame.
func (s *Store) InsertScan(ctx context.Context, scan domain.ScanRecord) error {
	var ocrJSON any
	if scan.Text != nil {
		b, err := json.Marshal(scan.Text)
		if err != nil {
			return fmt.Errorf("%w: encode ocr: %v", domain.ErrCacheIO, err)
		}
		ocrJSON = string(b)
	}
	status := scan.Status
	if status == "" {
		status = "NEW"
	}

	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO scans (id, ts, image_path, ocr_json, status)
			VALUES (?, ?, ?, ?, ?)`,
			scan.ID, timestamp(scan.Timestamp), scan.ImagePath, ocrJSON, status)
		if err != nil {
			return fmt.Errorf("%w: insert scan: %v", domain.ErrCacheIO, err)
		}
		return nil
	})
}

// UpdateScanStatus moves a scan record to a new status.
func (s *Store) UpdateScanStatus(ctx context.Context, scanID, status string) error {
	return retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE scans SET status = ?, ts = ? WHERE id = ?`,
			status, timestamp(time.Now()), scanID)
		if err != nil {
			return fmt.Errorf("%w: update scan: %v", domain.ErrCacheIO, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: no scan with id %s", domain.ErrCacheIO, scanID)
		}
		return nil
	})
}
