// Package store persists resolved scans as flat CSV rows for spreadsheet
// import and collection tracking.
package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cardlens/scanner/internal/domain"
)

// csvHeader is the fixed column layout. Existing output files are appended
// to; the header is written only when the file is new or empty.
var csvHeader = []string{
	"timestamp_iso",
	"card_id",
	"name",
	"number",
	"set_name",
	"set_id",
	"rarity",
	"tcgplayer_market_usd",
	"cardmarket_trend_eur",
	"cardmarket_avg30_eur",
	"pricing_updatedAt_tcgplayer",
	"pricing_updatedAt_cardmarket",
	"source_image_path",
	"price_sources",
}

// DailyPath derives a per-day output file from base by inserting the date
// before the extension: "collection.csv" -> "collection-2026-08-29.csv".
func DailyPath(base string, day time.Time) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s-%s%s", stem, day.Format("2006-01-02"), ext)
}

// CSVWriter appends one row per resolved scan to a CSV file. Safe for
// concurrent use; every row is flushed to disk before WriteRow returns.
type CSVWriter struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewCSVWriter prepares a writer for path, creating the file with a header
// row when it does not exist or is empty.
func NewCSVWriter(path string) (*CSVWriter, error) {
	w := &CSVWriter{path: path, now: time.Now}

	info, err := os.Stat(path)
	if err == nil && info.Size() > 0 {
		return w, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create output file %s: %w", path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	return w, nil
}

// WriteRow appends one resolved scan. Empty price fields are written as
// empty cells, preserving the absent-price marker end to end.
func (w *CSVWriter) WriteRow(card domain.ResolvedCard, price domain.PriceData, imagePath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file %s: %w", w.path, err)
	}
	defer f.Close()

	row := []string{
		w.now().UTC().Format(time.RFC3339),
		card.CardID,
		card.Name,
		card.Number,
		card.SetName,
		card.SetID,
		card.Rarity,
		price.TCGPlayerMarketUSD,
		price.CardmarketTrendEUR,
		price.CardmarketAvg30EUR,
		price.UpdatedAtTCGPlayer,
		price.UpdatedAtCardmarket,
		imagePath,
		strings.Join(price.PriceSources, ";"),
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(row); err != nil {
		return fmt.Errorf("write CSV row: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write CSV row: %w", err)
	}
	return nil
}
