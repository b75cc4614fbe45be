package store

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardlens/scanner/internal/domain"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVWriter_HeaderAndRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	card := domain.ResolvedCard{
		CardID:  "base1-4",
		Name:    "Charizard",
		Number:  "4",
		SetName: "Base",
		SetID:   "base1",
		Rarity:  "Rare Holo",
	}
	price := domain.PriceData{
		CardID:              "base1-4",
		TCGPlayerMarketUSD:  "420.69",
		CardmarketTrendEUR:  "390.12",
		CardmarketAvg30EUR:  "385.00",
		UpdatedAtTCGPlayer:  "2025/02/28",
		UpdatedAtCardmarket: "2025/02/28",
		PriceSources:        []string{"tcgplayer", "cardmarket"},
	}
	require.NoError(t, w.WriteRow(card, price, "scans/frame001.jpg"))

	rows := readAll(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{
		"2025-03-01T12:00:00Z",
		"base1-4", "Charizard", "4", "Base", "base1", "Rare Holo",
		"420.69", "390.12", "385.00", "2025/02/28", "2025/02/28",
		"scans/frame001.jpg",
		"tcgplayer;cardmarket",
	}, rows[1])
}

func TestCSVWriter_EmptyPricesStayEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.WriteRow(domain.ResolvedCard{CardID: "x"}, domain.PriceData{CardID: "x"}, "a.jpg"))

	rows := readAll(t, path)
	require.Len(t, rows, 2)
	for _, col := range []int{7, 8, 9, 10, 11, 13} {
		assert.Empty(t, rows[1][col], "column %d (%s) should be empty", col, csvHeader[col])
	}
}

func TestCSVWriter_AppendsToExistingFileWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.csv")

	w1, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w1.WriteRow(domain.ResolvedCard{CardID: "a"}, domain.PriceData{}, "1.jpg"))

	// Reopening an existing file must not duplicate the header.
	w2, err := NewCSVWriter(path)
	require.NoError(t, err)
	require.NoError(t, w2.WriteRow(domain.ResolvedCard{CardID: "b"}, domain.PriceData{}, "2.jpg"))

	rows := readAll(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[1][1])
	assert.Equal(t, "b", rows[2][1])
}

func TestDailyPath(t *testing.T) {
	day := time.Date(2026, 8, 29, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "collection-2026-08-29.csv", DailyPath("collection.csv", day))
	assert.Equal(t, filepath.Join("out", "cards-2026-08-29.csv"), DailyPath(filepath.Join("out", "cards.csv"), day))
	assert.Equal(t, "collection-2026-08-29", DailyPath("collection", day))
}

func TestCSVWriter_FieldsWithCommasAreQuoted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)

	card := domain.ResolvedCard{CardID: "x", Name: "Porygon, the Virtual Pokemon"}
	require.NoError(t, w.WriteRow(card, domain.PriceData{}, "a.jpg"))

	rows := readAll(t, path)
	assert.Equal(t, "Porygon, the Virtual Pokemon", rows[1][2])
}
