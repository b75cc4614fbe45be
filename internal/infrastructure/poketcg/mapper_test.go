package poketcg

import (
	"reflect"
	"testing"

	"github.com/cardlens/scanner/internal/domain"
)

func TestMapPrices(t *testing.T) {
	tests := []struct {
		name string
		card domain.ResolvedCard
		want domain.PriceData
	}{
		{
			name: "normal finish wins",
			card: domain.ResolvedCard{
				CardID: "base1-4",
				RawTCGPlayer: map[string]any{
					"updatedAt": "2024/05/01",
					"prices": map[string]any{
						"normal":   map[string]any{"market": 399.99},
						"holofoil": map[string]any{"market": 520.0},
					},
				},
				RawCardmarket: map[string]any{
					"updatedAt": "2024/05/02",
					"prices": map[string]any{
						"trendPrice": 410.5,
						"avg30":      401.123,
					},
				},
			},
			want: domain.PriceData{
				CardID:              "base1-4",
				TCGPlayerMarketUSD:  "399.99",
				CardmarketTrendEUR:  "410.50",
				CardmarketAvg30EUR:  "401.12",
				UpdatedAtTCGPlayer:  "2024/05/01",
				UpdatedAtCardmarket: "2024/05/02",
				PriceSources:        []string{SourceTCGPlayer, SourceCardmarket},
			},
		},
		{
			name: "holofoil fallback when normal absent",
			card: domain.ResolvedCard{
				CardID: "neo1-9",
				RawTCGPlayer: map[string]any{
					"prices": map[string]any{
						"holofoil": map[string]any{"market": 42.0},
					},
				},
			},
			want: domain.PriceData{
				CardID:             "neo1-9",
				TCGPlayerMarketUSD: "42.00",
				PriceSources:       []string{SourceTCGPlayer},
			},
		},
		{
			name: "reverse holofoil is last resort",
			card: domain.ResolvedCard{
				CardID: "swsh1-1",
				RawTCGPlayer: map[string]any{
					"prices": map[string]any{
						"reverseHolofoil": map[string]any{"market": 0.25},
						"normal":          map[string]any{"low": 0.1}, // no market value
					},
				},
			},
			want: domain.PriceData{
				CardID:             "swsh1-1",
				TCGPlayerMarketUSD: "0.25",
				PriceSources:       []string{SourceTCGPlayer},
			},
		},
		{
			name: "no finish fields yields empty marker not an error",
			card: domain.ResolvedCard{
				CardID: "sv1-100",
				RawTCGPlayer: map[string]any{
					"prices": map[string]any{},
				},
			},
			want: domain.PriceData{
				CardID: "sv1-100",
			},
		},
		{
			name: "updatedAt counts as a contribution",
			card: domain.ResolvedCard{
				CardID: "sv1-5",
				RawTCGPlayer: map[string]any{
					"updatedAt": "2024/05/01",
				},
			},
			want: domain.PriceData{
				CardID:             "sv1-5",
				UpdatedAtTCGPlayer: "2024/05/01",
				PriceSources:       []string{SourceTCGPlayer},
			},
		},
		{
			name: "no payloads at all",
			card: domain.ResolvedCard{CardID: "sv2-2"},
			want: domain.PriceData{CardID: "sv2-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapPrices(tt.card)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MapPrices() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMapPrices_Deterministic(t *testing.T) {
	card := domain.ResolvedCard{
		CardID: "base1-4",
		RawTCGPlayer: map[string]any{
			"updatedAt": "2024/05/01",
			"prices": map[string]any{
				"holofoil": map[string]any{"market": 520.0},
			},
		},
		RawCardmarket: map[string]any{
			"prices": map[string]any{"trendPrice": 410.5},
		},
	}

	first := MapPrices(card)
	second := MapPrices(card)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("MapPrices() not deterministic: %+v vs %+v", first, second)
	}
}
