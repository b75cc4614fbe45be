package poketcg

import (
	"fmt"

	"github.com/cardlens/scanner/internal/domain"
)

// Price source labels recorded in PriceData.PriceSources.
const (
	SourceTCGPlayer  = "tcgplayer"
	SourceCardmarket = "cardmarket"
)

// tcgplayerFinishOrder is the fallback chain for the primary market price:
// the first finish carrying a present numeric market value wins.
var tcgplayerFinishOrder = []string{"normal", "holofoil", "reverseHolofoil"}

// MapPrices flattens a card's nested pricing payload into PriceData. Pure
// function: no network access, no error path for absent optional fields —
// those become the explicit "" marker. Mapping the same payload twice
// yields identical output.
func MapPrices(card domain.ResolvedCard) domain.PriceData {
	price := domain.PriceData{CardID: card.CardID}

	tcgContributed := mapTCGPlayer(card.RawTCGPlayer, &price)
	cmContributed := mapCardmarket(card.RawCardmarket, &price)

	if tcgContributed {
		price.PriceSources = append(price.PriceSources, SourceTCGPlayer)
	}
	if cmContributed {
		price.PriceSources = append(price.PriceSources, SourceCardmarket)
	}
	return price
}

func mapTCGPlayer(raw map[string]any, price *domain.PriceData) bool {
	if raw == nil {
		return false
	}

	price.UpdatedAtTCGPlayer = stringField(raw, "updatedAt")

	if prices, ok := raw["prices"].(map[string]any); ok {
		// Ordered accessor attempts, stopping at the first present value.
		for _, finish := range tcgplayerFinishOrder {
			finishPrices, ok := prices[finish].(map[string]any)
			if !ok {
				continue
			}
			if v, ok := numericField(finishPrices, "market"); ok {
				price.TCGPlayerMarketUSD = formatPrice(v)
				break
			}
		}
	}

	return price.UpdatedAtTCGPlayer != "" || price.TCGPlayerMarketUSD != ""
}

func mapCardmarket(raw map[string]any, price *domain.PriceData) bool {
	if raw == nil {
		return false
	}

	price.UpdatedAtCardmarket = stringField(raw, "updatedAt")

	if prices, ok := raw["prices"].(map[string]any); ok {
		if v, ok := numericField(prices, "trendPrice"); ok {
			price.CardmarketTrendEUR = formatPrice(v)
		}
		if v, ok := numericField(prices, "avg30"); ok {
			price.CardmarketAvg30EUR = formatPrice(v)
		}
	}

	return price.UpdatedAtCardmarket != "" ||
		price.CardmarketTrendEUR != "" ||
		price.CardmarketAvg30EUR != ""
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// numericField reads a JSON number out of a decoded payload. JSON decoding
// into any produces float64 for every number.
func numericField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// formatPrice renders a price with two decimals, matching the cache and CSV
// representation.
func formatPrice(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
