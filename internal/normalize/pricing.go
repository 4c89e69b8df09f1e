package normalize

import (
	"fmt"
	"time"
)

// PricingRecord is the gateway's stable pricing shape.
type PricingRecord struct {
	SKU                   string    `json:"sku"`
	Currency              string    `json:"currency"`
	ListingPrice          float64   `json:"listing_price"`
	LandedPrice           float64   `json:"landed_price"`
	CompetitivePriceCount int       `json:"competitive_price_count"`
	RetrievedAt           time.Time `json:"retrieved_at"`
}

// Pricing normalizes a competitive-pricing payload. The upstream returns a
// list of per-sku results under "payload"; the first entry carrying a seller
// sku wins. Prices are optional (a listing may have no competition).
func Pricing(raw map[string]any) (PricingRecord, error) {
	entries := list(raw["payload"])
	if entries == nil {
		return PricingRecord{}, fmt.Errorf("%w: missing payload list", ErrMalformed)
	}

	for _, e := range entries {
		entry := obj(e)
		if entry == nil {
			continue
		}
		sku := str(entry["SellerSKU"])
		if sku == "" {
			continue
		}

		rec := PricingRecord{
			SKU:         sku,
			RetrievedAt: time.Now().UTC(),
		}

		product := obj(entry["Product"])
		competitive := obj(product["CompetitivePricing"])
		prices := list(competitive["CompetitivePrices"])
		rec.CompetitivePriceCount = len(prices)

		if len(prices) > 0 {
			if price := obj(obj(prices[0])["Price"]); price != nil {
				if lp := obj(price["ListingPrice"]); lp != nil {
					rec.Currency = str(lp["CurrencyCode"])
					rec.ListingPrice = floatVal(lp["Amount"])
				}
				if landed := obj(price["LandedPrice"]); landed != nil {
					rec.LandedPrice = floatVal(landed["Amount"])
					if rec.Currency == "" {
						rec.Currency = str(landed["CurrencyCode"])
					}
				}
			}
		}

		return rec, nil
	}

	return PricingRecord{}, fmt.Errorf("%w: no entry with a seller sku", ErrMalformed)
}

func floatVal(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
