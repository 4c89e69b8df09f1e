package normalize

import (
	"errors"
	"testing"
)

const pricingJSON = `{
  "payload": [
    {
      "SellerSKU": "SKU-001",
      "status": "Success",
      "Product": {
        "CompetitivePricing": {
          "CompetitivePrices": [
            {
              "Price": {
                "ListingPrice": {"CurrencyCode": "EUR", "Amount": 24.99},
                "LandedPrice": {"CurrencyCode": "EUR", "Amount": 27.49}
              }
            },
            {
              "Price": {
                "ListingPrice": {"CurrencyCode": "EUR", "Amount": 25.5}
              }
            }
          ]
        }
      }
    }
  ]
}`

func TestPricing(t *testing.T) {
	rec, err := Pricing(decode(t, pricingJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.SKU != "SKU-001" {
		t.Errorf("unexpected sku: %q", rec.SKU)
	}
	if rec.Currency != "EUR" {
		t.Errorf("unexpected currency: %q", rec.Currency)
	}
	if rec.ListingPrice != 24.99 || rec.LandedPrice != 27.49 {
		t.Errorf("unexpected prices: %+v", rec)
	}
	if rec.CompetitivePriceCount != 2 {
		t.Errorf("unexpected price count: %d", rec.CompetitivePriceCount)
	}
	if rec.RetrievedAt.IsZero() {
		t.Error("retrieved_at must be stamped")
	}
}

func TestPricingNoCompetition(t *testing.T) {
	rec, err := Pricing(decode(t, `{
	  "payload": [{"SellerSKU": "SKU-002", "Product": {"CompetitivePricing": {"CompetitivePrices": []}}}]
	}`))
	if err != nil {
		t.Fatalf("a listing without competition is not an error: %v", err)
	}
	if rec.SKU != "SKU-002" || rec.CompetitivePriceCount != 0 || rec.ListingPrice != 0 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestPricingSkipsEntriesWithoutSKU(t *testing.T) {
	rec, err := Pricing(decode(t, `{
	  "payload": [
	    {"status": "ClientError"},
	    {"SellerSKU": "SKU-003"}
	  ]
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.SKU != "SKU-003" {
		t.Errorf("unexpected sku: %q", rec.SKU)
	}
}

func TestPricingMissingPayloadList(t *testing.T) {
	if _, err := Pricing(decode(t, `{"payload": {}}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := Pricing(map[string]any{}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestPricingNoEntryWithSKU(t *testing.T) {
	if _, err := Pricing(decode(t, `{"payload": [{"status": "ClientError"}]}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
