package normalize

import (
	"encoding/json"
	"errors"
	"testing"
)

// decode builds the map[string]any shape the upstream client hands over.
func decode(t *testing.T, payload string) map[string]any {
	t.Helper()
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return raw
}

const listingsItemJSON = `{
  "sku": "SKU-001",
  "summaries": [
    {"itemName": "Steel Water Bottle 750ml", "productType": "DRINKING_VESSEL", "asin": "B0EXAMPLE1"}
  ],
  "attributes": {
    "color": [{"value": "silver"}],
    "material": [{"value": "steel"}, {"value": "plastic"}],
    "feature_bullet_point": [
      {"value": "Keeps drinks cold for 24h"},
      {"value": "Leak-proof lid"}
    ],
    "item_package_description": [{"value": "A double-walled bottle."}],
    "ignored": "scalar values are skipped"
  },
  "images": [
    {"images": [
      {"link": "https://img.test/main.jpg", "height": 1200, "width": 1200},
      {"link": "https://img.test/alt.jpg"}
    ]}
  ],
  "dimensions": [
    {"item": {"height": {"unit": "centimeters", "value": 25.0}, "weight": {"unit": "grams", "value": 310.0}}}
  ],
  "salesRanks": [
    {"displayGroupRanks": [{"rank": 1532, "title": "Sports & Outdoors"}]}
  ]
}`

func TestProductFullPayload(t *testing.T) {
	rec, err := Product(decode(t, listingsItemJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.SKU != "SKU-001" || rec.ASIN != "B0EXAMPLE1" {
		t.Errorf("identity mismatch: %+v", rec)
	}
	if rec.Title != "Steel Water Bottle 750ml" || rec.ProductType != "DRINKING_VESSEL" {
		t.Errorf("summary mismatch: %+v", rec)
	}
	if rec.Description != "A double-walled bottle." {
		t.Errorf("unexpected description: %q", rec.Description)
	}
	if len(rec.Features) != 2 || rec.Features[0] != "Keeps drinks cold for 24h" {
		t.Errorf("unexpected features: %v", rec.Features)
	}
	if rec.Attributes["color"] != "silver" {
		t.Errorf("unexpected color attribute: %q", rec.Attributes["color"])
	}
	if rec.Attributes["material"] != "steel; plastic" {
		t.Errorf("list attributes must join: %q", rec.Attributes["material"])
	}
	if _, ok := rec.Attributes["ignored"]; ok {
		t.Error("scalar attribute values must be skipped")
	}
	if len(rec.Images) != 2 || rec.Images[0].URL != "https://img.test/main.jpg" || rec.Images[0].Height != 1200 {
		t.Errorf("unexpected images: %v", rec.Images)
	}
	if rec.Images[1].Height != 0 {
		t.Errorf("missing image size should be zero, got %d", rec.Images[1].Height)
	}
	if _, ok := rec.Dimensions["height"]; !ok {
		t.Errorf("expected item dimensions, got %v", rec.Dimensions)
	}
	if rec.SalesRank == nil || rec.SalesRank.Rank != 1532 || rec.SalesRank.Category != "Sports & Outdoors" {
		t.Errorf("unexpected sales rank: %+v", rec.SalesRank)
	}
}

func TestProductMissingOptionalSections(t *testing.T) {
	rec, err := Product(decode(t, `{"sku": "SKU-002"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.SKU != "SKU-002" {
		t.Errorf("unexpected sku: %q", rec.SKU)
	}
	// Optional sections default rather than fail.
	if rec.SalesRank != nil {
		t.Error("missing salesRanks must yield a nil rank")
	}
	if rec.Features == nil || rec.Images == nil || rec.Attributes == nil || rec.Dimensions == nil {
		t.Error("collection fields must be empty, not nil")
	}
}

func TestProductMissingSKU(t *testing.T) {
	_, err := Product(decode(t, `{"summaries": [{"itemName": "No identity"}]}`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestProductUnwrapsPayloadEnvelope(t *testing.T) {
	rec, err := Product(decode(t, `{"payload": {"sku": "SKU-003"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.SKU != "SKU-003" {
		t.Errorf("unexpected sku: %q", rec.SKU)
	}
}

func TestProductEmptyPayload(t *testing.T) {
	if _, err := Product(nil); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for nil payload, got %v", err)
	}
	if _, err := Product(map[string]any{}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for empty payload, got %v", err)
	}
}

const catalogItemJSON = `{
  "asin": "B0EXAMPLE2",
  "summaries": [{"itemName": "Catalog Thing"}],
  "dimensions": [{"height": {"value": 3.0}}],
  "salesRanks": [{"displayGroupRanks": []}]
}`

func TestCatalogItem(t *testing.T) {
	rec, err := CatalogItem(decode(t, catalogItemJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ASIN != "B0EXAMPLE2" || rec.Title != "Catalog Thing" {
		t.Errorf("unexpected record: %+v", rec)
	}
	// Flat dimensions (no "item" nesting) are read directly.
	if _, ok := rec.Dimensions["height"]; !ok {
		t.Errorf("expected flat dimensions, got %v", rec.Dimensions)
	}
	// An empty displayGroupRanks list yields no rank.
	if rec.SalesRank != nil {
		t.Errorf("unexpected sales rank: %+v", rec.SalesRank)
	}
}

func TestCatalogItemMissingASIN(t *testing.T) {
	_, err := CatalogItem(decode(t, `{"summaries": [{"itemName": "x"}]}`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestProductFallbackBulletPoints(t *testing.T) {
	rec, err := Product(decode(t, `{
	  "sku": "SKU-004",
	  "attributes": {
	    "bullet_point": [{"value": "fallback feature"}],
	    "product_description": [{"value": "fallback description"}]
	  }
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.Features) != 1 || rec.Features[0] != "fallback feature" {
		t.Errorf("unexpected features: %v", rec.Features)
	}
	if rec.Description != "fallback description" {
		t.Errorf("unexpected description: %q", rec.Description)
	}
}
