// Package normalize maps raw marketplace payloads into the gateway's stable
// record shapes. Missing optional fields become zero values; only a missing
// identifying field or an unparseable structure fails the record.
package normalize

import (
	"errors"
	"fmt"
)

// ErrMalformed indicates an upstream payload that violates the expected
// contract. Terminal: it signals schema drift, not a caller error.
var ErrMalformed = errors.New("malformed upstream data")

type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

type SalesRank struct {
	Rank     int    `json:"rank"`
	Category string `json:"category"`
}

// ProductRecord is the gateway's stable product shape.
type ProductRecord struct {
	SKU         string            `json:"sku"`
	ASIN        string            `json:"asin,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	ProductType string            `json:"product_type,omitempty"`
	Features    []string          `json:"features"`
	Images      []Image           `json:"images"`
	Attributes  map[string]string `json:"attributes"`
	Dimensions  map[string]any    `json:"dimensions"`
	SalesRank   *SalesRank        `json:"sales_rank"`
}

// Product normalizes a listings-item payload. The sku is required; everything
// else defaults.
func Product(raw map[string]any) (ProductRecord, error) {
	raw = unwrapPayload(raw)
	if raw == nil {
		return ProductRecord{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	sku := str(raw["sku"])
	if sku == "" {
		return ProductRecord{}, fmt.Errorf("%w: missing sku", ErrMalformed)
	}

	rec := newRecord(raw)
	rec.SKU = sku
	return rec, nil
}

// CatalogItem normalizes a catalog-item payload, which is keyed by asin
// rather than sku.
func CatalogItem(raw map[string]any) (ProductRecord, error) {
	raw = unwrapPayload(raw)
	if raw == nil {
		return ProductRecord{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}

	asin := str(raw["asin"])
	if asin == "" {
		return ProductRecord{}, fmt.Errorf("%w: missing asin", ErrMalformed)
	}

	rec := newRecord(raw)
	rec.ASIN = asin
	return rec, nil
}

// newRecord extracts all the optional sections shared by both payload kinds.
func newRecord(raw map[string]any) ProductRecord {
	rec := ProductRecord{
		Features:   []string{},
		Images:     []Image{},
		Attributes: map[string]string{},
		Dimensions: map[string]any{},
	}

	if rec.ASIN == "" {
		rec.ASIN = str(raw["asin"])
	}

	if summaries := list(raw["summaries"]); len(summaries) > 0 {
		if summary := obj(summaries[0]); summary != nil {
			rec.Title = str(summary["itemName"])
			rec.ProductType = str(summary["productType"])
			if rec.ASIN == "" {
				rec.ASIN = str(summary["asin"])
			}
		}
	}

	extractAttributes(raw, &rec)
	extractImages(raw, &rec)
	extractDimensions(raw, &rec)
	extractSalesRank(raw, &rec)

	return rec
}

// extractAttributes flattens the attribute map: lists of {"value": ...}
// entries and single {"value": ...} objects both become plain strings.
func extractAttributes(raw map[string]any, rec *ProductRecord) {
	attrs := obj(raw["attributes"])
	for key, value := range attrs {
		switch v := value.(type) {
		case []any:
			var joined string
			for _, item := range v {
				m := obj(item)
				if m == nil || m["value"] == nil {
					continue
				}
				if joined != "" {
					joined += "; "
				}
				joined += fmt.Sprintf("%v", m["value"])
			}
			if joined != "" {
				rec.Attributes[key] = joined
			}
		case map[string]any:
			if v["value"] != nil {
				rec.Attributes[key] = fmt.Sprintf("%v", v["value"])
			}
		}
	}

	// Bullet points and package description are attributes upstream, but
	// first-class fields here.
	for _, key := range []string{"feature_bullet_point", "bullet_point"} {
		for _, item := range list(attrs[key]) {
			if m := obj(item); m != nil && m["value"] != nil {
				rec.Features = append(rec.Features, fmt.Sprintf("%v", m["value"]))
			}
		}
		if len(rec.Features) > 0 {
			break
		}
	}
	for _, key := range []string{"item_package_description", "product_description"} {
		if rec.Description != "" {
			break
		}
		for _, item := range list(attrs[key]) {
			if m := obj(item); m != nil && m["value"] != nil {
				rec.Description = fmt.Sprintf("%v", m["value"])
				break
			}
		}
	}
}

func extractImages(raw map[string]any, rec *ProductRecord) {
	for _, set := range list(raw["images"]) {
		setObj := obj(set)
		if setObj == nil {
			continue
		}
		for _, img := range list(setObj["images"]) {
			m := obj(img)
			if m == nil {
				continue
			}
			link := str(m["link"])
			if link == "" {
				continue
			}
			rec.Images = append(rec.Images, Image{
				URL:    link,
				Height: intVal(m["height"]),
				Width:  intVal(m["width"]),
			})
		}
	}
}

func extractDimensions(raw map[string]any, rec *ProductRecord) {
	dims := list(raw["dimensions"])
	if len(dims) == 0 {
		return
	}
	entry := obj(dims[0])
	if entry == nil {
		return
	}
	// Catalog payloads nest the item dimensions one level down.
	if item := obj(entry["item"]); item != nil {
		entry = item
	}
	for _, key := range []string{"height", "width", "length", "weight"} {
		if v, ok := entry[key]; ok {
			rec.Dimensions[key] = v
		}
	}
}

func extractSalesRank(raw map[string]any, rec *ProductRecord) {
	for _, rank := range list(raw["salesRanks"]) {
		rankObj := obj(rank)
		if rankObj == nil {
			continue
		}
		groups := list(rankObj["displayGroupRanks"])
		if len(groups) == 0 {
			continue
		}
		if g := obj(groups[0]); g != nil {
			rec.SalesRank = &SalesRank{
				Rank:     intVal(g["rank"]),
				Category: str(g["title"]),
			}
		}
		return
	}
}

// unwrapPayload peels a {"payload": {...}} envelope when present.
func unwrapPayload(raw map[string]any) map[string]any {
	if inner := obj(raw["payload"]); inner != nil {
		return inner
	}
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func obj(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func intVal(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
