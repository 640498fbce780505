// Package aggregate normalizes the provider's heterogeneous place records
// into the canonical PlaceResult shape and merges overlapping grid results.
package aggregate

import (
	"strconv"

	dbtypes "github.com/arnav/places_service/internal/db"
	"github.com/arnav/places_service/pkg/models"
)

// PlaceID extracts the provider place identifier used as the dedup key.
// Empty when the record carries none.
func PlaceID(raw map[string]any) string {
	return firstString(raw, "place_id", "placeId")
}

// Normalize maps a raw provider record onto the canonical PlaceResult shape.
// Field names vary across provider response shapes, so each field tries an
// ordered list of alias keys; missing optional fields resolve to null/empty
// and never fail the record. The raw payload is kept verbatim.
func Normalize(searchID string, raw map[string]any) *models.PlaceResult {
	return &models.PlaceResult{
		SearchID:    searchID,
		PlaceID:     PlaceID(raw),
		BusinessID:  firstStringPtr(raw, "business_id", "businessId"),
		Name:        firstString(raw, "name", "title"),
		Address:     firstString(raw, "address", "full_address"),
		Phone:       firstStringPtr(raw, "phone", "phone_number"),
		Website:     firstStringPtr(raw, "website", "site"),
		Rating:      firstFloatPtr(raw, "rating"),
		ReviewCount: firstIntPtr(raw, "review_count", "reviews", "reviews_count"),
		Latitude:    firstFloatPtr(raw, "latitude", "lat"),
		Longitude:   firstFloatPtr(raw, "longitude", "lng", "lon"),
		Types:       firstStringSlice(raw, "types", "categories"),
		Hours:       firstMap(raw, "hours", "working_hours"),
		RawData:     dbtypes.JSONMap(raw),
	}
}

// NormalizeAll maps a batch of raw records, preserving order.
func NormalizeAll(searchID string, raws []map[string]any) []*models.PlaceResult {
	results := make([]*models.PlaceResult, 0, len(raws))
	for _, raw := range raws {
		results = append(results, Normalize(searchID, raw))
	}
	return results
}

// Deduper accumulates raw records across grid points, keyed by provider place
// id with the first occurrence winning. Records without a place id are kept
// but cannot be deduplicated against each other — a documented limitation of
// the provider's identifier coverage, not a bug. Insertion order is preserved.
type Deduper struct {
	seen    map[string]struct{}
	records []map[string]any
}

func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Add keeps raw unless an earlier record already claimed its place id.
// Reports whether the record was kept.
func (d *Deduper) Add(raw map[string]any) bool {
	if id := PlaceID(raw); id != "" {
		if _, dup := d.seen[id]; dup {
			return false
		}
		d.seen[id] = struct{}{}
	}
	d.records = append(d.records, raw)
	return true
}

// Records returns the accumulated records in insertion order.
func (d *Deduper) Records() []map[string]any { return d.records }

func (d *Deduper) Len() int { return len(d.records) }

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstStringPtr(raw map[string]any, keys ...string) *string {
	if s := firstString(raw, keys...); s != "" {
		return &s
	}
	return nil
}

func firstFloatPtr(raw map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case float64:
			return &v
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

func firstIntPtr(raw map[string]any, keys ...string) *int {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case float64:
			n := int(v)
			return &n
		case string:
			if n, err := strconv.Atoi(v); err == nil {
				return &n
			}
		}
	}
	return nil
}

func firstStringSlice(raw map[string]any, keys ...string) dbtypes.StringSlice {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case []any:
			out := make(dbtypes.StringSlice, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case string:
			if v != "" {
				return dbtypes.StringSlice{v}
			}
		}
	}
	return dbtypes.StringSlice{}
}

func firstMap(raw map[string]any, keys ...string) dbtypes.JSONMap {
	for _, k := range keys {
		if m, ok := raw[k].(map[string]any); ok {
			return dbtypes.JSONMap(m)
		}
	}
	return nil
}
