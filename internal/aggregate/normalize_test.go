package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_PrimaryKeys(t *testing.T) {
	raw := map[string]any{
		"place_id":     "pid-1",
		"business_id":  "bid-1",
		"name":         "Blue Bottle",
		"address":      "66 Mint St",
		"phone":        "+1 415 000 0000",
		"website":      "https://bluebottle.example",
		"rating":       4.5,
		"review_count": float64(321),
		"latitude":     37.7825,
		"longitude":    -122.4073,
		"types":        []any{"cafe", "coffee_shop"},
		"hours":        map[string]any{"monday": "7-5"},
	}

	r := Normalize("search-1", raw)
	assert.Equal(t, "search-1", r.SearchID)
	assert.Equal(t, "pid-1", r.PlaceID)
	require.NotNil(t, r.BusinessID)
	assert.Equal(t, "bid-1", *r.BusinessID)
	assert.Equal(t, "Blue Bottle", r.Name)
	assert.Equal(t, "66 Mint St", r.Address)
	require.NotNil(t, r.Rating)
	assert.Equal(t, 4.5, *r.Rating)
	require.NotNil(t, r.ReviewCount)
	assert.Equal(t, 321, *r.ReviewCount)
	require.NotNil(t, r.Latitude)
	assert.Equal(t, 37.7825, *r.Latitude)
	assert.Equal(t, []string{"cafe", "coffee_shop"}, []string(r.Types))
	assert.Equal(t, "7-5", r.Hours["monday"])
	assert.Equal(t, raw["place_id"], r.RawData["place_id"])
}

func TestNormalize_AliasKeys(t *testing.T) {
	raw := map[string]any{
		"placeId":       "pid-2",
		"title":         "Tartine",
		"full_address":  "600 Guerrero St",
		"phone_number":  "+1 415 111 1111",
		"site":          "https://tartine.example",
		"reviews":       float64(87),
		"lat":           37.7614,
		"lon":           -122.4241,
		"categories":    []any{"bakery"},
		"working_hours": map[string]any{"sunday": "8-3"},
	}

	r := Normalize("search-2", raw)
	assert.Equal(t, "pid-2", r.PlaceID)
	assert.Equal(t, "Tartine", r.Name)
	assert.Equal(t, "600 Guerrero St", r.Address)
	require.NotNil(t, r.Phone)
	assert.Equal(t, "+1 415 111 1111", *r.Phone)
	require.NotNil(t, r.Website)
	assert.Equal(t, "https://tartine.example", *r.Website)
	require.NotNil(t, r.ReviewCount)
	assert.Equal(t, 87, *r.ReviewCount)
	require.NotNil(t, r.Longitude)
	assert.Equal(t, -122.4241, *r.Longitude)
	assert.Equal(t, []string{"bakery"}, []string(r.Types))
	assert.Equal(t, "8-3", r.Hours["sunday"])
}

func TestNormalize_MissingOptionals(t *testing.T) {
	r := Normalize("search-3", map[string]any{"name": "No Frills"})
	assert.Equal(t, "No Frills", r.Name)
	assert.Empty(t, r.PlaceID)
	assert.Nil(t, r.BusinessID)
	assert.Nil(t, r.Phone)
	assert.Nil(t, r.Website)
	assert.Nil(t, r.Rating)
	assert.Nil(t, r.ReviewCount)
	assert.Nil(t, r.Latitude)
	assert.Nil(t, r.Longitude)
	assert.Empty(t, r.Types)
	assert.Nil(t, r.Hours)
}

func TestNormalize_NumericStrings(t *testing.T) {
	r := Normalize("s", map[string]any{"rating": "4.2", "review_count": "15"})
	require.NotNil(t, r.Rating)
	assert.Equal(t, 4.2, *r.Rating)
	require.NotNil(t, r.ReviewCount)
	assert.Equal(t, 15, *r.ReviewCount)
}

func TestDeduper_FirstOccurrenceWins(t *testing.T) {
	d := NewDeduper()
	assert.True(t, d.Add(map[string]any{"place_id": "a", "name": "first"}))
	assert.True(t, d.Add(map[string]any{"place_id": "b", "name": "other"}))
	assert.False(t, d.Add(map[string]any{"place_id": "a", "name": "later duplicate"}))

	require.Equal(t, 2, d.Len())
	assert.Equal(t, "first", d.Records()[0]["name"])
	assert.Equal(t, "other", d.Records()[1]["name"])
}

func TestDeduper_KeepsRecordsWithoutPlaceID(t *testing.T) {
	d := NewDeduper()
	assert.True(t, d.Add(map[string]any{"name": "anon one"}))
	assert.True(t, d.Add(map[string]any{"name": "anon two"}))
	assert.Equal(t, 2, d.Len())
}
