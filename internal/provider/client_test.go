package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnav/places_service/internal/apperr"
)

func TestSearchMaps_BareArray(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotKey = r.Header.Get("Scraper-Key")
		w.Write([]byte(`[{"place_id":"a","name":"One"},{"place_id":"b","name":"Two"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", srv.Client(), nil)
	records, err := c.SearchMaps(context.Background(), SearchMapsParams{Query: "cafe", Limit: 20})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "One", records[0]["name"])
	assert.Equal(t, "cafe", gotQuery)
	assert.Equal(t, "secret", gotKey)
}

func TestSearchMaps_WrappedInData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"place_id":"a"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), nil)
	records, err := c.SearchMaps(context.Background(), SearchMapsParams{Query: "cafe", Limit: 20})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSearchMaps_EmptyPayloadMeansEndOfData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), nil)
	records, err := c.SearchMaps(context.Background(), SearchMapsParams{Query: "cafe", Limit: 20})
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestSearchMaps_AreaParamsSent(t *testing.T) {
	var q map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q = r.URL.Query()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	lat, lng := 51.5074, -0.1278
	c := NewClient(srv.URL, "", srv.Client(), nil)
	_, err := c.SearchMaps(context.Background(), SearchMapsParams{
		Query: "restaurant", Limit: 20, Lat: &lat, Lng: &lng, Zoom: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, "51.5074", q["lat"][0])
	assert.Equal(t, "-0.1278", q["lng"][0])
	assert.Equal(t, "15", q["zoom"][0])
}

func TestSearchMaps_RateLimitedMapsToStableCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), nil)
	_, err := c.SearchMaps(context.Background(), SearchMapsParams{Query: "cafe", Limit: 20})
	require.Error(t, err)

	var ae *apperr.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "SCRAPER_429", ae.Code)
	assert.Equal(t, http.StatusTooManyRequests, ae.Status)
}

func TestGetPlaceInfo_UnwrapsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc123", r.URL.Query().Get("place_id"))
		w.Write([]byte(`{"data":{"name":"Blue Bottle","rating":4.6}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), nil)
	place, err := c.GetPlaceInfo(context.Background(), PlaceInfoParams{PlaceID: "abc123", Country: "us", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, "Blue Bottle", place["name"])
}
