package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnav/places_service/internal/apperr"
	"github.com/arnav/places_service/internal/provider"
	"github.com/arnav/places_service/pkg/models"
)

type fakeStore struct {
	searches map[string]*models.Search
	results  []*models.PlaceResult

	finishedCount  int
	finishedCalls  int
	finishedStatus string
	bulkWrites     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{searches: make(map[string]*models.Search)}
}

func (f *fakeStore) CreateSearch(s *models.Search) error {
	s.ID = fmt.Sprintf("search-%d", len(f.searches)+1)
	f.searches[s.ID] = s
	return nil
}

func (f *fakeStore) GetSearchByID(id string) (*models.Search, error) {
	return f.searches[id], nil
}

func (f *fakeStore) FinishSearch(id string, resultCount, apiCallsUsed int, status string) error {
	f.finishedCount = resultCount
	f.finishedCalls = apiCallsUsed
	f.finishedStatus = status
	if s, ok := f.searches[id]; ok {
		s.ResultCount = resultCount
		s.APICallsUsed = apiCallsUsed
		s.Status = status
	}
	return nil
}

func (f *fakeStore) SaveSearch(id, name string) error {
	f.searches[id].IsSaved = true
	f.searches[id].Name = &name
	return nil
}

func (f *fakeStore) RenameSearch(id, name string) error {
	f.searches[id].Name = &name
	return nil
}

func (f *fakeStore) ListSearches(page, limit int, savedOnly bool) ([]*models.Search, int, error) {
	out := []*models.Search{}
	for _, s := range f.searches {
		if savedOnly && !s.IsSaved {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (f *fakeStore) DeleteSearch(id string) error {
	delete(f.searches, id)
	kept := f.results[:0]
	for _, r := range f.results {
		if r.SearchID != id {
			kept = append(kept, r)
		}
	}
	f.results = kept
	return nil
}

func (f *fakeStore) BulkCreateResults(results []*models.PlaceResult) error {
	f.bulkWrites++
	f.results = append(f.results, results...)
	return nil
}

func (f *fakeStore) GetResultsBySearchID(searchID string, page, limit int) ([]*models.PlaceResult, error) {
	out := []*models.PlaceResult{}
	for _, r := range f.results {
		if r.SearchID == searchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) CountResultsBySearchID(searchID string) (int, error) {
	rows, _ := f.GetResultsBySearchID(searchID, 1, 0)
	return len(rows), nil
}

type fakeProvider struct {
	calls   []provider.SearchMapsParams
	respond func(call int, p provider.SearchMapsParams) ([]map[string]any, error)
}

func (f *fakeProvider) SearchMaps(ctx context.Context, p provider.SearchMapsParams) ([]map[string]any, error) {
	call := len(f.calls)
	f.calls = append(f.calls, p)
	return f.respond(call, p)
}

func newTestService(repo *fakeStore, prov *fakeProvider) *Service {
	s := NewService(repo, prov, nil, nil)
	s.queryDelay = 0
	s.gridDelay = 0
	return s
}

func place(id, name string) map[string]any {
	return map[string]any{"place_id": id, "name": name}
}

func pageOf(n, start int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, place(fmt.Sprintf("p-%d", start+i), fmt.Sprintf("Place %d", start+i)))
	}
	return out
}

func TestSearchByQuery_EndOfData(t *testing.T) {
	repo := newFakeStore()
	prov := &fakeProvider{respond: func(call int, p provider.SearchMapsParams) ([]map[string]any, error) {
		switch call {
		case 0:
			return pageOf(20, 0), nil
		case 1:
			return pageOf(20, 20), nil
		case 2:
			return pageOf(5, 40), nil
		default:
			return nil, nil // end of data
		}
	}}
	svc := newTestService(repo, prov)

	summary, err := svc.SearchByQuery(context.Background(), models.QueryRequest{Query: "coffee", Limit: 100})
	require.NoError(t, err)

	// Provider ran dry before the limit: stored count is the provider's
	// total, call count is every page call actually made.
	assert.Equal(t, 45, summary.ResultCount)
	assert.Equal(t, 4, summary.APICallsUsed)
	assert.Equal(t, 45, repo.finishedCount)
	assert.Equal(t, 4, repo.finishedCalls)
	assert.Equal(t, models.SearchStatusCompleted, repo.finishedStatus)
	assert.Equal(t, 1, repo.bulkWrites)

	// Pagination advanced by the fixed page size.
	assert.Equal(t, 0, prov.calls[0].Offset)
	assert.Equal(t, 20, prov.calls[1].Offset)
	assert.Equal(t, 20, prov.calls[1].Limit)
}

func TestSearchByQuery_TrimsToLimit(t *testing.T) {
	repo := newFakeStore()
	prov := &fakeProvider{respond: func(call int, p provider.SearchMapsParams) ([]map[string]any, error) {
		return pageOf(20, call*20), nil
	}}
	svc := newTestService(repo, prov)

	summary, err := svc.SearchByQuery(context.Background(), models.QueryRequest{Query: "pizza", Limit: 30})
	require.NoError(t, err)

	assert.Equal(t, 30, summary.ResultCount)
	assert.Equal(t, 2, summary.APICallsUsed)
	assert.Len(t, repo.results, 30)
}

func TestSearchByQuery_FailureStopsLoopKeepsPartial(t *testing.T) {
	repo := newFakeStore()
	prov := &fakeProvider{respond: func(call int, p provider.SearchMapsParams) ([]map[string]any, error) {
		if call == 0 {
			return pageOf(20, 0), nil
		}
		return nil, apperr.Provider(429)
	}}
	svc := newTestService(repo, prov)

	summary, err := svc.SearchByQuery(context.Background(), models.QueryRequest{Query: "bars", Limit: 100})
	require.NoError(t, err)

	assert.Equal(t, 20, summary.ResultCount)
	assert.Equal(t, 2, summary.APICallsUsed)
	assert.Equal(t, models.SearchStatusCompleted, repo.finishedStatus)
	assert.Len(t, repo.results, 20)
}

func TestSearchByQuery_Validation(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvider{})

	_, err := svc.SearchByQuery(context.Background(), models.QueryRequest{Query: "   "})
	require.Error(t, err)
	var ae *apperr.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeValidation, ae.Code)
}

func floatPtr(v float64) *float64 { return &v }

func TestSearchByCoordinates_DeduplicatesAcrossPoints(t *testing.T) {
	repo := newFakeStore()
	prov := &fakeProvider{respond: func(call int, p provider.SearchMapsParams) ([]map[string]any, error) {
		switch call {
		case 0:
			return []map[string]any{place("shared", "from first point"), place("a", "A")}, nil
		case 1:
			return []map[string]any{place("shared", "from second point"), place("b", "B")}, nil
		default:
			return nil, nil
		}
	}}
	svc := newTestService(repo, prov)

	summary, err := svc.SearchByCoordinates(context.Background(), models.CoordinateRequest{
		CenterLat: floatPtr(40.0), CenterLng: floatPtr(-73.0),
		RadiusKm: 2, GridSize: 2, Query: "cafe",
	})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.GridPointsSearched)
	assert.Equal(t, 4, summary.APICallsUsed)
	assert.Equal(t, 3, summary.ResultCount)

	// First occurrence wins for the shared place id.
	byID := map[string]string{}
	for _, r := range summary.Results {
		byID[r.PlaceID] = r.Name
	}
	assert.Equal(t, "from first point", byID["shared"])

	// Every call carried coordinates and the fixed zoom hint.
	for _, call := range prov.calls {
		require.NotNil(t, call.Lat)
		require.NotNil(t, call.Lng)
		assert.Equal(t, 15, call.Zoom)
	}
}

func TestSearchByCoordinates_PartialFailureTolerated(t *testing.T) {
	repo := newFakeStore()
	prov := &fakeProvider{respond: func(call int, p provider.SearchMapsParams) ([]map[string]any, error) {
		if call == 1 {
			return nil, apperr.Provider(500)
		}
		return []map[string]any{place(fmt.Sprintf("pt-%d", call), "ok")}, nil
	}}
	svc := newTestService(repo, prov)

	summary, err := svc.SearchByCoordinates(context.Background(), models.CoordinateRequest{
		CenterLat: floatPtr(40.0), CenterLng: floatPtr(-73.0),
		RadiusKm: 3, GridSize: 2,
	})
	require.NoError(t, err)

	// The failed point is skipped but its attempt is still billed.
	assert.Equal(t, 4, summary.APICallsUsed)
	assert.Equal(t, 3, summary.ResultCount)
	assert.Equal(t, models.SearchStatusCompleted, repo.finishedStatus)
}

func TestSearchByCoordinates_RequiresCenter(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvider{})

	_, err := svc.SearchByCoordinates(context.Background(), models.CoordinateRequest{})
	var ae *apperr.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeValidation, ae.Code)
}

func TestSearchByCoordinates_NoResultsStillFinishes(t *testing.T) {
	repo := newFakeStore()
	prov := &fakeProvider{respond: func(call int, p provider.SearchMapsParams) ([]map[string]any, error) {
		return nil, nil
	}}
	svc := newTestService(repo, prov)

	summary, err := svc.SearchByCoordinates(context.Background(), models.CoordinateRequest{
		CenterLat: floatPtr(10), CenterLng: floatPtr(10), RadiusKm: 1, GridSize: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.ResultCount)
	assert.Equal(t, 1, summary.APICallsUsed)
	assert.Equal(t, 0, repo.bulkWrites)
	assert.Equal(t, models.SearchStatusCompleted, repo.finishedStatus)
}

func TestEstimate(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvider{})

	est, err := svc.Estimate(5, 3)
	require.NoError(t, err)
	assert.Equal(t, 9, est.GridPoints)
	assert.Equal(t, 9, est.EstimatedCalls)
	assert.InDelta(t, 0.0018, est.EstimatedCost, 1e-12)

	_, err = svc.Estimate(-1, 3)
	assert.Error(t, err)
}

func TestDeleteSearch_CascadesResults(t *testing.T) {
	repo := newFakeStore()
	prov := &fakeProvider{respond: func(call int, p provider.SearchMapsParams) ([]map[string]any, error) {
		return []map[string]any{place(fmt.Sprintf("%d", call), "x")}, nil
	}}
	svc := newTestService(repo, prov)

	first, err := svc.SearchByQuery(context.Background(), models.QueryRequest{Query: "one", Limit: 1})
	require.NoError(t, err)
	second, err := svc.SearchByQuery(context.Background(), models.QueryRequest{Query: "two", Limit: 1})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSearch(context.Background(), first.SearchID))

	_, err = svc.GetSearch(context.Background(), first.SearchID)
	var ae *apperr.AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CodeNotFound, ae.Code)

	// The other search's results are untouched.
	remaining, err := svc.GetResults(context.Background(), second.SearchID, 1, 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
