// Package search drives the provider against a free-text query or a grid of
// sample coordinates, owning pacing, accumulation, deduplication and API-call
// accounting for each run.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arnav/places_service/internal/aggregate"
	"github.com/arnav/places_service/internal/apperr"
	dbtypes "github.com/arnav/places_service/internal/db"
	"github.com/arnav/places_service/internal/geo"
	"github.com/arnav/places_service/internal/provider"
	"github.com/arnav/places_service/pkg/models"
)

const (
	// pageSize is the fixed page size for query-mode pagination.
	pageSize = 20
	// areaZoom is the zoom hint sent with every grid-point call.
	areaZoom = 15

	defaultQueryLimit = 100
	defaultPointLimit = 20
	defaultRadiusKm   = 5.0
	defaultGridSize   = 3

	resultsCacheTTL = 5 * time.Minute
)

// Store is the persistence contract the orchestrator needs.
type Store interface {
	CreateSearch(*models.Search) error
	GetSearchByID(id string) (*models.Search, error)
	FinishSearch(id string, resultCount, apiCallsUsed int, status string) error
	SaveSearch(id, name string) error
	RenameSearch(id, name string) error
	ListSearches(page, limit int, savedOnly bool) ([]*models.Search, int, error)
	DeleteSearch(id string) error

	BulkCreateResults([]*models.PlaceResult) error
	GetResultsBySearchID(searchID string, page, limit int) ([]*models.PlaceResult, error)
	CountResultsBySearchID(searchID string) (int, error)
}

// Provider issues one maps-search round trip per call.
type Provider interface {
	SearchMaps(ctx context.Context, p provider.SearchMapsParams) ([]map[string]any, error)
}

type Service struct {
	repo     Store
	provider Provider
	rdb      *redis.Client
	log      *zap.Logger

	// Pacing between sequential provider round trips; cooperative, never
	// charged against the cost model.
	queryDelay time.Duration
	gridDelay  time.Duration
}

func NewService(repo Store, prov Provider, rdb *redis.Client, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:       repo,
		provider:   prov,
		rdb:        rdb,
		log:        log,
		queryDelay: 100 * time.Millisecond,
		gridDelay:  150 * time.Millisecond,
	}
}

// QuerySummary is the completion summary of a query-mode run.
type QuerySummary struct {
	SearchID     string                `json:"searchId"`
	ResultCount  int                   `json:"resultCount"`
	APICallsUsed int                   `json:"apiCallsUsed"`
	Results      []*models.PlaceResult `json:"results"`
}

// AreaSummary is the completion summary of an area-mode run.
type AreaSummary struct {
	SearchID           string                `json:"searchId"`
	GridPointsSearched int                   `json:"gridPointsSearched"`
	ResultCount        int                   `json:"resultCount"`
	APICallsUsed       int                   `json:"apiCallsUsed"`
	Results            []*models.PlaceResult `json:"results"`
}

// SearchByQuery paginates a free-text search until the requested limit is
// met, the provider signals end of data, or a call fails. A failed page stops
// the loop but keeps what was already gathered — partial results are still
// persisted and the run completes.
func (s *Service) SearchByQuery(ctx context.Context, req models.QueryRequest) (*QuerySummary, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperr.Validation("Query is required")
	}
	if req.Limit < 0 {
		return nil, apperr.Validation("Limit must be positive")
	}
	if req.Limit == 0 {
		req.Limit = defaultQueryLimit
	}
	applyLocaleDefaults(&req.Country, &req.Language)

	search := &models.Search{
		Type:  models.SearchTypeQuery,
		Query: req.Query,
		Parameters: dbtypes.JSONMap{
			"query": req.Query, "limit": req.Limit,
			"country": req.Country, "language": req.Language,
		},
	}
	if err := s.repo.CreateSearch(search); err != nil {
		return nil, fmt.Errorf("create search: %w", err)
	}

	var all []map[string]any
	offset := 0
	apiCalls := 0

	for len(all) < req.Limit {
		records, err := s.provider.SearchMaps(ctx, provider.SearchMapsParams{
			Query:    req.Query,
			Limit:    pageSize,
			Country:  req.Country,
			Language: req.Language,
			Offset:   offset,
		})
		apiCalls++
		if err != nil {
			s.log.Warn("query page failed, stopping pagination",
				zap.String("search_id", search.ID),
				zap.Int("offset", offset),
				zap.Error(err))
			break
		}
		if len(records) == 0 {
			break
		}

		all = append(all, records...)
		offset += pageSize

		pace(ctx, s.queryDelay)
	}

	if len(all) > req.Limit {
		all = all[:req.Limit]
	}

	results := aggregate.NormalizeAll(search.ID, all)
	return s.finishQuery(search.ID, results, apiCalls)
}

func (s *Service) finishQuery(searchID string, results []*models.PlaceResult, apiCalls int) (*QuerySummary, error) {
	if err := s.persistRun(searchID, results, apiCalls); err != nil {
		return nil, err
	}
	return &QuerySummary{
		SearchID:     searchID,
		ResultCount:  len(results),
		APICallsUsed: apiCalls,
		Results:      results,
	}, nil
}

// SearchByCoordinates covers an area with a grid of sample points, one
// provider call per point. Point failures are logged and skipped; results
// from every point merge into one insertion-ordered dedup map where the
// earliest-processed point wins. Every attempted point counts toward
// api_calls_used — the paid round trip happened whether or not it succeeded.
func (s *Service) SearchByCoordinates(ctx context.Context, req models.CoordinateRequest) (*AreaSummary, error) {
	if req.CenterLat == nil || req.CenterLng == nil {
		return nil, apperr.Validation("Center coordinates are required")
	}
	if req.RadiusKm < 0 {
		return nil, apperr.Validation("Radius must be positive")
	}
	if req.RadiusKm == 0 {
		req.RadiusKm = defaultRadiusKm
	}
	if req.GridSize < 0 {
		return nil, apperr.Validation("Grid size must be at least 1")
	}
	if req.GridSize == 0 {
		req.GridSize = defaultGridSize
	}
	if req.Limit <= 0 {
		req.Limit = defaultPointLimit
	}
	applyLocaleDefaults(&req.Country, &req.Language)

	points := geo.Generate(*req.CenterLat, *req.CenterLng, req.RadiusKm, req.GridSize)

	query := req.Query
	if query == "" {
		query = fmt.Sprintf("Area search at %v, %v", *req.CenterLat, *req.CenterLng)
	}
	search := &models.Search{
		Type:  models.SearchTypeCoordinates,
		Query: query,
		Parameters: dbtypes.JSONMap{
			"centerLat": *req.CenterLat, "centerLng": *req.CenterLng,
			"radiusKm": req.RadiusKm, "gridSize": req.GridSize,
			"query": req.Query, "limit": req.Limit,
			"country": req.Country, "language": req.Language,
		},
	}
	if err := s.repo.CreateSearch(search); err != nil {
		return nil, fmt.Errorf("create search: %w", err)
	}

	dedup := aggregate.NewDeduper()
	apiCalls := 0

	for _, point := range points {
		lat, lng := point.Lat, point.Lng
		records, err := s.provider.SearchMaps(ctx, provider.SearchMapsParams{
			Query:    req.Query,
			Limit:    req.Limit,
			Country:  req.Country,
			Language: req.Language,
			Lat:      &lat,
			Lng:      &lng,
			Zoom:     areaZoom,
		})
		apiCalls++
		if err != nil {
			s.log.Warn("grid point failed, skipping",
				zap.String("search_id", search.ID),
				zap.Int("point", point.Index),
				zap.Error(err))
			continue
		}

		for _, record := range records {
			dedup.Add(record)
		}

		pace(ctx, s.gridDelay)
	}

	results := aggregate.NormalizeAll(search.ID, dedup.Records())
	if err := s.persistRun(search.ID, results, apiCalls); err != nil {
		return nil, err
	}

	return &AreaSummary{
		SearchID:           search.ID,
		GridPointsSearched: len(points),
		ResultCount:        len(results),
		APICallsUsed:       apiCalls,
		Results:            results,
	}, nil
}

// persistRun performs the single bulk write of a run's distinct results and
// the final status/count update on the search record.
func (s *Service) persistRun(searchID string, results []*models.PlaceResult, apiCalls int) error {
	if len(results) > 0 {
		if err := s.repo.BulkCreateResults(results); err != nil {
			if ferr := s.repo.FinishSearch(searchID, 0, apiCalls, models.SearchStatusFailed); ferr != nil {
				s.log.Error("mark search failed", zap.String("search_id", searchID), zap.Error(ferr))
			}
			return fmt.Errorf("store results: %w", err)
		}
	}
	if err := s.repo.FinishSearch(searchID, len(results), apiCalls, models.SearchStatusCompleted); err != nil {
		return fmt.Errorf("finish search: %w", err)
	}
	return nil
}

// Estimate projects the spend of an area search before it is committed.
func (s *Service) Estimate(radiusKm float64, gridSize int) (geo.Estimate, error) {
	if radiusKm == 0 {
		radiusKm = defaultRadiusKm
	}
	if gridSize == 0 {
		gridSize = defaultGridSize
	}
	if radiusKm < 0 || gridSize < 1 {
		return geo.Estimate{}, apperr.Validation("Invalid radius or grid size")
	}
	return geo.EstimateAPICalls(radiusKm, gridSize), nil
}

// GetSearch returns a search record, or a NOT_FOUND error.
func (s *Service) GetSearch(ctx context.Context, id string) (*models.Search, error) {
	search, err := s.repo.GetSearchByID(id)
	if err != nil {
		return nil, err
	}
	if search == nil {
		return nil, apperr.NotFound("Search not found")
	}
	return search, nil
}

// GetResults returns one page of a search's stored results, best rated first.
// Pages are cached briefly; results only change when emails are attached or
// the search is deleted, and both paths invalidate.
func (s *Service) GetResults(ctx context.Context, searchID string, page, limit int) ([]*models.PlaceResult, error) {
	if _, err := s.GetSearch(ctx, searchID); err != nil {
		return nil, err
	}

	key := resultsCacheKey(searchID, page, limit)
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
			var results []*models.PlaceResult
			if err := json.Unmarshal(cached, &results); err == nil {
				return results, nil
			}
		}
	}

	results, err := s.repo.GetResultsBySearchID(searchID, page, limit)
	if err != nil {
		return nil, err
	}

	if s.rdb != nil {
		if b, err := json.Marshal(results); err == nil {
			if err := s.rdb.Set(ctx, key, b, resultsCacheTTL).Err(); err != nil {
				s.log.Debug("results cache set failed", zap.Error(err))
			}
		}
	}
	return results, nil
}

// InvalidateResults drops every cached page of a search's results.
func (s *Service) InvalidateResults(ctx context.Context, searchID string) {
	if s.rdb == nil {
		return
	}
	keys, err := s.rdb.Keys(ctx, "results:"+searchID+":*").Result()
	if err != nil || len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		s.log.Debug("results cache invalidation failed", zap.Error(err))
	}
}

// SearchPage is one page of search history.
type SearchPage struct {
	Searches   []*models.Search `json:"searches"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	Total      int              `json:"total"`
	TotalPages int              `json:"totalPages"`
}

// ListSearches returns search history, newest first.
func (s *Service) ListSearches(ctx context.Context, page, limit int, savedOnly bool) (*SearchPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	searches, total, err := s.repo.ListSearches(page, limit, savedOnly)
	if err != nil {
		return nil, err
	}
	return &SearchPage{
		Searches:   searches,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// SaveSearch flags a search as saved under a display name.
func (s *Service) SaveSearch(ctx context.Context, id, name string) (*models.Search, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("Name is required")
	}
	if _, err := s.GetSearch(ctx, id); err != nil {
		return nil, err
	}
	if err := s.repo.SaveSearch(id, name); err != nil {
		return nil, err
	}
	return s.repo.GetSearchByID(id)
}

// RenameSearch updates the display name of a search.
func (s *Service) RenameSearch(ctx context.Context, id, name string) (*models.Search, error) {
	search, err := s.GetSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return search, nil
	}
	if err := s.repo.RenameSearch(id, name); err != nil {
		return nil, err
	}
	return s.repo.GetSearchByID(id)
}

// DeleteSearch removes a search and its results. Export jobs and their files
// keep their independent lifetime.
func (s *Service) DeleteSearch(ctx context.Context, id string) error {
	if _, err := s.GetSearch(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteSearch(id); err != nil {
		return err
	}
	s.InvalidateResults(ctx, id)
	return nil
}

// RerunParameters returns the stored parameters of a search so the client can
// re-submit it.
func (s *Service) RerunParameters(ctx context.Context, id string) (string, dbtypes.JSONMap, error) {
	search, err := s.GetSearch(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return search.Type, search.Parameters, nil
}

func applyLocaleDefaults(country, language *string) {
	if *country == "" {
		*country = "us"
	}
	if *language == "" {
		*language = "en"
	}
}

func resultsCacheKey(searchID string, page, limit int) string {
	return fmt.Sprintf("results:%s:p%d:l%d", searchID, page, limit)
}

// pace waits the mandated delay between sequential provider round trips
// without blocking other in-flight requests. The ctx check keeps process
// shutdown responsive; a run otherwise goes to completion.
func pace(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
