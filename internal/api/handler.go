package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arnav/places_service/internal/apperr"
	"github.com/arnav/places_service/internal/email"
	"github.com/arnav/places_service/internal/export"
	"github.com/arnav/places_service/internal/provider"
	"github.com/arnav/places_service/internal/search"
	"github.com/arnav/places_service/pkg/models"
)

type Handler struct {
	search   *search.Service
	export   *export.Service
	email    *email.Service
	provider *provider.Client
	log      *zap.Logger
	devMode  bool
}

func NewHandler(searchSvc *search.Service, exportSvc *export.Service, emailSvc *email.Service, prov *provider.Client, log *zap.Logger, devMode bool) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		search:   searchSvc,
		export:   exportSvc,
		email:    emailSvc,
		provider: prov,
		log:      log,
		devMode:  devMode,
	}
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		s := api.Group("/search")
		{
			s.POST("/query", h.SearchByQuery)
			s.POST("/coordinates", h.SearchByCoordinates)
			s.GET("/:searchId/results", h.GetResults)
			s.POST("/estimate", h.EstimateCost)
		}

		hist := api.Group("/history")
		{
			hist.GET("", h.HistoryList)
			hist.GET("/:id", h.HistoryGet)
			hist.POST("/:id/save", h.HistorySave)
			hist.PUT("/:id", h.HistoryRename)
			hist.DELETE("/:id", h.HistoryDelete)
			hist.POST("/:id/rerun", h.HistoryRerun)
		}

		exp := api.Group("/export")
		{
			exp.POST("", h.ExportCreate)
			exp.GET("/:jobId/status", h.ExportStatus)
			exp.GET("/:jobId/download", h.ExportDownload)
		}

		place := api.Group("/place")
		{
			place.GET("/resolve", h.PlaceResolve)
			place.GET("/:placeId", h.PlaceDetails)
			place.GET("/:placeId/reviews", h.PlaceReviews)
			place.GET("/:placeId/photos", h.PlacePhotos)
		}

		em := api.Group("/email")
		{
			em.POST("/extract", h.EmailExtract)
			em.POST("/extract/batch", h.EmailExtractBatch)
			em.POST("/search/:searchId/extract", h.EmailExtractForSearch)
			em.GET("/health", h.EmailHealth)
		}
	}
}

// fail writes the error envelope: a success flag, a stable code and a
// message. Internal errors are redacted outside development.
func (h *Handler) fail(c *gin.Context, err error) {
	ae := apperr.From(err, h.devMode)
	if ae.Status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", ae.Code),
			zap.Error(err))
	}
	c.JSON(ae.Status, gin.H{"success": false, "code": ae.Code, "message": ae.Message})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

// SearchByQuery: POST /api/search/query
func (h *Handler) SearchByQuery(c *gin.Context) {
	var req models.QueryRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid json: "+err.Error()))
		return
	}

	// Orchestration runs to completion even if the client goes away, so the
	// run is detached from the request context.
	summary, err := h.search.SearchByQuery(context.Background(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"searchId":     summary.SearchID,
		"resultCount":  summary.ResultCount,
		"apiCallsUsed": summary.APICallsUsed,
		"results":      summary.Results,
	})
}

// SearchByCoordinates: POST /api/search/coordinates
func (h *Handler) SearchByCoordinates(c *gin.Context) {
	var req models.CoordinateRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid json: "+err.Error()))
		return
	}

	summary, err := h.search.SearchByCoordinates(context.Background(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"searchId":           summary.SearchID,
		"gridPointsSearched": summary.GridPointsSearched,
		"resultCount":        summary.ResultCount,
		"apiCallsUsed":       summary.APICallsUsed,
		"results":            summary.Results,
	})
}

// GetResults: GET /api/search/:searchId/results?page=1&limit=100
func (h *Handler) GetResults(c *gin.Context) {
	searchID := c.Param("searchId")
	page := parseIntDefault(c.DefaultQuery("page", "1"), 1)
	limit := parseIntDefault(c.DefaultQuery("limit", "100"), 100)

	searchRec, err := h.search.GetSearch(c.Request.Context(), searchID)
	if err != nil {
		h.fail(c, err)
		return
	}
	results, err := h.search.GetResults(c.Request.Context(), searchID, page, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "search": searchRec, "results": results})
}

type estimateRequest struct {
	RadiusKm float64 `json:"radiusKm"`
	GridSize int     `json:"gridSize"`
}

// EstimateCost: POST /api/search/estimate
func (h *Handler) EstimateCost(c *gin.Context) {
	var req estimateRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid json: "+err.Error()))
		return
	}
	est, err := h.search.Estimate(req.RadiusKm, req.GridSize)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"gridPoints":     est.GridPoints,
		"estimatedCalls": est.EstimatedCalls,
		"estimatedCost":  est.EstimatedCost,
	})
}

// HistoryList: GET /api/history?page=1&limit=20&savedOnly=false
func (h *Handler) HistoryList(c *gin.Context) {
	page := parseIntDefault(c.DefaultQuery("page", "1"), 1)
	limit := parseIntDefault(c.DefaultQuery("limit", "20"), 20)
	savedOnly := c.Query("savedOnly") == "true"

	listing, err := h.search.ListSearches(c.Request.Context(), page, limit, savedOnly)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"searches": listing.Searches,
		"pagination": gin.H{
			"page":       listing.Page,
			"limit":      listing.Limit,
			"total":      listing.Total,
			"totalPages": listing.TotalPages,
		},
	})
}

// HistoryGet: GET /api/history/:id
func (h *Handler) HistoryGet(c *gin.Context) {
	id := c.Param("id")
	searchRec, err := h.search.GetSearch(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	results, err := h.search.GetResults(c.Request.Context(), id, 1, 100)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "search": searchRec, "results": results})
}

type nameRequest struct {
	Name string `json:"name"`
}

// HistorySave: POST /api/history/:id/save
func (h *Handler) HistorySave(c *gin.Context) {
	var req nameRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid json: "+err.Error()))
		return
	}
	searchRec, err := h.search.SaveSearch(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "search": searchRec})
}

// HistoryRename: PUT /api/history/:id
func (h *Handler) HistoryRename(c *gin.Context) {
	var req nameRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid json: "+err.Error()))
		return
	}
	searchRec, err := h.search.RenameSearch(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "search": searchRec})
}

// HistoryDelete: DELETE /api/history/:id
func (h *Handler) HistoryDelete(c *gin.Context) {
	if err := h.search.DeleteSearch(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Search deleted"})
}

// HistoryRerun: POST /api/history/:id/rerun
func (h *Handler) HistoryRerun(c *gin.Context) {
	kind, params, err := h.search.RerunParameters(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "type": kind, "parameters": params})
}

type exportRequest struct {
	SearchID string `json:"searchId"`
	Format   string `json:"format"`
}

// ExportCreate: POST /api/export
func (h *Handler) ExportCreate(c *gin.Context) {
	var req exportRequest
	if err := c.BindJSON(&req); err != nil {
		h.fail(c, apperr.Validation("invalid json: "+err.Error()))
		return
	}
	summary, err := h.export.CreateJob(req.SearchID, req.Format)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"jobId":       summary.JobID,
		"recordCount": summary.RecordCount,
		"downloadUrl": summary.DownloadURL,
	})
}

// ExportStatus: GET /api/export/:jobId/status
func (h *Handler) ExportStatus(c *gin.Context) {
	job, err := h.export.GetJob(c.Param("jobId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}

// ExportDownload: GET /api/export/:jobId/download
func (h *Handler) ExportDownload(c *gin.Context) {
	path, err := h.export.FilePath(c.Param("jobId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// PlaceDetails: GET /api/place/:placeId
func (h *Handler) PlaceDetails(c *gin.Context) {
	placeID := c.Param("placeId")
	place, err := h.provider.GetPlaceInfo(c.Request.Context(), provider.PlaceInfoParams{
		PlaceID:  placeID,
		Country:  c.DefaultQuery("country", "us"),
		Language: c.DefaultQuery("language", "en"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "place": place})
}

// PlaceReviews: GET /api/place/:placeId/reviews
func (h *Handler) PlaceReviews(c *gin.Context) {
	result, err := h.provider.GetReviews(c.Request.Context(), provider.ReviewsParams{
		PlaceID: c.Param("placeId"),
		Sort:    c.DefaultQuery("sort", "relevant"),
		Limit:   parseIntDefault(c.DefaultQuery("limit", "10"), 10),
		Cursor:  c.Query("cursor"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"reviews":    pick(result, "reviews", result),
		"nextCursor": pick(result, "next_cursor", result["cursor"]),
	})
}

// PlacePhotos: GET /api/place/:placeId/photos
func (h *Handler) PlacePhotos(c *gin.Context) {
	result, err := h.provider.GetPhotos(c.Request.Context(), c.Param("placeId"), c.Query("cursor"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"photos":     pick(result, "photos", result),
		"nextCursor": pick(result, "next_cursor", result["cursor"]),
	})
}

// PlaceResolve: GET /api/place/resolve?lat=..&lng=.. (reverse geocode)
func (h *Handler) PlaceResolve(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil {
		h.fail(c, apperr.Validation("invalid or missing lat/lng parameters"))
		return
	}
	result, err := h.provider.WhatIsHere(c.Request.Context(), lat, lng)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "place": result})
}

type extractRequest struct {
	URL string `json:"url"`
}

// EmailExtract: POST /api/email/extract
func (h *Handler) EmailExtract(c *gin.Context) {
	var req extractRequest
	if err := c.BindJSON(&req); err != nil || req.URL == "" {
		h.fail(c, apperr.Validation("URL is required"))
		return
	}
	result, err := h.email.Client().ExtractFromURL(c.Request.Context(), req.URL)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": result.URL, "emails": result.Emails})
}

type extractBatchRequest struct {
	URLs []string `json:"urls"`
}

// EmailExtractBatch: POST /api/email/extract/batch
func (h *Handler) EmailExtractBatch(c *gin.Context) {
	var req extractBatchRequest
	if err := c.BindJSON(&req); err != nil || len(req.URLs) == 0 {
		h.fail(c, apperr.Validation("URLs array is required"))
		return
	}
	if len(req.URLs) > 50 {
		h.fail(c, apperr.Validation("Maximum 50 URLs per request"))
		return
	}
	result, err := h.email.Client().ExtractFromURLs(c.Request.Context(), req.URLs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"results":      result.Results,
		"uniqueEmails": result.UniqueEmails,
	})
}

// EmailExtractForSearch: POST /api/email/search/:searchId/extract
func (h *Handler) EmailExtractForSearch(c *gin.Context) {
	summary, err := h.email.ExtractForSearch(c.Request.Context(), c.Param("searchId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           summary.Message,
		"websitesProcessed": summary.WebsitesProcessed,
		"results":           summary.Results,
		"totalEmails":       summary.TotalEmails,
		"uniqueEmails":      summary.UniqueEmails,
	})
}

// EmailHealth: GET /api/email/health
func (h *Handler) EmailHealth(c *gin.Context) {
	c.JSON(http.StatusOK, h.email.Client().Health(c.Request.Context()))
}

// parseIntDefault ensures a sane positive integer with an upper bound.
func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > 500 {
		return 500
	}
	return n
}

// pick returns m[key] when present, otherwise the fallback.
func pick(m map[string]any, key string, fallback any) any {
	if v, ok := m[key]; ok {
		return v
	}
	return fallback
}
