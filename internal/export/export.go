// Package export turns a stored result set into a downloadable CSV, JSON or
// spreadsheet file, tracking each attempt as an export job.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/arnav/places_service/internal/apperr"
	"github.com/arnav/places_service/pkg/models"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// Store is the persistence contract the export pipeline needs.
type Store interface {
	GetSearchByID(id string) (*models.Search, error)
	GetAllResultsBySearchID(searchID string) ([]*models.PlaceResult, error)

	CreateExportJob(*models.ExportJob) error
	GetExportJobByID(id string) (*models.ExportJob, error)
	CompleteExportJob(id, filePath string, recordCount int) error
	FailExportJob(id, errorMessage string) error
}

type Service struct {
	repo Store
	dir  string
	log  *zap.Logger
}

// NewService creates the export pipeline writing into dir (created if absent).
func NewService(repo Store, dir string, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Service{repo: repo, dir: dir, log: log}, nil
}

// JobSummary is returned to the client when an export completes.
type JobSummary struct {
	JobID       string `json:"jobId"`
	RecordCount int    `json:"recordCount"`
	DownloadURL string `json:"downloadUrl"`
}

// CreateJob runs the export state machine: the job is inserted as processing,
// generation is attempted, and the job lands in exactly one terminal state.
// A generation failure is captured on the job record and re-raised to the
// caller; it never corrupts completed jobs or the underlying results.
func (s *Service) CreateJob(searchID, format string) (*JobSummary, error) {
	switch format {
	case FormatCSV, FormatJSON, FormatXLSX:
	default:
		return nil, apperr.Validation("Invalid format. Use csv, json, or xlsx")
	}

	search, err := s.repo.GetSearchByID(searchID)
	if err != nil {
		return nil, err
	}
	if search == nil {
		return nil, apperr.NotFound("Search not found")
	}

	results, err := s.repo.GetAllResultsBySearchID(searchID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, apperr.New(http.StatusBadRequest, apperr.CodeNoResults, "No results to export")
	}

	job := &models.ExportJob{SearchID: searchID, Format: format}
	if err := s.repo.CreateExportJob(job); err != nil {
		return nil, fmt.Errorf("create export job: %w", err)
	}

	// Timestamped filename: repeated exports of the same search never collide.
	filename := fmt.Sprintf("export_%s_%d.%s", searchID, time.Now().UnixMilli(), format)
	filePath := filepath.Join(s.dir, filename)

	if err := s.generate(filePath, format, results); err != nil {
		os.Remove(filePath)
		if ferr := s.repo.FailExportJob(job.ID, err.Error()); ferr != nil {
			s.log.Error("mark export job failed", zap.String("job_id", job.ID), zap.Error(ferr))
		}
		s.log.Warn("export generation failed",
			zap.String("job_id", job.ID),
			zap.String("format", format),
			zap.Error(err))
		return nil, apperr.New(http.StatusInternalServerError, apperr.CodeExportFailed, err.Error())
	}

	if err := s.repo.CompleteExportJob(job.ID, filePath, len(results)); err != nil {
		return nil, fmt.Errorf("complete export job: %w", err)
	}

	s.log.Info("export completed",
		zap.String("job_id", job.ID),
		zap.String("format", format),
		zap.Int("records", len(results)))

	return &JobSummary{
		JobID:       job.ID,
		RecordCount: len(results),
		DownloadURL: fmt.Sprintf("/api/export/%s/download", job.ID),
	}, nil
}

// GetJob returns an export job, or a NOT_FOUND error.
func (s *Service) GetJob(jobID string) (*models.ExportJob, error) {
	job, err := s.repo.GetExportJobByID(jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperr.NotFound("Export job not found")
	}
	return job, nil
}

// FilePath resolves the downloadable file of a completed job.
func (s *Service) FilePath(jobID string) (string, error) {
	job, err := s.GetJob(jobID)
	if err != nil {
		return "", err
	}
	if job.Status != models.ExportStatusCompleted || job.FilePath == nil {
		return "", apperr.New(http.StatusBadRequest, apperr.CodeExportNotReady, "Export not ready")
	}
	return *job.FilePath, nil
}

func (s *Service) generate(filePath, format string, results []*models.PlaceResult) error {
	switch format {
	case FormatCSV:
		return writeCSV(filePath, results)
	case FormatJSON:
		return writeJSON(filePath, results)
	default:
		return writeXLSX(filePath, results)
	}
}

// columns is the fixed export column set shared by all three formats.
var columns = []string{
	"Name", "Address", "Phone", "Website", "Rating",
	"Reviews", "Latitude", "Longitude", "Types", "Place ID",
}

func writeCSV(filePath string, results []*models.PlaceResult) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range results {
		row := []string{
			r.Name,
			r.Address,
			strOrEmpty(r.Phone),
			strOrEmpty(r.Website),
			floatOrEmpty(r.Rating),
			intOrEmpty(r.ReviewCount),
			floatOrEmpty(r.Latitude),
			floatOrEmpty(r.Longitude),
			strings.Join(r.Types, ", "),
			r.PlaceID,
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// cleanRecord is the JSON export shape: the fixed field subset without the
// internal bookkeeping fields (ids, raw payload, timestamps).
type cleanRecord struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Phone       *string  `json:"phone"`
	Website     *string  `json:"website"`
	Rating      *float64 `json:"rating"`
	ReviewCount *int     `json:"review_count"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Types       []string `json:"types"`
	PlaceID     string   `json:"place_id"`
}

func writeJSON(filePath string, results []*models.PlaceResult) error {
	clean := make([]cleanRecord, 0, len(results))
	for _, r := range results {
		clean = append(clean, cleanRecord{
			Name:        r.Name,
			Address:     r.Address,
			Phone:       r.Phone,
			Website:     r.Website,
			Rating:      r.Rating,
			ReviewCount: r.ReviewCount,
			Latitude:    r.Latitude,
			Longitude:   r.Longitude,
			Types:       r.Types,
			PlaceID:     r.PlaceID,
		})
	}

	b, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(filePath, b, 0644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}

var xlsxColWidths = []float64{30, 40, 15, 30, 8, 10, 12, 12, 25, 30}

func writeXLSX(filePath string, results []*models.PlaceResult) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, name := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, xlsxColWidths[i])
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"E0E0E0"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "J1", headerStyle); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, r := range results {
		row := i + 2
		values := []any{
			r.Name, r.Address, strOrEmpty(r.Phone), strOrEmpty(r.Website),
			numOrNil(r.Rating), intValOrNil(r.ReviewCount),
			numOrNil(r.Latitude), numOrNil(r.Longitude),
			strings.Join(r.Types, ", "), r.PlaceID,
		}
		for j, v := range values {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write row %d: %w", row, err)
			}
		}
	}

	// Auto-filter over the header plus every data row.
	filterRange := fmt.Sprintf("A1:J%d", len(results)+1)
	if err := f.AutoFilter(sheet, filterRange, nil); err != nil {
		return fmt.Errorf("set auto-filter: %w", err)
	}

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return nil
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatOrEmpty(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func intOrEmpty(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}

func numOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func intValOrNil(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
