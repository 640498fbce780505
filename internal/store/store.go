package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	dbtypes "github.com/arnav/places_service/internal/db"
	"github.com/arnav/places_service/pkg/models"
)

type PgStore struct {
	db *sqlx.DB
}

func NewPgStore(db *sql.DB) *PgStore {
	return &PgStore{db: sqlx.NewDb(db, "postgres")}
}

func RunMigrations(db *sql.DB) error {
	initSQL := `
CREATE TABLE IF NOT EXISTS searches(
  id UUID PRIMARY KEY,
  name TEXT,
  type TEXT NOT NULL,
  query TEXT NOT NULL DEFAULT '',
  parameters JSONB,
  result_count INTEGER NOT NULL DEFAULT 0,
  api_calls_used INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'completed',
  is_saved BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS results(
  id UUID PRIMARY KEY,
  search_id UUID NOT NULL,
  place_id TEXT NOT NULL DEFAULT '',
  business_id TEXT,
  name TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  phone TEXT,
  website TEXT,
  rating DOUBLE PRECISION,
  review_count INTEGER,
  latitude DOUBLE PRECISION,
  longitude DOUBLE PRECISION,
  types JSONB,
  hours JSONB,
  raw_data JSONB,
  emails JSONB,
  created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS export_jobs(
  id UUID PRIMARY KEY,
  search_id UUID NOT NULL,
  format TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'processing',
  file_path TEXT,
  record_count INTEGER,
  error_message TEXT,
  created_at TIMESTAMPTZ NOT NULL,
  completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_searches_created ON searches(created_at);
CREATE INDEX IF NOT EXISTS idx_results_search ON results(search_id);
CREATE INDEX IF NOT EXISTS idx_results_rating ON results(rating);
CREATE INDEX IF NOT EXISTS idx_export_jobs_search ON export_jobs(search_id);
`
	_, err := db.Exec(initSQL)
	return err
}

const searchCols = `id,name,type,query,parameters,result_count,api_calls_used,status,is_saved,created_at,updated_at`

// CreateSearch inserts the search record at the start of an orchestration run.
// The id and timestamps are assigned here; counts are finalized later by
// FinishSearch — exactly one insert and one update per run.
func (p *PgStore) CreateSearch(s *models.Search) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Status == "" {
		s.Status = models.SearchStatusCompleted
	}

	_, err := p.db.Exec(`
INSERT INTO searches (id,name,type,query,parameters,result_count,api_calls_used,status,is_saved,created_at,updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.Name, s.Type, s.Query, s.Parameters,
		s.ResultCount, s.APICallsUsed, s.Status, s.IsSaved, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert search id=%s: %w", s.ID, err)
	}
	return nil
}

func (p *PgStore) GetSearchByID(id string) (*models.Search, error) {
	var s models.Search
	err := p.db.Get(&s, `SELECT `+searchCols+` FROM searches WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FinishSearch records the outcome of an orchestration run.
func (p *PgStore) FinishSearch(id string, resultCount, apiCallsUsed int, status string) error {
	_, err := p.db.Exec(`
UPDATE searches SET result_count=$1, api_calls_used=$2, status=$3, updated_at=$4 WHERE id=$5`,
		resultCount, apiCallsUsed, status, time.Now().UTC(), id)
	return err
}

// SaveSearch flags a search as saved under a display name.
func (p *PgStore) SaveSearch(id, name string) error {
	_, err := p.db.Exec(`
UPDATE searches SET is_saved=TRUE, name=$1, updated_at=$2 WHERE id=$3`,
		name, time.Now().UTC(), id)
	return err
}

// RenameSearch updates the display name only.
func (p *PgStore) RenameSearch(id, name string) error {
	_, err := p.db.Exec(`
UPDATE searches SET name=$1, updated_at=$2 WHERE id=$3`,
		name, time.Now().UTC(), id)
	return err
}

// ListSearches returns one page of searches, newest first, plus the total.
func (p *PgStore) ListSearches(page, limit int, savedOnly bool) ([]*models.Search, int, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	where := ""
	if savedOnly {
		where = " WHERE is_saved"
	}

	var total int
	if err := p.db.Get(&total, `SELECT COUNT(*) FROM searches`+where); err != nil {
		return nil, 0, err
	}

	rows := []*models.Search{}
	query := `SELECT ` + searchCols + ` FROM searches` + where + `
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`
	err := p.db.Select(&rows, query, limit, (page-1)*limit)
	return rows, total, err
}

// DeleteSearch removes a search and cascades to its results in one
// transaction. Export jobs keep their independent lifetime — already produced
// files are not retracted.
func (p *PgStore) DeleteSearch(id string) error {
	tx, err := p.db.Beginx()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM results WHERE search_id = $1`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete results for search id=%s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM searches WHERE id = $1`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("delete search id=%s: %w", id, err)
	}
	return tx.Commit()
}

const resultCols = `id,search_id,place_id,business_id,name,address,phone,website,rating,review_count,latitude,longitude,types,hours,raw_data,emails,created_at`

// BulkCreateResults writes a run's distinct results in one transaction — the
// single bulk write of an orchestration run.
func (p *PgStore) BulkCreateResults(results []*models.PlaceResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := p.db.Beginx()
	if err != nil {
		return err
	}

	stmt := `
INSERT INTO results (id,search_id,place_id,business_id,name,address,phone,website,rating,review_count,latitude,longitude,types,hours,raw_data,emails,created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	now := time.Now().UTC()
	for _, r := range results {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.Types == nil {
			r.Types = dbtypes.StringSlice{}
		}
		r.CreatedAt = now

		_, err := tx.Exec(stmt,
			r.ID, r.SearchID, r.PlaceID, r.BusinessID, r.Name, r.Address,
			r.Phone, r.Website, r.Rating, r.ReviewCount, r.Latitude, r.Longitude,
			r.Types, r.Hours, r.RawData, r.Emails, r.CreatedAt)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert result id=%s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// GetResultsBySearchID returns one page of a search's results, best rated
// first.
func (p *PgStore) GetResultsBySearchID(searchID string, page, limit int) ([]*models.PlaceResult, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows := []*models.PlaceResult{}
	query := `
SELECT ` + resultCols + `
FROM results
WHERE search_id = $1
ORDER BY rating DESC NULLS LAST, created_at ASC
LIMIT $2 OFFSET $3`
	err := p.db.Select(&rows, query, searchID, limit, (page-1)*limit)
	return rows, err
}

// GetAllResultsBySearchID returns a search's complete result set, best rated
// first. Used by the export pipeline, which must not silently truncate.
func (p *PgStore) GetAllResultsBySearchID(searchID string) ([]*models.PlaceResult, error) {
	rows := []*models.PlaceResult{}
	query := `
SELECT ` + resultCols + `
FROM results
WHERE search_id = $1
ORDER BY rating DESC NULLS LAST, created_at ASC`
	err := p.db.Select(&rows, query, searchID)
	return rows, err
}

func (p *PgStore) CountResultsBySearchID(searchID string) (int, error) {
	var count int
	err := p.db.Get(&count, `SELECT COUNT(*) FROM results WHERE search_id = $1`, searchID)
	return count, err
}

func (p *PgStore) GetResultByID(id string) (*models.PlaceResult, error) {
	var r models.PlaceResult
	err := p.db.Get(&r, `SELECT `+resultCols+` FROM results WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateResultEmails attaches extracted emails to an existing result — the
// only mutation results see after their bulk insert.
func (p *PgStore) UpdateResultEmails(id string, emails []string) error {
	_, err := p.db.Exec(`UPDATE results SET emails = $1 WHERE id = $2`,
		dbtypes.StringSlice(emails), id)
	return err
}

func (p *PgStore) CreateExportJob(j *models.ExportJob) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	j.Status = models.ExportStatusProcessing
	j.CreatedAt = time.Now().UTC()

	_, err := p.db.Exec(`
INSERT INTO export_jobs (id,search_id,format,status,created_at)
VALUES ($1,$2,$3,$4,$5)`,
		j.ID, j.SearchID, j.Format, j.Status, j.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert export job id=%s: %w", j.ID, err)
	}
	return nil
}

func (p *PgStore) GetExportJobByID(id string) (*models.ExportJob, error) {
	var j models.ExportJob
	err := p.db.Get(&j, `
SELECT id,search_id,format,status,file_path,record_count,error_message,created_at,completed_at
FROM export_jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CompleteExportJob moves a job to its terminal success state.
func (p *PgStore) CompleteExportJob(id, filePath string, recordCount int) error {
	_, err := p.db.Exec(`
UPDATE export_jobs SET status=$1, file_path=$2, record_count=$3, completed_at=$4 WHERE id=$5`,
		models.ExportStatusCompleted, filePath, recordCount, time.Now().UTC(), id)
	return err
}

// FailExportJob moves a job to its terminal failure state.
func (p *PgStore) FailExportJob(id, errorMessage string) error {
	_, err := p.db.Exec(`
UPDATE export_jobs SET status=$1, error_message=$2 WHERE id=$3`,
		models.ExportStatusFailed, errorMessage, id)
	return err
}
