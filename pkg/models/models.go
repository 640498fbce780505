package models

import (
	"time"

	dbtypes "github.com/arnav/places_service/internal/db"
)

// Search kinds.
const (
	SearchTypeQuery       = "query"
	SearchTypeCoordinates = "coordinates"
)

// Search statuses.
const (
	SearchStatusCompleted = "completed"
	SearchStatusFailed    = "failed"
)

// Export job statuses.
const (
	ExportStatusProcessing = "processing"
	ExportStatusCompleted  = "completed"
	ExportStatusFailed     = "failed"
)

// Search represents one recorded search run (query or coordinate grid).
type Search struct {
	ID           string          `db:"id" json:"id"`
	Name         *string         `db:"name" json:"name"`
	Type         string          `db:"type" json:"type"`
	Query        string          `db:"query" json:"query"`
	Parameters   dbtypes.JSONMap `db:"parameters" json:"parameters"`
	ResultCount  int             `db:"result_count" json:"result_count"`
	APICallsUsed int             `db:"api_calls_used" json:"api_calls_used"`
	Status       string          `db:"status" json:"status"`
	IsSaved      bool            `db:"is_saved" json:"is_saved"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// PlaceResult is the canonical, normalized shape of one place record returned
// by the provider and owned by a Search.
type PlaceResult struct {
	ID          string              `db:"id" json:"id"`
	SearchID    string              `db:"search_id" json:"search_id"`
	PlaceID     string              `db:"place_id" json:"place_id"`
	BusinessID  *string             `db:"business_id" json:"business_id"`
	Name        string              `db:"name" json:"name"`
	Address     string              `db:"address" json:"address"`
	Phone       *string             `db:"phone" json:"phone"`
	Website     *string             `db:"website" json:"website"`
	Rating      *float64            `db:"rating" json:"rating"`
	ReviewCount *int                `db:"review_count" json:"review_count"`
	Latitude    *float64            `db:"latitude" json:"latitude"`
	Longitude   *float64            `db:"longitude" json:"longitude"`
	Types       dbtypes.StringSlice `db:"types" json:"types"`
	Hours       dbtypes.JSONMap     `db:"hours" json:"hours"`
	RawData     dbtypes.JSONMap     `db:"raw_data" json:"raw_data"`
	Emails      dbtypes.StringSlice `db:"emails" json:"emails"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
}

// ExportJob tracks one request to materialize a search's results into a file.
type ExportJob struct {
	ID           string     `db:"id" json:"id"`
	SearchID     string     `db:"search_id" json:"search_id"`
	Format       string     `db:"format" json:"format"`
	Status       string     `db:"status" json:"status"`
	FilePath     *string    `db:"file_path" json:"file_path"`
	RecordCount  *int       `db:"record_count" json:"record_count"`
	ErrorMessage *string    `db:"error_message" json:"error_message"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at"`
}

// QueryRequest is the body of a free-text search.
type QueryRequest struct {
	Query    string `json:"query"`
	Limit    int    `json:"limit"`
	Country  string `json:"country"`
	Language string `json:"language"`
}

// CoordinateRequest is the body of a grid area search.
type CoordinateRequest struct {
	CenterLat *float64 `json:"centerLat"`
	CenterLng *float64 `json:"centerLng"`
	RadiusKm  float64  `json:"radiusKm"`
	GridSize  int      `json:"gridSize"`
	Query     string   `json:"query"`
	Limit     int      `json:"limit"`
	Country   string   `json:"country"`
	Language  string   `json:"language"`
}
