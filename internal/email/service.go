package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/arnav/places_service/pkg/models"
)

// crawlBatchSize caps how many URLs go to the crawler per request.
const crawlBatchSize = 50

// Store is the persistence contract the batch attach flow needs.
type Store interface {
	GetAllResultsBySearchID(searchID string) ([]*models.PlaceResult, error)
	UpdateResultEmails(id string, emails []string) error
}

type Service struct {
	client *Client
	repo   Store
	log    *zap.Logger

	// invalidate drops cached result pages after emails are attached.
	invalidate func(ctx context.Context, searchID string)
}

func NewService(client *Client, repo Store, invalidate func(ctx context.Context, searchID string), log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if invalidate == nil {
		invalidate = func(context.Context, string) {}
	}
	return &Service{client: client, repo: repo, invalidate: invalidate, log: log}
}

func (s *Service) Client() *Client { return s.client }

// SearchExtractSummary reports a batch attach over a search's results.
type SearchExtractSummary struct {
	Message           string          `json:"message,omitempty"`
	WebsitesProcessed int             `json:"websitesProcessed"`
	Results           []ExtractResult `json:"results"`
	TotalEmails       int             `json:"totalEmails"`
	UniqueEmails      []string        `json:"uniqueEmails"`
}

// ExtractForSearch crawls every website among a search's results in batches,
// writes the found emails back onto the owning results, and reports totals.
func (s *Service) ExtractForSearch(ctx context.Context, searchID string) (*SearchExtractSummary, error) {
	results, err := s.repo.GetAllResultsBySearchID(searchID)
	if err != nil {
		return nil, err
	}

	byWebsite := map[string]*models.PlaceResult{}
	var urls []string
	for _, r := range results {
		if r.Website == nil || *r.Website == "" {
			continue
		}
		if _, dup := byWebsite[*r.Website]; !dup {
			byWebsite[*r.Website] = r
			urls = append(urls, *r.Website)
		}
	}

	if len(urls) == 0 {
		return &SearchExtractSummary{
			Message:      "No websites found in search results",
			Results:      []ExtractResult{},
			UniqueEmails: []string{},
		}, nil
	}

	var all []ExtractResult
	unique := map[string]struct{}{}
	for start := 0; start < len(urls); start += crawlBatchSize {
		end := start + crawlBatchSize
		if end > len(urls) {
			end = len(urls)
		}
		batch, err := s.client.ExtractFromURLs(ctx, urls[start:end])
		if err != nil {
			return nil, fmt.Errorf("crawl batch: %w", err)
		}
		all = append(all, batch.Results...)
		for _, e := range batch.UniqueEmails {
			unique[e] = struct{}{}
		}
	}

	total := 0
	for _, er := range all {
		total += len(er.Emails)
		if len(er.Emails) == 0 {
			continue
		}
		owner, ok := byWebsite[er.URL]
		if !ok {
			continue
		}
		if err := s.repo.UpdateResultEmails(owner.ID, er.Emails); err != nil {
			s.log.Warn("attach emails failed",
				zap.String("result_id", owner.ID), zap.Error(err))
		}
	}

	s.invalidate(ctx, searchID)

	uniqueList := make([]string, 0, len(unique))
	for e := range unique {
		uniqueList = append(uniqueList, e)
	}

	return &SearchExtractSummary{
		WebsitesProcessed: len(urls),
		Results:           all,
		TotalEmails:       total,
		UniqueEmails:      uniqueList,
	}, nil
}
