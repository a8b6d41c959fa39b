// Package local implements an in-process data source for running without a backend.
package local

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stockwatch/internal/catalog"
	"stockwatch/internal/datasource"
	"stockwatch/internal/logging"
	"stockwatch/internal/models"
	"stockwatch/internal/quotes"
)

// quoteWorkers bounds concurrent quote lookups during List.
const quoteWorkers = 4

// Source is the authoritative record list when no backend is configured.
// Records are kept newest first.
type Source struct {
	catalog *catalog.Catalog
	quotes  quotes.Provider
	logger  zerolog.Logger

	mu      sync.Mutex
	records []models.PlanRecord
}

var _ datasource.Source = (*Source)(nil)

// New creates a local source seeded with records. cat and provider may be nil.
func New(seed []models.PlanRecord, cat *catalog.Catalog, provider quotes.Provider, logger zerolog.Logger) *Source {
	s := &Source{
		catalog: cat,
		quotes:  provider,
		logger:  logging.WithComponent(logger, "local"),
	}
	seen := make(map[string]bool, len(seed))
	for _, r := range seed {
		if r.ID == "" || models.IsDraftID(r.ID) || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		s.records = append(s.records, r)
	}
	return s
}

// List returns every record, refreshing prices when a quote provider is set.
// A failed quote keeps the previous price.
func (s *Source) List(ctx context.Context) ([]models.PlanRecord, error) {
	if s.quotes != nil {
		s.refreshQuotes(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.PlanRecord(nil), s.records...), nil
}

func (s *Source) refreshQuotes(ctx context.Context) {
	s.mu.Lock()
	codes := make([]string, len(s.records))
	for i, r := range s.records {
		codes[i] = r.InstrumentCode
	}
	s.mu.Unlock()

	type result struct {
		code  string
		quote quotes.Quote
	}
	results := make(chan result, len(codes))
	sem := make(chan struct{}, quoteWorkers)
	var wg sync.WaitGroup

	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			q, err := s.quotes.Quote(ctx, code)
			if err != nil {
				l := logging.WithInstrument(s.logger, code)
				l.Warn().Err(err).Msg("Quote unavailable, keeping last price")
				return
			}
			results <- result{code: code, quote: q}
		}(code)
	}
	wg.Wait()
	close(results)

	fresh := make(map[string]quotes.Quote, len(codes))
	for r := range results {
		fresh[r.code] = r.quote
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if q, ok := fresh[r.InstrumentCode]; ok {
			s.records[i] = applyQuote(r, q)
		}
	}
}

// Create adds a record for the draft's instrument. A code that is already
// tracked returns the existing record.
func (s *Source) Create(ctx context.Context, draft models.PlanRecord) (models.PlanRecord, error) {
	code, err := models.NormalizeCode(draft.InstrumentCode)
	if err != nil {
		return models.PlanRecord{}, err
	}

	if existing, ok := s.findByCode(code); ok {
		return existing, nil
	}

	r := models.PlanRecord{
		ID:             uuid.NewString(),
		InstrumentCode: code,
		Symbol:         models.SymbolOf(code),
	}.WithFields(draft.Fields())
	if err := r.Fields().Validate(); err != nil {
		r = r.WithFields(models.DefaultPlanFields())
	}
	if s.catalog != nil {
		if inst, ok := s.catalog.Lookup(code); ok {
			r.DisplayName = inst.Name
		}
	}
	if s.quotes != nil {
		if q, err := s.quotes.Quote(ctx, code); err == nil {
			r = applyQuote(r, q)
		} else {
			l := logging.WithInstrument(s.logger, code)
			l.Warn().Err(err).Msg("No initial quote")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.InstrumentCode == code {
			return existing, nil
		}
	}
	s.records = append([]models.PlanRecord{r}, s.records...)
	return r, nil
}

// Update replaces the user-owned fields of a record.
func (s *Source) Update(ctx context.Context, id string, fields models.PlanFields) (models.PlanRecord, error) {
	if err := fields.Validate(); err != nil {
		return models.PlanRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records[i] = r.WithFields(fields)
			return s.records[i], nil
		}
	}
	return models.PlanRecord{}, datasource.ErrNotFound
}

// Remove deletes a record.
func (s *Source) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return datasource.ErrNotFound
}

// Search looks up instruments in the catalog.
func (s *Source) Search(ctx context.Context, keyword string) ([]models.SearchResult, error) {
	if s.catalog == nil {
		return nil, nil
	}
	return s.catalog.Search(keyword, datasource.MaxSearchResults), nil
}

func (s *Source) findByCode(code string) (models.PlanRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.InstrumentCode == code {
			return r, true
		}
	}
	return models.PlanRecord{}, false
}

func applyQuote(r models.PlanRecord, q quotes.Quote) models.PlanRecord {
	server := r
	server.CurrentPrice = q.Price
	server.ChangePercent = q.ChangePercent
	if q.Name != "" {
		server.DisplayName = q.Name
	}
	return r.WithServerFields(server)
}
