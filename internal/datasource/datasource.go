// Package datasource defines the contract between the watchlist and wherever
// plan records are persisted and priced.
package datasource

import (
	"context"
	"errors"

	"stockwatch/internal/models"
)

// ErrNotFound is returned when a record id is unknown to the data source.
var ErrNotFound = errors.New("record not found in data source")

// MinSearchLength is the shortest keyword worth a typeahead lookup.
const MinSearchLength = 2

// MaxSearchResults caps the number of search hits a source returns.
const MaxSearchResults = 10

// Source is the external data source consumed by the watchlist.
type Source interface {
	// List returns a full snapshot of persisted records.
	List(ctx context.Context) ([]models.PlanRecord, error)
	// Create persists a draft and returns it with its assigned id.
	Create(ctx context.Context, draft models.PlanRecord) (models.PlanRecord, error)
	// Update replaces the user-owned fields of a record.
	Update(ctx context.Context, id string, fields models.PlanFields) (models.PlanRecord, error)
	// Remove deletes a record. Unknown ids yield ErrNotFound.
	Remove(ctx context.Context, id string) error
	// Search looks up instruments by code or name.
	Search(ctx context.Context, keyword string) ([]models.SearchResult, error)
}
