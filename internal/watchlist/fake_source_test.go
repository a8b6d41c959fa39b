package watchlist

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"stockwatch/internal/datasource"
	"stockwatch/internal/models"
)

// fakeSource is an in-memory data source. The optional func fields override
// the default behavior of each call.
type fakeSource struct {
	mu      sync.Mutex
	records []models.PlanRecord
	nextID  int
	calls   map[string]int

	createFn func(ctx context.Context, draft models.PlanRecord) (models.PlanRecord, error)
	updateFn func(ctx context.Context, id string, fields models.PlanFields) (models.PlanRecord, error)
	removeFn func(ctx context.Context, id string) error
	listFn   func(ctx context.Context) ([]models.PlanRecord, error)
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: make(map[string]int)}
}

func (f *fakeSource) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	f.calls[call]++
	f.mu.Unlock()
}

func (f *fakeSource) List(ctx context.Context) ([]models.PlanRecord, error) {
	f.record("list")
	if f.listFn != nil {
		return f.listFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PlanRecord(nil), f.records...), nil
}

func (f *fakeSource) Create(ctx context.Context, draft models.PlanRecord) (models.PlanRecord, error) {
	f.record("create")
	if f.createFn != nil {
		return f.createFn(ctx, draft)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	created := draft
	created.ID = "rec-" + strconv.Itoa(f.nextID)
	created.CurrentPrice = decimal.NewFromInt(100)
	f.records = append([]models.PlanRecord{created}, f.records...)
	return created, nil
}

func (f *fakeSource) Update(ctx context.Context, id string, fields models.PlanFields) (models.PlanRecord, error) {
	f.record("update")
	if f.updateFn != nil {
		return f.updateFn(ctx, id, fields)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.ID == id {
			f.records[i] = r.WithFields(fields)
			return f.records[i], nil
		}
	}
	return models.PlanRecord{}, datasource.ErrNotFound
}

func (f *fakeSource) Remove(ctx context.Context, id string) error {
	f.record("remove")
	if f.removeFn != nil {
		return f.removeFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return datasource.ErrNotFound
}

func (f *fakeSource) Search(ctx context.Context, keyword string) ([]models.SearchResult, error) {
	f.record("search")
	var out []models.SearchResult
	for i := 0; i < 12; i++ {
		code := strings.ToUpper(keyword) + strconv.Itoa(i)
		out = append(out, models.SearchResult{Code: code, Symbol: code, Name: "Result " + code})
	}
	return out, nil
}

// snapshot returns the records the fake currently holds.
func (f *fakeSource) snapshot() []models.PlanRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PlanRecord(nil), f.records...)
}
