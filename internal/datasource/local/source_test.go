package local

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stockwatch/internal/catalog"
	"stockwatch/internal/datasource"
	"stockwatch/internal/models"
	"stockwatch/internal/quotes"
)

type stubQuotes struct {
	mu     sync.Mutex
	prices map[string]string
	calls  int
}

func (s *stubQuotes) Quote(ctx context.Context, code string) (quotes.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	p, ok := s.prices[code]
	if !ok {
		return quotes.Quote{}, errors.New("no quote")
	}
	return quotes.Quote{Price: decimal.RequireFromString(p), ChangePercent: decimal.RequireFromString("1.5")}, nil
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Instrument{
		{Code: "NVDA", Name: "NVIDIA Corporation"},
		{Code: "AMD", Name: "Advanced Micro Devices"},
		{Code: "sh.600000", Name: "Pudong Development Bank"},
	})
}

func TestCreateAssignsIDAndNewestFirst(t *testing.T) {
	q := &stubQuotes{prices: map[string]string{"NVDA": "450.12"}}
	s := New(nil, testCatalog(), q, zerolog.Nop())
	ctx := context.Background()

	nvda, err := s.Create(ctx, models.CreateDraft("NVDA"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if nvda.ID == "" || models.IsDraftID(nvda.ID) {
		t.Errorf("ID = %q, want assigned id", nvda.ID)
	}
	if nvda.DisplayName != "NVIDIA Corporation" || nvda.CurrentPrice.String() != "450.12" {
		t.Errorf("unexpected record %+v", nvda)
	}

	amd, err := s.Create(ctx, models.CreateDraft("AMD"))
	if err != nil {
		t.Fatalf("Create without quote failed: %v", err)
	}
	if !amd.CurrentPrice.IsZero() {
		t.Errorf("CurrentPrice = %s, want 0 without quote", amd.CurrentPrice)
	}

	list, _ := s.List(ctx)
	if len(list) != 2 || list[0].ID != amd.ID || list[1].ID != nvda.ID {
		t.Errorf("list order = %+v", list)
	}
}

func TestCreateExistingCodeReturnsExisting(t *testing.T) {
	s := New(nil, nil, nil, zerolog.Nop())
	ctx := context.Background()

	first, _ := s.Create(ctx, models.CreateDraft("NVDA"))
	again, err := s.Create(ctx, models.CreateDraft("nvda"))
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Errorf("ID = %s, want %s", again.ID, first.ID)
	}
	if list, _ := s.List(ctx); len(list) != 1 {
		t.Errorf("len = %d, want 1", len(list))
	}
}

func TestUpdateAndRemove(t *testing.T) {
	s := New(nil, nil, nil, zerolog.Nop())
	ctx := context.Background()
	r, _ := s.Create(ctx, models.CreateDraft("NVDA"))

	fields := models.PlanFields{Strategy: models.StrategyHolding, TargetPrice: "500", Conviction: 5}
	updated, err := s.Update(ctx, r.ID, fields)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Fields() != fields {
		t.Errorf("fields = %+v", updated.Fields())
	}

	if _, err := s.Update(ctx, "missing", fields); !errors.Is(err, datasource.ErrNotFound) {
		t.Errorf("Update(missing) = %v", err)
	}
	bad := fields
	bad.Conviction = 9
	if _, err := s.Update(ctx, r.ID, bad); err == nil {
		t.Error("expected validation error")
	}

	if err := s.Remove(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, r.ID); !errors.Is(err, datasource.ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
}

func TestListRefreshesQuotes(t *testing.T) {
	seed := []models.PlanRecord{
		{ID: "1", InstrumentCode: "NVDA", CurrentPrice: decimal.NewFromInt(400), Strategy: models.StrategyWatch, Conviction: 3, Notes: "keep"},
		{ID: "2", InstrumentCode: "AMD", CurrentPrice: decimal.NewFromInt(120), Strategy: models.StrategyWatch, Conviction: 3},
		{ID: "draft-x", InstrumentCode: "TSLA"},
	}
	q := &stubQuotes{prices: map[string]string{"NVDA": "450.12"}}
	s := New(seed, nil, q, zerolog.Nop())

	list, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, drafts must not be seeded", len(list))
	}
	if list[0].CurrentPrice.String() != "450.12" || list[0].Notes != "keep" {
		t.Errorf("NVDA = %+v", list[0])
	}
	if list[1].CurrentPrice.String() != "120" {
		t.Errorf("AMD price = %s, want last price kept", list[1].CurrentPrice)
	}
}

func TestSearchUsesCatalog(t *testing.T) {
	s := New(nil, testCatalog(), nil, zerolog.Nop())
	got, err := s.Search(context.Background(), "600")
	if err != nil || len(got) != 1 || got[0].Code != "sh.600000" {
		t.Errorf("Search = %+v, %v", got, err)
	}

	bare := New(nil, nil, nil, zerolog.Nop())
	if got, _ := bare.Search(context.Background(), "nv"); got != nil {
		t.Errorf("Search without catalog = %+v", got)
	}
}
