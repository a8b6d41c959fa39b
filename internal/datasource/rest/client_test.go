package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stockwatch/internal/datasource"
	"stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/pkg/utils"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig(srv.URL + "/api/stocks")
	cfg.Retry = utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestListDecodesBackendRecords(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stocks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id": 7, "code": "sh.600000", "symbol": "600000", "name": "Pudong Bank",
			 "currentPrice": 10.42, "changePercent": -1.3, "strategy": "BUY_READY",
			 "targetPrice": 12.50, "stopLoss": null, "confidence": 4, "notes": null},
			{"id": "abc", "code": "NVDA", "currentPrice": 450.12, "changePercent": 1.5,
			 "strategy": "", "targetPrice": null, "stopLoss": 400, "confidence": 0, "notes": "ai"}
		]`)
	})
	c := newTestClient(t, mux)

	records, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len = %d, want 2", len(records))
	}

	first := records[0]
	if first.ID != "7" || first.DisplayName != "Pudong Bank" || first.Strategy != models.StrategyBuyReady {
		t.Errorf("unexpected first record %+v", first)
	}
	if first.TargetPrice != "12.5" || first.StopLoss != "" || first.Notes != "" || first.Conviction != 4 {
		t.Errorf("unexpected plan fields %+v", first.Fields())
	}
	if !first.CurrentPrice.Equal(decimal.RequireFromString("10.42")) {
		t.Errorf("CurrentPrice = %s", first.CurrentPrice)
	}

	second := records[1]
	if second.ID != "abc" || second.Symbol != "NVDA" {
		t.Errorf("unexpected identity %+v", second)
	}
	if second.Strategy != models.StrategyWatch || second.Conviction != models.DefaultConviction {
		t.Errorf("defaults not applied: %+v", second.Fields())
	}
	if second.StopLoss != "400" || second.Notes != "ai" {
		t.Errorf("unexpected plan fields %+v", second.Fields())
	}
}

func TestCreateSendsNullForEmptyPrices(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stocks", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"id": 42, "code": "NVDA", "symbol": "NVDA", "name": "NVIDIA",
			"currentPrice": 450.12, "changePercent": 1.5, "strategy": "WATCH",
			"targetPrice": null, "stopLoss": null, "confidence": 3, "notes": ""}`)
	})
	c := newTestClient(t, mux)

	created, err := c.Create(context.Background(), models.CreateDraft("NVDA"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID != "42" || created.DisplayName != "NVIDIA" {
		t.Errorf("unexpected created record %+v", created)
	}

	if got["code"] != "NVDA" || got["strategy"] != "WATCH" {
		t.Errorf("unexpected payload %v", got)
	}
	for _, key := range []string{"targetPrice", "stopLoss"} {
		v, present := got[key]
		if !present || v != nil {
			t.Errorf("%s = %v (present=%v), want null", key, v, present)
		}
	}
	if got["confidence"] != float64(3) {
		t.Errorf("confidence = %v", got["confidence"])
	}
}

func TestUpdateSendsNumericPrices(t *testing.T) {
	var raw map[string]json.RawMessage
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /api/stocks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			t.Errorf("id = %s", r.PathValue("id"))
		}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"id": 7, "code": "NVDA", "strategy": "HOLDING",
			"targetPrice": 500, "stopLoss": null, "confidence": 5, "notes": "n"}`)
	})
	c := newTestClient(t, mux)

	fields := models.PlanFields{
		Strategy:    models.StrategyHolding,
		TargetPrice: "500.",
		StopLoss:    "abc",
		Conviction:  5,
		Notes:       "n",
	}
	updated, err := c.Update(context.Background(), "7", fields)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.TargetPrice != "500" || updated.Strategy != models.StrategyHolding {
		t.Errorf("unexpected updated record %+v", updated.Fields())
	}
	if string(raw["targetPrice"]) != "500" {
		t.Errorf("targetPrice = %s, want bare number", raw["targetPrice"])
	}
	if string(raw["stopLoss"]) != "null" {
		t.Errorf("stopLoss = %s, want null", raw["stopLoss"])
	}
}

func TestRemoveNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/stocks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "1" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, mux)

	if err := c.Remove(context.Background(), "1"); err != nil {
		t.Errorf("Remove(1) = %v", err)
	}
	if err := c.Remove(context.Background(), "2"); !errors.Is(err, datasource.ErrNotFound) {
		t.Errorf("Remove(2) = %v, want ErrNotFound", err)
	}
}

func TestListRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stocks", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[]`)
	})
	c := newTestClient(t, mux)

	records, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 0 || calls.Load() != 3 {
		t.Errorf("records = %d, calls = %d", len(records), calls.Load())
	}
}

func TestMutationsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stocks", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"status": 500, "error": "Internal Server Error", "message": "duplicate code"}`)
	})
	c := newTestClient(t, mux)

	_, err := c.Create(context.Background(), models.CreateDraft("NVDA"))
	var apiErr *errors.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != 500 || apiErr.Message != "duplicate code" {
		t.Errorf("unexpected APIError %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stocks/search", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "keyword required", http.StatusBadRequest)
	})
	c := newTestClient(t, mux)

	if _, err := c.Search(context.Background(), "nv"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestSearchCapsResults(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/stocks/search", func(w http.ResponseWriter, r *http.Request) {
		if kw := r.URL.Query().Get("keyword"); kw != "pu dong" {
			t.Errorf("keyword = %q", kw)
		}
		var out []map[string]any
		for i := 0; i < 15; i++ {
			out = append(out, map[string]any{"id": i, "code": "sh.60000" + string(rune('0'+i%10)), "name": "Pudong"})
		}
		_ = json.NewEncoder(w).Encode(out)
	})
	c := newTestClient(t, mux)

	results, err := c.Search(context.Background(), "pu dong")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != datasource.MaxSearchResults {
		t.Errorf("len = %d, want %d", len(results), datasource.MaxSearchResults)
	}
	if results[0].Code != "sh.600000" || results[0].Name != "Pudong" {
		t.Errorf("unexpected result %+v", results[0])
	}
}

func TestNewRejectsEmptyBaseURL(t *testing.T) {
	if _, err := New(DefaultConfig("  "), zerolog.Nop()); err == nil {
		t.Error("expected error for empty base url")
	}
}
