package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stockwatch/internal/config"
	"stockwatch/internal/errors"
	"stockwatch/internal/models"
	"stockwatch/internal/store"
	"stockwatch/internal/watchlist"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Source.Mode = config.SourceLocal
	cfg.Storage.Backend = config.StorageSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "watchlist.db")
	cfg.Quotes.Enabled = false
	cfg.UI.ColorEnabled = false
	return cfg
}

func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(cfg, zerolog.Nop())
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func listJSON(t *testing.T, cfg *config.Config) []recordView {
	t.Helper()
	out, err := run(t, cfg, "list", "--json")
	if err != nil {
		t.Fatalf("list failed: %v\n%s", err, out)
	}
	var views []recordView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("list output is not JSON: %v\n%s", err, out)
	}
	return views
}

func TestCommandsPersistAcrossRuns(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "add", "NVDA", "amd")
	if err != nil {
		t.Fatalf("add failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Added AMD") {
		t.Errorf("add output = %q", out)
	}

	views := listJSON(t, cfg)
	if len(views) != 2 || views[0].InstrumentCode != "AMD" || views[1].InstrumentCode != "NVDA" {
		t.Fatalf("list = %+v", views)
	}
	if views[1].DisplayName != "NVIDIA Corporation" || views[1].Row != 2 || views[1].State != "synced" {
		t.Errorf("NVDA view = %+v", views[1])
	}

	out, err = run(t, cfg, "set", "2", "--strategy", "buy-ready", "--target", "500", "--conviction", "5")
	if err != nil {
		t.Fatalf("set failed: %v\n%s", err, out)
	}

	views = listJSON(t, cfg)
	nvda := views[1]
	if nvda.Strategy != models.StrategyBuyReady || nvda.TargetPrice != "500" || nvda.Conviction != 5 {
		t.Errorf("set not persisted: %+v", nvda)
	}

	if out, err := run(t, cfg, "rm", "AMD"); err != nil {
		t.Fatalf("rm failed: %v\n%s", err, out)
	}
	views = listJSON(t, cfg)
	if len(views) != 1 || views[0].InstrumentCode != "NVDA" || views[0].Row != 1 {
		t.Errorf("after rm = %+v", views)
	}
}

func TestSetErrors(t *testing.T) {
	cfg := testConfig(t)
	if _, err := run(t, cfg, "add", "NVDA"); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, cfg, "set", "1", "--conviction", "9")
	var ve *errors.ValidationError
	if !errors.As(err, &ve) || ve.Field != "conviction" {
		t.Errorf("set --conviction 9 = %v, want conviction ValidationError", err)
	}

	if _, err := run(t, cfg, "set", "1"); err == nil {
		t.Error("set without flags should fail")
	}

	_, err = run(t, cfg, "set", "7", "--notes", "x")
	if !errors.Is(err, errors.ErrRecordNotFound) {
		t.Errorf("set on missing row = %v, want ErrRecordNotFound", err)
	}
}

func TestSearchCommand(t *testing.T) {
	cfg := testConfig(t)

	_, err := run(t, cfg, "search", "N")
	if !errors.Is(err, errors.ErrKeywordTooShort) {
		t.Errorf("search N = %v, want ErrKeywordTooShort", err)
	}

	out, err := run(t, cfg, "search", "nvid", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var results []models.SearchResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("search output: %v\n%s", err, out)
	}
	if len(results) != 1 || results[0].Code != "NVDA" {
		t.Errorf("results = %+v", results)
	}
}

func TestShellSession(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = config.StorageMemory
	app := &App{Config: cfg, Logger: zerolog.Nop()}
	defer app.Close()

	ctx := context.Background()
	if err := app.load(ctx); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	sh := &shell{app: app, out: newOutputTo(&buf, false, false)}
	exec := func(line string) bool {
		t.Helper()
		quit, err := sh.exec(ctx, line)
		if err != nil {
			t.Fatalf("%q failed: %v", line, err)
		}
		return quit
	}

	exec("add NVDA")
	exec("edit 1 target 500")
	exec("edit  1   notes breakout  above 480 ")

	entry, _ := app.Watchlist.At(1)
	if _, dirty := entry.State.(watchlist.Dirty); !dirty {
		t.Fatalf("state after edit = %s, want dirty", entry.State.Name())
	}
	if entry.Record.Notes != "breakout  above 480 " {
		t.Errorf("notes = %q", entry.Record.Notes)
	}

	if exec("quit") {
		t.Fatal("quit with unsaved changes should ask for confirmation")
	}
	exec("save 1")

	entry, _ = app.Watchlist.At(1)
	if entry.State.Pending() || entry.Record.TargetPrice != "500" {
		t.Errorf("after save = %+v (%s)", entry.Record, entry.State.Name())
	}

	if _, err := sh.exec(ctx, "edit 1 conviction x"); err == nil {
		t.Error("expected conviction error")
	}
	if _, err := sh.exec(ctx, "frobnicate"); err == nil {
		t.Error("expected unknown command error")
	}

	exec("refresh")
	exec("status")
	if !strings.Contains(buf.String(), "Records:      1 (0 unsaved)") {
		t.Errorf("status output missing:\n%s", buf.String())
	}

	exec("rm NVDA")
	if app.Watchlist.Len() != 0 {
		t.Errorf("Len = %d after rm", app.Watchlist.Len())
	}
	if !exec("quit") {
		t.Error("quit should end the session")
	}
}

func TestParseField(t *testing.T) {
	tests := []struct {
		field   string
		value   string
		wantErr bool
		check   func(models.PlanPatch) bool
	}{
		{"strategy", "sell ready", false, func(p models.PlanPatch) bool { return *p.Strategy == models.StrategySellReady }},
		{"strategy", "moon", true, nil},
		{"target", " 500.5 ", false, func(p models.PlanPatch) bool { return *p.TargetPrice == "500.5" }},
		{"stop", "", false, func(p models.PlanPatch) bool { return *p.StopLoss == "" }},
		{"conviction", "4", false, func(p models.PlanPatch) bool { return *p.Conviction == 4 }},
		{"conviction", "0", true, nil},
		{"confidence", "2", false, func(p models.PlanPatch) bool { return *p.Conviction == 2 }},
		{"notes", "  spaced  ", false, func(p models.PlanPatch) bool { return *p.Notes == "  spaced  " }},
		{"price", "1", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.field+"="+tt.value, func(t *testing.T) {
			patch, err := parseField(tt.field, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.check(patch) {
				t.Errorf("unexpected patch %+v", patch)
			}
		})
	}
}

func TestRenderWatchlist(t *testing.T) {
	entries := []watchlist.Entry{
		{
			Record: models.PlanRecord{
				ID: "1", InstrumentCode: "NVDA", DisplayName: "NVIDIA Corporation",
				CurrentPrice: decimal.NewFromInt(100), ChangePercent: decimal.RequireFromString("1.5"),
				Strategy: models.StrategyBuyReady, TargetPrice: "120", StopLoss: "90", Conviction: 4,
			},
			State: watchlist.Synced{},
		},
		{
			Record: models.PlanRecord{
				ID: "2", InstrumentCode: "AMD", CurrentPrice: decimal.NewFromInt(50),
				Strategy: models.StrategyWatch, TargetPrice: "abc", Conviction: 3,
			},
			State: watchlist.Dirty{},
		},
	}

	var buf bytes.Buffer
	renderWatchlist(newOutputTo(&buf, false, false), entries)
	text := buf.String()

	for _, want := range []string{"CODE", "NVDA", "100.00", "+1.50%", "Buy ready", "1 : 2.0", "+20.00%", "★★★★☆", "unsaved"} {
		if !strings.Contains(text, want) {
			t.Errorf("table missing %q:\n%s", want, text)
		}
	}

	buf.Reset()
	renderWatchlist(newOutputTo(&buf, true, false), entries)
	var views []recordView
	if err := json.Unmarshal(buf.Bytes(), &views); err != nil {
		t.Fatal(err)
	}
	if views[0].Metrics.RiskReward != "1 : 2.0" || views[1].Metrics.TargetDistance != nil {
		t.Errorf("metrics = %+v / %+v", views[0].Metrics, views[1].Metrics)
	}
}

func TestFormatConviction(t *testing.T) {
	if got := FormatConviction(3); got != "★★★☆☆" {
		t.Errorf("FormatConviction(3) = %q", got)
	}
	if got := FormatConviction(7); got != "7" {
		t.Errorf("FormatConviction(7) = %q", got)
	}
}

func TestDoctorCommand(t *testing.T) {
	cfg := testConfig(t)

	out, err := run(t, cfg, "doctor", "--json")
	if err != nil {
		t.Fatalf("doctor failed: %v\n%s", err, out)
	}
	var health struct {
		Status     string `json:"status"`
		Components []struct {
			Name string `json:"name"`
		} `json:"components"`
	}
	if err := json.Unmarshal([]byte(out), &health); err != nil {
		t.Fatalf("doctor output: %v\n%s", err, out)
	}
	if len(health.Components) != 2 || health.Components[0].Name != "source" || health.Components[1].Name != "storage" {
		t.Errorf("components = %+v", health.Components)
	}
}

func TestCorruptSlotIsNotOverwritten(t *testing.T) {
	cfg := testConfig(t)
	corrupt := []byte(`[{"id":"a1","instrumentCode":"NVDA"`)

	slot, err := store.NewSQLiteSlot(cfg.Storage.Path, cfg.Storage.Key)
	if err != nil {
		t.Fatal(err)
	}
	if err := slot.Save(context.Background(), corrupt); err != nil {
		t.Fatal(err)
	}
	slot.Close()

	if out, err := run(t, cfg, "list"); err == nil {
		t.Fatalf("list on a corrupt slot should fail, got:\n%s", out)
	}
	if _, err := run(t, cfg, "add", "AMD"); err == nil {
		t.Fatal("add on a corrupt slot should fail")
	}

	slot, err = store.NewSQLiteSlot(cfg.Storage.Path, cfg.Storage.Key)
	if err != nil {
		t.Fatal(err)
	}
	defer slot.Close()
	data, ok, err := slot.Load(context.Background())
	if err != nil || !ok || !bytes.Equal(data, corrupt) {
		t.Errorf("slot = %q (ok %v, err %v), want the original bytes", data, ok, err)
	}
}

func TestAfterTokens(t *testing.T) {
	tests := []struct {
		line string
		n    int
		want string
	}{
		{"edit 1 notes a  b", 3, "a  b"},
		{"  edit\t1 notes   spaced  out ", 3, "spaced  out "},
		{"edit 1 notes", 3, ""},
		{"edit 1 target 500", 3, "500"},
		{"edit", 3, ""},
	}

	for _, tt := range tests {
		if got := afterTokens(tt.line, tt.n); got != tt.want {
			t.Errorf("afterTokens(%q, %d) = %q, want %q", tt.line, tt.n, got, tt.want)
		}
	}
}

func TestUnsavedIgnoresRolledBackRecords(t *testing.T) {
	base := models.DefaultPlanFields()
	rolledBack := models.CreateDraft("NVDA").WithFields(base)
	rolledBack.ID = "1"
	edited := rolledBack.WithFields(models.PlanPatch{Notes: strPtr("x")}.Apply(base))
	edited.ID = "2"

	entries := []watchlist.Entry{
		{Record: rolledBack, State: watchlist.Dirty{Baseline: base}},
		{Record: edited, State: watchlist.Dirty{Baseline: base}},
		{Record: rolledBack, State: watchlist.Synced{}},
	}
	if n := unsaved(entries); n != 1 {
		t.Errorf("unsaved = %d, want 1", n)
	}

	out := newOutputTo(&bytes.Buffer{}, false, false)
	for i, want := range []string{"save failed", "unsaved", ""} {
		if got := FormatState(out, entries[i]); got != want {
			t.Errorf("FormatState(entries[%d]) = %q, want %q", i, got, want)
		}
	}
}

func strPtr(s string) *string { return &s }
