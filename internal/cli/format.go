package cli

import (
	"fmt"
	"strconv"
	"strings"

	"stockwatch/internal/errors"
	"stockwatch/internal/metrics"
	"stockwatch/internal/models"
	"stockwatch/internal/watchlist"
	"stockwatch/pkg/utils"
)

// recordView is one watchlist row as emitted by --json.
type recordView struct {
	Row int `json:"row"`
	models.PlanRecord
	State   string          `json:"state"`
	Metrics metrics.Summary `json:"metrics"`
}

func viewsOf(entries []watchlist.Entry) []recordView {
	views := make([]recordView, len(entries))
	for i, e := range entries {
		views[i] = recordView{
			Row:        i + 1,
			PlanRecord: e.Record,
			State:      e.State.Name(),
			Metrics:    metrics.Summarize(e.Record.CurrentPrice, e.Record.TargetPrice, e.Record.StopLoss),
		}
	}
	return views
}

// renderWatchlist prints the watchlist table with computed metrics.
func renderWatchlist(out *Output, entries []watchlist.Entry) {
	if out.IsJSON() {
		_ = out.JSON(viewsOf(entries))
		return
	}
	if len(entries) == 0 {
		out.Dim("Watchlist is empty. Add an instrument with 'stockwatch add <code>'.")
		return
	}

	table := NewTable(out, "#", "CODE", "NAME", "PRICE", "CHG", "STRATEGY", "TARGET", "STOP", "R:R", "TO TARGET", "CONV", "NOTES", "")
	for i, e := range entries {
		r := e.Record
		summary := metrics.Summarize(r.CurrentPrice, r.TargetPrice, r.StopLoss)

		distance := "-"
		if summary.TargetDistance != nil {
			distance = out.ColoredString(out.ChangeColor(*summary.TargetDistance), metrics.FormatDistance(*summary.TargetDistance))
		}
		rr := summary.RiskReward
		if rr == "" {
			rr = "-"
		}

		table.AddRow(
			strconv.Itoa(i+1),
			r.InstrumentCode,
			utils.TruncateString(r.DisplayName, 24),
			utils.FormatPrice(r.CurrentPrice),
			out.FormatPercent(r.ChangePercent),
			FormatStrategy(out, r.Strategy),
			orDash(r.TargetPrice),
			orDash(r.StopLoss),
			rr,
			distance,
			FormatConviction(r.Conviction),
			utils.TruncateString(r.Notes, 30),
			FormatState(out, e),
		)
	}
	table.Render()
}

// renderRecord prints a single entry.
func renderRecord(out *Output, row int, e watchlist.Entry) {
	if out.IsJSON() {
		v := viewsOf([]watchlist.Entry{e})[0]
		v.Row = row
		_ = out.JSON(v)
		return
	}
	r := e.Record
	summary := metrics.Summarize(r.CurrentPrice, r.TargetPrice, r.StopLoss)

	out.Bold("%s %s", r.InstrumentCode, r.DisplayName)
	out.Printf("  Price:      %s (%s)\n", utils.FormatPrice(r.CurrentPrice), out.FormatPercent(r.ChangePercent))
	out.Printf("  Strategy:   %s\n", FormatStrategy(out, r.Strategy))
	out.Printf("  Target:     %s\n", orDash(r.TargetPrice))
	out.Printf("  Stop:       %s\n", orDash(r.StopLoss))
	if summary.RiskReward != "" {
		out.Printf("  R:R:        %s\n", summary.RiskReward)
	}
	if summary.TargetDistance != nil {
		out.Printf("  To target:  %s\n", metrics.FormatDistance(*summary.TargetDistance))
	}
	out.Printf("  Conviction: %s\n", FormatConviction(r.Conviction))
	if r.Notes != "" {
		out.Printf("  Notes:      %s\n", r.Notes)
	}
	if s := FormatState(out, e); s != "" {
		out.Printf("  State:      %s\n", s)
	}
}

func renderSearch(out *Output, results []models.SearchResult) {
	if out.IsJSON() {
		if results == nil {
			results = []models.SearchResult{}
		}
		_ = out.JSON(results)
		return
	}
	if len(results) == 0 {
		out.Dim("No matches")
		return
	}
	table := NewTable(out, "CODE", "SYMBOL", "NAME")
	for _, r := range results {
		table.AddRow(r.Code, r.Symbol, r.Name)
	}
	table.Render()
}

// FormatConviction renders a 1-5 conviction as stars.
func FormatConviction(n int) string {
	if n < models.MinConviction || n > models.MaxConviction {
		return strconv.Itoa(n)
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", models.MaxConviction-n)
}

// FormatStrategy renders a strategy label in its color.
func FormatStrategy(out *Output, s models.Strategy) string {
	switch s {
	case models.StrategyBuyReady:
		return out.Green(s.Label())
	case models.StrategySellReady:
		return out.Red(s.Label())
	case models.StrategyHolding:
		return out.Cyan(s.Label())
	default:
		return out.DimText(s.Label())
	}
}

// FormatState renders the lifecycle marker of an entry. Synced entries have none.
// A dirty entry still equal to its baseline is one whose save was rolled back.
func FormatState(out *Output, e watchlist.Entry) string {
	switch e.State.(type) {
	case watchlist.Draft:
		return out.DimText("adding")
	case watchlist.Dirty:
		if !e.Unsaved() {
			return out.Red("save failed")
		}
		return out.Yellow("unsaved")
	case watchlist.Saving:
		return out.DimText("saving")
	default:
		return ""
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// fieldNames lists the editable fields accepted by parseField.
var fieldNames = []string{"strategy", "target", "stop", "conviction", "notes"}

// parseField turns a field name and raw value into a patch.
func parseField(field, value string) (models.PlanPatch, error) {
	var patch models.PlanPatch
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "strategy":
		st, err := models.ParseStrategy(value)
		if err != nil {
			return patch, errors.NewValidationError("strategy", value, err.Error())
		}
		patch.Strategy = &st
	case "target", "target_price":
		v := strings.TrimSpace(value)
		patch.TargetPrice = &v
	case "stop", "stop_loss", "sl":
		v := strings.TrimSpace(value)
		patch.StopLoss = &v
	case "conviction", "confidence":
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < models.MinConviction || n > models.MaxConviction {
			return patch, errors.NewValidationError("conviction", value,
				fmt.Sprintf("must be a whole number from %d to %d", models.MinConviction, models.MaxConviction))
		}
		patch.Conviction = &n
	case "notes", "note":
		patch.Notes = &value
	default:
		return patch, fmt.Errorf("unknown field %q (want one of %s)", field, strings.Join(fieldNames, ", "))
	}
	return patch, nil
}
