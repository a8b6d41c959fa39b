package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DraftIDPrefix marks ids generated locally for records the data source has not confirmed yet.
const DraftIDPrefix = "draft-"

// exchangePrefixes are the lower-case market prefixes of exchange-qualified codes (sh.600000).
var exchangePrefixes = map[string]bool{"sh": true, "sz": true, "bj": true}

// PlanRecord is one tracked instrument together with its trading plan.
//
// CurrentPrice, ChangePercent and DisplayName are server-owned: every refresh
// overwrites them. Strategy, TargetPrice, StopLoss, Conviction and Notes are
// user-owned. TargetPrice and StopLoss hold the raw text the user typed.
type PlanRecord struct {
	ID             string          `json:"id"`
	InstrumentCode string          `json:"code"`
	Symbol         string          `json:"symbol"`
	DisplayName    string          `json:"name,omitempty"`
	CurrentPrice   decimal.Decimal `json:"currentPrice"`
	ChangePercent  decimal.Decimal `json:"changePercent"`

	Strategy    Strategy `json:"strategy"`
	TargetPrice string   `json:"targetPrice"`
	StopLoss    string   `json:"stopLoss"`
	Conviction  int      `json:"conviction"`
	Notes       string   `json:"notes"`
}

// PlanFields holds the user-owned part of a PlanRecord.
type PlanFields struct {
	Strategy    Strategy `json:"strategy"`
	TargetPrice string   `json:"targetPrice"`
	StopLoss    string   `json:"stopLoss"`
	Conviction  int      `json:"conviction"`
	Notes       string   `json:"notes"`
}

// PlanPatch is a partial edit of user-owned fields. Nil fields are left alone.
type PlanPatch struct {
	Strategy    *Strategy
	TargetPrice *string
	StopLoss    *string
	Conviction  *int
	Notes       *string
}

// DefaultPlanFields returns the plan every new record starts with.
func DefaultPlanFields() PlanFields {
	return PlanFields{
		Strategy:   StrategyWatch,
		Conviction: DefaultConviction,
	}
}

// CreateDraft builds a new record for code with zeroed prices and default plan fields.
// The record carries a draft id until the data source assigns one.
func CreateDraft(code string) PlanRecord {
	r := PlanRecord{
		ID:             DraftIDPrefix + uuid.NewString(),
		InstrumentCode: code,
		Symbol:         SymbolOf(code),
		CurrentPrice:   decimal.Zero,
		ChangePercent:  decimal.Zero,
	}
	return r.WithFields(DefaultPlanFields())
}

// IsDraftID reports whether id was generated by CreateDraft.
func IsDraftID(id string) bool {
	return strings.HasPrefix(id, DraftIDPrefix)
}

// Fields returns the user-owned fields of r.
func (r PlanRecord) Fields() PlanFields {
	return PlanFields{
		Strategy:    r.Strategy,
		TargetPrice: r.TargetPrice,
		StopLoss:    r.StopLoss,
		Conviction:  r.Conviction,
		Notes:       r.Notes,
	}
}

// WithFields returns a copy of r with its user-owned fields replaced by f.
func (r PlanRecord) WithFields(f PlanFields) PlanRecord {
	r.Strategy = f.Strategy
	r.TargetPrice = f.TargetPrice
	r.StopLoss = f.StopLoss
	r.Conviction = f.Conviction
	r.Notes = f.Notes
	return r
}

// WithServerFields returns a copy of r with its server-owned fields taken from server.
// Negative prices are clamped to zero.
func (r PlanRecord) WithServerFields(server PlanRecord) PlanRecord {
	r.DisplayName = server.DisplayName
	r.CurrentPrice = server.CurrentPrice
	if r.CurrentPrice.IsNegative() {
		r.CurrentPrice = decimal.Zero
	}
	r.ChangePercent = server.ChangePercent
	return r
}

// MergeServerSnapshot combines a locally held record with a server snapshot of it.
// Server-owned fields always come from server. User-owned fields come from local
// while an edit is pending and from server otherwise.
func MergeServerSnapshot(local, server PlanRecord, pending bool) PlanRecord {
	merged := local.WithServerFields(server)
	if !pending {
		merged = merged.WithFields(server.Fields())
	}
	if merged.Symbol == "" {
		merged.Symbol = server.Symbol
	}
	return merged
}

// Validate checks the user-owned fields. Price text is never validated: metrics
// fail closed on unparseable input instead.
func (f PlanFields) Validate() error {
	if !f.Strategy.Valid() {
		return fmt.Errorf("unknown strategy %q", f.Strategy)
	}
	if f.Conviction < MinConviction || f.Conviction > MaxConviction {
		return fmt.Errorf("conviction must be between %d and %d, got %d", MinConviction, MaxConviction, f.Conviction)
	}
	return nil
}

// Apply returns f with every non-nil field of p applied.
func (p PlanPatch) Apply(f PlanFields) PlanFields {
	if p.Strategy != nil {
		f.Strategy = *p.Strategy
	}
	if p.TargetPrice != nil {
		f.TargetPrice = *p.TargetPrice
	}
	if p.StopLoss != nil {
		f.StopLoss = *p.StopLoss
	}
	if p.Conviction != nil {
		f.Conviction = *p.Conviction
	}
	if p.Notes != nil {
		f.Notes = *p.Notes
	}
	return f
}

// IsEmpty reports whether the patch changes nothing.
func (p PlanPatch) IsEmpty() bool {
	return p.Strategy == nil && p.TargetPrice == nil && p.StopLoss == nil && p.Conviction == nil && p.Notes == nil
}

// NormalizeCode trims and upper-cases an instrument code. Known exchange
// prefixes stay lower-case, so " SH.600000" becomes "sh.600000".
func NormalizeCode(raw string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", fmt.Errorf("instrument code is empty")
	}
	if strings.ContainsAny(code, " \t\r\n") {
		return "", fmt.Errorf("instrument code %q contains whitespace", raw)
	}
	if prefix, rest, ok := strings.Cut(code, "."); ok && exchangePrefixes[strings.ToLower(prefix)] {
		if rest == "" {
			return "", fmt.Errorf("instrument code %q has no symbol", raw)
		}
		return strings.ToLower(prefix) + "." + strings.ToUpper(rest), nil
	}
	return strings.ToUpper(code), nil
}

// SymbolOf returns the bare ticker of an instrument code ("sh.600000" -> "600000").
func SymbolOf(code string) string {
	if prefix, rest, ok := strings.Cut(code, "."); ok && exchangePrefixes[strings.ToLower(prefix)] {
		return rest
	}
	return code
}
