package rest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"stockwatch/internal/metrics"
	"stockwatch/internal/models"
)

// wireID accepts ids encoded as JSON numbers or strings.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid record id %s: %w", b, err)
	}
	*id = wireID(n.String())
	return nil
}

// wireRecord is the backend's view of a watched stock.
type wireRecord struct {
	ID            wireID              `json:"id"`
	Code          string              `json:"code"`
	Symbol        string              `json:"symbol"`
	Name          string              `json:"name"`
	CurrentPrice  decimal.NullDecimal `json:"currentPrice"`
	ChangePercent decimal.NullDecimal `json:"changePercent"`
	Strategy      string              `json:"strategy"`
	TargetPrice   decimal.NullDecimal `json:"targetPrice"`
	StopLoss      decimal.NullDecimal `json:"stopLoss"`
	Confidence    *int                `json:"confidence"`
	Notes         *string             `json:"notes"`
}

// wirePayload is the body of create and update calls. Price levels the user
// left empty or unparseable are sent as null.
type wirePayload struct {
	Code        string       `json:"code,omitempty"`
	Symbol      string       `json:"symbol,omitempty"`
	Strategy    string       `json:"strategy"`
	TargetPrice *json.Number `json:"targetPrice"`
	StopLoss    *json.Number `json:"stopLoss"`
	Confidence  int          `json:"confidence"`
	Notes       string       `json:"notes"`
}

func (w wireRecord) toRecord() models.PlanRecord {
	r := models.PlanRecord{
		ID:             string(w.ID),
		InstrumentCode: w.Code,
		Symbol:         w.Symbol,
		DisplayName:    w.Name,
		CurrentPrice:   decimal.Zero,
		ChangePercent:  decimal.Zero,
		Strategy:       models.StrategyWatch,
		Conviction:     models.DefaultConviction,
	}
	if r.Symbol == "" {
		r.Symbol = models.SymbolOf(r.InstrumentCode)
	}
	if w.CurrentPrice.Valid && !w.CurrentPrice.Decimal.IsNegative() {
		r.CurrentPrice = w.CurrentPrice.Decimal
	}
	if w.ChangePercent.Valid {
		r.ChangePercent = w.ChangePercent.Decimal
	}
	if s, err := models.ParseStrategy(w.Strategy); err == nil {
		r.Strategy = s
	}
	if w.TargetPrice.Valid {
		r.TargetPrice = w.TargetPrice.Decimal.String()
	}
	if w.StopLoss.Valid {
		r.StopLoss = w.StopLoss.Decimal.String()
	}
	if w.Confidence != nil && *w.Confidence >= models.MinConviction && *w.Confidence <= models.MaxConviction {
		r.Conviction = *w.Confidence
	}
	if w.Notes != nil {
		r.Notes = *w.Notes
	}
	return r
}

func newPayload(code string, f models.PlanFields) wirePayload {
	p := wirePayload{
		Strategy:    string(f.Strategy),
		TargetPrice: priceNumber(f.TargetPrice),
		StopLoss:    priceNumber(f.StopLoss),
		Confidence:  f.Conviction,
		Notes:       f.Notes,
	}
	if code != "" {
		p.Code = code
		p.Symbol = models.SymbolOf(code)
	}
	return p
}

func priceNumber(text string) *json.Number {
	d, ok := metrics.ParsePrice(text)
	if !ok {
		return nil
	}
	n := json.Number(d.String())
	return &n
}
