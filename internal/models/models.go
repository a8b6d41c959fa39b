// Package models provides domain models for the watchlist application.
package models

import (
	"fmt"
	"strings"
)

// Strategy represents the trading intent attached to a watched instrument.
type Strategy string

const (
	StrategyWatch     Strategy = "WATCH"
	StrategyBuyReady  Strategy = "BUY_READY"
	StrategySellReady Strategy = "SELL_READY"
	StrategyHolding   Strategy = "HOLDING"
)

// Strategies lists every strategy in display order.
var Strategies = []Strategy{StrategyWatch, StrategyBuyReady, StrategySellReady, StrategyHolding}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyWatch, StrategyBuyReady, StrategySellReady, StrategyHolding:
		return true
	}
	return false
}

// Label returns a short human label for the strategy.
func (s Strategy) Label() string {
	switch s {
	case StrategyWatch:
		return "Watch"
	case StrategyBuyReady:
		return "Buy ready"
	case StrategySellReady:
		return "Sell ready"
	case StrategyHolding:
		return "Holding"
	default:
		return string(s)
	}
}

// ParseStrategy accepts "BUY_READY", "buy-ready", "buy ready" and similar spellings.
func ParseStrategy(s string) (Strategy, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	st := Strategy(norm)
	if !st.Valid() {
		return "", fmt.Errorf("unknown strategy %q", s)
	}
	return st, nil
}

// Conviction bounds.
const (
	MinConviction     = 1
	MaxConviction     = 5
	DefaultConviction = 3
)

// SearchResult is a typeahead hit returned by a data source.
type SearchResult struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}
