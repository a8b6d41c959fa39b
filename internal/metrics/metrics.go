// Package metrics derives trade-quality figures from a live price and a trading plan.
//
// Every function is pure and fails closed: unparseable or degenerate input
// yields an absent result (ok == false), never an error.
package metrics

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParsePrice parses user-typed price text. Surrounding whitespace and a
// trailing decimal point ("12.") are accepted.
func ParsePrice(text string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" || s == "+" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// RiskRewardRatio returns |target-current| / |current-stop|.
// It is absent when either text fails to parse or when target or stop equal current.
func RiskRewardRatio(current decimal.Decimal, targetText, stopText string) (decimal.Decimal, bool) {
	target, ok := ParsePrice(targetText)
	if !ok {
		return decimal.Zero, false
	}
	stop, ok := ParsePrice(stopText)
	if !ok {
		return decimal.Zero, false
	}
	if target.Equal(current) || stop.Equal(current) {
		return decimal.Zero, false
	}

	reward := target.Sub(current).Abs()
	risk := current.Sub(stop).Abs()
	if risk.IsZero() {
		return decimal.Zero, false
	}
	return reward.Div(risk), true
}

// RiskReward renders the risk/reward ratio as "1 : r" with r rounded to one decimal place.
func RiskReward(current decimal.Decimal, targetText, stopText string) (string, bool) {
	ratio, ok := RiskRewardRatio(current, targetText, stopText)
	if !ok {
		return "", false
	}
	return "1 : " + ratio.StringFixed(1), true
}

// TargetDistance returns the percentage move from current to target.
// Positive means upside. Absent for empty or unparseable text and for a zero price.
func TargetDistance(current decimal.Decimal, targetText string) (decimal.Decimal, bool) {
	if current.IsZero() {
		return decimal.Zero, false
	}
	target, ok := ParsePrice(targetText)
	if !ok {
		return decimal.Zero, false
	}
	return target.Sub(current).Div(current).Mul(hundred), true
}

// FormatDistance renders a distance with two decimals and an explicit sign for upside.
func FormatDistance(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.Round(2).IsPositive() {
		s = "+" + s
	}
	return s + "%"
}

// Summary bundles the derived figures for one record.
type Summary struct {
	RiskReward     string           `json:"riskReward,omitempty"`
	TargetDistance *decimal.Decimal `json:"targetDistance,omitempty"`
}

// Summarize computes every metric for a price and plan text.
func Summarize(current decimal.Decimal, targetText, stopText string) Summary {
	var s Summary
	if rr, ok := RiskReward(current, targetText, stopText); ok {
		s.RiskReward = rr
	}
	if d, ok := TargetDistance(current, targetText); ok {
		s.TargetDistance = &d
	}
	return s
}
