// Package utils provides shared utility functions.
package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatPrice formats a price with two decimal places and thousands separators.
func FormatPrice(price decimal.Decimal) string {
	price = price.Round(2)
	negative := price.IsNegative()
	str := price.Abs().StringFixed(2)

	intPart, decPart, _ := strings.Cut(str, ".")
	result := formatGrouped(intPart) + "." + decPart
	if negative {
		result = "-" + result
	}
	return result
}

// formatGrouped inserts a comma between every group of three digits.
func formatGrouped(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value decimal.Decimal) string {
	sign := ""
	if value.IsPositive() {
		sign = "+"
	}
	return sign + value.StringFixed(2) + "%"
}

// FormatPlainPercent formats a percentage without a forced sign.
func FormatPlainPercent(value decimal.Decimal) string {
	return value.StringFixed(2) + "%"
}

// TruncateString truncates a string to max runes with an ellipsis.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
