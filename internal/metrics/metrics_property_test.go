package metrics

import (
	"math"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

// cents converts an integer amount of cents into price text ("12345" -> "123.45").
func cents(v int64) string {
	return decimal.New(v, -2).String()
}

// For any positive price and parseable target/stop distinct from it, the
// rendered ratio is |target-current|/|current-stop| rounded to one decimal.
func TestProperty_RiskRewardMatchesFormula(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	priceGen := gen.Int64Range(1, 10_000_000)

	properties.Property("ratio equals rounded reward over risk", prop.ForAll(
		func(c, tg, st int64) bool {
			if tg == c || st == c {
				return true
			}
			got, ok := RiskReward(decimal.New(c, -2), cents(tg), cents(st))
			if !ok {
				t.Logf("unexpected absent ratio for c=%d t=%d s=%d", c, tg, st)
				return false
			}
			if !strings.HasPrefix(got, "1 : ") {
				return false
			}
			parsed, err := decimal.NewFromString(strings.TrimPrefix(got, "1 : "))
			if err != nil {
				return false
			}
			if strings.Count(got, ".") != 1 {
				return false
			}
			exact := math.Abs(float64(tg-c)) / math.Abs(float64(c-st))
			value, _ := parsed.Float64()
			return math.Abs(value-exact) <= 0.05+1e-9
		},
		priceGen,
		priceGen,
		priceGen,
	))

	properties.Property("ratio is absent when stop equals current", prop.ForAll(
		func(c, tg int64) bool {
			_, ok := RiskReward(decimal.New(c, -2), cents(tg), cents(c))
			return !ok
		},
		priceGen,
		priceGen,
	))

	properties.Property("ratio is absent when target equals current", prop.ForAll(
		func(c, st int64) bool {
			_, ok := RiskReward(decimal.New(c, -2), cents(c), cents(st))
			return !ok
		},
		priceGen,
		priceGen,
	))

	properties.Property("ratio is absent for unparseable text", prop.ForAll(
		func(c int64, junk string) bool {
			if _, ok := ParsePrice(junk); ok {
				return true
			}
			_, okTarget := RiskReward(decimal.New(c, -2), junk, "1")
			_, okStop := RiskReward(decimal.New(c, -2), "1", junk)
			return !okTarget && !okStop
		},
		priceGen,
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// targetDistance keeps the sign of target-current and is absent at a zero price.
func TestProperty_TargetDistanceSign(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	priceGen := gen.Int64Range(1, 10_000_000)

	properties.Property("sign(distance) == sign(target-current)", prop.ForAll(
		func(c, tg int64) bool {
			d, ok := TargetDistance(decimal.New(c, -2), cents(tg))
			if !ok {
				return false
			}
			want := 0
			switch {
			case tg > c:
				want = 1
			case tg < c:
				want = -1
			}
			return d.Sign() == want
		},
		priceGen,
		priceGen,
	))

	properties.Property("absent at zero price", prop.ForAll(
		func(tg int64) bool {
			_, ok := TargetDistance(decimal.Zero, cents(tg))
			return !ok
		},
		priceGen,
	))

	properties.TestingRun(t)
}
