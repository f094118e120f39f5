// Package trading provides order sizing calculation utilities.
package trading

import (
	"math"

	"github.com/shopspring/decimal"
)

var decOne = decimal.NewFromInt(1)

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// TruncateAmount 截断到 8 位小数，避免交易所拒绝超精度数量。
func TruncateAmount(amount float64) float64 {
	return decToFloat(decFromFloat(amount).Truncate(8))
}

// SplitNotional splits a gross budget into spendable notional and the
// embedded fee so that spendable + spendable*feeRate == gross.
func SplitNotional(gross, feeRate float64) (spendable, fee float64) {
	if gross <= 0 || feeRate < 0 {
		return 0, 0
	}
	g := decFromFloat(gross)
	s := g.Div(decOne.Add(decFromFloat(feeRate)))
	return decToFloat(s), decToFloat(g.Sub(s))
}

// EntryAmount converts a gross budget at a given price into a buy quantity,
// net of the embedded fee, truncated to exchange precision.
func EntryAmount(gross, price, feeRate float64) (amount, fee float64) {
	if price <= 0 {
		return 0, 0
	}
	spendable, fee := SplitNotional(gross, feeRate)
	amount = TruncateAmount(decToFloat(decFromFloat(spendable).Div(decFromFloat(price))))
	return amount, fee
}
