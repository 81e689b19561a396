package strategy

import (
	"github.com/shopspring/decimal"

	"market_maker/internal/core"
)

// sma returns the simple moving average of the last `period` closes in bars.
// ok is false when there is not enough history.
func sma(bars []core.Bar, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(bars) < period {
		return decimal.Zero, false
	}
	window := bars[len(bars)-period:]
	var sum decimal.Decimal
	for _, b := range window {
		sum = sum.Add(b.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), true
}

// atr computes the average true range over `period` bars using a simple
// average of true range rather than Wilder's smoothing.
func atr(bars []core.Bar, period int) (decimal.Decimal, bool) {
	if period <= 0 || len(bars) < period+1 {
		return decimal.Zero, false
	}
	start := len(bars) - period
	var trSum decimal.Decimal
	count := 0
	for i := start; i < len(bars); i++ {
		cur := bars[i]
		prev := bars[i-1]
		tr := trueRange(cur, prev)
		trSum = trSum.Add(tr)
		count++
	}
	if count == 0 {
		return decimal.Zero, false
	}
	return trSum.Div(decimal.NewFromInt(int64(count))), true
}

func trueRange(cur, prev core.Bar) decimal.Decimal {
	tr1 := cur.High.Sub(cur.Low)
	tr2 := cur.High.Sub(prev.Close).Abs()
	tr3 := cur.Low.Sub(prev.Close).Abs()
	tr := tr1
	if tr2.GreaterThan(tr) {
		tr = tr2
	}
	if tr3.GreaterThan(tr) {
		tr = tr3
	}
	return tr
}
