package ranking

import (
	"math"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const gapPrecision = 3

// gap is secs-ref rounded to the millisecond, nil when either side has no
// valid time.
func gap(secs, ref float64) *float64 {
	if math.IsInf(secs, 0) || math.IsInf(ref, 0) {
		return nil
	}
	v, _ := decimal.NewFromFloat(secs).Sub(decimal.NewFromFloat(ref)).Round(gapPrecision).Float64()
	return &v
}

func zeroGap(secs float64) *float64 {
	if math.IsInf(secs, 0) {
		return nil
	}
	return lo.ToPtr(0.0)
}
