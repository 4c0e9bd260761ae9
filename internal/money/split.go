package money

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
)

var (
	// ErrNegativeTotal indicates a split of a negative amount was requested.
	ErrNegativeTotal = errors.New("cannot split a negative amount")

	// ErrNoWeights indicates a split with no recipients was requested.
	ErrNoWeights = errors.New("no weights to split across")

	// ErrNonPositiveWeight indicates one of the weights was zero or negative.
	ErrNonPositiveWeight = errors.New("weights must be positive")

	// ErrWeightOverflow indicates the sum of weights does not fit in 64 bits.
	ErrWeightOverflow = errors.New("sum of weights overflows")
)

// Split divides total across weights in proportion, so that the parts sum to total exactly.
//
// Each part starts at floor(total × w / Σw). The minor units left over are handed out one at a
// time using the largest-remainder method: parts with the largest fractional remainder get one
// extra unit first, ties going to the lower index.
func Split(total Money, weights []int64) ([]Money, error) {
	if total < 0 {
		return nil, ErrNegativeTotal
	}
	if len(weights) == 0 {
		return nil, ErrNoWeights
	}

	var weightSum uint64
	for i, w := range weights {
		if w <= 0 {
			return nil, fmt.Errorf("%w: weight %d at index %d", ErrNonPositiveWeight, w, i)
		}
		sum, carry := bits.Add64(weightSum, uint64(w), 0)
		if carry != 0 {
			return nil, ErrWeightOverflow
		}
		weightSum = sum
	}

	parts := make([]Money, len(weights))
	remainders := make([]uint64, len(weights))
	var allocated uint64

	for i, w := range weights {
		// w <= weightSum keeps the high word below the divisor, so Div64 cannot panic.
		hi, lo := bits.Mul64(uint64(total), uint64(w))
		quo, rem := bits.Div64(hi, lo, weightSum)
		parts[i] = Money(quo)
		remainders[i] = rem
		allocated += quo
	}

	residual := uint64(total) - allocated
	if residual == 0 {
		return parts, nil
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})

	// residual < len(weights) because every part lost less than one unit to flooring.
	for _, idx := range order[:residual] {
		parts[idx]++
	}

	return parts, nil
}
