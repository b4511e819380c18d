package playlist

import "math"

// The functions in this file place playlist entries on a real-valued line.
// Only the relative order of values matters.

// AppendOrders returns n orders following max, starting at the next whole
// number. An empty playlist passes max 0 and starts at 1.
func AppendOrders(max float64, n int) []float64 {
	start := math.Floor(max) + 1
	if max <= 0 {
		start = 1
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)
	}
	return out
}

// Between returns the midpoint of prev and next. ok is false when float
// precision is exhausted and no value lies strictly between them.
func Between(prev, next float64) (order float64, ok bool) {
	mid := (prev + next) / 2
	return mid, mid > prev && mid < next
}

// Top returns an order before first: half of it, or one less when first is
// not positive and halving would not move it down.
func Top(first float64) float64 {
	if first <= 0 {
		return first - 1
	}
	return first / 2
}

// Bottom returns an order after last.
func Bottom(last float64) float64 {
	return last + 1
}

// Normalize returns the orders 1..n.
func Normalize(n int) []float64 {
	return AppendOrders(0, n)
}

// PositionFor computes the order that places an entry at index among the
// sorted orders of the other entries. ok is false when the neighbours are too
// close to split.
func PositionFor(orders []float64, index int) (order float64, ok bool) {
	switch {
	case len(orders) == 0:
		return 1, true
	case index <= 0:
		o := Top(orders[0])
		return o, o < orders[0]
	case index >= len(orders):
		last := orders[len(orders)-1]
		o := Bottom(last)
		return o, o > last
	default:
		return Between(orders[index-1], orders[index])
	}
}
