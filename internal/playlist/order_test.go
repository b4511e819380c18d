package playlist

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendOrders(t *testing.T) {
	assert.Equal(t, []float64{1, 2}, AppendOrders(0, 2))
	assert.Equal(t, []float64{11, 12, 13}, AppendOrders(10, 3))
	assert.Equal(t, []float64{3}, AppendOrders(2.5, 1))
	assert.Equal(t, []float64{1}, AppendOrders(-4, 1))
	assert.Empty(t, AppendOrders(5, 0))
}

func TestPlacement(t *testing.T) {
	mid, ok := Between(1.0, 2.0)
	assert.True(t, ok)
	assert.Equal(t, 1.5, mid)

	assert.Equal(t, 0.5, Top(1.0))
	assert.Equal(t, -1.0, Top(0))
	assert.Equal(t, -3.0, Top(-2))
	assert.Equal(t, 11.0, Bottom(10.0))
	assert.Equal(t, []float64{1, 2}, Normalize(2))
}

func TestBetween_PrecisionExhausted(t *testing.T) {
	a := 1.0
	b := math.Nextafter(a, 2)
	_, ok := Between(a, b)
	assert.False(t, ok)
}

func TestPositionFor(t *testing.T) {
	tests := []struct {
		name   string
		orders []float64
		index  int
		want   float64
	}{
		{"empty", nil, 0, 1},
		{"top", []float64{1, 2}, 0, 0.5},
		{"negative index is top", []float64{4, 5}, -3, 2},
		{"between", []float64{1, 2}, 1, 1.5},
		{"bottom", []float64{1, 10}, 2, 11},
		{"past the end is bottom", []float64{1, 10}, 99, 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PositionFor(tt.orders, tt.index)
			assert.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRepeatedTopInsertsStayOrdered(t *testing.T) {
	first := 1.0
	for i := 0; i < 50; i++ {
		next := Top(first)
		assert.Less(t, next, first)
		first = next
	}
}
