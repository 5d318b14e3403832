package arith

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestAddOverflowSafe tests addition at and beyond the int boundaries.
func TestAddOverflowSafe(t *testing.T) {
	tests := []struct {
		name string
		a, b int
		want int
		ok   bool
	}{
		{"simple", 3, 4, 7, true},
		{"zero", 0, 0, 0, true},
		{"negatives", -3, -4, -7, true},
		{"max exactly", math.MaxInt - 1, 1, math.MaxInt, true},
		{"max plus one", math.MaxInt, 1, 0, false},
		{"min exactly", math.MinInt + 1, -1, math.MinInt, true},
		{"min minus one", math.MinInt, -1, 0, false},
		{"opposite signs never overflow", math.MaxInt, math.MinInt, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AddOverflowSafe(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// TestMulOverflowSafe tests multiplication overflow detection, including the
// count * elementSize shapes allocation requests produce.
func TestMulOverflowSafe(t *testing.T) {
	tests := []struct {
		name string
		a, b int
		want int
		ok   bool
	}{
		{"simple", 6, 7, 42, true},
		{"zero left", 0, math.MaxInt, 0, true},
		{"zero right", math.MaxInt, 0, 0, true},
		{"max by one", math.MaxInt, 1, math.MaxInt, true},
		{"half max by two", math.MaxInt/2 + 1, 2, 0, false},
		{"huge count small elem", math.MaxInt / 4, 8, 0, false},
		{"both negative", -3, -4, 12, true},
		{"both negative overflow", math.MinInt / 2, -3, 0, false},
		{"mixed signs", -5, 6, -30, true},
		{"mixed signs overflow", math.MinInt/2 - 1, 2, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MulOverflowSafe(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// TestIsPowerOfTwo tests the power-of-two predicate on edge values.
func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []int{1, 2, 4, 8, 1 << 20, 1 << 62} {
		assert.True(t, IsPowerOfTwo(n), "%d", n)
	}
	for _, n := range []int{0, -1, -2, 3, 6, 12, math.MaxInt} {
		assert.False(t, IsPowerOfTwo(n), "%d", n)
	}
}

// TestAlignUp tests rounding up to alignment boundaries.
func TestAlignUp(t *testing.T) {
	tests := []struct {
		n, align int
		want     int
		ok       bool
	}{
		{0, 8, 0, true},
		{1, 8, 8, true},
		{8, 8, 8, true},
		{9, 8, 16, true},
		{100, 1, 100, true},
		{math.MaxInt - 6, 8, 0, false},
	}

	for _, tt := range tests {
		got, ok := AlignUp(tt.n, tt.align)
		assert.Equal(t, tt.ok, ok, "AlignUp(%d, %d)", tt.n, tt.align)
		if tt.ok {
			assert.Equal(t, tt.want, got, "AlignUp(%d, %d)", tt.n, tt.align)
		}
	}
}

// TestAlignPad tests padding from arbitrary addresses.
func TestAlignPad(t *testing.T) {
	assert.Equal(t, 0, AlignPad(0, 16))
	assert.Equal(t, 15, AlignPad(1, 16))
	assert.Equal(t, 1, AlignPad(15, 16))
	assert.Equal(t, 0, AlignPad(16, 16))
	assert.Equal(t, 0, AlignPad(12345, 1))
	assert.Equal(t, 7, AlignPad(0xFFF9, 8))
}
