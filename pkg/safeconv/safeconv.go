// Package safeconv provides saturating and checked integer arithmetic helpers.
package safeconv

import "math"

// MaxInt is the maximum value for int type (platform-dependent).
const MaxInt = int(^uint(0) >> 1)

// SaturatingSub returns a - b, clamped at zero.
func SaturatingSub(a, b int) int {
	if b >= a {
		return 0
	}

	return a - b
}

// SaturatingAdd returns a + b, clamped at the int bounds on overflow.
func SaturatingAdd(a, b int) int {
	if a > 0 && b > MaxInt-a {
		return MaxInt
	}

	if a < 0 && b < math.MinInt-a {
		return math.MinInt
	}

	return a + b
}

// ClampNonNegative returns v, or zero when v is negative.
func ClampNonNegative(v int) int {
	return max(v, 0)
}

// MustIntToUint converts int to uint, panics if negative.
// Use only when negative values are logically impossible.
func MustIntToUint(v int) uint {
	if v < 0 {
		panic("safeconv: negative int to uint conversion")
	}

	return uint(v)
}

// MustUintToInt converts uint to int, panics on overflow.
// Use only when overflow is logically impossible.
func MustUintToInt(v uint) int {
	if v > uint(MaxInt) {
		panic("safeconv: uint to int conversion overflow")
	}

	return int(v)
}
