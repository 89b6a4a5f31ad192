// SPDX-License-Identifier: MIT
/*
Package bitint holds the small power-of-two helpers used to size FFT
workspaces and capture ring buffers.

All functions are constant time, allocation free and safe to call from
the capture callback.

	size := bitint.NextPowerOfTwo(1000) // 1024
	ok := bitint.IsPowerOfTwo(size)     // true
*/
package bitint

import "math/bits"

// IsPowerOfTwo reports whether n is a positive power of two. A power of
// two has exactly one bit set, so clearing the lowest set bit leaves zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n. Values <= 1
// return 1. Subtracting one first keeps exact powers of two unchanged
// (8-1 = 0b0111 has length 3, and 1<<3 = 8).
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Log2 returns floor(log2(n)) for n > 0 and 0 otherwise. For a power of
// two this is the number of FFT butterfly stages.
func Log2(n int) int {
	if n <= 0 {
		return 0
	}
	return bits.Len(uint(n)) - 1
}
