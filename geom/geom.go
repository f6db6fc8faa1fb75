// Package geom holds the pure, bit-level arithmetic helpers used to place
// allocations: alignment and the buffer/image granularity conflict test.
// This is the only package in the module that touches bit arithmetic;
// everywhere else operates on whole offsets and sizes.
package geom

// AlignUp returns the smallest multiple of a that is >= x. a must be a
// power of two; callers are expected to validate alignment before calling
// (see vkalloc.ErrInvalidAlignment).
func AlignUp(x, a uint64) uint64 {
	return (x + a - 1) &^ (a - 1)
}

// AlignDown returns the largest multiple of a that is <= x. a must be a
// power of two.
func AlignDown(x, a uint64) uint64 {
	return x &^ (a - 1)
}

// IsOnSamePage reports whether the last byte of [offA, offA+sizeA) and the
// first byte at offB fall within the same page-sized region. A zero-size
// preceding span never shares a page with anything.
func IsOnSamePage(offA, sizeA, offB, page uint64) bool {
	if sizeA == 0 {
		return false
	}
	endA := offA + sizeA - 1
	return AlignDown(endA, page) == AlignDown(offB, page)
}

// HasGranularityConflict reports whether two adjacent allocations
// straddle the linear/non-linear buffer-image granularity boundary: true
// iff their linearity predicates differ.
func HasGranularityConflict(aIsLinear, bIsLinear bool) bool {
	return aIsLinear != bIsLinear
}

// IsPowerOfTwo reports whether n is a power of two (n > 0 and n&(n-1)==0).
func IsPowerOfTwo(n uint64) bool {
	return n > 0 && n&(n-1) == 0
}
