package linear

import "unsafe"

// unsafeSlice views n bytes starting at a mapped host pointer. ptr must be
// 0 or a valid, live mapping of at least n bytes; callers only ever reach
// this through Allocation.MappedSlice/MappedSliceMut, which hold both
// invariants.
func unsafeSlice(ptr uintptr, n uint64) []byte {
	if ptr == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), n)
}
