package memdebug

import "unsafe"

// unsafePointer returns the address of region's first byte. region is
// always non-empty here: Allocate rejects zero-sized requests before any
// region reaches Map.
func unsafePointer(region []byte) unsafe.Pointer {
	return unsafe.Pointer(&region[0])
}
