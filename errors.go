package vkalloc

import "errors"

// Sentinel errors shared by every allocator in this module. Each observable
// failure in the allocation path maps to exactly one of these; operations
// return either a value or one of these (optionally wrapped with
// fmt.Errorf for context), never both.
var (
	// ErrOutOfMemory is returned when the device rejected a block
	// allocation, or a pool is at its block-count limit and no existing
	// block can satisfy the request.
	ErrOutOfMemory = errors.New("vkalloc: out of memory")

	// ErrFailedToMap is returned when the device refused to map a
	// host-visible block.
	ErrFailedToMap = errors.New("vkalloc: failed to map memory")

	// ErrNoCompatibleMemoryType is returned when memory-type selection
	// exhausts both the preferred and relaxed property-flag passes.
	ErrNoCompatibleMemoryType = errors.New("vkalloc: no compatible memory type")

	// ErrInvalidAlignment is returned when the requested alignment is
	// zero or not a power of two.
	ErrInvalidAlignment = errors.New("vkalloc: invalid alignment")

	// ErrInvalidSize is returned when the requested size is zero.
	ErrInvalidSize = errors.New("vkalloc: invalid size")
)
