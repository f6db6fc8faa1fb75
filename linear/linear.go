// Package linear implements a single-block bump allocator: allocations are
// carved off a monotonically advancing cursor, never individually freed,
// and the whole block resets at once via FreeAll.
package linear

import (
	"fmt"

	"github.com/gogpu/vkalloc"
	"github.com/gogpu/vkalloc/block"
	"github.com/gogpu/vkalloc/device"
	"github.com/gogpu/vkalloc/geom"
	"github.com/gogpu/vkalloc/memtype"
)

// Config describes a linear allocator's single backing block.
type Config struct {
	BlockSize      uint64
	Location       vkalloc.MemoryLocation
	AllocationType vkalloc.AllocationType
	MemoryTypeBits uint32
	DeviceAddress  bool
}

// prevAlloc records the end offset and linearity of the most recent
// allocation, the only state needed to decide whether the next one must be
// pushed past a granularity conflict.
type prevAlloc struct {
	end      uint64
	isLinear bool
	valid    bool
}

// Allocator hands out monotonically increasing offsets from one block.
type Allocator struct {
	provider  device.Provider
	limits    device.Limits
	block     *block.Block
	typeIndex uint32
	cursor    uint64
	prev      prevAlloc
}

// New creates a linear allocator: resolves a memory-type index for cfg and
// allocates its single block immediately.
func New(provider device.Provider, limits device.Limits, selector *memtype.Selector, cfg Config) (*Allocator, error) {
	typeIndex, err := selector.Select(cfg.Location, cfg.MemoryTypeBits)
	if err != nil {
		return nil, err
	}

	b, err := block.New(provider, cfg.BlockSize, typeIndex, selector.IsHostVisible(typeIndex), cfg.DeviceAddress)
	if err != nil {
		return nil, err
	}

	vkalloc.Logger().Debug("linear: allocator created", "blockSize", cfg.BlockSize, "typeIndex", typeIndex)
	return &Allocator{
		provider:  provider,
		limits:    limits,
		block:     b,
		typeIndex: typeIndex,
	}, nil
}

// Allocation is a live region carved from a linear allocator's block.
type Allocation struct {
	memory   device.Memory
	offset   uint64
	size     uint64
	mappedAt uintptr
}

// Memory returns the device-memory handle backing this allocation.
func (a Allocation) Memory() device.Memory { return a.memory }

// Offset returns the byte offset within the block.
func (a Allocation) Offset() uint64 { return a.offset }

// Size returns the allocation's size in bytes.
func (a Allocation) Size() uint64 { return a.size }

// MappedPtr returns the host pointer for this allocation, or 0 if the
// block is not mapped.
func (a Allocation) MappedPtr() uintptr { return a.mappedAt }

// MappedSlice returns a view of exactly Size() bytes at MappedPtr. Only
// valid when MappedPtr is non-zero.
func (a Allocation) MappedSlice() []byte {
	return unsafeSlice(a.mappedAt, a.size)
}

// MappedSliceMut is MappedSlice; both are exposed because the handle
// contract names them separately, though Go has no separate mutable
// slice type.
func (a Allocation) MappedSliceMut() []byte {
	return unsafeSlice(a.mappedAt, a.size)
}

// Allocate carves size bytes aligned to alignment off the cursor,
// resolving any granularity conflict against the previous allocation by
// pushing the start forward to the next granularity page.
func (a *Allocator) Allocate(size, alignment uint64, allocType vkalloc.AllocationType) (Allocation, error) {
	if size == 0 {
		return Allocation{}, fmt.Errorf("linear: size must be nonzero: %w", vkalloc.ErrInvalidSize)
	}
	if alignment == 0 || !geom.IsPowerOfTwo(alignment) {
		return Allocation{}, fmt.Errorf("linear: alignment %d must be a nonzero power of two: %w", alignment, vkalloc.ErrInvalidAlignment)
	}

	start := geom.AlignUp(a.cursor, alignment)

	if a.prev.valid {
		granularity := a.limits.BufferImageGranularity()
		conflict := geom.HasGranularityConflict(a.prev.isLinear, allocType.IsLinear())
		if conflict && geom.IsOnSamePage(a.prev.end-1, 1, start, granularity) {
			start = geom.AlignUp(geom.AlignUp(a.prev.end, granularity), alignment)
		}
	}

	if start+size > a.block.Size() {
		return Allocation{}, fmt.Errorf("linear: %d bytes at offset %d exceeds block size %d: %w", size, start, a.block.Size(), vkalloc.ErrOutOfMemory)
	}

	a.prev = prevAlloc{end: start + size, isLinear: allocType.IsLinear(), valid: true}
	a.cursor = start + size

	var mapped uintptr
	if base := a.block.MappedBase(); base != 0 {
		mapped = base + uintptr(start)
	}

	return Allocation{
		memory:   a.block.Memory(),
		offset:   start,
		size:     size,
		mappedAt: mapped,
	}, nil
}

// FreeAll resets the cursor to zero and forgets the previous-allocation
// descriptor. Individual allocations cannot be freed; this is the only
// way to reclaim space.
func (a *Allocator) FreeAll() {
	a.cursor = 0
	a.prev = prevAlloc{}
}

// Allocated returns the number of bytes currently in use (the cursor).
func (a *Allocator) Allocated() uint64 { return a.cursor }

// Size returns the block's total size.
func (a *Allocator) Size() uint64 { return a.block.Size() }

// ReservedBlocks always returns 1: a linear allocator owns exactly one
// block for its lifetime.
func (a *Allocator) ReservedBlocks() int { return 1 }

// Destroy destroys the backing block. The allocator must not be used
// afterward.
func (a *Allocator) Destroy() {
	a.block.Destroy(a.provider)
}
