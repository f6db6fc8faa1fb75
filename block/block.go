// Package block wraps one device-memory allocation: its handle, size, and
// (when mappable) a persistent host-visible base pointer.
package block

import (
	"fmt"

	"github.com/gogpu/vkalloc"
	"github.com/gogpu/vkalloc/device"
)

// Block is one device-memory region. It is never resized; a new block is
// created whenever an incoming request cannot be satisfied by existing
// blocks, and destroyed only when the owning allocator is destroyed.
type Block struct {
	memory device.Memory
	size   uint64
	mapped uintptr // 0 when not mapped
}

// New allocates size bytes of device memory at typeIndex. If mappable,
// the whole block is mapped once, persistently; a map failure frees the
// block before returning [vkalloc.ErrFailedToMap] so no partial state is
// left behind. deviceAddress opts the allocation into device-address
// usage.
func New(provider device.Provider, size uint64, typeIndex uint32, mappable, deviceAddress bool) (*Block, error) {
	var flags device.AllocateFlags
	if deviceAddress {
		flags |= device.AllocateDeviceAddress
	}

	mem, err := provider.Allocate(device.AllocateInfo{
		Size:            size,
		MemoryTypeIndex: typeIndex,
		Flags:           flags,
	})
	if err != nil {
		return nil, fmt.Errorf("block: allocate %d bytes on type %d: %w", size, typeIndex, vkalloc.ErrOutOfMemory)
	}

	b := &Block{memory: mem, size: size}

	if mappable {
		ptr, err := provider.Map(mem, 0, size)
		if err != nil {
			vkalloc.Logger().Warn("block: map failed, freeing block", "size", size, "typeIndex", typeIndex, "error", err)
			provider.Free(mem)
			return nil, fmt.Errorf("block: map %d bytes: %w", size, vkalloc.ErrFailedToMap)
		}
		b.mapped = ptr
	}

	vkalloc.Logger().Debug("block: created", "size", size, "typeIndex", typeIndex, "mappable", mappable)
	return b, nil
}

// Destroy unmaps (if mapped) and frees the block. Callers must not use the
// Block afterward.
func (b *Block) Destroy(provider device.Provider) {
	if b.mapped != 0 {
		provider.Unmap(b.memory)
		b.mapped = 0
	}
	provider.Free(b.memory)
}

// Memory returns the device-memory handle.
func (b *Block) Memory() device.Memory {
	return b.memory
}

// Size returns the block's total size in bytes.
func (b *Block) Size() uint64 {
	return b.size
}

// MappedBase returns the host base pointer, or 0 if the block is not
// mapped.
func (b *Block) MappedBase() uintptr {
	return b.mapped
}

// Mappable reports whether the block was mapped at creation.
func (b *Block) Mappable() bool {
	return b.mapped != 0
}
