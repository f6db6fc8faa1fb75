// Package memtype maps a high-level [vkalloc.MemoryLocation] plus an
// API-supplied bitmask of permitted memory types into a concrete
// memory-type index, with a two-pass preferred/relaxed fallback.
package memtype

import (
	"github.com/gogpu/vkalloc"
	"github.com/gogpu/vkalloc/device"
)

// Selector resolves memory-type indices for allocation requests against a
// fixed memory-property table queried once at construction time.
type Selector struct {
	properties device.MemoryProperties
}

// NewSelector builds a selector over the given memory-property table.
func NewSelector(props device.MemoryProperties) *Selector {
	return &Selector{properties: props}
}

// Select scans memory types in index order and returns the first whose
// bit is set in typeBits and whose property flags are a superset of the
// location's preferred set. If no type matches, it rescans with a relaxed
// set (device-local dropped for CpuToGpu, host-cached dropped for
// GpuToCpu). Returns [vkalloc.ErrNoCompatibleMemoryType] if both passes
// fail.
func (s *Selector) Select(location vkalloc.MemoryLocation, typeBits uint32) (uint32, error) {
	if idx, ok := s.find(typeBits, preferredFlags(location)); ok {
		return idx, nil
	}
	if idx, ok := s.find(typeBits, relaxedFlags(location)); ok {
		return idx, nil
	}
	return 0, vkalloc.ErrNoCompatibleMemoryType
}

func (s *Selector) find(typeBits uint32, want device.PropertyFlags) (uint32, bool) {
	for i, mt := range s.properties.MemoryTypes {
		bit := uint32(1) << uint(i)
		if typeBits&bit == 0 {
			continue
		}
		if mt.PropertyFlags.Has(want) {
			return uint32(i), true
		}
	}
	return 0, false
}

func preferredFlags(location vkalloc.MemoryLocation) device.PropertyFlags {
	switch location {
	case vkalloc.GpuOnly:
		return device.PropertyDeviceLocal
	case vkalloc.CpuToGpu:
		return device.PropertyHostVisible | device.PropertyHostCoherent | device.PropertyDeviceLocal
	case vkalloc.GpuToCpu:
		return device.PropertyHostVisible | device.PropertyHostCoherent | device.PropertyHostCached
	default:
		return device.PropertyDeviceLocal
	}
}

func relaxedFlags(location vkalloc.MemoryLocation) device.PropertyFlags {
	switch location {
	case vkalloc.GpuOnly:
		return device.PropertyDeviceLocal
	case vkalloc.CpuToGpu:
		return device.PropertyHostVisible | device.PropertyHostCoherent
	case vkalloc.GpuToCpu:
		return device.PropertyHostVisible | device.PropertyHostCoherent
	default:
		return device.PropertyDeviceLocal
	}
}

// IsHostVisible reports whether the given memory-type index is
// host-visible. Used by callers to decide whether a block should be
// mapped at creation.
func (s *Selector) IsHostVisible(typeIndex uint32) bool {
	mt, ok := s.MemoryType(typeIndex)
	return ok && mt.PropertyFlags.Has(device.PropertyHostVisible)
}

// IsDeviceLocal reports whether the given memory-type index is
// device-local.
func (s *Selector) IsDeviceLocal(typeIndex uint32) bool {
	mt, ok := s.MemoryType(typeIndex)
	return ok && mt.PropertyFlags.Has(device.PropertyDeviceLocal)
}

// MemoryType returns the memory type at the given index.
func (s *Selector) MemoryType(typeIndex uint32) (device.MemoryType, bool) {
	if int(typeIndex) >= len(s.properties.MemoryTypes) {
		return device.MemoryType{}, false
	}
	return s.properties.MemoryTypes[typeIndex], true
}

// HeapSize returns the size of the given heap, or 0 if out of range.
func (s *Selector) HeapSize(heapIndex uint32) uint64 {
	if int(heapIndex) >= len(s.properties.MemoryHeaps) {
		return 0
	}
	return s.properties.MemoryHeaps[heapIndex].Size
}

// TypeCount returns the number of memory types in the underlying table.
func (s *Selector) TypeCount() int {
	return len(s.properties.MemoryTypes)
}
