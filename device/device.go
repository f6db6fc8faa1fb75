// Package device declares the external-collaborator surface vkalloc needs
// from the graphics API: a handle for one device-memory allocation, the
// per-memory-type property table, and the two interfaces (Provider and
// Limits) a caller implements on top of its own
// device/instance/physical-device objects.
//
// Nothing in this package talks to a real GPU. Device selection, logical
// device creation, and API entry-point loading live entirely outside this
// module; device.Provider is the one seam vkalloc calls through.
package device

// Memory is an opaque handle to one device-memory allocation, as returned
// by a Provider. vkalloc never interprets its bits.
type Memory uint64

// PropertyFlags mirrors the property bits a graphics API reports per
// memory type.
type PropertyFlags uint32

const (
	// PropertyDeviceLocal marks memory local to the GPU.
	PropertyDeviceLocal PropertyFlags = 1 << iota

	// PropertyHostVisible marks memory the host can map.
	PropertyHostVisible

	// PropertyHostCoherent marks host-visible memory that needs no
	// explicit flush/invalidate.
	PropertyHostCoherent

	// PropertyHostCached marks host-visible memory cached for CPU reads.
	PropertyHostCached
)

// Has reports whether all bits in want are set in f.
func (f PropertyFlags) Has(want PropertyFlags) bool {
	return f&want == want
}

// HeapFlags mirrors the flags a graphics API reports per memory heap.
type HeapFlags uint32

// HeapDeviceLocal marks a heap backed by device-local memory.
const HeapDeviceLocal HeapFlags = 1

// MemoryType describes one memory-type slot: its property flags and the
// heap it draws from.
type MemoryType struct {
	PropertyFlags PropertyFlags
	HeapIndex     uint32
}

// Heap describes one memory heap.
type Heap struct {
	Size  uint64
	Flags HeapFlags
}

// MemoryProperties is the full per-device memory-type table, as reported
// by a MemoryTypeEnumerator (modeled here as a plain struct since the
// table is queried once at allocator construction time, not repeatedly).
type MemoryProperties struct {
	MemoryTypes []MemoryType
	MemoryHeaps []Heap
}

// Limits is the physical-device properties source this module needs: the
// buffer/image granularity byte boundary (a power of two, >= 1) that
// separates linear and non-linear resources sharing a block.
type Limits interface {
	BufferImageGranularity() uint64
}

// AllocateFlags are capability bits threaded into a block allocation.
// DeviceAddress is the only one vkalloc knows about; it is surfaced as an
// explicit descriptor option (see general.AllocationDescriptor.DeviceAddress
// and linear.Config.DeviceAddress) rather than inferred from some other
// flag, per the module's resolution of the capability-flag open question.
type AllocateFlags uint32

// AllocateDeviceAddress opts a block's allocation into device-address
// usage, for resources that will be referenced by a GPU virtual address.
const AllocateDeviceAddress AllocateFlags = 1 << 0

// AllocateInfo describes one block-sized device-memory allocation request.
type AllocateInfo struct {
	Size            uint64
	MemoryTypeIndex uint32
	Flags           AllocateFlags
}

// Provider allocates, maps, unmaps, and frees device memory blocks. It is
// the sole external collaborator vkalloc calls into; every call is
// treated as an opaque, synchronous, non-cancellable operation (vkalloc
// makes no assumption about how long a call takes and never retries or
// times one out).
type Provider interface {
	// Allocate reserves a block of device memory. Returns a Memory handle
	// on success.
	Allocate(info AllocateInfo) (Memory, error)

	// Map persistently maps size bytes of mem starting at offset into the
	// host address space, returning the base pointer. Callers of this
	// module only ever map the whole block once, at block-creation time.
	Map(mem Memory, offset, size uint64) (uintptr, error)

	// Unmap undoes a previous Map.
	Unmap(mem Memory)

	// Free releases a block of device memory. mem must not be mapped.
	Free(mem Memory)
}
