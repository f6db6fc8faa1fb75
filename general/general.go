package general

import (
	"fmt"

	"github.com/gogpu/vkalloc"
	"github.com/gogpu/vkalloc/block"
	"github.com/gogpu/vkalloc/device"
	"github.com/gogpu/vkalloc/geom"
	"github.com/gogpu/vkalloc/memtype"
)

// Config is an allocator's block-growth policy, applied to every
// memory-type pool it creates.
type Config struct {
	// DefaultBlockSize is the size of a newly grown block when it need
	// not be larger to satisfy the triggering request.
	DefaultBlockSize uint64

	// MaxBlocksPerType caps the number of blocks a single pool may hold.
	// Zero means unlimited.
	MaxBlocksPerType int
}

// AllocationDescriptor describes one request to Allocate.
type AllocationDescriptor struct {
	Size           uint64
	Alignment      uint64
	MemoryTypeBits uint32
	Location       vkalloc.MemoryLocation
	AllocationType vkalloc.AllocationType
	DebugName      string
	DeviceAddress  bool
}

// Allocation is the handle returned by Allocate and the sole token
// accepted by Free.
type Allocation struct {
	memory    device.Memory
	offset    uint64
	size      uint64
	mappedAt  uintptr
	typeIndex uint32
	blockIdx  int
	chunk     chunkID
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
func (a Allocation) MappedSlice() []byte { return unsafeSlice(a.mappedAt, a.size) }

// MappedSliceMut is MappedSlice; both are exposed because spec's handle
// contract names them separately, though Go has no separate mutable
// slice type.
func (a Allocation) MappedSliceMut() []byte { return unsafeSlice(a.mappedAt, a.size) }

// Allocator is a free-list, best-fit sub-allocator over one or more
// memory-type pools, each of which grows by additional blocks on demand.
// It holds no lock: see the thread-safety notes in the vkalloc package
// documentation.
type Allocator struct {
	provider device.Provider
	limits   device.Limits
	selector *memtype.Selector
	config   Config
	pools    map[uint32]*pool
}

// New creates a general allocator. Pools are created lazily on first use
// of a memory-type index.
func New(provider device.Provider, limits device.Limits, selector *memtype.Selector, cfg Config) *Allocator {
	return &Allocator{
		provider: provider,
		limits:   limits,
		selector: selector,
		config:   cfg,
		pools:    make(map[uint32]*pool),
	}
}

// Allocate resolves a memory type for desc, finds the best-fitting free
// chunk across that type's pool (growing the pool by one block if none
// fits), and returns a handle to the placed region.
func (a *Allocator) Allocate(desc AllocationDescriptor) (Allocation, error) {
	if desc.Size == 0 {
		return Allocation{}, fmt.Errorf("general: size must be nonzero: %w", vkalloc.ErrInvalidSize)
	}
	if desc.Alignment == 0 || !geom.IsPowerOfTwo(desc.Alignment) {
		return Allocation{}, fmt.Errorf("general: alignment %d must be a nonzero power of two: %w", desc.Alignment, vkalloc.ErrInvalidAlignment)
	}

	typeIndex, err := a.selector.Select(desc.Location, desc.MemoryTypeBits)
	if err != nil {
		return Allocation{}, err
	}

	p := a.poolFor(typeIndex)
	granularity := a.limits.BufferImageGranularity()
	isLinear := desc.AllocationType.IsLinear()

	blockIdx, cand, ok := p.findBestFit(desc.Size, desc.Alignment, granularity, isLinear)
	if !ok {
		blockIdx, cand, err = a.growAndRetry(p, typeIndex, desc, granularity, isLinear)
		if err != nil {
			return Allocation{}, err
		}
	}

	pb := p.blocks[blockIdx]
	id := pb.split(cand.chunkID, cand.start, desc.Size, desc.AllocationType)

	var mapped uintptr
	if base := pb.block.MappedBase(); base != 0 {
		mapped = base + uintptr(cand.start)
	}

	vkalloc.Logger().Debug("general: allocated", "typeIndex", typeIndex, "block", blockIdx, "offset", cand.start, "size", desc.Size, "debugName", desc.DebugName)

	return Allocation{
		memory:    pb.block.Memory(),
		offset:    cand.start,
		size:      desc.Size,
		mappedAt:  mapped,
		typeIndex: typeIndex,
		blockIdx:  blockIdx,
		chunk:     id,
	}, nil
}

// growAndRetry allocates one new block sized to guarantee the triggering
// request fits, appends it to p, and re-runs the best-fit scan (which is
// now guaranteed to succeed against the new block).
func (a *Allocator) growAndRetry(p *pool, typeIndex uint32, desc AllocationDescriptor, granularity uint64, isLinear bool) (int, placementCandidate, error) {
	if p.cfg.maxBlocks > 0 && len(p.blocks) >= p.cfg.maxBlocks {
		return 0, placementCandidate{}, fmt.Errorf("general: pool for type %d already holds its maximum of %d blocks: %w", typeIndex, p.cfg.maxBlocks, vkalloc.ErrOutOfMemory)
	}

	newBlockSize := p.cfg.blockSize
	if rounded := geom.AlignUp(desc.Size, granularity); rounded > newBlockSize {
		newBlockSize = rounded
	}

	b, err := block.New(a.provider, newBlockSize, typeIndex, p.cfg.mappable, desc.DeviceAddress)
	if err != nil {
		return 0, placementCandidate{}, err
	}
	p.blocks = append(p.blocks, newPoolBlock(b, typeIndex))
	vkalloc.Logger().Debug("general: grew pool", "typeIndex", typeIndex, "blockSize", newBlockSize, "blockCount", len(p.blocks))

	blockIdx, cand, ok := p.findBestFit(desc.Size, desc.Alignment, granularity, isLinear)
	if !ok {
		return 0, placementCandidate{}, fmt.Errorf("general: new block of %d bytes does not fit a %d byte request: %w", newBlockSize, desc.Size, vkalloc.ErrOutOfMemory)
	}
	return blockIdx, cand, nil
}

// Free returns handle's region to its pool, coalescing with free
// neighbors. Using handle again afterward is undefined.
func (a *Allocator) Free(handle Allocation) {
	p, ok := a.pools[handle.typeIndex]
	if !ok || handle.blockIdx < 0 || handle.blockIdx >= len(p.blocks) {
		return
	}
	p.blocks[handle.blockIdx].free(handle.chunk)
}

// Allocated returns the sum of sizes of currently occupied chunks across
// every pool.
func (a *Allocator) Allocated() uint64 {
	var total uint64
	for _, p := range a.pools {
		for _, pb := range p.blocks {
			for _, c := range pb.chunks {
				if !c.free {
					total += c.size
				}
			}
		}
	}
	return total
}

// Size returns the sum of block sizes across every pool.
func (a *Allocator) Size() uint64 {
	var total uint64
	for _, p := range a.pools {
		for _, pb := range p.blocks {
			total += pb.block.Size()
		}
	}
	return total
}

// ReservedBlocks returns the number of blocks held across every pool.
func (a *Allocator) ReservedBlocks() int {
	var total int
	for _, p := range a.pools {
		total += len(p.blocks)
	}
	return total
}

// Destroy destroys every block in every pool, in creation order within
// each pool. Handles outstanding at that point are invalid.
func (a *Allocator) Destroy() {
	for _, p := range a.pools {
		for _, pb := range p.blocks {
			pb.block.Destroy(a.provider)
		}
	}
}

func (a *Allocator) poolFor(typeIndex uint32) *pool {
	if p, ok := a.pools[typeIndex]; ok {
		return p
	}
	p := &pool{cfg: poolConfig{
		blockSize: a.config.DefaultBlockSize,
		maxBlocks: a.config.MaxBlocksPerType,
		mappable:  a.selector.IsHostVisible(typeIndex),
	}}
	a.pools[typeIndex] = p
	return p
}
