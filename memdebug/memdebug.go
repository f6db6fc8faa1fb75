// Package memdebug implements [device.Provider] over anonymous mmap
// regions, so the general and linear allocators can be exercised and
// benchmarked without a real graphics device. It is not a production
// backend: every "memory type" it reports maps to ordinary host memory.
package memdebug

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/gogpu/vkalloc"
	"github.com/gogpu/vkalloc/device"
)

// Provider is a [device.Provider] backed by anonymous mmap regions. The
// zero value is not usable; construct with [New].
type Provider struct {
	mu      sync.Mutex
	next    device.Memory
	regions map[device.Memory][]byte
}

// New creates an empty provider.
func New() *Provider {
	return &Provider{regions: make(map[device.Memory][]byte)}
}

// Allocate maps a new anonymous, zero-filled region of info.Size bytes.
func (p *Provider) Allocate(info device.AllocateInfo) (device.Memory, error) {
	if info.Size == 0 {
		return 0, fmt.Errorf("memdebug: allocate zero bytes: %w", vkalloc.ErrInvalidSize)
	}

	region, err := unix.Mmap(-1, 0, int(info.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, fmt.Errorf("memdebug: mmap %d bytes: %w: %w", info.Size, err, vkalloc.ErrOutOfMemory)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	mem := p.next
	p.regions[mem] = region
	return mem, nil
}

// Map returns the host pointer into the already-mmap'd region; mmap'd
// memory is always host-addressable. It fails with
// [vkalloc.ErrFailedToMap] only when mem is unknown or offset+size runs
// past the end of the region.
func (p *Provider) Map(mem device.Memory, offset, size uint64) (uintptr, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	region, ok := p.regions[mem]
	if !ok || offset+size > uint64(len(region)) {
		return 0, fmt.Errorf("memdebug: map out of range: %w", vkalloc.ErrFailedToMap)
	}
	return uintptr(unsafePointer(region)) + uintptr(offset), nil
}

// Unmap is a no-op: the region stays mapped until Free.
func (p *Provider) Unmap(device.Memory) {}

// Free munmaps the region backing mem.
func (p *Provider) Free(mem device.Memory) {
	p.mu.Lock()
	region, ok := p.regions[mem]
	delete(p.regions, mem)
	p.mu.Unlock()

	if !ok {
		return
	}
	if err := unix.Munmap(region); err != nil {
		vkalloc.Logger().Warn("memdebug: munmap failed", "error", err)
	}
}

// Limits reports a fixed granularity for use with the general/linear
// allocators; real hardware would report this from its physical-device
// properties.
type Limits struct {
	Granularity uint64
}

// BufferImageGranularity implements device.Limits.
func (l Limits) BufferImageGranularity() uint64 {
	if l.Granularity == 0 {
		return 1
	}
	return l.Granularity
}

// Properties returns a plausible single-heap, single-type memory-property
// table: one memory type that is simultaneously device-local (in this
// debug backend "device" and "host" are the same memory) and host
// visible/coherent, backed by one heap sized heapSize.
func Properties(heapSize uint64) device.MemoryProperties {
	return device.MemoryProperties{
		MemoryTypes: []device.MemoryType{
			{
				PropertyFlags: device.PropertyDeviceLocal | device.PropertyHostVisible | device.PropertyHostCoherent,
				HeapIndex:     0,
			},
		},
		MemoryHeaps: []device.Heap{
			{Size: heapSize, Flags: device.HeapDeviceLocal},
		},
	}
}
