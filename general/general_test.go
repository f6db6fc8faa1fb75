package general

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/gogpu/vkalloc"
	"github.com/gogpu/vkalloc/device"
	"github.com/gogpu/vkalloc/memtype"
)

type fakeProvider struct {
	next       device.Memory
	buffers    map[device.Memory][]byte
	allocCount int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{next: 1, buffers: make(map[device.Memory][]byte)}
}

func (p *fakeProvider) Allocate(info device.AllocateInfo) (device.Memory, error) {
	mem := p.next
	p.next++
	p.allocCount++
	p.buffers[mem] = make([]byte, info.Size)
	return mem, nil
}

func (p *fakeProvider) Map(mem device.Memory, offset, size uint64) (uintptr, error) {
	buf := p.buffers[mem]
	return uintptr(unsafe.Pointer(&buf[0])), nil
}

func (p *fakeProvider) Unmap(device.Memory) {}

func (p *fakeProvider) Free(mem device.Memory) { delete(p.buffers, mem) }

type fakeLimits struct{ granularity uint64 }

func (l fakeLimits) BufferImageGranularity() uint64 { return l.granularity }

func testSelector() *memtype.Selector {
	return memtype.NewSelector(device.MemoryProperties{
		MemoryTypes: []device.MemoryType{
			{PropertyFlags: device.PropertyDeviceLocal | device.PropertyHostVisible | device.PropertyHostCoherent, HeapIndex: 0},
		},
		MemoryHeaps: []device.Heap{{Size: 1 << 30, Flags: device.HeapDeviceLocal}},
	})
}

func newTestAllocator(blockSize uint64, maxBlocks int, granularity uint64) (*Allocator, *fakeProvider) {
	p := newFakeProvider()
	a := New(p, fakeLimits{granularity: granularity}, testSelector(), Config{
		DefaultBlockSize: blockSize,
		MaxBlocksPerType: maxBlocks,
	})
	return a, p
}

func desc(size, alignment uint64, allocType vkalloc.AllocationType) AllocationDescriptor {
	return AllocationDescriptor{
		Size:           size,
		Alignment:      alignment,
		MemoryTypeBits: 0b1,
		Location:       vkalloc.GpuOnly,
		AllocationType: allocType,
	}
}

// A single request into a fresh allocator lands at offset 0 and leaves
// the rest of the block as one trailing free chunk.
func TestAllocateSingleBuffer(t *testing.T) {
	a, _ := newTestAllocator(1<<20, 0, 1)

	alloc, err := a.Allocate(desc(256, 16, vkalloc.Buffer))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if alloc.Offset() != 0 {
		t.Errorf("Offset() = %d, want 0", alloc.Offset())
	}
	if a.Allocated() != 256 {
		t.Errorf("Allocated() = %d, want 256", a.Allocated())
	}
	if a.ReservedBlocks() != 1 {
		t.Errorf("ReservedBlocks() = %d, want 1", a.ReservedBlocks())
	}

	p := a.pools[0]
	pb := p.blocks[0]
	if len(pb.chunks) != 2 {
		t.Errorf("chunk count = %d, want 2 (one occupied, one free)", len(pb.chunks))
	}
}

// A granularity conflict between a linear and non-linear allocation
// forces the second one to the next granularity page.
func TestAllocateGranularityConflictForcesPush(t *testing.T) {
	a, _ := newTestAllocator(1<<20, 0, 1024)

	if _, err := a.Allocate(desc(4, 1, vkalloc.LinearImage)); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	second, err := a.Allocate(desc(4, 1, vkalloc.OptimalImage))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if second.Offset() != 1024 {
		t.Errorf("second offset = %d, want 1024", second.Offset())
	}
}

// Best fit picks a freed hole over packing tightly at the block's tail,
// even when the tail has more room to spare.
func TestAllocateBestFitChoosesHole(t *testing.T) {
	a, _ := newTestAllocator(1<<20, 0, 1)

	first, err := a.Allocate(desc(256, 1, vkalloc.Buffer))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	second, err := a.Allocate(desc(256, 1, vkalloc.Buffer))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	third, err := a.Allocate(desc(256, 1, vkalloc.Buffer))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}

	a.Free(second)

	fourth, err := a.Allocate(desc(200, 1, vkalloc.Buffer))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if fourth.Offset() != second.Offset() {
		t.Errorf("fourth offset = %d, want %d (the freed 256 B hole)", fourth.Offset(), second.Offset())
	}

	_ = first
	_ = third
}

// Freeing every occupied chunk in a block, including one placed into a
// previously freed hole, coalesces everything back into one free chunk
// spanning the whole block.
func TestFreeCoalescesToSingleChunk(t *testing.T) {
	a, _ := newTestAllocator(1<<20, 0, 1)

	first, _ := a.Allocate(desc(256, 1, vkalloc.Buffer))
	second, _ := a.Allocate(desc(256, 1, vkalloc.Buffer))
	third, _ := a.Allocate(desc(256, 1, vkalloc.Buffer))
	a.Free(second)
	fourth, _ := a.Allocate(desc(200, 1, vkalloc.Buffer))

	a.Free(first)
	a.Free(third)
	a.Free(fourth)

	if a.Allocated() != 0 {
		t.Errorf("Allocated() = %d, want 0", a.Allocated())
	}

	pb := a.pools[0].blocks[0]
	if len(pb.chunks) != 1 {
		t.Errorf("chunk count = %d, want 1", len(pb.chunks))
	}
	for _, c := range pb.chunks {
		if !c.free {
			t.Error("remaining chunk should be free")
		}
		if c.size != 1<<20 {
			t.Errorf("remaining chunk size = %d, want %d", c.size, 1<<20)
		}
	}
}

// A pool grows by one block at a time as requests outgrow what's
// already allocated, then fails once it hits its block-count cap.
func TestAllocateGrowsPoolThenFailsAtCap(t *testing.T) {
	a, p := newTestAllocator(4096, 2, 1)

	if _, err := a.Allocate(desc(3000, 1, vkalloc.Buffer)); err != nil {
		t.Fatalf("Allocate() 1 error = %v", err)
	}
	if a.ReservedBlocks() != 1 {
		t.Fatalf("ReservedBlocks() = %d, want 1", a.ReservedBlocks())
	}

	if _, err := a.Allocate(desc(3000, 1, vkalloc.Buffer)); err != nil {
		t.Fatalf("Allocate() 2 error = %v", err)
	}
	if a.ReservedBlocks() != 2 {
		t.Fatalf("ReservedBlocks() = %d, want 2", a.ReservedBlocks())
	}
	if p.allocCount != 2 {
		t.Fatalf("device allocations = %d, want 2", p.allocCount)
	}

	_, err := a.Allocate(desc(3000, 1, vkalloc.Buffer))
	if !errors.Is(err, vkalloc.ErrOutOfMemory) {
		t.Errorf("Allocate() 3 error = %v, want ErrOutOfMemory", err)
	}
}

func TestAllocateInvalidSizeAndAlignment(t *testing.T) {
	a, _ := newTestAllocator(4096, 0, 1)

	if _, err := a.Allocate(desc(0, 16, vkalloc.Buffer)); !errors.Is(err, vkalloc.ErrInvalidSize) {
		t.Errorf("Allocate(size=0) error = %v, want ErrInvalidSize", err)
	}
	if _, err := a.Allocate(desc(16, 3, vkalloc.Buffer)); !errors.Is(err, vkalloc.ErrInvalidAlignment) {
		t.Errorf("Allocate(alignment=3) error = %v, want ErrInvalidAlignment", err)
	}
}

func TestAllocateAlignmentInvariant(t *testing.T) {
	a, _ := newTestAllocator(1<<20, 0, 1)

	if _, err := a.Allocate(desc(3, 1, vkalloc.Buffer)); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	alloc, err := a.Allocate(desc(64, 64, vkalloc.Buffer))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if alloc.Offset()%64 != 0 {
		t.Errorf("Offset() = %d, not a multiple of 64", alloc.Offset())
	}
}

func TestSizeTracksBlockGrowth(t *testing.T) {
	a, _ := newTestAllocator(4096, 0, 1)

	if _, err := a.Allocate(desc(100, 1, vkalloc.Buffer)); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if a.Size() != 4096 {
		t.Errorf("Size() = %d, want 4096", a.Size())
	}
}

func TestRoundTripEmptiesAllocator(t *testing.T) {
	a, _ := newTestAllocator(1<<16, 0, 1)

	var handles []Allocation
	for i := 0; i < 10; i++ {
		h, err := a.Allocate(desc(128, 16, vkalloc.Buffer))
		if err != nil {
			t.Fatalf("Allocate() error = %v", err)
		}
		handles = append(handles, h)
	}

	// Free in a different order than allocated.
	order := []int{3, 7, 0, 9, 1, 8, 2, 6, 4, 5}
	for _, i := range order {
		a.Free(handles[i])
	}

	if a.Allocated() != 0 {
		t.Errorf("Allocated() = %d, want 0", a.Allocated())
	}

	for _, pb := range a.pools[0].blocks {
		freeChunks := 0
		for _, c := range pb.chunks {
			if c.free {
				freeChunks++
			}
		}
		if freeChunks != 1 {
			t.Errorf("free chunk count = %d, want 1", freeChunks)
		}
	}
}

func TestNoAdjacentFreeChunks(t *testing.T) {
	a, _ := newTestAllocator(1<<20, 0, 1)

	first, _ := a.Allocate(desc(256, 1, vkalloc.Buffer))
	_, _ = a.Allocate(desc(256, 1, vkalloc.Buffer))
	third, _ := a.Allocate(desc(256, 1, vkalloc.Buffer))

	a.Free(first)
	a.Free(third)

	pb := a.pools[0].blocks[0]
	for id, c := range pb.chunks {
		if !c.free {
			continue
		}
		if c.next != 0 && pb.chunks[c.next].free {
			t.Errorf("chunk %d and its next neighbor %d are both free", id, c.next)
		}
		if c.prev != 0 && pb.chunks[c.prev].free {
			t.Errorf("chunk %d and its prev neighbor %d are both free", id, c.prev)
		}
	}
}

func TestFreeIndexConsistency(t *testing.T) {
	a, _ := newTestAllocator(1<<20, 0, 1)

	first, _ := a.Allocate(desc(256, 1, vkalloc.Buffer))
	_, _ = a.Allocate(desc(256, 1, vkalloc.Buffer))
	a.Free(first)

	pb := a.pools[0].blocks[0]
	for id, c := range pb.chunks {
		bucket, ok := pb.freeBySize[c.size]
		_, inBucket := bucket[id]
		if c.free != (ok && inBucket) {
			t.Errorf("chunk %d: free=%v but free-index membership=%v", id, c.free, ok && inBucket)
		}
	}
}

func TestMappedSlice(t *testing.T) {
	a, _ := newTestAllocator(4096, 0, 1)
	alloc, err := a.Allocate(desc(64, 16, vkalloc.Buffer))
	if err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	if alloc.MappedPtr() == 0 {
		t.Fatal("MappedPtr() = 0, want nonzero for a host-visible type")
	}
	if len(alloc.MappedSlice()) != 64 {
		t.Errorf("len(MappedSlice()) = %d, want 64", len(alloc.MappedSlice()))
	}
	if len(alloc.MappedSliceMut()) != 64 {
		t.Errorf("len(MappedSliceMut()) = %d, want 64", len(alloc.MappedSliceMut()))
	}
}

func TestDestroyFreesEveryBlock(t *testing.T) {
	a, p := newTestAllocator(4096, 0, 1)

	if _, err := a.Allocate(desc(64, 16, vkalloc.Buffer)); err != nil {
		t.Fatalf("Allocate() error = %v", err)
	}
	a.Destroy()

	if len(p.buffers) != 0 {
		t.Errorf("provider still holds %d buffers after Destroy()", len(p.buffers))
	}
}
