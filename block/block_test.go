package block

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/gogpu/vkalloc"
	"github.com/gogpu/vkalloc/device"
)

// fakeProvider is a minimal in-process device.Provider used to exercise
// block.Block without any real device.
type fakeProvider struct {
	nextMemory   device.Memory
	mapFails     bool
	allocFails   bool
	freed        map[device.Memory]bool
	mapped       map[device.Memory]bool
	buffers      map[device.Memory][]byte
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		nextMemory: 1,
		freed:      make(map[device.Memory]bool),
		mapped:     make(map[device.Memory]bool),
		buffers:    make(map[device.Memory][]byte),
	}
}

func (p *fakeProvider) Allocate(info device.AllocateInfo) (device.Memory, error) {
	if p.allocFails {
		return 0, errors.New("fake: out of device memory")
	}
	mem := p.nextMemory
	p.nextMemory++
	p.buffers[mem] = make([]byte, info.Size)
	return mem, nil
}

func (p *fakeProvider) Map(mem device.Memory, offset, size uint64) (uintptr, error) {
	if p.mapFails {
		return 0, errors.New("fake: map failed")
	}
	buf := p.buffers[mem]
	p.mapped[mem] = true
	return uintptr(unsafe.Pointer(&buf[0])), nil
}

func (p *fakeProvider) Unmap(mem device.Memory) {
	delete(p.mapped, mem)
}

func (p *fakeProvider) Free(mem device.Memory) {
	p.freed[mem] = true
	delete(p.buffers, mem)
}

func TestNewMappable(t *testing.T) {
	p := newFakeProvider()
	b, err := New(p, 4096, 0, true, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.Size() != 4096 {
		t.Errorf("Size() = %d, want 4096", b.Size())
	}
	if !b.Mappable() {
		t.Error("Mappable() = false, want true")
	}
	if b.MappedBase() == 0 {
		t.Error("MappedBase() = 0, want nonzero")
	}
}

func TestNewNonMappable(t *testing.T) {
	p := newFakeProvider()
	b, err := New(p, 4096, 0, false, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b.Mappable() {
		t.Error("Mappable() = true, want false")
	}
	if b.MappedBase() != 0 {
		t.Error("MappedBase() != 0, want 0")
	}
}

func TestNewAllocateFails(t *testing.T) {
	p := newFakeProvider()
	p.allocFails = true
	_, err := New(p, 4096, 0, false, false)
	if !errors.Is(err, vkalloc.ErrOutOfMemory) {
		t.Errorf("New() error = %v, want ErrOutOfMemory", err)
	}
}

func TestNewMapFailsFreesBlock(t *testing.T) {
	p := newFakeProvider()
	p.mapFails = true
	_, err := New(p, 4096, 0, true, false)
	if !errors.Is(err, vkalloc.ErrFailedToMap) {
		t.Errorf("New() error = %v, want ErrFailedToMap", err)
	}
	if len(p.freed) != 1 {
		t.Errorf("expected the block to be freed after a failed map, freed = %v", p.freed)
	}
}

func TestDestroyUnmapsThenFrees(t *testing.T) {
	p := newFakeProvider()
	b, err := New(p, 4096, 0, true, false)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mem := b.Memory()
	b.Destroy(p)
	if p.mapped[mem] {
		t.Error("expected block to be unmapped after Destroy")
	}
	if !p.freed[mem] {
		t.Error("expected block to be freed after Destroy")
	}
}
