package general

import (
	"sort"

	"github.com/gogpu/vkalloc"
	"github.com/gogpu/vkalloc/block"
	"github.com/gogpu/vkalloc/geom"
)

// poolBlock owns one device-memory block, tiled end to end by a doubly
// linked list of chunks (the arena, addressed by chunkID rather than
// pointer), plus a size-keyed index over the free chunks for best-fit
// search.
type poolBlock struct {
	block     *block.Block
	typeIndex uint32

	chunks map[chunkID]*chunk
	nextID chunkID
	head   chunkID

	freeBySize map[uint64]map[chunkID]struct{}
	freeSizes  []uint64 // sorted ascending, distinct sizes present in freeBySize
}

func newPoolBlock(b *block.Block, typeIndex uint32) *poolBlock {
	pb := &poolBlock{
		block:      b,
		typeIndex:  typeIndex,
		chunks:     make(map[chunkID]*chunk),
		freeBySize: make(map[uint64]map[chunkID]struct{}),
	}
	id := pb.newChunk(&chunk{offset: 0, size: b.Size(), free: true})
	pb.head = id
	pb.markFree(id)
	return pb
}

func (pb *poolBlock) newChunk(c *chunk) chunkID {
	pb.nextID++
	id := pb.nextID
	pb.chunks[id] = c
	return id
}

func (pb *poolBlock) markFree(id chunkID) {
	c := pb.chunks[id]
	bucket, ok := pb.freeBySize[c.size]
	if !ok {
		bucket = make(map[chunkID]struct{})
		pb.freeBySize[c.size] = bucket
		i := sort.Search(len(pb.freeSizes), func(i int) bool { return pb.freeSizes[i] >= c.size })
		pb.freeSizes = append(pb.freeSizes, 0)
		copy(pb.freeSizes[i+1:], pb.freeSizes[i:])
		pb.freeSizes[i] = c.size
	}
	bucket[id] = struct{}{}
}

func (pb *poolBlock) unmarkFree(id chunkID) {
	c := pb.chunks[id]
	bucket, ok := pb.freeBySize[c.size]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(pb.freeBySize, c.size)
		i := sort.Search(len(pb.freeSizes), func(i int) bool { return pb.freeSizes[i] >= c.size })
		if i < len(pb.freeSizes) && pb.freeSizes[i] == c.size {
			pb.freeSizes = append(pb.freeSizes[:i], pb.freeSizes[i+1:]...)
		}
	}
}

// placement computes the effective start offset for placing size bytes
// (aligned to alignment) inside free chunk id, pushing past a granularity
// conflict with the previous chunk if needed, and rejecting the
// placement outright if it would conflict with an occupied next chunk.
func (pb *poolBlock) placement(id chunkID, size, alignment, granularity uint64, isLinear bool) (uint64, bool) {
	c := pb.chunks[id]
	start := geom.AlignUp(c.offset, alignment)

	if c.prev != 0 {
		prev := pb.chunks[c.prev]
		if geom.HasGranularityConflict(prev.allocType.IsLinear(), isLinear) &&
			geom.IsOnSamePage(prev.offset+prev.size-1, 1, start, granularity) {
			start = geom.AlignUp(geom.AlignUp(prev.offset+prev.size, granularity), alignment)
		}
	}

	if start+size > c.offset+c.size {
		return 0, false
	}

	if c.next != 0 {
		next := pb.chunks[c.next]
		if !next.free &&
			geom.HasGranularityConflict(isLinear, next.allocType.IsLinear()) &&
			geom.IsOnSamePage(start, size, next.offset, granularity) {
			return 0, false
		}
	}

	return start, true
}

// placementCandidate is one feasible (chunk, start) pair considered
// during a best-fit scan, along with its internal-waste cost.
type placementCandidate struct {
	chunkID chunkID
	start   uint64
	waste   uint64
}

// bestFit scans free chunks in ascending size order and returns the
// first feasible placement found in the smallest size bucket that has
// one — which, since waste is chunk.size - size and buckets are visited
// smallest-first, is automatically the minimal-waste placement in this
// block. Ties within a bucket break on lowest chunk offset.
func (pb *poolBlock) bestFit(size, alignment, granularity uint64, isLinear bool) (placementCandidate, bool) {
	start := sort.Search(len(pb.freeSizes), func(i int) bool { return pb.freeSizes[i] >= size })

	for i := start; i < len(pb.freeSizes); i++ {
		sz := pb.freeSizes[i]
		bucket := pb.freeBySize[sz]

		var best placementCandidate
		found := false
		for id := range bucket {
			s, ok := pb.placement(id, size, alignment, granularity, isLinear)
			if !ok {
				continue
			}
			if !found || pb.chunks[id].offset < pb.chunks[best.chunkID].offset {
				best = placementCandidate{chunkID: id, start: s, waste: sz - size}
				found = true
			}
		}
		if found {
			return best, true
		}
	}

	return placementCandidate{}, false
}

// split carves the occupied region [start, start+size) out of free chunk
// id, creating left-padding and/or trailing free chunks as needed, and
// returns id repurposed as the occupied chunk.
func (pb *poolBlock) split(id chunkID, start, size uint64, allocType vkalloc.AllocationType) chunkID {
	c := pb.chunks[id]
	pb.unmarkFree(id)

	if start > c.offset {
		leftID := pb.newChunk(&chunk{offset: c.offset, size: start - c.offset, free: true, prev: c.prev, next: id})
		if c.prev != 0 {
			pb.chunks[c.prev].next = leftID
		} else {
			pb.head = leftID
		}
		c.prev = leftID
		pb.markFree(leftID)
	}

	end := start + size
	if end < c.offset+c.size {
		rightID := pb.newChunk(&chunk{offset: end, size: c.offset + c.size - end, free: true, prev: id, next: c.next})
		if c.next != 0 {
			pb.chunks[c.next].prev = rightID
		}
		c.next = rightID
		pb.markFree(rightID)
	}

	c.offset = start
	c.size = size
	c.free = false
	c.allocType = allocType
	return id
}

// free marks chunk id free and coalesces it with a free previous and/or
// next neighbor. Either neighbor, or both, may be free; each free one is
// merged in turn, so no two free chunks are left adjacent.
func (pb *poolBlock) free(id chunkID) {
	c := pb.chunks[id]
	c.free = true

	if c.prev != 0 {
		prevID := c.prev
		prev := pb.chunks[prevID]
		if prev.free {
			pb.unmarkFree(prevID)
			prev.size += c.size
			prev.next = c.next
			if c.next != 0 {
				pb.chunks[c.next].prev = prevID
			}
			if pb.head == id {
				pb.head = prevID
			}
			delete(pb.chunks, id)
			id = prevID
			c = prev
		}
	}

	if c.next != 0 {
		nextID := c.next
		next := pb.chunks[nextID]
		if next.free {
			pb.unmarkFree(nextID)
			c.size += next.size
			c.next = next.next
			if next.next != 0 {
				pb.chunks[next.next].prev = id
			}
			delete(pb.chunks, nextID)
		}
	}

	pb.markFree(id)
}
