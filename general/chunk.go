package general

import "github.com/gogpu/vkalloc"

// chunkID addresses a chunk within one poolBlock's arena. The zero value
// means "no chunk" (used for the ends of the linked list).
type chunkID uint64

// chunk is one tile of a block's byte range: either free or occupied by
// one allocation. prev/next link it into an offset-ordered list; both are
// zero at the ends of the block.
type chunk struct {
	offset    uint64
	size      uint64
	free      bool
	allocType vkalloc.AllocationType
	prev      chunkID
	next      chunkID
}
