// Package general implements a free-list, best-fit sub-allocator over one
// or more device-memory pools, one per memory-type index actually used.
//
// Each pool holds an insertion-ordered slice of blocks; each block tiles
// its byte range with a doubly linked list of chunks, addressed by
// integer chunkID rather than Go pointer so the list can be walked,
// split, and coalesced without building a cyclic pointer graph. A
// size-keyed free index (a sorted slice of distinct free sizes, each
// mapping to the set of chunks of that size) accelerates the best-fit
// scan: candidates are examined in ascending size order, so the first
// size bucket containing any feasible placement already has the minimal
// possible internal waste.
//
// Allocation never happens across blocks: a request that cannot be
// placed in any existing block grows the pool by one new block sized to
// fit it, and is retried. Freed chunks coalesce with free neighbors but
// blocks themselves are never returned to the device until the whole
// allocator is destroyed.
package general
