// Package vkalloc provides GPU memory sub-allocators that sit on top of a
// low-level graphics API exposing coarse, page-sized device memory blocks.
//
// # Architecture
//
// The module is organized in layers, from the hard algorithmic core down
// to the device-facing interfaces callers implement:
//
//	┌─────────────────────────────────────────────────────────┐
//	│           general.Allocator / linear.Allocator           │
//	│  (free-list + best-fit, or bump allocation; public API)  │
//	├─────────────────────────────────────────────────────────┤
//	│                       block.Block                        │
//	│   (one device-memory region, optionally persistently      │
//	│                        mapped)                            │
//	├─────────────────────────────────────────────────────────┤
//	│                    memtype.Selector                      │
//	│  (maps a MemoryLocation + permitted type mask to an      │
//	│                  actual memory-type index)                │
//	├─────────────────────────────────────────────────────────┤
//	│                  device.Provider (caller)                │
//	│   (allocate / map / unmap / free real device memory)      │
//	└─────────────────────────────────────────────────────────┘
//
// # Two allocators
//
//   - general.Allocator: per-memory-type pools of blocks, each carrying a
//     free list of chunks with best-fit search, splitting, and neighbor
//     coalescing on free. This is the main engine.
//   - linear.Allocator: a single block with a monotonic cursor and a
//     single-shot FreeAll. No per-allocation bookkeeping survives a free.
//
// Both respect the device's buffer/image granularity: adjacent allocations
// of differing linearity (buffers/linear images vs. optimal images) are
// never placed so that they would share a granularity page.
//
// # Thread safety
//
// Every allocator in this module is a single-owner object with no internal
// locking. Callers sharing one allocator across goroutines must serialize
// access themselves.
//
// # Scope
//
// Device selection, logical device/queue creation, API entry-point
// loading, and command submission are not this module's concern. Callers
// supply a device.Provider, a device.MemoryProperties table, and a
// device.Limits source; vkalloc only sub-allocates within blocks those
// collaborators hand back.
package vkalloc
