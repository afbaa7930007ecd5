// Package resource implements the resource handle table: opaque, generation
// checked identities for buffers, images, views and samplers, together with
// the metadata and tracked usage state the rest of the core needs.
//
// Native objects are produced by an [Allocator]. Two allocators are provided:
//
//   - [HALAllocator] creates objects on a gogpu/wgpu hal.Device
//   - [HostAllocator] keeps host-side stand-ins under a memory budget
//
// # Tracked State
//
// Each buffer and image carries a [hal.UsageState]. The table exposes it for
// reading to anyone, but only the holder of the table's [Ledger] may change
// it. The hazard tracker is the sole ledger holder.
//
// # Thread Safety
//
// Table is safe for concurrent use. Handles are plain values and may be
// copied freely between goroutines.
package resource
