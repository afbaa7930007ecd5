package resource

import "github.com/gogpu/gputypes"

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes. Must be non-zero.
	Size uint64

	// Usage restricts which states the buffer may enter.
	// A zero usage leaves the buffer unrestricted.
	Usage gputypes.BufferUsage

	// Owner is the queue owning the buffer exclusively, or NoQueue.
	Owner QueueID
}

// ImageDescriptor describes an image to create.
type ImageDescriptor struct {
	Label         string
	Size          gputypes.Extent3D
	MipLevelCount uint32
	SampleCount   uint32
	Dimension     gputypes.TextureDimension
	Format        gputypes.TextureFormat

	// Usage restricts which states the image may enter.
	// A zero usage leaves the image unrestricted.
	Usage gputypes.TextureUsage

	// Owner is the queue owning the image exclusively, or NoQueue.
	Owner QueueID
}

// ViewDescriptor describes a buffer or image view.
type ViewDescriptor struct {
	Label string

	// Resource is the buffer or image the view is created on.
	Resource Handle

	// Format overrides the image format. Zero keeps the parent format.
	Format gputypes.TextureFormat

	// Offset and Size select a byte range of a buffer.
	// A zero Size means "to the end of the buffer".
	Offset uint64
	Size   uint64
}

// SamplerDescriptor describes a sampler.
type SamplerDescriptor struct {
	Label string
}

// Info is the metadata recorded for a table entry.
type Info struct {
	Kind  Kind
	Label string

	// Buffers and buffer views.
	Size        uint64
	Offset      uint64
	BufferUsage gputypes.BufferUsage

	// Images and image views.
	Extent        gputypes.Extent3D
	MipLevelCount uint32
	SampleCount   uint32
	Dimension     gputypes.TextureDimension
	Format        gputypes.TextureFormat
	TextureUsage  gputypes.TextureUsage

	// Parent is the viewed resource for views.
	Parent Handle

	// Owner is the exclusive owning queue, or NoQueue.
	Owner QueueID

	// Native is the allocator's object.
	Native Native
}
