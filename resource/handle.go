package resource

import "fmt"

// Kind identifies what a handle refers to.
type Kind uint8

// Resource kinds.
const (
	KindInvalid Kind = iota
	KindBuffer
	KindImage
	KindBufferView
	KindImageView
	KindSampler
	KindShaderModule
)

var kindNames = [...]string{
	KindInvalid:      "Invalid",
	KindBuffer:       "Buffer",
	KindImage:        "Image",
	KindBufferView:   "BufferView",
	KindImageView:    "ImageView",
	KindSampler:      "Sampler",
	KindShaderModule: "ShaderModule",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Tracked reports whether resources of this kind carry a usage state.
func (k Kind) Tracked() bool {
	return k == KindBuffer || k == KindImage
}

// IsView reports whether k is a view kind.
func (k Kind) IsView() bool {
	return k == KindBufferView || k == KindImageView
}

// Handle is an opaque reference to a table entry.
// The zero Handle is invalid.
type Handle struct {
	index      uint32
	generation uint32
}

// Index returns the slot index of the handle.
func (h Handle) Index() uint32 { return h.index }

// Generation returns the generation the handle was issued with.
func (h Handle) Generation() uint32 { return h.generation }

// IsValid reports whether h was issued by a table. It does not check
// whether the resource is still alive.
func (h Handle) IsValid() bool { return h.generation != 0 }

func (h Handle) String() string {
	if !h.IsValid() {
		return "res(invalid)"
	}
	return fmt.Sprintf("res(%d#%d)", h.index, h.generation)
}

// QueueID names a queue. Queue IDs start at 1; NoQueue means the resource
// is not exclusively owned.
type QueueID uint8

// NoQueue marks a resource shared by all queues.
const NoQueue QueueID = 0

// Native is an opaque object produced by an Allocator.
type Native any
