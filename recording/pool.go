package recording

import (
	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
)

// Span is a typed reference to a contiguous run of items in an Arena.
// The zero Span is empty.
type Span[T any] struct {
	off, n uint32
}

// Len returns the number of items referenced.
func (s Span[T]) Len() int { return int(s.n) }

// Arena stores items of one type for a command buffer.
type Arena[T any] struct {
	items []T
}

// Add appends items and returns their span.
func (a *Arena[T]) Add(items ...T) Span[T] {
	// #nosec G115 -- arena size is bounded by available memory, well under uint32 max
	s := Span[T]{off: uint32(len(a.items)), n: uint32(len(items))}
	a.items = append(a.items, items...)
	return s
}

// Get returns the items of s. The result must not be modified.
func (a *Arena[T]) Get(s Span[T]) []T {
	end := s.off + s.n
	if int(end) > len(a.items) {
		return nil
	}
	return a.items[s.off:end:end]
}

// Len returns the number of stored items.
func (a *Arena[T]) Len() int { return len(a.items) }

func (a *Arena[T]) reset() {
	clear(a.items)
	a.items = a.items[:0]
}

// ArgPool holds the variable-length payloads of a command buffer.
//
// ArgPool is not safe for concurrent use; it is owned by its buffer.
type ArgPool struct {
	Runs         Arena[descriptor.Run]
	Vertex       Arena[VertexBinding]
	BufferCopies Arena[BufferCopy]
	ImageCopies  Arena[ImageCopy]
	BufferImages Arena[BufferImageCopy]
	Bytes        Arena[byte]
	Barriers     Arena[Barrier]
	Attachments  Arena[Attachment]
	Clears       Arena[ClearValue]
	Viewports    Arena[hal.Viewport]
	Scissors     Arena[hal.Rect]
	Uses         Arena[Use]
}

func (p *ArgPool) reset() {
	p.Runs.reset()
	p.Vertex.reset()
	p.BufferCopies.reset()
	p.ImageCopies.reset()
	p.BufferImages.reset()
	p.Bytes.reset()
	p.Barriers.reset()
	p.Attachments.reset()
	p.Clears.reset()
	p.Viewports.reset()
	p.Scissors.reset()
	p.Uses.reset()
}
