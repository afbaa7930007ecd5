package resource

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/cmdemu/hal"
)

// bufferStateUsage maps buffer states to the usage flag they require.
var bufferStateUsage = map[hal.UsageState]gputypes.BufferUsage{
	hal.StateTransferSrc:      gputypes.BufferUsageCopySrc,
	hal.StateTransferDst:      gputypes.BufferUsageCopyDst,
	hal.StateShaderResource:   gputypes.BufferUsageStorage,
	hal.StateUnorderedAccess:  gputypes.BufferUsageStorage,
	hal.StateVertexBuffer:     gputypes.BufferUsageVertex,
	hal.StateIndexBuffer:      gputypes.BufferUsageIndex,
	hal.StateConstantBuffer:   gputypes.BufferUsageUniform,
	hal.StateIndirectArgument: gputypes.BufferUsageIndirect,
}

// imageStateUsage maps image states to the usage flag they require.
var imageStateUsage = map[hal.UsageState]gputypes.TextureUsage{
	hal.StateTransferSrc:     gputypes.TextureUsageCopySrc,
	hal.StateTransferDst:     gputypes.TextureUsageCopyDst,
	hal.StateColorAttachment: gputypes.TextureUsageRenderAttachment,
	hal.StateDepthAttachment: gputypes.TextureUsageRenderAttachment,
	hal.StateShaderResource:  gputypes.TextureUsageTextureBinding,
	hal.StateUnorderedAccess: gputypes.TextureUsageStorageBinding,
}

// CheckState verifies that a resource described by info may enter state.
// Resources created with zero usage flags accept every state of their kind.
func CheckState(info Info, state hal.UsageState) error {
	switch info.Kind {
	case KindBuffer, KindBufferView:
		if !state.BufferState() {
			return fmt.Errorf("resource: %s %q cannot enter %s: %w", info.Kind, info.Label, state, hal.ErrInvalidCommand)
		}
		want, ok := bufferStateUsage[state]
		if ok && info.BufferUsage != 0 && info.BufferUsage&want == 0 {
			return fmt.Errorf("resource: buffer %q lacks usage for %s: %w", info.Label, state, hal.ErrInvalidCommand)
		}
	case KindImage, KindImageView:
		if !state.ImageState() {
			return fmt.Errorf("resource: %s %q cannot enter %s: %w", info.Kind, info.Label, state, hal.ErrInvalidCommand)
		}
		want, ok := imageStateUsage[state]
		if ok && info.TextureUsage != 0 && info.TextureUsage&want == 0 {
			return fmt.Errorf("resource: image %q lacks usage for %s: %w", info.Label, state, hal.ErrInvalidCommand)
		}
	default:
		return fmt.Errorf("resource: %s has no usage state: %w", info.Kind, ErrWrongKind)
	}
	return nil
}

// IsDepthFormat reports whether f is a depth or depth-stencil format.
func IsDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth16Unorm,
		gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth32Float:
		return true
	}
	return false
}

// BytesPerTexel returns the storage size of one texel of f.
func BytesPerTexel(f gputypes.TextureFormat) uint64 {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatDepth16Unorm:
		return 2
	case gputypes.TextureFormatRGBA32Float:
		return 16
	}
	return 4
}
