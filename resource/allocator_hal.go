package resource

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	wgpu "github.com/gogpu/wgpu/hal"

	"github.com/gogpu/cmdemu/hal"
)

// ErrNilDevice is returned when a HAL allocator is built without a device.
var ErrNilDevice = errors.New("resource: hal device is nil")

// HALBufferView is the native object for buffer views. The HAL has no
// buffer view objects; the view is a byte range of the parent buffer.
type HALBufferView struct {
	Buffer wgpu.Buffer
	Offset uint64
	Size   uint64
}

// HALAllocator allocates native objects on a gogpu/wgpu hal.Device.
// It does not own the device.
type HALAllocator struct {
	device wgpu.Device
}

// NewHALAllocator creates an allocator on device.
func NewHALAllocator(device wgpu.Device) (*HALAllocator, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	return &HALAllocator{device: device}, nil
}

// NewHALAllocatorFromProvider creates an allocator on the HAL device shared
// by a host application. The provider must also expose HalDevice() any
// returning a hal.Device.
func NewHALAllocatorFromProvider(provider gpucontext.DeviceProvider) (*HALAllocator, error) {
	type halProvider interface {
		HalDevice() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("resource: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(wgpu.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("resource: provider HalDevice is not hal.Device")
	}
	return NewHALAllocator(device)
}

// Device returns the underlying HAL device.
func (a *HALAllocator) Device() wgpu.Device {
	return a.device
}

// CreateBuffer implements Allocator.
func (a *HALAllocator) CreateBuffer(desc *BufferDescriptor) (Native, error) {
	buf, err := a.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", hal.ErrOutOfMemory, err)
	}
	return buf, nil
}

// CreateImage implements Allocator.
func (a *HALAllocator) CreateImage(desc *ImageDescriptor) (Native, error) {
	tex, err := a.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Size.Width,
			Height:             desc.Size.Height,
			DepthOrArrayLayers: desc.Size.DepthOrArrayLayers,
		},
		MipLevelCount: desc.MipLevelCount,
		SampleCount:   desc.SampleCount,
		Dimension:     desc.Dimension,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", hal.ErrOutOfMemory, err)
	}
	return tex, nil
}

// CreateView implements Allocator.
func (a *HALAllocator) CreateView(parent Native, kind Kind, desc *ViewDescriptor) (Native, error) {
	switch kind {
	case KindBufferView:
		buf, ok := parent.(wgpu.Buffer)
		if !ok {
			return nil, fmt.Errorf("resource: buffer view parent is %T: %w", parent, ErrWrongKind)
		}
		return &HALBufferView{Buffer: buf, Offset: desc.Offset, Size: desc.Size}, nil
	case KindImageView:
		tex, ok := parent.(wgpu.Texture)
		if !ok {
			return nil, fmt.Errorf("resource: image view parent is %T: %w", parent, ErrWrongKind)
		}
		view, err := a.device.CreateTextureView(tex, &wgpu.TextureViewDescriptor{
			Label: desc.Label,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", hal.ErrOutOfMemory, err)
		}
		return view, nil
	}
	return nil, fmt.Errorf("resource: create view of kind %s: %w", kind, ErrWrongKind)
}

// CreateSampler implements Allocator.
func (a *HALAllocator) CreateSampler(desc *SamplerDescriptor) (Native, error) {
	s, err := a.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label: desc.Label,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", hal.ErrOutOfMemory, err)
	}
	return s, nil
}

// CreateShaderModule implements Allocator. The blob must be SPIR-V.
func (a *HALAllocator) CreateShaderModule(label string, blob []byte) (Native, error) {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, fmt.Errorf("resource: shader module %q: blob of %d bytes is not SPIR-V: %w",
			label, len(blob), hal.ErrInvalidCommand)
	}
	// SPIR-V is little-endian 32-bit words.
	words := make([]uint32, len(blob)/4)
	for i := range words {
		words[i] = uint32(blob[i*4]) |
			uint32(blob[i*4+1])<<8 |
			uint32(blob[i*4+2])<<16 |
			uint32(blob[i*4+3])<<24
	}
	m, err := a.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		Source: wgpu.ShaderSource{
			SPIRV: words,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("resource: shader module %q: %w", label, err)
	}
	return m, nil
}

// Release implements Allocator. The kind selects the destroy call; HAL
// object interfaces may share a method set, so the dynamic type alone does
// not identify the object.
func (a *HALAllocator) Release(kind Kind, obj Native) {
	if obj == nil {
		return
	}
	switch kind {
	case KindBuffer:
		if b, ok := obj.(wgpu.Buffer); ok {
			a.device.DestroyBuffer(b)
		}
	case KindImage:
		if t, ok := obj.(wgpu.Texture); ok {
			a.device.DestroyTexture(t)
		}
	case KindImageView:
		if v, ok := obj.(wgpu.TextureView); ok {
			a.device.DestroyTextureView(v)
		}
	case KindSampler:
		if s, ok := obj.(wgpu.Sampler); ok {
			a.device.DestroySampler(s)
		}
	case KindShaderModule:
		if m, ok := obj.(wgpu.ShaderModule); ok {
			a.device.DestroyShaderModule(m)
		}
	case KindBufferView:
		// The parent buffer owns the memory.
	}
}

var _ Allocator = (*HALAllocator)(nil)
