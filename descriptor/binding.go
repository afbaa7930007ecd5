package descriptor

import (
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/resource"
	"github.com/gogpu/cmdemu/shader"
)

// BindingType is the type of a descriptor binding.
type BindingType uint8

// Binding types.
const (
	UniformBuffer BindingType = iota
	DynamicUniformBuffer
	SampledImage
	UniformTexelBuffer
	ReadOnlyStorageBuffer
	Sampler
	StorageBuffer
	DynamicStorageBuffer
	StorageImage
	CombinedImageSampler
)

var bindingTypeNames = [...]string{
	UniformBuffer:         "UniformBuffer",
	DynamicUniformBuffer:  "DynamicUniformBuffer",
	SampledImage:          "SampledImage",
	UniformTexelBuffer:    "UniformTexelBuffer",
	ReadOnlyStorageBuffer: "ReadOnlyStorageBuffer",
	Sampler:               "Sampler",
	StorageBuffer:         "StorageBuffer",
	DynamicStorageBuffer:  "DynamicStorageBuffer",
	StorageImage:          "StorageImage",
	CombinedImageSampler:  "CombinedImageSampler",
}

func (t BindingType) String() string {
	if int(t) < len(bindingTypeNames) {
		return bindingTypeNames[t]
	}
	return "Unknown"
}

var (
	classB  = []shader.RegisterClass{shader.ClassConstantBuffer}
	classT  = []shader.RegisterClass{shader.ClassShaderResource}
	classS  = []shader.RegisterClass{shader.ClassSampler}
	classU  = []shader.RegisterClass{shader.ClassUnorderedAccess}
	classTS = []shader.RegisterClass{shader.ClassShaderResource, shader.ClassSampler}
)

// Classes returns the register classes a binding of type t occupies.
func (t BindingType) Classes() []shader.RegisterClass {
	switch t {
	case UniformBuffer, DynamicUniformBuffer:
		return classB
	case SampledImage, UniformTexelBuffer, ReadOnlyStorageBuffer:
		return classT
	case Sampler:
		return classS
	case StorageBuffer, DynamicStorageBuffer, StorageImage:
		return classU
	case CombinedImageSampler:
		return classTS
	}
	return nil
}

// Dynamic reports whether the binding takes a dynamic offset at bind time.
func (t BindingType) Dynamic() bool {
	return t == DynamicUniformBuffer || t == DynamicStorageBuffer
}

// accepts reports whether a resource of kind k may be written to a binding
// of type t.
func (t BindingType) accepts(k resource.Kind) bool {
	switch t {
	case UniformBuffer, DynamicUniformBuffer, ReadOnlyStorageBuffer, StorageBuffer, DynamicStorageBuffer:
		return k == resource.KindBuffer || k == resource.KindBufferView
	case UniformTexelBuffer:
		return k == resource.KindBufferView
	case SampledImage, StorageImage, CombinedImageSampler:
		return k == resource.KindImageView || k == resource.KindImage
	case Sampler:
		return k == resource.KindSampler
	}
	return false
}

// ClassState returns the usage state a resource bound in class c must be in.
func ClassState(c shader.RegisterClass) hal.UsageState {
	switch c {
	case shader.ClassConstantBuffer:
		return hal.StateConstantBuffer
	case shader.ClassShaderResource:
		return hal.StateShaderResource
	case shader.ClassUnorderedAccess:
		return hal.StateUnorderedAccess
	}
	return hal.StateUndefined
}

// ClassAccess returns how shaders access resources bound in class c.
func ClassAccess(c shader.RegisterClass) hal.Access {
	if c == shader.ClassUnorderedAccess {
		return hal.AccessReadWrite
	}
	return hal.AccessRead
}
