package shader

import "github.com/gogpu/naga/hlsl"

// RegisterClass is a native binding register class.
type RegisterClass uint8

// Register classes, in HLSL order b, t, s, u.
const (
	ClassConstantBuffer RegisterClass = iota
	ClassShaderResource
	ClassSampler
	ClassUnorderedAccess

	// ClassCount is the number of register classes.
	ClassCount
)

// String returns the HLSL register prefix.
func (c RegisterClass) String() string {
	switch c {
	case ClassConstantBuffer:
		return "b"
	case ClassShaderResource:
		return "t"
	case ClassSampler:
		return "s"
	case ClassUnorderedAccess:
		return "u"
	}
	return "?"
}

// HLSL returns the naga HLSL register type for c.
func (c RegisterClass) HLSL() hlsl.RegisterType {
	switch c {
	case ClassShaderResource:
		return hlsl.RegisterTypeT
	case ClassSampler:
		return hlsl.RegisterTypeS
	case ClassUnorderedAccess:
		return hlsl.RegisterTypeU
	}
	return hlsl.RegisterTypeB
}
