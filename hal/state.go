package hal

// UsageState is the usage a resource is currently prepared for.
// It is the HAL-level equivalent of an image layout / buffer access state.
type UsageState uint8

// Usage states.
const (
	// StateUndefined means the contents are undefined. Any transition out of
	// Undefined may discard the previous contents.
	StateUndefined UsageState = iota
	StateGeneral
	StateTransferSrc
	StateTransferDst
	StateColorAttachment
	StateDepthAttachment
	StateShaderResource
	StateUnorderedAccess
	StatePresent

	// Buffer-only read states.
	StateVertexBuffer
	StateIndexBuffer
	StateConstantBuffer
	StateIndirectArgument

	stateCount
)

var usageStateNames = [...]string{
	StateUndefined:        "Undefined",
	StateGeneral:          "General",
	StateTransferSrc:      "TransferSrc",
	StateTransferDst:      "TransferDst",
	StateColorAttachment:  "ColorAttachment",
	StateDepthAttachment:  "DepthAttachment",
	StateShaderResource:   "ShaderResource",
	StateUnorderedAccess:  "UnorderedAccess",
	StatePresent:          "Present",
	StateVertexBuffer:     "VertexBuffer",
	StateIndexBuffer:      "IndexBuffer",
	StateConstantBuffer:   "ConstantBuffer",
	StateIndirectArgument: "IndirectArgument",
}

// String returns the state name.
func (s UsageState) String() string {
	if int(s) < len(usageStateNames) {
		return usageStateNames[s]
	}
	return "Unknown"
}

// Valid reports whether s is a known state.
func (s UsageState) Valid() bool {
	return s < stateCount
}

// ReadOnly reports whether a resource in this state may only be read.
func (s UsageState) ReadOnly() bool {
	switch s {
	case StateTransferSrc, StateShaderResource, StatePresent,
		StateVertexBuffer, StateIndexBuffer, StateConstantBuffer, StateIndirectArgument:
		return true
	}
	return false
}

// BufferState reports whether the state applies to buffers.
func (s UsageState) BufferState() bool {
	switch s {
	case StateColorAttachment, StateDepthAttachment, StatePresent:
		return false
	}
	return s.Valid()
}

// ImageState reports whether the state applies to images.
func (s UsageState) ImageState() bool {
	switch s {
	case StateVertexBuffer, StateIndexBuffer, StateConstantBuffer, StateIndirectArgument:
		return false
	}
	return s.Valid()
}
