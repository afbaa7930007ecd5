package hal

import (
	"strings"

	"golang.org/x/exp/constraints"
)

// Access is the way an operation touches a resource.
type Access uint8

// Access kinds.
const (
	AccessRead Access = 1 << iota
	AccessWrite

	AccessReadWrite = AccessRead | AccessWrite
)

// Reads reports whether the access reads the resource.
func (a Access) Reads() bool { return hasBits(a, AccessRead) }

// Writes reports whether the access writes the resource.
func (a Access) Writes() bool { return hasBits(a, AccessWrite) }

// String returns "read", "write" or "readwrite".
func (a Access) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "readwrite"
	}
	return "none"
}

// Stage is a set of pipeline stages.
type Stage uint32

// Pipeline stages, in pipeline order.
const (
	StageTopOfPipe Stage = 1 << iota
	StageDrawIndirect
	StageVertexInput
	StageVertexShader
	StageFragmentShader
	StageEarlyFragmentTests
	StageLateFragmentTests
	StageColorAttachmentOutput
	StageComputeShader
	StageTransfer
	StageBottomOfPipe
	StageHost

	StageNone Stage = 0

	StageAllGraphics = StageDrawIndirect | StageVertexInput | StageVertexShader |
		StageFragmentShader | StageEarlyFragmentTests | StageLateFragmentTests |
		StageColorAttachmentOutput
	StageAllCommands = StageAllGraphics | StageComputeShader | StageTransfer
)

var stageNames = [...]string{
	"TopOfPipe", "DrawIndirect", "VertexInput", "VertexShader", "FragmentShader",
	"EarlyFragmentTests", "LateFragmentTests", "ColorAttachmentOutput",
	"ComputeShader", "Transfer", "BottomOfPipe", "Host",
}

// Has reports whether every stage in want is contained in s.
func (s Stage) Has(want Stage) bool { return hasBits(s, want) }

// String joins the stage names with '|'.
func (s Stage) String() string {
	if s == StageNone {
		return "None"
	}
	var parts []string
	for i, name := range stageNames {
		if s&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// ShaderStage is a set of programmable shader stages a binding is visible to.
type ShaderStage uint8

// Shader stages.
const (
	ShaderVertex ShaderStage = 1 << iota
	ShaderFragment
	ShaderCompute

	ShaderGraphics = ShaderVertex | ShaderFragment
)

// Pipeline returns the pipeline stages executing the given shader stages.
func (s ShaderStage) Pipeline() Stage {
	var out Stage
	if hasBits(s, ShaderVertex) {
		out |= StageVertexShader
	}
	if hasBits(s, ShaderFragment) {
		out |= StageFragmentShader
	}
	if hasBits(s, ShaderCompute) {
		out |= StageComputeShader
	}
	return out
}

// Each calls f for every single stage in s, in vertex, fragment, compute order.
func (s ShaderStage) Each(f func(ShaderStage)) {
	for _, one := range [...]ShaderStage{ShaderVertex, ShaderFragment, ShaderCompute} {
		if hasBits(s, one) {
			f(one)
		}
	}
}

// String returns the stage name for a single stage.
func (s ShaderStage) String() string {
	switch s {
	case ShaderVertex:
		return "VS"
	case ShaderFragment:
		return "PS"
	case ShaderCompute:
		return "CS"
	}
	var parts []string
	s.Each(func(one ShaderStage) { parts = append(parts, one.String()) })
	return strings.Join(parts, "|")
}

func hasBits[N constraints.Unsigned](t, want N) bool {
	return (t & want) == want
}
