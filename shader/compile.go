package shader

import (
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/hlsl"
	"github.com/gogpu/naga/ir"
)

// CompileWGSL compiles WGSL source to a SPIR-V blob.
func CompileWGSL(source string) ([]byte, error) {
	blob, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile wgsl: %w", err)
	}
	return blob, nil
}

// ParseWGSL parses and lowers WGSL source to naga IR.
func ParseWGSL(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shader: parse wgsl: %w", err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shader: lower wgsl: %w", err)
	}
	return module, nil
}

// TranslateHLSL generates HLSL for module with the register assignment in
// opts, usually built by descriptor.PipelineLayout.HLSLOptions.
func TranslateHLSL(module *ir.Module, opts *hlsl.Options) (string, error) {
	src, _, err := hlsl.Compile(module, opts)
	if err != nil {
		return "", fmt.Errorf("shader: translate hlsl: %w", err)
	}
	return src, nil
}
