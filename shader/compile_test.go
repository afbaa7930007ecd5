package shader

import (
	"encoding/binary"
	"testing"
)

const fillWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = id.x;
}
`

func TestCompileWGSL(t *testing.T) {
	blob, err := CompileWGSL(fillWGSL)
	if err != nil {
		t.Fatalf("CompileWGSL: %v", err)
	}
	if len(blob) < 20 || len(blob)%4 != 0 {
		t.Fatalf("blob length %d is not a SPIR-V module", len(blob))
	}
	if magic := binary.LittleEndian.Uint32(blob); magic != 0x07230203 {
		t.Errorf("magic = %#x, want SPIR-V magic", magic)
	}
}

func TestCompileWGSLError(t *testing.T) {
	if _, err := CompileWGSL("fn main( {"); err == nil {
		t.Error("expected error for malformed source")
	}
}
