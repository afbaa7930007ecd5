package hal

import (
	"errors"
	"fmt"
	"testing"
)

func TestUsageStateString(t *testing.T) {
	tests := []struct {
		state UsageState
		want  string
	}{
		{StateUndefined, "Undefined"},
		{StateColorAttachment, "ColorAttachment"},
		{StatePresent, "Present"},
		{StateIndirectArgument, "IndirectArgument"},
		{UsageState(200), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestUsageStateKinds(t *testing.T) {
	if StateColorAttachment.BufferState() {
		t.Error("ColorAttachment must not apply to buffers")
	}
	if StateVertexBuffer.ImageState() {
		t.Error("VertexBuffer must not apply to images")
	}
	if !StateShaderResource.BufferState() || !StateShaderResource.ImageState() {
		t.Error("ShaderResource applies to both kinds")
	}
	if !StateTransferSrc.ReadOnly() || StateTransferDst.ReadOnly() {
		t.Error("ReadOnly classification wrong for transfer states")
	}
	if UsageState(99).Valid() {
		t.Error("out of range state reported valid")
	}
}

func TestAccess(t *testing.T) {
	if !AccessReadWrite.Reads() || !AccessReadWrite.Writes() {
		t.Error("ReadWrite must read and write")
	}
	if AccessRead.Writes() || AccessWrite.Reads() {
		t.Error("single accesses leak")
	}
	if AccessReadWrite.String() != "readwrite" || Access(0).String() != "none" {
		t.Errorf("String() = %q, %q", AccessReadWrite, Access(0))
	}
}

func TestStage(t *testing.T) {
	if got := (StageTransfer | StageComputeShader).String(); got != "ComputeShader|Transfer" {
		t.Errorf("String() = %q", got)
	}
	if StageNone.String() != "None" {
		t.Errorf("StageNone.String() = %q", StageNone)
	}
	if !StageAllCommands.Has(StageFragmentShader | StageTransfer) {
		t.Error("AllCommands must contain fragment and transfer")
	}
	if StageAllGraphics.Has(StageComputeShader) {
		t.Error("AllGraphics must not contain compute")
	}
}

func TestShaderStage(t *testing.T) {
	if got := ShaderGraphics.Pipeline(); got != StageVertexShader|StageFragmentShader {
		t.Errorf("Pipeline() = %v", got)
	}
	var seen []ShaderStage
	(ShaderCompute | ShaderVertex).Each(func(s ShaderStage) { seen = append(seen, s) })
	if len(seen) != 2 || seen[0] != ShaderVertex || seen[1] != ShaderCompute {
		t.Errorf("Each order = %v", seen)
	}
	if ShaderGraphics.String() != "VS|PS" {
		t.Errorf("String() = %q", ShaderGraphics)
	}
}

func TestCommandError(t *testing.T) {
	err := fmt.Errorf("submit: %w", &CommandError{
		Buffer:  "frame",
		Index:   3,
		Command: "Draw",
		Err:     fmt.Errorf("no pipeline: %w", ErrInvalidCommand),
	})
	if !errors.Is(err, ErrInvalidCommand) {
		t.Error("CommandError must unwrap to its cause")
	}
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Index != 3 {
		t.Fatalf("errors.As failed: %v", err)
	}
	if got := ce.Error(); got != "frame[3] Draw: no pipeline: hal: invalid command" {
		t.Errorf("Error() = %q", got)
	}
}
