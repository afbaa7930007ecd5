package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/cmdemu/descriptor"
	"github.com/gogpu/cmdemu/hal"
	"github.com/gogpu/cmdemu/shader"
)

var stages = map[string]hal.ShaderStage{
	"vertex":   hal.ShaderVertex,
	"fragment": hal.ShaderFragment,
	"compute":  hal.ShaderCompute,
}

func newHLSLCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "hlsl",
		Short: "Print the HLSL of a scenario shader with its register assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stage, ok := stages[name]
			if !ok {
				return fmt.Errorf("unknown stage %q (have %s)", name, strings.Join(slices.Sorted(maps.Keys(stages)), ", "))
			}
			src, err := translate(stage)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), src)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "stage", "compute", "shader stage")
	return cmd
}

// translate lowers the stage's scenario source to HLSL, binding resources
// to the registers its pipeline layout assigns.
func translate(stage hal.ShaderStage) (string, error) {
	desc := &descriptor.LayoutDescriptor{Label: stage.String()}
	if stage == hal.ShaderCompute {
		setl, err := descriptor.NewSetLayout(workBindings...)
		if err != nil {
			return "", err
		}
		desc.Sets = []*descriptor.SetLayout{setl}
	}
	layout, err := descriptor.NewPipelineLayout(desc)
	if err != nil {
		return "", err
	}
	module, err := shader.ParseWGSL(sources[stage])
	if err != nil {
		return "", err
	}
	return shader.TranslateHLSL(module, layout.HLSLOptions(stage))
}
