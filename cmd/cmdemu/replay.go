package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/gogpu/cmdemu"
	"github.com/gogpu/cmdemu/fence"
	"github.com/gogpu/cmdemu/native/trace"
	"github.com/gogpu/cmdemu/queue"
)

func newReplayCmd(o *options) *cobra.Command {
	var (
		scenarioName string
		deferred     int
		repeat       int
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Record a scenario and replay it on the configured backend",
		Long: fmt.Sprintf(`Replay records one of the built-in scenarios, submits it to queue 0
and prints the native call log and the final resource states.

Scenarios: %v`, scenarioNames()),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := o.cfg
			if cmd.Flags().Changed("scenario") {
				cfg.Replay.Scenario = scenarioName
			}
			if cmd.Flags().Changed("deferred") {
				cfg.Device.DeferredContexts = deferred
			}
			if cmd.Flags().Changed("repeat") {
				cfg.Replay.Repeat = repeat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			build, ok := scenarios[cfg.Replay.Scenario]
			if !ok {
				return fmt.Errorf("unknown scenario %q, want one of %v", cfg.Replay.Scenario, scenarioNames())
			}

			dev, err := cmdemu.New(
				cmdemu.WithBackend(cfg.Device.Backend),
				cmdemu.WithQueueCount(cfg.Device.Queues),
				cmdemu.WithDeferredContexts(cfg.Device.DeferredContexts),
				cmdemu.WithMaxInFlight(cfg.Device.MaxInFlight),
				cmdemu.WithMemoryBudget(cfg.Device.MemoryBudgetMB),
			)
			if err != nil {
				return err
			}
			defer func() { _ = dev.Close() }()

			sc, err := build(dev)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Replay.Timeout)
			defer cancel()
			if err := run(ctx, dev, sc, cfg.Replay.Repeat); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if tc, ok := dev.Queue(0).Context().(*trace.Context); ok && cfg.Replay.Trace {
				fmt.Fprint(out, tc.Dump())
			}
			return printStates(out, dev, sc)
		},
	}
	cmd.Flags().StringVarP(&scenarioName, "scenario", "s", "", "scenario to replay")
	cmd.Flags().IntVar(&deferred, "deferred", 0, "deferred contexts used for parallel replay (0 replays inline)")
	cmd.Flags().IntVarP(&repeat, "repeat", "n", 1, "number of submissions")
	return cmd
}

// run submits the scenario repeat times, waiting for each submission.
func run(ctx context.Context, dev *cmdemu.Device, sc *scenario, repeat int) error {
	fc := fence.New("replay")
	for i := range repeat {
		if i > 0 {
			if err := fc.Reset(); err != nil {
				return err
			}
		}
		if err := dev.Submit(ctx, queue.Submission{Buffers: sc.buffers, Fence: fc}); err != nil {
			return fmt.Errorf("submission %d: %w", i, err)
		}
		if err := fc.WaitContext(ctx); err != nil {
			return fmt.Errorf("submission %d: %w", i, err)
		}
	}
	return dev.WaitIdle(ctx)
}

func printStates(w io.Writer, dev *cmdemu.Device, sc *scenario) error {
	fmt.Fprintln(w, "states:")
	for _, name := range slices.Sorted(maps.Keys(sc.watch)) {
		st, err := dev.State(sc.watch[name])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s: %s\n", name, st)
	}
	return nil
}
