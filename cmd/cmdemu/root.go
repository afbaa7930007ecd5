package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gogpu/cmdemu"
	"github.com/gogpu/cmdemu/internal/config"
)

// options are the global flags.
type options struct {
	cfgFile string
	cfg     *config.Config
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "cmdemu",
		Short: "Explicit command buffer emulation over an implicit native API",
		Long: `cmdemu records command buffers, infers the barriers an explicit API
requires, and replays them against an implicit-state native context.

Configuration is read from --config, $HOME/.cmdemu/config.yaml or
./config.yaml, and CMDEMU_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(o.cfgFile)
			if err != nil {
				return err
			}
			o.cfg = cfg
			cmdemu.SetLogger(newLogger(cmd, cfg.Logging))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&o.cfgFile, "config", "", "config file (default is $HOME/.cmdemu/config.yaml)")

	root.AddCommand(newReplayCmd(o), newBackendsCmd(), newHLSLCmd())
	return root
}

func newLogger(cmd *cobra.Command, c config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	w := cmd.ErrOrStderr()
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
