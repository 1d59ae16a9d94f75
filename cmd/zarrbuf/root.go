package main

import (
	"github.com/TuSKan/ndbuffer/pep3118"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newRootCommand() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:           "zarrbuf",
		Short:         "Inspect Zarr arrays as PEP 3118 buffers",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				return nil
			}
			pep3118.SetLogger(newLogger(cmd))
			return nil
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log export diagnostics to stderr")

	cmd.AddCommand(newInspectCommand())
	cmd.AddCommand(newFormatCommand())
	return cmd
}

// newLogger builds a debug level console logger writing to the command's
// stderr.
func newLogger(cmd *cobra.Command) *zap.Logger {
	encoderCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(cmd.ErrOrStderr()),
		zapcore.DebugLevel,
	)
	return zap.New(core)
}
