// Command binlogctl drives the binlog transport stack from the host
// side: a loopback simulation, a real pty bridge, and a raw-frame
// decoder, for exercising binlog.Transport/binlog.Server/binlog.Emitter
// without a physical device attached.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath string
	verbose bool
	log     *zap.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "binlogctl",
		Short:         "binlog transport harness",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if verbose {
				log, err = zap.NewDevelopment()
			} else {
				cfg := zap.NewProductionConfig()
				cfg.DisableStacktrace = true
				log, err = cfg.Build()
			}
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if log != nil {
				_ = log.Sync()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to a YAML link/port config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSimCmd())
	root.AddCommand(newPtyCmd())
	root.AddCommand(newDecodeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "binlogctl:", err)
		os.Exit(1)
	}
}
