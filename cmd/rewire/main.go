package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/toyz/rewire/internal/demo"
	"github.com/toyz/rewire/internal/utils"
	"github.com/toyz/rewire/pkg/rewire"
)

type rootOptions struct {
	verbose    bool
	quiet      bool
	configFile string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "rewire",
		Short: "Run and inspect a rewire application",
		Long: `rewire runs the bundled notes application on a pluggable HTTP engine.
Routes are reconciled from component declarations and rebuilt in place
whenever watched sources or configuration change.

Process arguments of the form key=value override configuration,
profiles=a,b selects environment profiles and help prints this text.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable verbose output and debug logging")
	cmd.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "Only show errors")
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "rewire.yaml", "Configuration file")

	cmd.AddCommand(newServeCmd(opts), newRoutesCmd(opts), newVersionCmd())
	return cmd
}

func (o *rootOptions) diagnostics(cmd *cobra.Command) *utils.DiagnosticSystem {
	var d *utils.DiagnosticSystem
	switch {
	case o.quiet:
		d = utils.NewQuietDiagnostics()
	case o.verbose:
		d = utils.NewVerboseDiagnostics()
	default:
		d = utils.NewDiagnosticSystem(utils.DiagnosticInfo)
	}
	if cmd.OutOrStdout() != os.Stdout {
		d.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
	}
	return d
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if o.verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	if o.quiet {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	}
	return cfg.Build()
}

// newRuntime builds the process-wide runtime the demo entry point uses
func (o *rootOptions) newRuntime(logger *zap.Logger, reg prometheus.Registerer) *rewire.Runtime {
	rt := rewire.New(
		rewire.WithLogger(logger),
		rewire.WithConfigFile(o.configFile),
		rewire.WithResources(demo.Views),
		rewire.WithMetricsRegisterer(reg),
	)
	rewire.SetDefault(rt)
	return rt
}

// runArgs reports the reserved help argument as cobra help
func runArgs(cmd *cobra.Command, err error) error {
	if errors.Is(err, rewire.ErrHelp) {
		fmt.Fprintln(cmd.OutOrStdout(), rewire.HelpText)
		return nil
	}
	return err
}
