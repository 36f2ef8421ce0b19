package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/elevated-systems/compute-gardener-window/pkg/computegardener/config"
)

// exitNotApproved is the exit code of check when execution is not approved
const exitNotApproved = 3

// exitError carries a process exit code out of a command
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

var (
	flagConfig  string
	flagEnvFile string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "carbon-window",
		Short: "Run workloads in low-carbon windows",
		Long: "carbon-window decides, on every trigger, whether now is an optimal " +
			"low-carbon window to run a workload, using a Carbon Aware SDK forecast.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML configuration file (overrides environment)")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Path to a .env file loaded into the environment if present")
	root.PersistentFlags().AddFlagSet(pflag.CommandLine)

	root.AddCommand(
		newRunCmd(),
		newCheckCmd(),
		newHistoryCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagEnvFile, flagConfig)
}

func init() {
	klog.InitFlags(nil)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

func main() {
	defer klog.Flush()

	if err := newRootCmd().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			klog.Flush()
			os.Exit(exit.code)
		}
		klog.ErrorS(err, "Command failed")
		klog.Flush()
		os.Exit(1)
	}
}
