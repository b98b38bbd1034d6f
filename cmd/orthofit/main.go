package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	olog "github.com/sawpanic/orthofit/internal/log"
)

const (
	appName = "orthofit"
	version = "v0.4.0"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Per-point signal approximation over a non-orthogonal basis",
		Version: version,
		Long: `orthofit approximates the time series at every point of a gridded dataset
as a linear combination of basis fields. The basis is orthogonalized with
Gram-Schmidt, the signal is projected, and the coefficients are mapped back
to the original basis.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return olog.Setup(os.Stderr, opts.logLevel, opts.logFormat)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "auto", "Log format (auto|console|json)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newSelfTestCmd(),
		newSynthCmd(opts),
		newInspectCmd(),
	)
	return rootCmd
}

func fail(err error, msg string) error {
	log.Error().Err(err).Msg(msg)
	return fmt.Errorf("%s: %w", msg, err)
}
