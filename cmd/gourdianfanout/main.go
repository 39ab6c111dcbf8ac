// Command gourdianfanout writes leveled log streams and inspects their segment files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gourdian25/gourdianfanout"
	"github.com/gourdian25/gourdianfanout/jobstore"
)

// fileConfig is the layout of a configuration file: pipeline options at the
// top level plus an optional scheduler section.
type fileConfig struct {
	gourdianfanout.Config `mapstructure:",squash"`
	Scheduler             jobstore.Settings `mapstructure:"scheduler"`
}

type rootOptions struct {
	configPath string
	dir        string
	maxBytes   int64
	retain     int
	minLevel   string
	format     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "gourdianfanout",
		Short: "Leveled, rotating log fan-out",
		Long: "gourdianfanout writes events into per-severity rotating log streams " +
			"plus a catch-all stream, and inspects the resulting segment files.",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "configuration file (.yaml, .toml or .json)")
	flags.StringVar(&opts.dir, "dir", "", "log directory")
	flags.Int64Var(&opts.maxBytes, "max-bytes", 0, "maximum segment size in bytes")
	flags.IntVar(&opts.retain, "retain", 0, "segments retained per stream")
	flags.StringVar(&opts.minLevel, "min-level", "", "minimum severity (debug|info|warn|error|fatal)")
	flags.StringVar(&opts.format, "format", "", "line format (plain|json)")

	rootCmd.AddCommand(
		newEmitCmd(opts),
		newPipeCmd(opts),
		newSegmentsCmd(opts),
		newCheckCmd(opts),
		newServeCmd(opts),
	)
	return rootCmd
}

// loadConfig layers defaults, the config file, LOG_* variables and flags,
// in increasing precedence.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (fileConfig, error) {
	fc := fileConfig{Config: gourdianfanout.DefaultConfig()}

	if opts.configPath != "" {
		if err := gourdianfanout.DecodeConfigFiles(&fc, opts.configPath); err != nil {
			return fileConfig{}, err
		}
	}
	if err := fc.Config.ApplyEnvOverrides(); err != nil {
		return fileConfig{}, err
	}
	fc.Scheduler.ApplyEnvOverrides()

	flags := cmd.Flags()
	if flags.Changed("dir") {
		fc.LogsDir = opts.dir
	}
	if flags.Changed("max-bytes") {
		fc.MaxBytes = opts.maxBytes
	}
	if flags.Changed("retain") {
		fc.RetainCount = opts.retain
	}
	if flags.Changed("min-level") {
		fc.MinLevelStr = opts.minLevel
	}
	if flags.Changed("format") {
		fc.FormatStr = opts.format
	}

	fc.ErrorHandler = func(err error) {
		fmt.Fprintf(cmd.ErrOrStderr(), "gourdianfanout: %v\n", err)
	}
	return fc, nil
}

func openPipeline(cmd *cobra.Command, opts *rootOptions) (*gourdianfanout.Pipeline, fileConfig, error) {
	fc, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, fileConfig{}, err
	}
	p, err := gourdianfanout.New(fc.Config)
	if err != nil {
		return nil, fileConfig{}, err
	}
	return p, fc, nil
}
