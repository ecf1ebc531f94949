// Package cli implements the quadra command line.
package cli

import (
	"fmt"
	"os"

	"github.com/aleksaelezovic/quadra/internal/config"
	"github.com/aleksaelezovic/quadra/pkg/store"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	DataDir    string
	InMemory   bool
	Verbose    bool
	LogFormat  string
}

// ValidLogFormats defines the allowed log formats.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the quadra CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "quadra",
		Short: "quadra - embeddable RDF quad store",
		Long:  "An embeddable RDF quad store with a SPARQL algebra evaluator.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.LogFormat != "" && !isValidLogFormat(opts.LogFormat) {
				return fmt.Errorf("invalid log format %q: must be one of %v", opts.LogFormat, ValidLogFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data", "", "data directory (overrides data_dir)")
	cmd.PersistentFlags().BoolVar(&opts.InMemory, "in-memory", false, "keep the store in memory")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json)")

	cmd.AddCommand(NewDemoCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewMatchCommand(opts))
	cmd.AddCommand(NewReachCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewVacuumCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewRestoreCommand(opts))

	return cmd
}

func isValidLogFormat(format string) bool {
	for _, f := range ValidLogFormats {
		if f == format {
			return true
		}
	}
	return false
}

// config loads the config file and applies the global flags over it.
func (o *RootOptions) config() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.InMemory {
		cfg.InMemory = true
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	return cfg, cfg.Validate()
}

// open opens the configured store. Logs go to the command's error stream.
func (o *RootOptions) open(cmd *cobra.Command) (*store.Store, *config.Config, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}
	log := cfg.Logger(cmd.ErrOrStderr())
	s, err := cfg.OpenStore(log)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	log.Debug("store opened", "data_dir", cfg.DataDir, "in_memory", cfg.InMemory)
	return s, cfg, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
