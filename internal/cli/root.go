// Package cli provides the command-line interface for form990.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"form990/internal/config"
	"form990/internal/logger"
)

// Version is set at build time.
var Version = "0.1.0"

// defaultConfigPath is loaded when --config is not given and the file exists.
const defaultConfigPath = "configs/form990.yaml"

// options carries global flags and the state shared by subcommands.
type options struct {
	configFile string
	logLevel   string
	logFile    string

	cfg      *config.Config
	log      *logger.Logger
	closeLog func() error
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "form990",
		Short: "Extract Form 990 e-file data for a batch of nonprofits",
		Long: `form990 looks up IRS Form 990 e-filings for (EIN, fiscal year) pairs,
downloads each filing and flattens it into a fixed set of columns.

Examples:
  form990 run targets.csv
  form990 run targets.xlsx -o extract.xlsx --format xlsx
  form990 serve --addr :8080
  form990 resolve 13-1837418 2022
  form990 extract filing.xml`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}

			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.closeLog != nil {
				if err := opts.closeLog(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
				}
			}
		},
	}

	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "path to YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "also write JSON logs to this file")

	root.AddCommand(
		newRunCommand(opts),
		newServeCommand(opts),
		newExtractCommand(opts),
		newResolveCommand(opts),
		newSchemaCommand(opts),
		newVersionCommand(),
	)

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *options) load() error {
	cfg, err := loadConfig(o.configFile)
	if err != nil {
		return err
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	if o.logFile != "" {
		cfg.Logging.File = o.logFile
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	o.cfg = cfg
	o.log, o.closeLog = logger.NewLoggerWithFile(cfg.Logging.Level, cfg.Logging.File)

	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfig(path)
	}

	if _, err := os.Stat(defaultConfigPath); err == nil {
		return config.LoadConfig(defaultConfigPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", defaultConfigPath, err)
	}

	return config.Default(), nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "form990 %s\n", Version)
		},
	}
}
