package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables that supply flag values,
// e.g. GEOQUERY_SCHEMA for --schema.
const EnvPrefix = "GEOQUERY"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional config file supplying flag values
	Schema  string // schema file path

	// Fs is the filesystem for config, schema and load files.
	// Databases are always opened on the OS filesystem.
	Fs afero.Fs

	// Logger is configured before any subcommand runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the geoquery CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Fs: afero.NewOsFs()})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geoquery",
		Short: "Compile and run geospatial record queries",
		Long: `geoquery compiles OData $filter expressions into the SQL dialects and
geodatabase filter grammar of its record stores, and runs them against
SQLite, PostgreSQL or file geodatabase backends.

Every flag can also be set from the environment (GEOQUERY_<FLAG>, with
dashes as underscores) or from the file named by --config. Command line
flags take precedence over the environment, which takes precedence over
the config file.`,
		SilenceErrors: true, // main reports errors the commands have not
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Failures here are reported as text since --format itself may be bad.
			formatter := &OutputFormatter{Format: "text", Writer: cmd.ErrOrStderr()}
			if err := applyConfig(cmd, opts); err != nil {
				return formatter.Fail(ExitCommandError, "failed to load configuration", err)
			}
			// Validate format flag
			if !slices.Contains(ValidFormats, opts.Format) {
				err := NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
				_ = formatter.Error(ErrCodeUsage, err.Error(), nil)
				return err
			}
			logLevel := slog.LevelWarn
			if opts.Verbose {
				logLevel = slog.LevelDebug
			}
			opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: logLevel,
			}))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.Schema, "schema", "", "schema file (yaml or cue)")

	// Add subcommands
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewTranslateCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewLoadCommand(opts))

	return cmd
}

// applyConfig fills every flag not given on the command line from the
// environment or the config file.
func applyConfig(cmd *cobra.Command, opts *RootOptions) error {
	v := viper.New()
	v.SetFs(opts.Fs)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	config := opts.Config
	if config == "" {
		config = v.GetString("config")
	}
	if config != "" {
		v.SetConfigFile(config)
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := cmd.Flags().Set(f.Name, v.GetString(f.Name)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}
