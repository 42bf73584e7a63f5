package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/nbstore/internal/config"
)

// ConfigCheck is the result of config validate.
type ConfigCheck struct {
	Valid bool   `json:"valid"`
	Path  string `json:"path,omitempty"`
	Field string `json:"field,omitempty"`
	Line  int    `json:"line,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or validate configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:           "show",
			Short:         "Print the effective configuration",
			Args:          cobra.NoArgs,
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigShow(opts, cmd)
			},
		},
		&cobra.Command{
			Use:   "validate <file>",
			Short: "Check a config file against the schema",
			Long: `Check a YAML config file against the embedded CUE schema.

Exit codes:
  0 - Config is valid
  1 - Config is invalid
  2 - Command error (file not readable)`,
			Args:          cobra.ExactArgs(1),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runConfigValidate(opts, cmd, args[0])
			},
		},
	)
	return cmd
}

func runConfigShow(opts *RootOptions, cmd *cobra.Command) error {
	out, err := yaml.Marshal(opts.Config)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to encode config", err)
	}
	return opts.formatter(cmd).Result(opts.Config, func(w io.Writer) {
		w.Write(out)
	})
}

func runConfigValidate(opts *RootOptions, cmd *cobra.Command, path string) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("validating %s", path)

	_, err := config.Load(path)
	if err == nil {
		return formatter.Result(ConfigCheck{Valid: true, Path: path}, func(w io.Writer) {
			fmt.Fprintf(w, "%s: valid\n", path)
		})
	}

	var ve *config.ValidationError
	if !errors.As(err, &ve) {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	check := ConfigCheck{Path: path, Field: ve.Path, Line: ve.Pos.Line(), Error: ve.Message}
	if werr := formatter.Result(check, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %s\n", path, ve.Error())
	}); werr != nil {
		return werr
	}
	return NewExitError(ExitFailure, "config is invalid")
}
