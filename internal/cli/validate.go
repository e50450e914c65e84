package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds validation results for a watch file.
type ValidationResult struct {
	Valid   bool         `json:"valid"`
	Watches int          `json:"watches,omitempty"`
	Errors  []*LoadError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <watch-file>",
		Short: "Validate a watch file without running it",
		Long: `Validate a YAML watch file against the watch schema.

Performs YAML parsing, schema validation, and consistency checks (at
least one watch, unique names) without opening any database. All
violations are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, watchPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	wf, loadErrors := LoadWatchFile(watchPath)
	if len(loadErrors) == 0 {
		result := &ValidationResult{Valid: true, Watches: len(wf.Watches)}
		if err := outputValidationResult(formatter, result); err != nil {
			return err
		}
		return nil
	}

	// A missing or unreadable file is a command error, not a validation
	// failure.
	var loadErr *LoadError
	if errors.As(loadErrors[0], &loadErr) && loadErr.Code == ErrCodeNotFound {
		_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
		return NewExitError(ExitCommandError, loadErr.Message)
	}

	result := &ValidationResult{Valid: false}
	for _, err := range loadErrors {
		if errors.As(err, &loadErr) {
			result.Errors = append(result.Errors, loadErr)
		} else {
			result.Errors = append(result.Errors, &LoadError{Code: ErrCodeGeneric, Message: err.Error()})
		}
	}
	if err := outputValidationResult(formatter, result); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("watch file invalid: %d error(s)", len(result.Errors)))
}

// outputValidationResult renders a ValidationResult in the configured
// format.
func outputValidationResult(f *OutputFormatter, result *ValidationResult) error {
	if f.Format == "json" {
		if result.Valid {
			return f.Success(result)
		}
		return f.Error(ErrCodeSchemaFailed, "watch file invalid", result.Errors)
	}

	if result.Valid {
		_, err := fmt.Fprintf(f.Writer, "watch file valid: %d watch(es)\n", result.Watches)
		return err
	}

	fmt.Fprintf(f.Writer, "watch file invalid: %d error(s)\n", len(result.Errors))
	for _, loadErr := range result.Errors {
		fmt.Fprintf(f.Writer, "  %s\n", loadErr.Error())
	}
	return nil
}
