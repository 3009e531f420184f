package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wirecheck/wirecheck/internal/harness"
)

// FileValidation is the per-file validation outcome.
type FileValidation struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results for all checked files.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Validate scenario files without running them",
		Long: `Validate scenario files against the schema without executing them.

Performs YAML parsing, schema validation, and semantic checks (role,
version, direction, frame schedule, strategy triggers). Faster than run
for development feedback.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result := ValidationResult{Valid: true}
	for _, path := range paths {
		formatter.VerboseLog("validating: %s", path)
		fv := FileValidation{Path: path, Valid: true}
		if _, err := harness.LoadScenario(path); err != nil {
			fv.Valid = false
			fv.Error = err.Error()
			result.Valid = false
		}
		result.Files = append(result.Files, fv)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		for _, fv := range result.Files {
			if fv.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s\n", fv.Path)
			} else {
				fmt.Fprintf(formatter.Writer, "✗ %s\n    %s\n", fv.Path, fv.Error)
			}
		}
	}

	if !result.Valid {
		failed := 0
		for _, fv := range result.Files {
			if !fv.Valid {
				failed++
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d file(s)", failed))
	}
	return nil
}
