package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bokeh/bokeh-sub002/internal/catalog"
	"github.com/bokeh/bokeh-sub002/internal/document"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// ValidationError is one problem found by the validate command.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Types     int               `json:"types"`
	Documents int               `json:"documents"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir> [document.json...]",
		Short: "Validate model definitions and documents",
		Long: `Validate the CUE model definitions in a directory, reporting every bad
type rather than stopping at the first. Each document file given after the
directory is then loaded against the catalog and checked for integrity:
every reference resolves and every reachable node belongs to the document.

Exit codes:
  0 - Catalog and documents are valid
  1 - Validation failed
  2 - Command error (directory not found, etc.)

Examples:
  docsync validate ./models
  docsync validate ./models doc.json --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], args[1:], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, docs []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	res, err := catalog.Load(dir, catalog.WithCollectAll())
	if err != nil {
		var le *catalog.LoadError
		if errors.As(err, &le) {
			_ = f.Error(le.Code, le.Message, nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		return outputValidationErrors(f, catalogErrors(err))
	}
	f.VerboseLog("Found %d CUE file(s) in %s", len(res.Files), dir)

	result := ValidationResult{Valid: true, Types: len(res.Catalog.Types()), Documents: len(docs)}
	for _, path := range docs {
		f.VerboseLog("Validating document: %s", path)
		if verr := validateDocument(path, res.Catalog); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}
	if len(result.Errors) > 0 {
		return outputValidationErrors(f, result.Errors)
	}

	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ %d type(s) valid\n", result.Types)
	if result.Documents > 0 {
		fmt.Fprintf(f.Writer, "✓ %d document(s) valid\n", result.Documents)
	}
	return nil
}

// catalogErrors flattens the joined compile errors of a collect-all load.
func catalogErrors(err error) []ValidationError {
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	out := make([]ValidationError, 0, len(errs))
	for _, e := range errs {
		var ce *catalog.CompileError
		if errors.As(e, &ce) {
			verr := ValidationError{Code: catalog.ErrCodeInvalidType, Field: ce.Field, Message: ce.Message}
			if ce.Pos.IsValid() {
				verr.File = ce.Pos.Filename()
				verr.Line = ce.Pos.Line()
			}
			out = append(out, verr)
			continue
		}
		out = append(out, ValidationError{Code: catalog.ErrorCode(e), Field: "catalog", Message: e.Error()})
	}
	return out
}

// validateDocument loads a full-document JSON file and checks it.
func validateDocument(path string, cat *model.Catalog) *ValidationError {
	fail := func(err error) *ValidationError {
		code := ErrCodeBadDocument
		var me *model.Error
		if errors.As(err, &me) {
			code = string(me.Code)
		}
		return &ValidationError{Code: code, Field: "document", Message: err.Error(), File: path}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	d, err := document.FromJSON(data, document.WithCatalog(cat))
	if err != nil {
		return fail(err)
	}
	d.Lock()
	defer d.Unlock()
	if err := d.Validate(); err != nil {
		return fail(err)
	}
	return nil
}

func outputValidationErrors(f *OutputFormatter, errs []ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	if f.JSON() {
		if err := f.Failure(errs[0].Code, errs[0].Message, ValidationResult{Errors: errs}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, e := range errs {
		switch {
		case e.Line > 0:
			fmt.Fprintf(f.Writer, "%s:%d\n", e.File, e.Line)
		case e.File != "":
			fmt.Fprintln(f.Writer, e.File)
		}
		fmt.Fprintf(f.Writer, "  %s %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return failed
}
