package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bokeh/bokeh-sub002/internal/catalog"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
	Type string // only describe this type
}

// TypeInfo describes one compiled node type.
type TypeInfo struct {
	Name    string     `json:"name"`
	Subtype string     `json:"subtype,omitempty"`
	Attrs   []AttrInfo `json:"attrs"`
}

// AttrInfo describes one attribute of a type.
type AttrInfo struct {
	Name     string          `json:"name"`
	Default  json.RawMessage `json:"default"`
	Columnar bool            `json:"columnar,omitempty"`
}

// CatalogResult is the output of the catalog command.
type CatalogResult struct {
	Files []string   `json:"files"`
	Types []TypeInfo `json:"types"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog <catalog-dir>",
		Short: "Compile model definitions and describe their types",
		Long: `Compile the CUE model definitions in a directory and print every type
with its attributes and defaults.

Examples:
  docsync catalog ./models
  docsync catalog ./models --type Plot --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "describe a single type")

	return cmd
}

func runCatalog(opts *CatalogOptions, dir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	res, err := catalog.Load(dir)
	if err != nil {
		code := catalog.ErrorCode(err)
		_ = f.Error(code, err.Error(), nil)
		var le *catalog.LoadError
		if errors.As(err, &le) && le.Code == catalog.ErrCodeNotFound {
			return WrapExitError(ExitCommandError, "failed to load catalog", err)
		}
		return WrapExitError(ExitFailure, "failed to load catalog", err)
	}
	f.VerboseLog("Compiled %d file(s) from %s", len(res.Files), dir)

	names := res.Catalog.Types()
	if opts.Type != "" {
		if _, err := res.Catalog.Lookup(opts.Type); err != nil {
			_ = f.Error(string(model.ErrCodeUnknownType), err.Error(), nil)
			return WrapExitError(ExitFailure, "unknown type", err)
		}
		names = []string{opts.Type}
	}

	result := CatalogResult{Files: res.Files, Types: make([]TypeInfo, 0, len(names))}
	for _, name := range names {
		t, _ := res.Catalog.Lookup(name)
		info, err := describeType(t)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to describe "+name, err)
		}
		result.Types = append(result.Types, info)
	}

	if f.JSON() {
		return f.Success(result)
	}
	return outputCatalogText(f, result)
}

func describeType(t *model.Type) (TypeInfo, error) {
	info := TypeInfo{Name: t.Name, Subtype: t.Subtype}
	for _, attr := range t.Attrs() {
		def, err := model.MarshalValue(t.Default(attr))
		if err != nil {
			return TypeInfo{}, fmt.Errorf("%s.%s: %w", t.Name, attr, err)
		}
		info.Attrs = append(info.Attrs, AttrInfo{
			Name:     attr,
			Default:  def,
			Columnar: t.IsColumnar(attr),
		})
	}
	return info, nil
}

func outputCatalogText(f *OutputFormatter, result CatalogResult) error {
	w := f.Writer
	fmt.Fprintf(w, "%d type(s) from %d file(s)\n", len(result.Types), len(result.Files))
	for _, t := range result.Types {
		fmt.Fprintln(w)
		if t.Subtype != "" {
			fmt.Fprintf(w, "%s (%s)\n", t.Name, t.Subtype)
		} else {
			fmt.Fprintln(w, t.Name)
		}
		for _, a := range t.Attrs {
			suffix := ""
			if a.Columnar {
				suffix = " [columnar]"
			}
			fmt.Fprintf(w, "  %s = %s%s\n", a.Name, a.Default, suffix)
		}
	}
	return nil
}
