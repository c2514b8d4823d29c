package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bokeh/bokeh-sub002/internal/catalog"
	"github.com/bokeh/bokeh-sub002/internal/document"
	"github.com/bokeh/bokeh-sub002/internal/journal"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Catalog    string
	Database   string
	DocumentID string // restore this journaled document
	From       string // start from this full-document file
	Origin     string
	Out        string // write the final document here
}

// ApplyResult is the outcome of the apply command.
type ApplyResult struct {
	Document  string `json:"document"`
	Title     string `json:"title"`
	Roots     int    `json:"roots"`
	Models    int    `json:"models"`
	Applied   int    `json:"applied"`
	Journaled int    `json:"journaled"`
	LastSeq   int64  `json:"last_seq,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <patch.json>...",
		Short: "Apply JSON patches to a document",
		Long: `Apply JSON patches, in order, to a document.

The document is restored from the journal (--doc), loaded from a
full-document file (--from), or created empty. With a journal, every
applied patch is recorded so late peers can catch up with replay.
Patches applied before a failing one stay applied.

Examples:
  docsync apply --catalog ./models --from doc.json p1.json p2.json --out final.json
  docsync apply --catalog ./models --db ./docs.db --doc 0190... patch.json
  DOCSYNC_CATALOG=./models DOCSYNC_DB=./docs.db docsync apply patch.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "model definitions directory (env "+EnvCatalog+")")
	cmd.Flags().StringVar(&opts.Database, "db", "", "patch journal database (env "+EnvDB+")")
	cmd.Flags().StringVar(&opts.DocumentID, "doc", "", "journaled document id to restore")
	cmd.Flags().StringVar(&opts.From, "from", "", "full-document JSON to start from")
	cmd.Flags().StringVar(&opts.Origin, "origin", "peer", "origin tag for applied changes")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the final document JSON to this file")
	cmd.MarkFlagsMutuallyExclusive("doc", "from")

	return cmd
}

func runApply(opts *ApplyOptions, patches []string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	catDir, err := requirePath(opts.Catalog, "catalog", EnvCatalog)
	if err != nil {
		return err
	}
	res, err := catalog.Load(catDir)
	if err != nil {
		_ = f.Error(catalog.ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	dbPath := fromEnv(opts.Database, EnvDB)
	if opts.DocumentID != "" && dbPath == "" {
		return NewExitError(ExitCommandError, "--doc needs a journal: set --db or "+EnvDB)
	}
	var j *journal.Journal
	if dbPath != "" {
		j, err = journal.Open(dbPath, journal.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
	}

	d, err := loadDocument(ctx, opts, j, res.Catalog, logger)
	if err != nil {
		_ = f.Error(ErrCodeBadDocument, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load document", err)
	}
	d.Lock()
	defer d.Unlock()

	var rec *journal.Recorder
	if j != nil {
		rec, err = j.Record(ctx, d)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start journal", err)
		}
		defer rec.Stop()
	}

	result := ApplyResult{Document: d.ID()}
	origin := model.Origin(opts.Origin)
	var applyErr error
	for _, path := range patches {
		data, err := os.ReadFile(path)
		if err != nil {
			applyErr = fmt.Errorf("%s: %w", path, err)
			break
		}
		if err := d.ApplyPatchJSON(data, origin); err != nil {
			applyErr = fmt.Errorf("%s: %w", path, err)
			break
		}
		result.Applied++
		f.VerboseLog("Applied %s", path)
	}

	if rec != nil {
		if err := rec.Err(); err != nil {
			return WrapExitError(ExitCommandError, "failed to journal patches", err)
		}
		result.Journaled = rec.Appended()
		if result.LastSeq, err = j.LastSeq(ctx, d.ID()); err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
	}
	result.Title = d.Title()
	result.Roots = len(d.Roots())
	result.Models = len(d.Models())

	if opts.Out != "" {
		data, err := d.ToJSON()
		if err == nil {
			err = os.WriteFile(opts.Out, data, 0o644)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to write document", err)
		}
	}

	if applyErr != nil {
		code := ErrCodeApplyFailed
		var me *model.Error
		if errors.As(applyErr, &me) {
			code = string(me.Code)
		}
		if err := f.Failure(code, applyErr.Error(), result); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "apply failed", applyErr)
	}

	if f.JSON() {
		return f.Success(result)
	}
	w := f.Writer
	fmt.Fprintf(w, "✓ Applied %d patch(es) to %s\n", result.Applied, result.Document)
	fmt.Fprintf(w, "  Title: %s\n", result.Title)
	fmt.Fprintf(w, "  Roots: %d, models: %d\n", result.Roots, result.Models)
	if rec != nil {
		fmt.Fprintf(w, "  Journaled: %d (last seq %d)\n", result.Journaled, result.LastSeq)
	}
	return nil
}

// loadDocument restores, reads or creates the document to patch.
func loadDocument(ctx context.Context, opts *ApplyOptions, j *journal.Journal, cat *model.Catalog, logger *slog.Logger) (*document.Document, error) {
	docOpts := []document.Option{document.WithCatalog(cat), document.WithLogger(logger)}
	switch {
	case opts.DocumentID != "":
		d, _, err := j.Restore(ctx, opts.DocumentID, docOpts...)
		return d, err
	case opts.From != "":
		data, err := os.ReadFile(opts.From)
		if err != nil {
			return nil, err
		}
		return document.FromJSON(data, docOpts...)
	default:
		return document.New(docOpts...)
	}
}
