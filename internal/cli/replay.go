package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bokeh/bokeh-sub002/internal/catalog"
	"github.com/bokeh/bokeh-sub002/internal/document"
	"github.com/bokeh/bokeh-sub002/internal/harness"
	"github.com/bokeh/bokeh-sub002/internal/journal"
	"github.com/bokeh/bokeh-sub002/internal/model"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Catalog  string
	Out      string
}

// ReplayDocument summarizes one journaled document.
type ReplayDocument struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Version       string `json:"version"`
	SnapshotSeq   int64  `json:"snapshot_seq"`
	Patches       int    `json:"patches"`
	LastSeq       int64  `json:"last_seq"`
	Models        int    `json:"models,omitempty"`
	Deterministic *bool  `json:"deterministic,omitempty"`
}

// ReplayResult is the output of the replay command.
type ReplayResult struct {
	Documents []ReplayDocument `json:"documents"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay [document-id]",
		Short: "Restore a document from the journal and verify determinism",
		Long: `Without arguments, list every journaled document.

With a document id, rebuild the document from its latest snapshot and the
patches journaled after it. The rebuild runs twice and the two results are
compared in canonical JSON form to verify replay is deterministic.

Exit codes:
  0 - Replay succeeded and is deterministic
  1 - Replay failed or the two rebuilds differ
  2 - Command error (journal not found, unknown document, etc.)

Examples:
  docsync replay --db ./docs.db
  docsync replay --db ./docs.db --catalog ./models 0190... --out doc.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListDocuments(opts, cmd)
			}
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "patch journal database (env "+EnvDB+")")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "model definitions directory (env "+EnvCatalog+")")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the restored document JSON to this file")

	return cmd
}

func runListDocuments(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	j, err := openJournal(opts.Database, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	infos, err := j.Documents(ctx)
	if err != nil {
		_ = f.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list documents", err)
	}
	result := ReplayResult{Documents: make([]ReplayDocument, 0, len(infos))}
	for _, info := range infos {
		result.Documents = append(result.Documents, replayDocument(info))
	}

	if f.JSON() {
		return f.Success(result)
	}
	if len(result.Documents) == 0 {
		fmt.Fprintln(f.Writer, "No documents found in journal.")
		return nil
	}
	fmt.Fprintf(f.Writer, "%d document(s)\n\n", len(result.Documents))
	for _, d := range result.Documents {
		fmt.Fprintf(f.Writer, "%s %q\n", d.ID, d.Title)
		fmt.Fprintf(f.Writer, "  snapshot at seq %d, %d patch(es), last seq %d\n", d.SnapshotSeq, d.Patches, d.LastSeq)
	}
	return nil
}

func runReplay(opts *ReplayOptions, docID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	catDir, err := requirePath(opts.Catalog, "catalog", EnvCatalog)
	if err != nil {
		return err
	}
	res, err := catalog.Load(catDir)
	if err != nil {
		_ = f.Error(catalog.ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	j, err := openJournal(opts.Database, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	info, err := findDocument(ctx, j, docID)
	if err != nil {
		_ = f.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find document", err)
	}

	first, models, err := restoreJSON(ctx, j, docID, res.Catalog)
	if err != nil {
		return replayFailed(f, err)
	}
	second, _, err := restoreJSON(ctx, j, docID, res.Catalog)
	if err != nil {
		return replayFailed(f, err)
	}
	deterministic := bytes.Equal(first, second)

	out := replayDocument(info)
	out.Models = models
	out.Deterministic = &deterministic
	result := ReplayResult{Documents: []ReplayDocument{out}}

	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, first, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write document", err)
		}
	}

	if !deterministic {
		_ = f.Failure(ErrCodeReplay, "replay is not deterministic", result)
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "✓ Restored %s %q\n", out.ID, out.Title)
	fmt.Fprintf(f.Writer, "  snapshot at seq %d + %d patch(es), %d model(s)\n", out.SnapshotSeq, out.Patches, out.Models)
	fmt.Fprintln(f.Writer, "✓ Replay verified deterministic")
	return nil
}

// restoreJSON rebuilds the document and returns its canonical JSON and
// model count.
func restoreJSON(ctx context.Context, j *journal.Journal, docID string, cat *model.Catalog) ([]byte, int, error) {
	d, _, err := j.Restore(ctx, docID, document.WithCatalog(cat))
	if err != nil {
		return nil, 0, err
	}
	d.Lock()
	defer d.Unlock()
	data, err := d.ToJSON()
	if err != nil {
		return nil, 0, err
	}
	canonical, err := harness.CanonicalJSON(data)
	if err != nil {
		return nil, 0, err
	}
	return canonical, len(d.Models()), nil
}

func findDocument(ctx context.Context, j *journal.Journal, docID string) (journal.DocumentInfo, error) {
	infos, err := j.Documents(ctx)
	if err != nil {
		return journal.DocumentInfo{}, err
	}
	for _, info := range infos {
		if info.ID == docID {
			return info, nil
		}
	}
	return journal.DocumentInfo{}, fmt.Errorf("%w: %s", journal.ErrNotFound, docID)
}

func replayFailed(f *OutputFormatter, err error) error {
	code := ErrCodeReplay
	var me *model.Error
	if errors.As(err, &me) {
		code = string(me.Code)
	}
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(ExitFailure, "replay failed", err)
}

func replayDocument(info journal.DocumentInfo) ReplayDocument {
	return ReplayDocument{
		ID:          info.ID,
		Title:       info.Title,
		Version:     info.Version,
		SnapshotSeq: info.SnapshotSeq,
		Patches:     info.Patches,
		LastSeq:     info.LastSeq,
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
