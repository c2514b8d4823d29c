package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bokeh/bokeh-sub002/internal/journal"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	After    int64
	Patches  bool // include patch payloads
}

// LogEntry is one journaled patch in log output.
type LogEntry struct {
	Seq        int64           `json:"seq"`
	Origin     string          `json:"origin,omitempty"`
	Events     int             `json:"events"`
	Digest     string          `json:"digest"`
	RecordedAt time.Time       `json:"recorded_at"`
	Patch      json.RawMessage `json:"patch,omitempty"`
}

// LogResult is the output of the log command.
type LogResult struct {
	Document string     `json:"document"`
	After    int64      `json:"after"`
	Entries  []LogEntry `json:"entries"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <document-id>",
		Short: "List journaled patches for a document",
		Long: `List the patches journaled for a document, in sequence order.

Every payload is checked against its stored digest while reading; a
corrupted entry fails the command.

Examples:
  docsync log --db ./docs.db 0190...
  docsync log --db ./docs.db 0190... --after 12 --patches --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "patch journal database (env "+EnvDB+")")
	cmd.Flags().Int64Var(&opts.After, "after", 0, "only entries with a greater seq")
	cmd.Flags().BoolVar(&opts.Patches, "patches", false, "include patch payloads")

	return cmd
}

func runLog(opts *LogOptions, docID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	j, err := openJournal(opts.Database, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Entries(ctx, docID, opts.After)
	if err != nil {
		_ = f.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read journal", err)
	}

	result := LogResult{Document: docID, After: opts.After, Entries: make([]LogEntry, 0, len(entries))}
	for _, e := range entries {
		le := LogEntry{
			Seq:        e.Seq,
			Origin:     string(e.Origin),
			Events:     e.Events,
			Digest:     e.Digest,
			RecordedAt: time.UnixMilli(e.RecordedAt).UTC(),
		}
		if opts.Patches {
			le.Patch = e.Patch
		}
		result.Entries = append(result.Entries, le)
	}

	if f.JSON() {
		return f.Success(result)
	}
	return outputLogText(f, result)
}

func outputLogText(f *OutputFormatter, result LogResult) error {
	w := f.Writer
	if len(result.Entries) == 0 {
		fmt.Fprintf(w, "No entries for document %s after seq %d.\n", result.Document, result.After)
		return nil
	}
	fmt.Fprintf(w, "Document %s: %d entr(ies)\n\n", result.Document, len(result.Entries))
	for _, e := range result.Entries {
		origin := e.Origin
		if origin == "" {
			origin = "local"
		}
		fmt.Fprintf(w, "[%d] %s  %d event(s) from %s  %s\n",
			e.Seq, e.RecordedAt.Format(time.RFC3339), e.Events, origin, e.Digest[:12])
		if e.Patch != nil {
			fmt.Fprintf(w, "    %s\n", e.Patch)
		}
	}
	return nil
}

// openJournal opens the journal named by the --db flag or its environment
// fallback.
func openJournal(path string, opts *RootOptions, cmd *cobra.Command) (*journal.Journal, error) {
	dbPath, err := requirePath(path, "db", EnvDB)
	if err != nil {
		return nil, err
	}
	j, err := journal.Open(dbPath, journal.WithLogger(newLogger(opts, cmd.ErrOrStderr())))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}
