package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"
)

// Environment variables consulted when the matching flag is not set.
const (
	EnvCatalog = "DOCSYNC_CATALOG"
	EnvDB      = "DOCSYNC_DB"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the docsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "docsync",
		Short: "docsync - document model synchronization",
		Long: `Tooling for synchronized document models: validate model catalogs and
documents, apply JSON patches, and inspect or replay the patch journal.

Commands that need a catalog or a journal read --catalog and --db, falling
back to the ` + EnvCatalog + ` and ` + EnvDB + ` environment variables.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewCatalogCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// newLogger returns a text logger on w at info level, or debug when
// verbose.
func newLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// fromEnv returns value, or the environment variable key when value is
// empty.
func fromEnv(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

// requirePath resolves a path flag with its environment fallback.
func requirePath(value, flag, key string) (string, error) {
	if p := fromEnv(value, key); p != "" {
		return p, nil
	}
	return "", NewExitError(ExitCommandError, fmt.Sprintf("--%s or %s is required", flag, key))
}
