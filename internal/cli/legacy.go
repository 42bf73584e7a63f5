package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/nbstore/internal/legacy"
	"github.com/roach88/nbstore/internal/storage"
)

// LegacyOptions holds flags for the legacy commands.
type LegacyOptions struct {
	*DocOptions
	Database string
}

// NewLegacyCommand creates the legacy command group for v1 databases.
func NewLegacyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LegacyOptions{DocOptions: &DocOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Read and import v1 space databases",
		Long: `A v1 database keeps one row per update. It is read-only here: the
database file is never created, and pushes to it are ignored.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to the v1 database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	get := &cobra.Command{
		Use:           "get <space-type> <space-id> <doc-id>",
		Short:         "Merge and print a document from a v1 database",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacyGet(opts, cmd, args)
		},
	}
	get.Flags().StringVarP(&opts.File, "out", "o", "", "write the merged binary to this file")

	imp := &cobra.Command{
		Use:   "import <space-type> <space-id>",
		Short: "Copy every v1 document into the space and reset its peer clocks",
		Long: `Push the merged state of every document in the v1 database into the
space as one update each, then clear the space's peer clocks so it resyncs.

Examples:
  nbstore legacy import workspace ws1 --db ~/old/ws1.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacyImport(opts, cmd, args)
		},
	}

	cmd.AddCommand(get, imp)
	return cmd
}

func (o *LegacyOptions) open(args []string) (*legacy.DocStorage, error) {
	key, err := parseSpaceArgs(args)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(o.Database); err != nil {
		return nil, WrapExitError(ExitCommandError, "legacy database not found", err)
	}
	return legacy.NewDocStorage(legacy.Options{
		Options: storage.Options{Type: key.Type, ID: key.ID},
		Path:    o.Database,
	}), nil
}

func runLegacyGet(opts *LegacyOptions, cmd *cobra.Command, args []string) error {
	v1, err := opts.open(args)
	if err != nil {
		return err
	}
	defer v1.Disconnect(context.Background())

	rec, err := v1.GetDoc(commandContext(cmd), args[2])
	if err != nil {
		return storageExit("failed to read legacy doc", err)
	}
	return writeDoc(opts.DocOptions, cmd, args[2], rec)
}

func runLegacyImport(opts *LegacyOptions, cmd *cobra.Command, args []string) error {
	v1, err := opts.open(args)
	if err != nil {
		return err
	}
	defer v1.Disconnect(context.Background())

	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		if err := v1.Connect(ctx); err != nil {
			return storageExit("failed to open legacy database", err)
		}
		docs, err := st.Doc()
		if err != nil {
			return storageExit("doc storage", err)
		}
		sync, err := st.Sync()
		if err != nil {
			return storageExit("sync storage", err)
		}
		n, err := legacy.Import(ctx, v1, docs, sync)
		if err != nil {
			return storageExit("legacy import failed", err)
		}
		result := map[string]any{"space": st.Key().String(), "imported": n}
		return opts.formatter(cmd).Result(result, func(w io.Writer) {
			fmt.Fprintf(w, "imported %d docs into %s\n", n, st.Key())
		})
	})
}
