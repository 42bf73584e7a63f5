package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/sqlite"
	"github.com/roach88/nbstore/internal/storage"
)

// DocOptions holds flags for the doc commands.
type DocOptions struct {
	*RootOptions
	File  string // update input for push, snapshot output for get/replay
	After string
}

// NewDocCommand creates the doc command group.
func NewDocCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DocOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Push, read and delete CRDT documents",
	}

	push := &cobra.Command{
		Use:   "push <space-type> <space-id> <doc-id>",
		Short: "Append an update to a document",
		Long: `Append one CRDT update to a document and print the assigned clock.

The update is read from --file, or from stdin when --file is "-" or empty.

Examples:
  nbstore doc push workspace ws1 page1 --file update.bin
  cat update.bin | nbstore doc push workspace ws1 page1`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocPush(opts, cmd, args)
		},
	}
	push.Flags().StringVarP(&opts.File, "file", "f", "", "update binary (default stdin)")

	get := &cobra.Command{
		Use:           "get <space-type> <space-id> <doc-id>",
		Short:         "Print the merged snapshot of a document",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocGet(opts, cmd, args)
		},
	}
	get.Flags().StringVarP(&opts.File, "out", "o", "", "write the snapshot binary to this file")

	del := &cobra.Command{
		Use:           "delete <space-type> <space-id> <doc-id>",
		Short:         "Delete a document with all its updates and its clock",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocDelete(opts, cmd, args)
		},
	}

	timestamps := &cobra.Command{
		Use:   "timestamps <space-type> <space-id>",
		Short: "List document clocks",
		Long: `List the clock of every document in a space.

--after keeps clocks at or after the given time (unix milliseconds or RFC 3339).`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocTimestamps(opts, cmd, args)
		},
	}
	timestamps.Flags().StringVar(&opts.After, "after", "", "only clocks at or after this time")

	replay := &cobra.Command{
		Use:   "replay <space-type> <space-id> <doc-id>",
		Short: "Rebuild a document from its update log",
		Long: `Merge every stored update of a document from scratch, ignoring the
cached snapshot. Always opens the space database in-process.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocReplay(opts, cmd, args)
		},
	}
	replay.Flags().StringVarP(&opts.File, "out", "o", "", "write the replayed binary to this file")

	cmd.AddCommand(push, get, del, timestamps, replay)
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func runDocPush(opts *DocOptions, cmd *cobra.Command, args []string) error {
	bin, err := readInput(cmd, opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read update", err)
	}

	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		docs, err := st.Doc()
		if err != nil {
			return storageExit("doc storage", err)
		}
		clock, err := docs.PushDocUpdate(ctx, space.DocUpdate{DocID: args[2], Bin: bin})
		if err != nil {
			return storageExit("failed to push update", err)
		}
		return opts.formatter(cmd).Result(clock, func(w io.Writer) {
			fmt.Fprintf(w, "%s\t%s\n", clock.DocID, formatTime(clock.Timestamp))
		})
	})
}

func runDocGet(opts *DocOptions, cmd *cobra.Command, args []string) error {
	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		docs, err := st.Doc()
		if err != nil {
			return storageExit("doc storage", err)
		}
		rec, err := docs.GetDoc(ctx, args[2])
		if err != nil {
			return storageExit("failed to get doc", err)
		}
		return writeDoc(opts, cmd, args[2], rec)
	})
}

func writeDoc(opts *DocOptions, cmd *cobra.Command, docID string, rec *space.DocRecord) error {
	if rec == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("doc %q not found", docID))
	}
	if opts.File != "" {
		if err := os.WriteFile(opts.File, rec.Bin, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write snapshot", err)
		}
	}
	return opts.formatter(cmd).Result(rec, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%s\t%d bytes\n", rec.DocID, formatTime(rec.Timestamp), len(rec.Bin))
	})
}

func runDocDelete(opts *DocOptions, cmd *cobra.Command, args []string) error {
	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		docs, err := st.Doc()
		if err != nil {
			return storageExit("doc storage", err)
		}
		if err := docs.DeleteDoc(ctx, args[2]); err != nil {
			return storageExit("failed to delete doc", err)
		}
		return opts.formatter(cmd).Result(map[string]string{"docId": args[2]}, func(w io.Writer) {
			fmt.Fprintf(w, "deleted %s\n", args[2])
		})
	})
}

func runDocTimestamps(opts *DocOptions, cmd *cobra.Command, args []string) error {
	after, err := parseTime(opts.After)
	if err != nil {
		return err
	}
	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		docs, err := st.Doc()
		if err != nil {
			return storageExit("doc storage", err)
		}
		clocks, err := docs.GetDocTimestamps(ctx, after)
		if err != nil {
			return storageExit("failed to list timestamps", err)
		}
		return writeClocks(opts.formatter(cmd), clocks)
	})
}

// writeClocks prints clocks sorted by doc id.
func writeClocks(f *OutputFormatter, clocks space.DocClocks) error {
	if clocks == nil {
		clocks = space.DocClocks{}
	}
	return f.Result(clocks, func(w io.Writer) {
		ids := lo.Keys(clocks)
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(w, "%s\t%s\n", id, formatTime(clocks[id]))
		}
	})
}

func runDocReplay(opts *DocOptions, cmd *cobra.Command, args []string) error {
	key, err := parseSpaceArgs(args)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	docs := sqlite.NewDocStorage(opts.runtime(), connection.NewArena(), storage.Options{Type: key.Type, ID: key.ID})
	defer docs.Disconnect(context.Background())

	rec, err := docs.ReplayDoc(ctx, args[2])
	if err != nil {
		return storageExit("failed to replay doc", err)
	}
	return writeDoc(opts, cmd, args[2], rec)
}
