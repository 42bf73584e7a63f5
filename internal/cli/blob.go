package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/sqlite"
	"github.com/roach88/nbstore/internal/storage"
)

// BlobOptions holds flags for the blob commands.
type BlobOptions struct {
	*RootOptions
	File        string
	Mime        string
	Permanently bool
	Deleted     bool
}

// NewBlobCommand creates the blob command group.
func NewBlobCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BlobOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Store, read and release binary attachments",
	}

	set := &cobra.Command{
		Use:   "set <space-type> <space-id> <key>",
		Short: "Store a blob, replacing any blob with the same key",
		Long: `Store a blob read from --file, or from stdin when --file is "-" or empty.
Storing over a deleted blob revives it.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlobSet(opts, cmd, args)
		},
	}
	set.Flags().StringVarP(&opts.File, "file", "f", "", "blob data (default stdin)")
	set.Flags().StringVar(&opts.Mime, "mime", "application/octet-stream", "MIME type")

	get := &cobra.Command{
		Use:   "get <space-type> <space-id> <key>",
		Short: "Print a blob's metadata, optionally writing its data",
		Long: `Print a live blob. --deleted reads a tombstoned blob that has not been
released yet; it always opens the space database in-process.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlobGet(opts, cmd, args)
		},
	}
	get.Flags().StringVarP(&opts.File, "out", "o", "", "write the blob data to this file")
	get.Flags().BoolVar(&opts.Deleted, "deleted", false, "read a deleted, unreleased blob")

	del := &cobra.Command{
		Use:   "delete <space-type> <space-id> <key>",
		Short: "Delete a blob",
		Long: `Tombstone a blob. It disappears from get and list but keeps its data
until released. --permanently removes it immediately.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlobDelete(opts, cmd, args)
		},
	}
	del.Flags().BoolVar(&opts.Permanently, "permanently", false, "remove the row instead of tombstoning it")

	list := &cobra.Command{
		Use:           "list <space-type> <space-id>",
		Short:         "List live blobs",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlobList(opts, cmd, args)
		},
	}

	release := &cobra.Command{
		Use:           "release <space-type> <space-id>",
		Short:         "Permanently remove every deleted blob",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlobRelease(opts, cmd, args)
		},
	}

	recoverCmd := &cobra.Command{
		Use:   "recover <space-type> <space-id> <key>",
		Short: "Undo the deletion of a blob that has not been released",
		Long: `Clear the tombstone of a deleted blob. Always opens the space database
in-process.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlobRecover(opts, cmd, args)
		},
	}

	cmd.AddCommand(set, get, del, list, release, recoverCmd)
	return cmd
}

func writeBlobMeta(f *OutputFormatter, meta space.BlobMeta) error {
	return f.Result(meta, func(w io.Writer) {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", meta.Key, meta.Mime, meta.Size, formatTime(meta.CreatedAt))
	})
}

func runBlobSet(opts *BlobOptions, cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read blob", err)
	}

	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		blobs, err := st.Blob()
		if err != nil {
			return storageExit("blob storage", err)
		}
		rec := space.BlobRecord{Key: args[2], Data: data, Mime: opts.Mime}
		if err := blobs.Set(ctx, rec); err != nil {
			return storageExit("failed to set blob", err)
		}
		stored, err := blobs.Get(ctx, args[2])
		if err != nil {
			return storageExit("failed to read back blob", err)
		}
		if stored == nil {
			return NewExitError(ExitFailure, fmt.Sprintf("blob %q missing after set", args[2]))
		}
		return writeBlobMeta(opts.formatter(cmd), stored.Meta())
	})
}

func runBlobGet(opts *BlobOptions, cmd *cobra.Command, args []string) error {
	if opts.Deleted {
		return withNativeBlobs(opts.RootOptions, cmd, args, func(ctx context.Context, blobs *sqlite.BlobStorage) error {
			rec, err := blobs.GetDeleted(ctx, args[2])
			if err != nil {
				return storageExit("failed to get deleted blob", err)
			}
			return writeBlob(opts, cmd, args[2], rec)
		})
	}

	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		blobs, err := st.Blob()
		if err != nil {
			return storageExit("blob storage", err)
		}
		rec, err := blobs.Get(ctx, args[2])
		if err != nil {
			return storageExit("failed to get blob", err)
		}
		return writeBlob(opts, cmd, args[2], rec)
	})
}

func writeBlob(opts *BlobOptions, cmd *cobra.Command, key string, rec *space.BlobRecord) error {
	if rec == nil {
		return NewExitError(ExitFailure, fmt.Sprintf("blob %q not found", key))
	}
	if opts.File != "" {
		if err := os.WriteFile(opts.File, rec.Data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write blob", err)
		}
	}
	return writeBlobMeta(opts.formatter(cmd), rec.Meta())
}

func runBlobDelete(opts *BlobOptions, cmd *cobra.Command, args []string) error {
	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		blobs, err := st.Blob()
		if err != nil {
			return storageExit("blob storage", err)
		}
		if err := blobs.Delete(ctx, args[2], opts.Permanently); err != nil {
			return storageExit("failed to delete blob", err)
		}
		result := map[string]any{"key": args[2], "permanently": opts.Permanently}
		return opts.formatter(cmd).Result(result, func(w io.Writer) {
			fmt.Fprintf(w, "deleted %s\n", args[2])
		})
	})
}

func runBlobList(opts *BlobOptions, cmd *cobra.Command, args []string) error {
	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		blobs, err := st.Blob()
		if err != nil {
			return storageExit("blob storage", err)
		}
		metas, err := blobs.List(ctx)
		if err != nil {
			return storageExit("failed to list blobs", err)
		}
		if metas == nil {
			metas = []space.BlobMeta{}
		}
		total := lo.SumBy(metas, func(m space.BlobMeta) int64 { return m.Size })
		opts.formatter(cmd).VerboseLog("%d blobs, %d bytes", len(metas), total)
		return opts.formatter(cmd).Result(metas, func(w io.Writer) {
			for _, m := range metas {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.Key, m.Mime, m.Size, formatTime(m.CreatedAt))
			}
		})
	})
}

func runBlobRelease(opts *BlobOptions, cmd *cobra.Command, args []string) error {
	return withSpace(opts.RootOptions, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		blobs, err := st.Blob()
		if err != nil {
			return storageExit("blob storage", err)
		}
		if err := blobs.Release(ctx); err != nil {
			return storageExit("failed to release blobs", err)
		}
		return opts.formatter(cmd).Result(map[string]string{"space": st.Key().String()}, func(w io.Writer) {
			fmt.Fprintln(w, "released deleted blobs")
		})
	})
}

func runBlobRecover(opts *BlobOptions, cmd *cobra.Command, args []string) error {
	return withNativeBlobs(opts.RootOptions, cmd, args, func(ctx context.Context, blobs *sqlite.BlobStorage) error {
		ok, err := blobs.Recover(ctx, args[2])
		if err != nil {
			return storageExit("failed to recover blob", err)
		}
		if !ok {
			return NewExitError(ExitFailure, fmt.Sprintf("no deleted blob %q to recover", args[2]))
		}
		return opts.formatter(cmd).Result(map[string]string{"key": args[2]}, func(w io.Writer) {
			fmt.Fprintf(w, "recovered %s\n", args[2])
		})
	})
}

// withNativeBlobs runs fn against the space database opened in-process.
func withNativeBlobs(opts *RootOptions, cmd *cobra.Command, args []string, fn func(ctx context.Context, blobs *sqlite.BlobStorage) error) error {
	key, err := parseSpaceArgs(args)
	if err != nil {
		return err
	}
	blobs := sqlite.NewBlobStorage(opts.runtime(), connection.NewArena(), storage.Options{Type: key.Type, ID: key.ID})
	defer blobs.Disconnect(context.Background())
	return fn(commandContext(cmd), blobs)
}
