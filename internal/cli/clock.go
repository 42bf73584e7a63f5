package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// NewClockCommand creates the clock command group for per-peer sync clocks.
func NewClockCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clock",
		Short: "Inspect and update per-peer sync clocks",
		Long: `Each space keeps two clocks per peer and document: the remote clock
(the last version seen from the peer) and the pushed clock (the last local
version the peer acknowledged). Setting a clock never moves it backwards.`,
	}

	get := func(pushed bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return runClockGet(opts, cmd, args, pushed)
		}
	}
	set := func(pushed bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			return runClockSet(opts, cmd, args, pushed)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:           "get <space-type> <space-id> <peer>",
			Short:         "List the remote clocks of a peer",
			Args:          cobra.ExactArgs(3),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE:          get(false),
		},
		&cobra.Command{
			Use:   "set <space-type> <space-id> <peer> <doc-id> <time>",
			Short: "Record a remote clock for a peer",
			Long: `Record the remote clock of a document for a peer. <time> is unix
milliseconds or RFC 3339.`,
			Args:          cobra.ExactArgs(5),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE:          set(false),
		},
		&cobra.Command{
			Use:           "pushed <space-type> <space-id> <peer>",
			Short:         "List the pushed clocks of a peer",
			Args:          cobra.ExactArgs(3),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE:          get(true),
		},
		&cobra.Command{
			Use:           "set-pushed <space-type> <space-id> <peer> <doc-id> <time>",
			Short:         "Record a pushed clock for a peer",
			Args:          cobra.ExactArgs(5),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE:          set(true),
		},
		&cobra.Command{
			Use:           "clear <space-type> <space-id>",
			Short:         "Forget every peer clock of a space",
			Args:          cobra.ExactArgs(2),
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runClockClear(opts, cmd, args)
			},
		},
	)
	return cmd
}

func runClockGet(opts *RootOptions, cmd *cobra.Command, args []string, pushed bool) error {
	peer := args[2]
	return withSpace(opts, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		sync, err := st.Sync()
		if err != nil {
			return storageExit("sync storage", err)
		}
		var clocks space.DocClocks
		if pushed {
			clocks, err = sync.GetPeerPushedClocks(ctx, peer)
		} else {
			clocks, err = sync.GetPeerClocks(ctx, peer)
		}
		if err != nil {
			return storageExit("failed to get clocks", err)
		}
		return writeClocks(opts.formatter(cmd), clocks)
	})
}

func runClockSet(opts *RootOptions, cmd *cobra.Command, args []string, pushed bool) error {
	peer, docID := args[2], args[3]
	ts, err := parseTime(args[4])
	if err != nil {
		return err
	}
	clock := space.DocClock{DocID: docID, Timestamp: ts}

	return withSpace(opts, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		sync, err := st.Sync()
		if err != nil {
			return storageExit("sync storage", err)
		}
		if pushed {
			err = sync.SetPeerPushedClock(ctx, peer, clock)
		} else {
			err = sync.SetPeerClock(ctx, peer, clock)
		}
		if err != nil {
			return storageExit("failed to set clock", err)
		}
		return opts.formatter(cmd).Result(clock, func(w io.Writer) {
			fmt.Fprintf(w, "%s\t%s\t%s\n", peer, docID, formatTime(ts))
		})
	})
}

func runClockClear(opts *RootOptions, cmd *cobra.Command, args []string) error {
	return withSpace(opts, cmd, args, func(ctx context.Context, st *storage.SpaceStorage) error {
		sync, err := st.Sync()
		if err != nil {
			return storageExit("sync storage", err)
		}
		if err := sync.ClearClocks(ctx); err != nil {
			return storageExit("failed to clear clocks", err)
		}
		return opts.formatter(cmd).Result(map[string]string{"space": st.Key().String()}, func(w io.Writer) {
			fmt.Fprintln(w, "cleared peer clocks")
		})
	})
}
