package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/ipc"
	"github.com/roach88/nbstore/internal/nativedb"
	"github.com/roach88/nbstore/internal/registry"
	"github.com/roach88/nbstore/internal/remote"
	"github.com/roach88/nbstore/internal/space"
	"github.com/roach88/nbstore/internal/storage"
)

// session is the storage a data command runs against: the daemon when one
// answers on the configured socket, an in-process registry otherwise.
type session struct {
	api    ipc.API
	arena  *connection.Arena
	daemon bool
	log    *slog.Logger
	close  func(context.Context) error
}

func (o *RootOptions) runtime() *nativedb.Runtime {
	return &nativedb.Runtime{
		DataDir: o.Config.DataDir,
		Options: nativedb.Options{BusyTimeout: o.Config.SQLite.BusyTimeout()},
	}
}

func (o *RootOptions) openSession() *session {
	log := o.Logger
	if log == nil {
		log = slog.Default()
	}
	client, err := ipc.Dial(o.Config.Socket, log)
	if err == nil {
		log.Debug("using daemon", "socket", o.Config.Socket)
		return &session{
			api:    client,
			arena:  connection.NewArena(),
			daemon: true,
			log:    log,
			close:  func(context.Context) error { return client.Disconnect() },
		}
	}

	log.Debug("daemon unreachable, opening storage in-process", "socket", o.Config.Socket, "error", err)
	reg := registry.New(registry.NativeFactory(o.runtime(), connection.NewArena()), registry.Options{Logger: log})
	return &session{
		api:   ipc.NewHandlers(reg),
		arena: connection.NewArena(),
		log:   log,
		close: reg.Teardown,
	}
}

// space connects the storages of key through the session API.
func (s *session) space(ctx context.Context, key space.Key) (*storage.SpaceStorage, error) {
	st, err := remote.NewSpaceStorage(s.api, s.arena, key)
	if err != nil {
		return nil, err
	}
	if err := st.Connect(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *session) shutdown(ctx context.Context) {
	if err := s.close(ctx); err != nil {
		s.log.Error("closing storage session", "error", err)
	}
}

// withSpace opens a session, connects the space named by the first two
// args and runs fn against it.
func withSpace(opts *RootOptions, cmd *cobra.Command, args []string, fn func(ctx context.Context, st *storage.SpaceStorage) error) error {
	key, err := parseSpaceArgs(args)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	sess := opts.openSession()
	defer sess.shutdown(context.Background())

	st, err := sess.space(ctx, key)
	if err != nil {
		return storageExit("failed to connect space "+key.String(), err)
	}
	return fn(ctx, st)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// parseSpaceArgs reads "<space-type> <space-id>" from the head of args.
func parseSpaceArgs(args []string) (space.Key, error) {
	if len(args) < 2 {
		return space.Key{}, NewExitError(ExitCommandError, "space type and space id are required")
	}
	t, err := space.ParseType(args[0])
	if err != nil {
		return space.Key{}, WrapExitError(ExitCommandError, "invalid space", err)
	}
	key := space.NewKey(t, args[1])
	if err := key.Validate(); err != nil {
		return space.Key{}, WrapExitError(ExitCommandError, "invalid space", err)
	}
	return key, nil
}

// parseTime accepts Unix milliseconds or RFC 3339. Empty means the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return space.FromMillis(ms), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, WrapExitError(ExitCommandError,
			fmt.Sprintf("invalid time %q: want unix milliseconds or RFC 3339", s), err)
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
