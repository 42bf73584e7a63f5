package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/ipc"
	"github.com/roach88/nbstore/internal/registry"
)

// teardownTimeout bounds how long serve waits for stores to close on exit.
const teardownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve space storage over a Unix socket",
		Long: `Own the space databases under the data directory and serve doc, blob
and sync operations to other processes over a Unix domain socket.

On SIGINT or SIGTERM the socket is closed and every open space is torn down.

Examples:
  nbstore serve
  nbstore serve --data-dir /var/lib/nbstore --socket /run/nbstore.sock`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	log := opts.Logger
	cfg := opts.Config

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create data dir", err)
	}

	reg := registry.New(registry.NativeFactory(opts.runtime(), connection.NewArena()), registry.Options{Logger: log})
	unsub := reg.OnConnectionStatusChanged(func(e registry.StatusEvent) {
		log.Debug("storage status", "space", string(e.SpaceType)+":"+e.SpaceID,
			"storage", e.Storage, "status", e.Status, "error", e.Error)
	})
	defer unsub()

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("serving spaces", "data_dir", cfg.DataDir, "socket", cfg.Socket)
	daemon := ipc.NewDaemon(ipc.NewHandlers(reg), cfg.Socket, log)
	serveErr := daemon.Serve(ctx)
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}

	tctx, tcancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer tcancel()
	if err := reg.Teardown(tctx); err != nil {
		log.Error("teardown failed", "error", err)
	}

	if serveErr != nil {
		return WrapExitError(ExitFailure, "daemon error", serveErr)
	}
	log.Info("daemon stopped gracefully")
	return nil
}
