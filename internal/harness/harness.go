package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/nbstore/internal/connection"
	"github.com/roach88/nbstore/internal/ipc"
	"github.com/roach88/nbstore/internal/nativedb"
	"github.com/roach88/nbstore/internal/registry"
	"github.com/roach88/nbstore/internal/remote"
	"github.com/roach88/nbstore/internal/storage"
	"github.com/roach88/nbstore/internal/testutil"
)

// Backend selects how the harness reaches the native storage.
type Backend string

const (
	// BackendNative calls the registry handlers in-process.
	BackendNative Backend = "native"

	// BackendIPC serves the handlers from a daemon and calls them through
	// an ipc.Client.
	BackendIPC Backend = "ipc"
)

// Backends lists every backend a scenario must pass on.
var Backends = []Backend{BackendNative, BackendIPC}

// Harness executes one scenario against one backend.
type Harness struct {
	st     *storage.SpaceStorage
	logger *slog.Logger
	seq    int64
}

// Run executes scenario against backend in a fresh data directory.
func Run(scenario *Scenario, backend Backend) (*Result, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	api, cleanup, err := newBackend(ctx, backend, newClock(scenario.Clock), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s backend: %w", backend, err)
	}
	defer cleanup()

	st, err := remote.NewSpaceStorage(api, connection.NewArena(), scenario.Space.Key())
	if err != nil {
		return nil, err
	}
	if err := st.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect space: %w", err)
	}
	defer st.Destroy(ctx)

	h := &Harness{st: st, logger: logger}
	result := NewResult()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	h.executeFlow(ctx, scenario.Flow, result)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, &AssertionContext{Ctx: ctx, Storage: st}) {
		result.AddError(msg)
	}
	return result, nil
}

func newClock(cs *ClockSpec) *testutil.StepClock {
	if cs == nil {
		return testutil.NewStepClock(testutil.Epoch, time.Second)
	}
	return testutil.NewStepClock(time.UnixMilli(cs.StartMS).UTC(), time.Duration(cs.StepMS)*time.Millisecond)
}

// newBackend builds a registry over a temporary data directory and exposes
// it through the requested backend.
func newBackend(ctx context.Context, backend Backend, clock *testutil.StepClock, logger *slog.Logger) (ipc.API, func(), error) {
	dir, err := os.MkdirTemp("", "nbh")
	if err != nil {
		return nil, nil, err
	}
	rt := &nativedb.Runtime{
		DataDir: filepath.Join(dir, "data"),
		Options: nativedb.Options{Merger: testutil.UnionMerger{}, Now: clock.Now},
	}
	reg := registry.New(registry.NativeFactory(rt, connection.NewArena()), registry.Options{Logger: logger})
	handlers := ipc.NewHandlers(reg)

	teardown := func() {
		if err := reg.Teardown(context.Background()); err != nil {
			logger.Error("teardown failed", "error", err)
		}
		os.RemoveAll(dir)
	}

	switch backend {
	case BackendNative:
		return handlers, teardown, nil

	case BackendIPC:
		sctx, cancel := context.WithCancel(ctx)
		daemon := ipc.NewDaemon(handlers, filepath.Join(dir, "d.sock"), logger)
		done := make(chan error, 1)
		go func() { done <- daemon.Serve(sctx) }()

		select {
		case <-daemon.Ready():
		case err := <-done:
			cancel()
			teardown()
			return nil, nil, err
		}

		client, err := ipc.Dial(filepath.Join(dir, "d.sock"), logger)
		if err != nil {
			cancel()
			<-done
			teardown()
			return nil, nil, err
		}
		return client, func() {
			client.Disconnect()
			cancel()
			<-done
			teardown()
		}, nil

	default:
		teardown()
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func (h *Harness) nextSeq() int64 {
	h.seq++
	return h.seq
}

// executeSetup runs setup steps untraced. Any failure aborts the scenario.
func (h *Harness) executeSetup(ctx context.Context, setup []Step) error {
	for i, step := range setup {
		if _, err := operations[step.Invoke](ctx, h.st, step.Args); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Invoke, err)
		}
		h.logger.Debug("setup step completed", "step", i, "op", step.Invoke)
	}
	return nil
}

// executeFlow runs the flow, tracing each invocation and completion and
// checking expect clauses. A step without expect must succeed.
func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) {
	for i, step := range flow {
		args, err := normalize(step.Args)
		if err != nil {
			result.AddError(fmt.Sprintf("flow step %d: %v", i, err))
			continue
		}
		result.AddInvocationTrace(step.Invoke, args, h.nextSeq())

		out, opErr := operations[step.Invoke](ctx, h.st, step.Args)
		outputCase := outcome(opErr)
		traced, err := normalize(out)
		if err != nil {
			result.AddError(fmt.Sprintf("flow step %d: %v", i, err))
		}
		result.AddCompletionTrace(outputCase, traced, h.nextSeq())

		expect := step.Expect
		if expect == nil {
			expect = &ExpectClause{Case: CaseOK}
		}
		if outputCase != expect.Case {
			msg := fmt.Sprintf("flow step %d (%s): expected case %s, got %s", i, step.Invoke, expect.Case, outputCase)
			if opErr != nil {
				msg += ": " + opErr.Error()
			}
			result.AddError(msg)
			continue
		}
		if len(expect.Result) > 0 {
			want, err := normalize(expect.Result)
			if err != nil {
				result.AddError(fmt.Sprintf("flow step %d: expected result: %v", i, err))
				continue
			}
			if !matchArgs(traced, want) {
				result.AddError(fmt.Sprintf("flow step %d (%s): expected result %v, got %v", i, step.Invoke, want, traced))
			}
		}

		h.logger.Debug("flow step completed", "step", i, "op", step.Invoke, "output_case", outputCase)
	}
}

// outcome maps an operation error to its completion case.
func outcome(err error) string {
	if err == nil {
		return CaseOK
	}
	if code := storage.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}

// normalize converts v to plain JSON values so results from any backend and
// expectations from YAML compare equal. Numbers become json.Number.
// Empty objects normalize to nil.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if m, ok := out.(map[string]any); ok && len(m) == 0 {
		return nil, nil
	}
	return out, nil
}
