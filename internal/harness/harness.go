package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/shopsync/internal/admin"
	"github.com/roach88/shopsync/internal/app"
	"github.com/roach88/shopsync/internal/config"
	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/fakeshop"
	"github.com/roach88/shopsync/internal/loop"
	"github.com/roach88/shopsync/internal/notify"
	"github.com/roach88/shopsync/internal/optimistic"
	"github.com/roach88/shopsync/internal/storage"
	"github.com/roach88/shopsync/internal/testutil"
)

// Outcome cases besides the failure kinds.
const (
	CaseSuccess  = "Success"
	CaseDropped  = "DROPPED"
	CaseDeclined = "DECLINED"
	CaseError    = "ERROR"
)

// settleTimeout bounds how long a step may take to settle.
const settleTimeout = 10 * time.Second

// Harness executes one scenario against a fresh shop and client session.
type Harness struct {
	shop    *fakeshop.Store
	server  *httptest.Server
	app     *app.App
	seq     *loop.Clock
	decline atomic.Bool
	logger  *slog.Logger

	mu     sync.Mutex
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against its own seeded shop and in-memory session
// storage.
//
// Execution flow:
// 1. Seed the shop and open a client session against it
// 2. Execute setup steps against the shop
// 3. Execute flow steps, checking expect clauses
// 4. Capture final state and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (result *Result, err error) {
	h, err := start(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := h.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := h.executeSetup(scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}
	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	result = h.result
	for name, capture := range stateTables {
		rows, err := capture(h)
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", name, err)
		}
		result.State[name] = rows
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func start(ctx context.Context) (*Harness, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewStepClock(time.Minute)

	shop := fakeshop.NewStore(
		fakeshop.WithHashCost(bcrypt.MinCost),
		fakeshop.WithClock(clock.Now),
	)
	if err := shop.Seed(); err != nil {
		return nil, fmt.Errorf("seed shop: %w", err)
	}

	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(fakeshop.NewRouter(shop, fakeshop.ServerConfig{
		Secret: []byte("harness"),
		Logger: logger,
	}))

	h := &Harness{
		shop:   shop,
		server: srv,
		seq:    loop.NewClock(),
		logger: logger,
		result: NewResult(),
	}

	cfg := config.Default()
	cfg.Backend.BaseURL = srv.URL
	cfg.Storage.Driver = storage.DriverMemory

	bus := notify.NewBus()
	bus.Subscribe(h.record)

	a, err := app.Open(ctx, cfg, app.Options{
		Storage:    storage.NewMemory(),
		Confirmer:  admin.ConfirmFunc(h.confirm),
		RequestIDs: testutil.NewSequenceIDs("req").Next,
		Clock:      clock.Now,
		Bus:        bus,
		Logger:     logger,
	})
	if err != nil {
		srv.Close()
		return nil, err
	}
	h.app = a
	return h, nil
}

func (h *Harness) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	err := h.app.Close(ctx)
	h.server.Close()
	return err
}

func (h *Harness) confirm(context.Context, string) bool {
	return !h.decline.Load()
}

// record appends a published notification to the trace.
func (h *Harness) record(ev notify.Event) {
	h.append(TraceEvent{
		Type:    EntryEvent,
		Topic:   string(ev.Topic),
		Source:  ev.Source,
		Message: ev.Message,
	})
}

func (h *Harness) append(e TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e.Seq = h.seq.Next()
	h.result.Trace = append(h.result.Trace, e)
}

// executeSetup runs all setup steps against the shop. Setup steps appear in
// the trace as successful invocations.
func (h *Harness) executeSetup(setup []ActionStep) error {
	for i, step := range setup {
		args := normalizeMap(step.Args)
		h.append(TraceEvent{Type: EntryInvocation, ActionURI: step.Action, Args: args})

		if err := setupActions[step.Action](h, args); err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Action, err)
		}
		h.append(TraceEvent{Type: EntryCompletion, ActionURI: step.Action, OutputCase: CaseSuccess})

		h.logger.Info("setup step completed", "step", i, "action", step.Action)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses.
//
// Each step:
// 1. Records the invocation
// 2. Runs the client action and waits for any mutation it submitted
// 3. Waits for background reloads so their notifications are traced
// 4. Records the completion and checks the expect clause
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	for i, step := range flow {
		args := normalizeMap(step.Args)
		h.decline.Store(step.Decline)
		h.append(TraceEvent{Type: EntryInvocation, ActionURI: step.Invoke, Args: args})

		run, ok := lookupFlow(step.Invoke)
		if !ok {
			return fmt.Errorf("flow step %d: unknown action %q", i, step.Invoke)
		}
		stepCtx, cancel := context.WithTimeout(ctx, settleTimeout)
		out, stepErr := run(stepCtx, h, args)
		drainErr := h.app.Applier.Drain(stepCtx)
		cancel()
		if drainErr != nil {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, drainErr)
		}

		outputCase, result := outcome(out, stepErr)
		h.append(TraceEvent{
			Type:       EntryCompletion,
			ActionURI:  step.Invoke,
			OutputCase: outputCase,
			Result:     result,
		})

		h.checkExpect(i, step, outputCase, result)
		h.logger.Info("flow step completed", "step", i, "action", step.Invoke, "case", outputCase)
	}
	return nil
}

// checkExpect compares a completion with the step's expect clause. A step
// without one must succeed.
func (h *Harness) checkExpect(i int, step FlowStep, outputCase string, result map[string]any) {
	want := step.Expect
	if want == nil {
		want = &ExpectClause{Case: CaseSuccess}
	}
	if outputCase != want.Case {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected case %s, got %s %v",
			i, step.Invoke, want.Case, outputCase, result))
		return
	}
	if !matchArgs(result, normalizeMap(want.Result)) {
		h.result.AddError(fmt.Sprintf("flow[%d] %s: expected result %v, got %v",
			i, step.Invoke, want.Result, result))
	}
}

// outcome maps a step's error to its output case and result.
func outcome(out map[string]any, err error) (string, map[string]any) {
	switch {
	case err == nil:
		return CaseSuccess, normalizeMap(out)
	case errors.Is(err, optimistic.ErrInFlight):
		return CaseDropped, nil
	case errors.Is(err, admin.ErrDeclined):
		return CaseDeclined, nil
	}

	c := string(failure.KindOf(err))
	if c == "" {
		c = CaseError
	}
	return c, map[string]any{"message": failure.Describe(err)}
}

// normalizeMap round-trips m through JSON so YAML-decoded values and
// captured values compare with the same types.
func normalizeMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return m
	}
	return out
}
