package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/shopsync/internal/app"
	"github.com/roach88/shopsync/internal/config"
	"github.com/roach88/shopsync/internal/fakeshop"
	"github.com/roach88/shopsync/internal/testutil"
)

// shopEnv is a seeded shop plus a client config whose session state lives
// in a per-test SQLite file, so consecutive commands share it.
type shopEnv struct {
	store *fakeshop.Store
	cfg   *config.Config

	transcript strings.Builder
}

func newShopEnv(t *testing.T) *shopEnv {
	t.Helper()
	store, srv := testutil.ShopServer(t)

	cfg := config.Default()
	cfg.Backend.BaseURL = srv.URL
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "state.db")
	cfg.Log.Level = "error"

	return &shopEnv{store: store, cfg: cfg}
}

// runResult captures one command execution.
type runResult struct {
	Stdout string
	Stderr string
	Err    error
}

func (r runResult) ExitCode() int {
	return GetExitCode(r.Err)
}

// run executes the root command with args and no stdin.
func (e *shopEnv) run(t *testing.T, args ...string) runResult {
	t.Helper()
	return e.runWithInput(t, "", args...)
}

// runWithInput executes the root command with args and stdin.
func (e *shopEnv) runWithInput(t *testing.T, stdin string, args ...string) runResult {
	t.Helper()
	opts := &RootOptions{
		Config: e.cfg,
		App:    app.Options{RequestIDs: testutil.NewSequenceIDs("cli").Next},
	}
	return execute(opts, stdin, args...)
}

// record runs a command and appends it to the transcript.
func (e *shopEnv) record(t *testing.T, args ...string) runResult {
	t.Helper()
	return e.recordWithInput(t, "", args...)
}

func (e *shopEnv) recordWithInput(t *testing.T, stdin string, args ...string) runResult {
	t.Helper()
	res := e.runWithInput(t, stdin, args...)
	fmt.Fprintf(&e.transcript, "$ shopsync %s\n", strings.Join(args, " "))
	e.transcript.WriteString(res.Stdout)
	if code := res.ExitCode(); code != ExitSuccess {
		fmt.Fprintf(&e.transcript, "[exit %d]\n", code)
	}
	return res
}

func execute(opts *RootOptions, stdin string, args ...string) runResult {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	cmd := newRootCommand(opts)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	var in io.Reader = strings.NewReader(stdin)
	cmd.SetIn(in)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return runResult{Stdout: out.String(), Stderr: errOut.String(), Err: err}
}

func assertGolden(t *testing.T, name string, data []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
