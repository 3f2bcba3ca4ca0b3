package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/admin"
	"github.com/roach88/shopsync/internal/app"
	"github.com/roach88/shopsync/internal/config"
	"github.com/roach88/shopsync/internal/notify"
	"github.com/roach88/shopsync/internal/telemetry"
)

// closeTimeout bounds the wait for background reloads on exit.
const closeTimeout = 10 * time.Second

// client is one command's view of the shop: the wired app plus the
// formatter its confirmations are printed through.
type client struct {
	*app.App
	out    *OutputFormatter
	logger *slog.Logger

	unsubscribe func()
	shutdown    telemetry.Shutdown
}

// newLogger builds the slog logger for a command and installs it as the
// default. --verbose forces debug level.
func newLogger(w io.Writer, cfg config.Log, verbose bool) *slog.Logger {
	level := cfg.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, hopts)
	} else {
		handler = slog.NewTextHandler(w, hopts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
}

// openClient loads the config and opens a client session. confirm answers
// admin prompts; nil confirms everything.
func openClient(cmd *cobra.Command, opts *RootOptions, confirm admin.Confirmer) (*client, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)

	tp, shutdown, err := telemetry.Setup(cmd.ErrOrStderr(), cfg.Telemetry.Trace)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}

	appOpts := opts.App
	if appOpts.Logger == nil {
		appOpts.Logger = logger
	}
	if appOpts.TracerProvider == nil {
		appOpts.TracerProvider = tp
	}
	if confirm != nil {
		appOpts.Confirmer = confirm
	}
	if appOpts.Bus == nil {
		appOpts.Bus = notify.NewBus()
	}

	c := &client{
		out:      newFormatter(cmd, opts),
		logger:   logger,
		shutdown: shutdown,
	}
	c.unsubscribe = appOpts.Bus.Subscribe(c.observe)

	a, err := app.Open(commandContext(cmd), cfg, appOpts)
	if err != nil {
		c.unsubscribe()
		_ = shutdown(context.Background())
		return nil, WrapExitError(ExitCommandError, "failed to open session", err)
	}
	c.App = a
	return c, nil
}

// observe turns confirmations into printed notices.
func (c *client) observe(ev notify.Event) {
	switch ev.Topic {
	case notify.TopicSessionChanged, notify.TopicOrderConfirmed, notify.TopicMutationApplied:
		// Cart and checkout mutations apply without a message of their own.
		if ev.Message != "" {
			c.out.Notice(ev.Message)
		}
	}
}

// Close waits for background reloads and releases the session.
func (c *client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	err := c.App.Close(ctx)
	c.unsubscribe()
	if serr := c.shutdown(ctx); serr != nil {
		c.logger.Warn("tracer shutdown failed", "error", serr)
	}
	return err
}

// commandContext returns the command's context, or Background when run
// outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// promptConfirmer asks on out and reads a y/N answer from in.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptConfirmer(in io.Reader, out io.Writer) *promptConfirmer {
	return &promptConfirmer{in: bufio.NewReader(in), out: out}
}

func (p *promptConfirmer) Confirm(_ context.Context, prompt string) bool {
	fmt.Fprintf(p.out, "%s [y/N] ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
