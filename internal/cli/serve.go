package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/shopsync/internal/fakeshop"
)

// shutdownTimeout bounds graceful shutdown of the shop server.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr   string
	NoSeed bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a self-contained shop backend",
		Long: `Run an in-memory shop backend with the REST surface the client talks
to. Data lives only as long as the process.

Unless --no-seed is given the shop starts with an "admin" account
(password admin123), a customer "Renuka" (password password) and a small
catalog.

Example:
  shopsync serve --addr :8080
  SHOPSYNC_JWT_SECRET=... shopsync serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config server.addr)")
	cmd.Flags().BoolVar(&opts.NoSeed, "no-seed", false, "start with an empty shop")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)

	secret := cfg.Server.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		logger.Warn("no server.jwt_secret configured, using a random one; tokens will not survive a restart")
	}

	store := fakeshop.NewStore()
	if !opts.NoSeed {
		if err := store.Seed(); err != nil {
			return WrapExitError(ExitCommandError, "failed to seed shop", err)
		}
	}

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	router := fakeshop.NewRouter(store, fakeshop.ServerConfig{
		Secret:         []byte(secret),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TokenTTL:       cfg.Server.TokenTTL,
		Logger:         logger,
	})

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ln)
	}()

	slog.Info("shop starting", "addr", ln.Addr().String(), "seeded", !opts.NoSeed)
	fmt.Fprintf(cmd.OutOrStdout(), "Shop listening on %s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	select {
	case err := <-served:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown failed", err)
	}
	slog.Info("shop stopped gracefully")
	return nil
}
