package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/syntrixbase/warden/internal/config"
	"github.com/syntrixbase/warden/internal/logging"
	"github.com/syntrixbase/warden/internal/services"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	InitTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Services overrides components built from config (for testing).
	Services services.Options
	// Quit delivers the shutdown signal; nil waits for SIGINT or SIGTERM.
	Quit <-chan os.Signal
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the dispatcher and the change watchers",
		Long: `Start warden with the configuration found in --config-dir.

The process runs until it receives SIGINT or SIGTERM, then stops intake,
stops the watchers and closes its connections.

Example:
  warden run --config-dir ./config
  WARDEN_GATEWAY_TRANSPORT=nats warden run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServices(cmd.Context(), opts)
		},
	}

	cmd.Flags().DurationVar(&opts.InitTimeout, "init-timeout", 10*time.Second, "time allowed to connect to backing services")
	cmd.Flags().DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for graceful shutdown")

	return cmd
}

func runServices(ctx context.Context, opts *RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(opts.ConfigDir)
	if err != nil {
		return err
	}

	logs, err := logging.Initialize(cfg.Logging)
	if err != nil {
		return err
	}
	defer logs.Close()

	svcOpts := opts.Services
	if svcOpts.Logger == nil {
		svcOpts.Logger = logs.Logger
	}
	mgr := services.NewManager(cfg, svcOpts)

	initCtx, cancel := context.WithTimeout(ctx, opts.InitTimeout)
	defer cancel()

	if err := mgr.Init(initCtx); err != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), opts.ShutdownTimeout)
		defer shutdownCancel()
		mgr.Shutdown(shutdownCtx)
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	mgr.Start(bgCtx)

	quit := opts.Quit
	if quit == nil {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)
		quit = sig
	}

	select {
	case s := <-quit:
		logs.Logger.Info("shutting down services", "signal", fmt.Sprint(s))
	case <-ctx.Done():
		logs.Logger.Info("shutting down services", "reason", ctx.Err())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), opts.ShutdownTimeout)
	defer shutdownCancel()

	bgCancel()
	mgr.Shutdown(shutdownCtx)

	slog.Info("all services stopped")
	return nil
}
