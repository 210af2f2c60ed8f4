package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/worldscript/internal/actions"
	"github.com/rendis/worldscript/internal/logging"
	"github.com/rendis/worldscript/pkg/mcp"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and serve the MCP console on stdio",
		Long: `Load action content, start the deferred-action scheduler and world
events, and serve the operator console over MCP on stdin/stdout until
interrupted. Logs go to stderr. SIGHUP reloads the settings file; only
the log level is applied live.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewLeveled(os.Stderr, level, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(orBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := setupTracing(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown failed", slog.String("error", err.Error()))
		}
	}()

	sessions := mcp.NewSessionRegistry()
	console := mcp.NewConsole(mcp.ConsoleDeps{
		Runner:    a.interp,
		Scheduler: a.sched,
		Resolver:  a.resolver,
		Handlers:  a.registry,
		World:     a.world,
		Sessions:  sessions,
		Logger:    logger,
	})
	messenger := mcp.NewMessenger(console.MCPServer(), sessions, actions.NewLogMessenger(logger))
	if err := a.registerBuiltins(messenger); err != nil {
		return err
	}

	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	go watchReload(ctx, opts, cfg, level, logger)

	logger.InfoContext(ctx, "worldscript serving",
		slog.String("version", version),
		slog.String("db", cfg.DBPath),
		slog.Int("handlers", a.registry.Count()),
	)
	if err := console.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("worldscript stopping")
	return nil
}

// watchReload re-reads the settings on SIGHUP, applies the log level and
// reports every other change as needing a restart.
func watchReload(ctx context.Context, opts *rootOptions, current Config, level *slog.LevelVar, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		next, err := opts.config()
		if err != nil {
			logger.WarnContext(ctx, "config reload failed", slog.String("error", err.Error()))
			continue
		}
		d := diffConfigs(current, next)
		if d.LogLevelChanged {
			level.Set(logging.ParseLevel(next.LogLevel))
			logger.InfoContext(ctx, "log level changed", slog.String("level", next.LogLevel))
		}
		if len(d.RestartNeeded) > 0 {
			logger.WarnContext(ctx, "config changes need a restart", slog.Any("fields", d.RestartNeeded))
		}
		current.LogLevel = next.LogLevel
	}
}
