package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rendis/worldscript/internal/actions"
	"github.com/rendis/worldscript/internal/engine"
	"github.com/rendis/worldscript/internal/params"
	"github.com/rendis/worldscript/internal/random"
	"github.com/rendis/worldscript/internal/scheduler"
	"github.com/rendis/worldscript/internal/store"
	"github.com/rendis/worldscript/internal/world"
)

// app is the wired process: one store, one catalog snapshot and the
// interpreter with everything it dispatches to.
type app struct {
	cfg      Config
	logger   *slog.Logger
	store    *store.LibSQLStore
	catalog  *store.Catalog
	rng      *random.Source
	resolver *params.Resolver
	registry *actions.Registry
	interp   *engine.Interpreter
	world    *world.Directory
	sched    *scheduler.Scheduler
}

// openApp opens the database, imports the configured content file and
// builds the interpreter and scheduler. Built-in handlers are registered
// separately by registerBuiltins once the caller has picked a Messenger.
func openApp(ctx context.Context, cfg Config, logger *slog.Logger) (*app, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	st, err := store.NewLibSQLStore(cfg.dsn())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: st}

	if err := a.init(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if a.cfg.ContentFile != "" {
		n, digest, err := importContent(ctx, a.store, a.cfg.ContentFile)
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "content imported",
			slog.String("file", a.cfg.ContentFile),
			slog.Int("actions", n),
			slog.String("sha256", digest),
		)
	}

	catalog, err := store.LoadCatalog(ctx, a.store)
	if err != nil {
		return err
	}
	a.catalog = catalog

	if a.cfg.Seed != 0 {
		a.rng = random.New(a.cfg.Seed)
	} else if a.rng, err = random.NewSeeded(); err != nil {
		return err
	}

	a.resolver = params.NewResolver(params.Providers{
		Stats:   a.store,
		Globals: a.store,
		Tasks:   a.store,
		Random:  a.rng,
	}, a.logger)

	a.registry = actions.NewRegistry(a.logger)
	a.interp = engine.NewInterpreter(engine.Config{
		MaxSteps:          a.cfg.MaxSteps,
		DeadlockThreshold: a.cfg.DeadlockThreshold,
	}, a.catalog, a.resolver, a.registry, a.logger)

	a.world = world.NewDirectory()
	a.sched, err = scheduler.New(a.interp, a.world, a.logger, scheduler.Options{
		Queue:    a.store,
		PoolSize: a.cfg.PoolSize,
		Events:   a.cfg.WorldEvents,
	})
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "world loaded",
		slog.Int("actions", a.catalog.Len()),
		slog.Int64("seed", a.rng.Seed()),
		slog.Int("world_events", len(a.cfg.WorldEvents)),
	)
	return nil
}

// registerBuiltins binds the built-in handler set to the app's collaborators.
func (a *app) registerBuiltins(m actions.Messenger) error {
	return actions.RegisterBuiltins(a.registry, actions.BuiltinDeps{
		Messenger: m,
		World:     a.store,
		Scheduler: a.sched,
		Dice:      a.rng,
		Logger:    a.logger,
	})
}

// Close stops the scheduler and closes the database.
func (a *app) Close() error {
	var errs []error
	if a.sched != nil {
		errs = append(errs, a.sched.Stop())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// importContent validates a content file and upserts its actions.
func importContent(ctx context.Context, st *store.LibSQLStore, path string) (int, string, error) {
	content, digest, err := readContent(path)
	if err != nil {
		return 0, "", err
	}
	n, err := st.ImportActions(ctx, content.Actions)
	if err != nil {
		return 0, "", err
	}
	return n, digest, nil
}
