package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rendis/worldscript/internal/actions"
	"github.com/rendis/worldscript/internal/engine"
	"github.com/rendis/worldscript/internal/logging"
	"github.com/rendis/worldscript/internal/store"
	"github.com/rendis/worldscript/pkg/schema"
)

// actorFlags describe an ad-hoc actor for one-shot commands.
type actorFlags struct {
	ID    uint32
	Name  string
	Level int
	Money int64
	MapID uint32
	Input string
}

func (f *actorFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Uint32Var(&f.ID, "actor-id", 0, "run as this actor (0: no actor)")
	cmd.Flags().StringVar(&f.Name, "actor-name", "Player", "actor display name")
	cmd.Flags().IntVar(&f.Level, "level", 1, "actor level")
	cmd.Flags().Int64Var(&f.Money, "money", 0, "actor money")
	cmd.Flags().Uint32Var(&f.MapID, "map-id", 0, "actor map")
	cmd.Flags().StringVar(&f.Input, "input", "", "free-form player input")
}

func (f *actorFlags) context() *schema.ExecutionContext {
	ec := &schema.ExecutionContext{Input: f.Input}
	if f.ID != 0 {
		ec.Actor = &schema.ActorRef{
			ID:       f.ID,
			Name:     f.Name,
			Level:    f.Level,
			Money:    f.Money,
			Position: schema.Position{MapID: f.MapID},
		}
	}
	return ec
}

// cliLogger logs to stderr so command output on stdout stays clean.
func cliLogger(cfg Config) *slog.Logger {
	return logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

// --- exec ---

// execOutput is the JSON view of a finished traversal.
type execOutput struct {
	OK          bool     `json:"ok"`
	Steps       int      `json:"steps"`
	Invocations int      `json:"invocations"`
	Path        []uint32 `json:"path"`
	Code        string   `json:"code,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func newExecOutput(res *engine.Result) execOutput {
	out := execOutput{OK: res.OK, Steps: res.Steps, Invocations: res.Invocations, Path: res.Path}
	if out.Path == nil {
		out.Path = []uint32{}
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
		var se *schema.ScriptError
		if errors.As(res.Err, &se) {
			out.Code = se.Code
		}
	}
	return out
}

func newExecCommand(opts *rootOptions) *cobra.Command {
	actor := &actorFlags{}
	cmd := &cobra.Command{
		Use:   "exec <action-id>",
		Short: "Run one action graph and print the result",
		Long: `Run one traversal from the given start node. Actor messages are
printed to stdout, followed by the traversal result as JSON. Actions the
graph schedules are persisted and fire on the next serve.

Example:
  worldscript exec 1000 --actor-id 7 --actor-name Alice --level 30`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseActionID(args[0])
			if err != nil {
				return err
			}
			return runExec(cmd.Context(), opts, id, actor, cmd.OutOrStdout())
		},
	}
	actor.bind(cmd)
	return cmd
}

func runExec(ctx context.Context, opts *rootOptions, id uint32, actor *actorFlags, out io.Writer) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	ctx = orBackground(ctx)
	a, err := openApp(ctx, cfg, cliLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.registerBuiltins(actions.NewWriterMessenger(out)); err != nil {
		return err
	}

	ec := actor.context()
	if ec.Actor != nil {
		if err := a.world.Join(*ec.Actor); err != nil {
			return err
		}
	}

	res := a.interp.Run(ctx, id, ec)
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(newExecOutput(res))
}

// --- import ---

func newImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate an action content file and load it into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			ctx := orBackground(cmd.Context())

			st, err := store.NewLibSQLStore(cfg.dsn())
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return err
			}

			n, digest, err := importContent(ctx, st, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d actions from %s (sha256 %s)\n", n, args[0], digest)
			return nil
		},
	}
}

// --- resolve ---

func newResolveCommand(opts *rootOptions) *cobra.Command {
	actor := &actorFlags{}
	cmd := &cobra.Command{
		Use:   "resolve <template>",
		Short: "Expand a parameter template and print the result",
		Long: `Expand %tokens in a parameter template against an ad-hoc actor and
the stored world state.

Example:
  worldscript resolve "Hello %user_name, stage %stc(5,2)" --actor-id 7 --actor-name Alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			ctx := orBackground(cmd.Context())
			a, err := openApp(ctx, cfg, cliLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), a.resolver.Resolve(ctx, args[0], actor.context()))
			return nil
		},
	}
	actor.bind(cmd)
	return cmd
}

// --- init ---

func newInitCommand(opts *rootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.settingsFile()
			if err := writeDefaultSettings(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing settings file")
	return cmd
}

func writeDefaultSettings(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(defaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func parseActionID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid action id %q", s)
	}
	return uint32(v), nil
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
