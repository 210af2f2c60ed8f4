// Command worldscript hosts the action script interpreter: it loads authored
// action graphs into a libSQL database, runs the deferred-action scheduler
// and serves an MCP operator console on stdio.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every command.
type rootOptions struct {
	ConfigPath string
	LogLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "worldscript",
		Short:         "Game-world action script interpreter",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "settings file (default: ~/.worldscript/settings.yaml)")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override log level: debug, info, warn, error")

	root.AddCommand(
		newServeCommand(opts),
		newExecCommand(opts),
		newImportCommand(opts),
		newResolveCommand(opts),
		newInitCommand(opts),
	)
	return root
}

// config loads the layered configuration and applies flag overrides.
func (o *rootOptions) config() (Config, error) {
	cfg, err := loadConfig(o.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	return cfg, nil
}

// settingsFile is the path the settings are read from.
func (o *rootOptions) settingsFile() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	return settingsPath()
}
