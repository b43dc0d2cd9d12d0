package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffimport/internal/config"
	"github.com/JonMunkholm/staffimport/internal/logging"
)

type rootOptions struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Employee import tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env", ".env.local"}, "Env files to load when present")

	cmd.AddCommand(newRunCmd(&opts))
	cmd.AddCommand(newTemplateCmd())
	cmd.AddCommand(newTranslitCmd())
	cmd.AddCommand(newMigrateCmd(&opts))
	cmd.AddCommand(newEntityCmd(&opts))
	return cmd
}

func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

// loadConfig reads the env files and environment. Logs go to stderr so
// command output can be piped.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if _, err := config.LoadEnv(opts.envFiles...); err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("load env files: %w", err))
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	slog.SetDefault(logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}
