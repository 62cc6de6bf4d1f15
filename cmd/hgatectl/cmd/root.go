package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pilab-dev/hospital-gate/config"
	"github.com/pilab-dev/hospital-gate/internal/app"
	"github.com/pilab-dev/hospital-gate/log"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const appName = "hgatectl"

var (
	appLogger    log.Logger
	outputFormat string
	verbose      bool
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "hgatectl administers hospital-gate users, sessions and lockouts",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := zerolog.WarnLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			appLogger = log.NewZerologAdapter(level, true)
			zlog.Logger = log.Zerolog(appLogger)

			if outputFormat != "yaml" && outputFormat != "json" {
				return fmt.Errorf("unsupported output format %q, use yaml or json", outputFormat)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&outputFormat, "output", "o", "yaml", "output format: yaml or json")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newHashPasswordCmd(),
		newUserCmd(),
		newSessionCmd(),
		newUnlockCmd(),
		newPermissionsCmd(),
		newConfigCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// printOut renders v in the selected output format.
func printOut(w io.Writer, v any) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// loadSettings loads and validates the same configuration the server uses.
func loadSettings() (*config.Config, config.Security, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, config.Security{}, err
	}
	sec, err := cfg.Security()
	if err != nil {
		return nil, config.Security{}, err
	}
	return cfg, sec, nil
}

// openBackends connects the configured stores. The returned func closes them.
func openBackends(ctx context.Context) (*config.Config, config.Security, *app.Backends, func(), error) {
	cfg, sec, err := loadSettings()
	if err != nil {
		return nil, config.Security{}, nil, nil, err
	}

	b, err := app.Open(ctx, cfg)
	if err != nil {
		return nil, config.Security{}, nil, nil, err
	}

	closeFn := func() {
		if err := b.Close(context.Background()); err != nil {
			appLogger.Error(ctx, "Failed to close backends", err)
		}
	}
	return cfg, sec, b, closeFn, nil
}
