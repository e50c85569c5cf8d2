// Package command assembles mvirtd's cobra command tree, following the
// teacher's root-command shape: a persistent pre-run that wires viper and
// the root logger, then one subcommand per concern.
package command

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MalteJ/mvirt/internal/command/flags"
	"github.com/MalteJ/mvirt/internal/command/run"
	"github.com/MalteJ/mvirt/internal/config"
	"github.com/MalteJ/mvirt/internal/version"
	"github.com/MalteJ/mvirt/pkg/log"
)

// NewRootCommand returns the mvirtd cobra command tree.
func NewRootCommand() (*cobra.Command, error) {
	cfg := &config.Config{}

	cmd := &cobra.Command{
		Use:   "mvirtd",
		Short: "mvirt - cluster-aware microVM control plane",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags.BindCommandToViper(cmd)

			logger, err := log.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("configuring logging: %w", err)
			}

			cmd.SetContext(log.WithLogger(cmd.Context(), logger))

			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error {
			return c.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&cfg.Logging.Level, "log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace).")
	cmd.PersistentFlags().StringVar(&cfg.Logging.Formatter, "log-format", "text", "Log format (text, json).")
	cmd.PersistentFlags().StringVar(&cfg.ConfigFilePath, "config", "", "Path to an optional config file.")

	if err := addRootSubCommands(cmd, cfg); err != nil {
		return nil, fmt.Errorf("adding subcommands: %w", err)
	}

	cobra.OnInitialize(initViper)

	return cmd, nil
}

func initViper() {
	viper.SetEnvPrefix("MVIRTD")
	viper.AutomaticEnv()
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.AddConfigPath("$HOME/.config/mvirtd/")
	viper.AddConfigPath("/etc/mvirt/")

	_ = viper.ReadInConfig()
}

func addRootSubCommands(cmd *cobra.Command, cfg *config.Config) error {
	runCmd, err := run.NewCommand(cfg)
	if err != nil {
		return fmt.Errorf("creating run command: %w", err)
	}

	cmd.AddCommand(runCmd)
	cmd.AddCommand(versionCommand())

	return nil
}

func versionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the mvirtd version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s, built %s)\n",
				version.PackageName, version.Version, version.CommitHash, version.BuildDate)

			return nil
		},
	}

	return cmd
}
