package main

import (
	"fmt"
	"os"

	"github.com/shreekarashastry/invalidationgame/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(global *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the protocol parameters file",
		Long: `View and create the protocol parameters file.

Examples:
  invalidationgame config show                  # Effective parameters
  invalidationgame config init                  # Write defaults to invalidationgame.yaml
  invalidationgame config init -c params.yaml --force`,
	}
	cmd.AddCommand(
		newConfigShowCmd(global),
		newConfigInitCmd(global),
	)
	return cmd
}

func newConfigShowCmd(global *runOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective parameters as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.configPath, false)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newConfigInitCmd(global *runOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default parameters file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := global.configPath
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}
			if err := config.Default().Write(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default parameters to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
