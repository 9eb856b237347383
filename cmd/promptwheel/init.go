package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/codewheel-dev/promptwheel/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a .promptwheel directory with a default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			repoRoot, err := os.Getwd()
			if err != nil {
				return err
			}
			wheelDir := filepath.Join(repoRoot, ".promptwheel")
			if err := os.MkdirAll(wheelDir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", wheelDir, err)
			}

			configPath := filepath.Join(wheelDir, "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", configPath)
				return nil
			}

			data, err := yaml.Marshal(config.Default())
			if err != nil {
				return fmt.Errorf("marshal default config: %w", err)
			}
			if err := os.WriteFile(configPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", configPath, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", wheelDir)
			return nil
		},
	}
}
