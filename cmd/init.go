/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tristendillon/delombok/core/config"
	"github.com/tristendillon/delombok/core/logger"
	"gopkg.in/yaml.v3"
)

var (
	force bool
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter " + config.FileName,
	Long:  `Writes a ` + config.FileName + ` with the default settings into dir (default: the current directory).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		path := filepath.Join(dir, config.FileName)

		if _, err := os.Stat(path); err == nil && !force {
			return &usageError{fmt.Errorf("%s already exists. Use --force to overwrite", path)}
		}

		cfg := config.Default()
		cfg.Root = "src/main/java"
		cfg.Output = "target/delombok"
		cfg.Tool.Archive = "lombok.jar"

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}

		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}

		logger.Info("Wrote %s", path)
		fmt.Fprintf(cmd.OutOrStdout(), "Next Steps:\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  - point tool.archive at your lombok.jar\n")
		fmt.Fprintf(cmd.OutOrStdout(), "  - delombok plan\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
}
