/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tristendillon/delombok/core/config"
	"github.com/tristendillon/delombok/core/logger"
	"github.com/tristendillon/delombok/core/pipeline"
	"github.com/tristendillon/delombok/core/report"
)

var runFlags pipelineFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Delombok the root directory into the output directory",
	Long: `Lists every file under the root directory, copies excluded files through
unchanged, runs delombok on the rest and moves its flattened output back
into the source layout. A non-zero exit from delombok aborts the run before
any file is moved.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := runFlags.load(cmd, true)
		if err != nil {
			return err
		}

		started := time.Now()
		res, runErr := newPipeline(cmd, cfg).Run(cmd.Context())
		writeReport(cfg, res, runErr, started)
		if runErr != nil {
			return fmt.Errorf("delombok run failed: %w", runErr)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runFlags.register(runCmd)
}

// writeReport never fails the command; a missing report is logged instead.
func writeReport(cfg *config.Config, res *pipeline.Result, runErr error, started time.Time) {
	if cfg.Report == "" || res == nil {
		return
	}
	if err := report.Write(cfg.Report, report.New(res, runErr, started)); err != nil {
		logger.Error("%v", err)
		return
	}
	logger.Debug("Wrote report to %s", cfg.Report)
}
